// Package analysis turns raw document or query text into the ordered
// sequence of normalised terms the scoring core consumes. Every chain is a
// pure function of its input.
package analysis

import (
	"fmt"
	"strings"
	"unicode"

	apperrors "github.com/Adithya-Monish-Kumar-K/qlm-retrieval/pkg/errors"
)

// Analyzer maps text to normalised terms, preserving order and duplicates.
type Analyzer interface {
	Name() string
	Analyze(text string) []string
}

// Chain is a configurable lower-case, split, filter, stem pipeline.
type Chain struct {
	name      string
	separator func(r rune) bool
	minLen    int
	stopWords map[string]struct{}
	stem      bool
}

// New returns the named analyzer chain: "standard", "english" or "whitespace".
func New(name string) (Analyzer, error) {
	switch name {
	case "standard", "":
		return Standard(), nil
	case "english":
		return English(), nil
	case "whitespace":
		return Whitespace(), nil
	default:
		return nil, apperrors.Newf(apperrors.ErrConfiguration, "unknown analyzer %q", name)
	}
}

// Standard lower-cases and splits on every non-alphanumeric rune.
func Standard() *Chain {
	return &Chain{name: "standard", separator: notAlphanumeric}
}

// English additionally drops single-rune tokens and stop-words, then applies
// a suffix-stripping stemmer.
func English() *Chain {
	return &Chain{
		name:      "english",
		separator: notAlphanumeric,
		minLen:    2,
		stopWords: englishStopWords,
		stem:      true,
	}
}

// Whitespace lower-cases and splits on white space only.
func Whitespace() *Chain {
	return &Chain{name: "whitespace", separator: unicode.IsSpace}
}

func (c *Chain) Name() string { return c.name }

func (c *Chain) Analyze(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), c.separator)
	terms := make([]string, 0, len(words))
	for _, word := range words {
		if len(word) < c.minLen {
			continue
		}
		if _, isStop := c.stopWords[word]; isStop {
			continue
		}
		if c.stem {
			word = stem(word)
		}
		if word == "" {
			continue
		}
		terms = append(terms, word)
	}
	return terms
}

func (c *Chain) String() string {
	return fmt.Sprintf("analyzer(%s)", c.name)
}

func notAlphanumeric(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
