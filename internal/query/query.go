// Package query reads topic lines of the form "<queryId> <term> <term> ...".
package query

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/analysis"
	apperrors "github.com/Adithya-Monish-Kumar-K/qlm-retrieval/pkg/errors"
)

const maxLineBytes = 1 << 20

type Query struct {
	ID string
	// Terms are the distinct analyzed terms in first-occurrence order.
	Terms []string
	// Line is the 1-based line number in the query source.
	Line int
	Raw  string
}

// Parse analyzes one query line. Lines without an id or whose text yields
// no terms are malformed.
func Parse(line string, analyzer analysis.Analyzer) (*Query, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, apperrors.New(apperrors.ErrMalformedQuery, "empty query line")
	}
	q := &Query{ID: fields[0], Raw: line}
	if len(fields) == 1 {
		return nil, apperrors.Newf(apperrors.ErrMalformedQuery, "query %s has no terms", q.ID)
	}
	text := strings.Join(fields[1:], " ")
	seen := make(map[string]struct{})
	for _, term := range analyzer.Analyze(text) {
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		q.Terms = append(q.Terms, term)
	}
	if len(q.Terms) == 0 {
		return nil, apperrors.Newf(apperrors.ErrMalformedQuery, "query %s: no terms survive analysis of %q", q.ID, text)
	}
	return q, nil
}

// Reader yields queries from a line-oriented source. Blank lines are
// skipped silently.
type Reader struct {
	scanner  *bufio.Scanner
	analyzer analysis.Analyzer
	line     int
}

func NewReader(r io.Reader, analyzer analysis.Analyzer) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &Reader{scanner: scanner, analyzer: analyzer}
}

// Next returns the next query, io.EOF at the end of input, or an error
// wrapping ErrMalformedQuery for a bad line. Reading may continue after a
// malformed line.
func (r *Reader) Next() (*Query, error) {
	for r.scanner.Scan() {
		r.line++
		text := r.scanner.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		q, err := Parse(text, r.analyzer)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", r.line, err)
		}
		q.Line = r.line
		return q, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading queries at line %d: %w", r.line, err)
	}
	return nil, io.EOF
}

// Line returns the number of the last line read.
func (r *Reader) Line() int { return r.line }

// Open opens a query file.
func Open(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrConfiguration, "opening query file: %v", err)
	}
	return f, nil
}
