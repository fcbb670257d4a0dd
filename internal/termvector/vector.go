// Package termvector derives per-document term-frequency vectors from a
// document's content field and caches them for the lifetime of a run.
package termvector

import (
	"context"
	"fmt"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/collection"
)

// Vector is the sparse term→frequency map of one document. Length is the
// total number of term occurrences, so Length equals the sum of Freqs.
type Vector struct {
	DocID  uint64
	Freqs  map[string]uint64
	Length uint64
}

// New counts terms in one pass over an analyzer's output.
func New(docID uint64, terms []string) *Vector {
	freqs := make(map[string]uint64, len(terms))
	for _, term := range terms {
		freqs[term]++
	}
	return &Vector{DocID: docID, Freqs: freqs, Length: uint64(len(terms))}
}

// TF returns the frequency of term, 0 when absent.
func (v *Vector) TF(term string) uint64 {
	return v.Freqs[term]
}

// Terms returns the distinct terms in lexical order.
func (v *Vector) Terms() []string {
	terms := make([]string, 0, len(v.Freqs))
	for term := range v.Freqs {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}

// Source yields the term vector of a document.
type Source interface {
	Get(ctx context.Context, docID uint64) (*Vector, error)
}

// Extractor reads a document's content from the index and analyzes it.
type Extractor struct {
	index    collection.Index
	analyzer analysis.Analyzer
}

func NewExtractor(index collection.Index, analyzer analysis.Analyzer) *Extractor {
	return &Extractor{index: index, analyzer: analyzer}
}

func (e *Extractor) Get(ctx context.Context, docID uint64) (*Vector, error) {
	content, err := e.index.DocumentContent(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("extracting term vector for doc %d: %w", docID, err)
	}
	return New(docID, e.analyzer.Analyze(content)), nil
}
