// Package memory provides an in-memory collection index. Documents are
// analyzed on insert and their per-term counts folded into collection-level
// document and total term frequencies.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/collection"
	apperrors "github.com/Adithya-Monish-Kumar-K/qlm-retrieval/pkg/errors"
)

type termStats struct {
	docFreq       uint64
	totalTermFreq uint64
}

type Index struct {
	mu       sync.RWMutex
	analyzer analysis.Analyzer
	contents []string
	terms    map[string]*termStats
	tokens   uint64
}

var (
	_ collection.Index          = (*Index)(nil)
	_ collection.TermEnumerator = (*Index)(nil)
)

func New(analyzer analysis.Analyzer) *Index {
	return &Index{
		analyzer: analyzer,
		terms:    make(map[string]*termStats),
	}
}

// Load builds an index from a documents file.
func Load(path string, format string, analyzer analysis.Analyzer) (*Index, error) {
	idx := New(analyzer)
	err := collection.ReadDocumentsFile(path, format, func(content string) error {
		idx.AddDocument(content)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return idx, nil
}

// AddDocument indexes content under the next free docID and returns it.
func (m *Index) AddDocument(content string) uint64 {
	tokens := m.analyzer.Analyze(content)
	counts := make(map[string]uint64, len(tokens))
	for _, term := range tokens {
		counts[term]++
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	docID := uint64(len(m.contents))
	m.contents = append(m.contents, content)
	for term, freq := range counts {
		ts, exists := m.terms[term]
		if !exists {
			ts = &termStats{}
			m.terms[term] = ts
		}
		ts.docFreq++
		ts.totalTermFreq += freq
	}
	m.tokens += uint64(len(tokens))
	return docID
}

func (m *Index) NumDocs(ctx context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.contents)), nil
}

func (m *Index) DocumentContent(ctx context.Context, docID uint64) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if docID >= uint64(len(m.contents)) {
		return "", apperrors.Newf(apperrors.ErrDocumentNotFound, "doc %d of %d", docID, len(m.contents))
	}
	return m.contents[docID], nil
}

func (m *Index) DocFreq(ctx context.Context, term string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if ts, ok := m.terms[term]; ok {
		return ts.docFreq, nil
	}
	return 0, nil
}

func (m *Index) TotalTermFreq(ctx context.Context, term string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if ts, ok := m.terms[term]; ok {
		return ts.totalTermFreq, nil
	}
	return 0, nil
}

func (m *Index) Terms(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	terms := make([]string, 0, len(m.terms))
	for term := range m.terms {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms, nil
}

// TokenCount returns the number of analyzed tokens indexed so far.
func (m *Index) TokenCount() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tokens
}

// Snapshot copies the stored documents and term statistics.
func (m *Index) Snapshot() collection.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs := make([]string, len(m.contents))
	copy(docs, m.contents)
	entries := make([]collection.TermEntry, 0, len(m.terms))
	for term, ts := range m.terms {
		entries = append(entries, collection.TermEntry{
			Term:          term,
			DocFreq:       ts.docFreq,
			TotalTermFreq: ts.totalTermFreq,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	return collection.Snapshot{
		Analyzer:  m.analyzer.Name(),
		Documents: docs,
		Terms:     entries,
	}
}
