// Package collection defines the read-only index collaborator the scoring
// core consumes, together with the document loaders used to populate the
// concrete backends. Document identifiers are dense: a collection holding n
// documents addresses them as 0..n-1.
package collection

import (
	"context"
)

// Index is the statistics and stored-field view of an indexed collection.
// Implementations must be safe for concurrent readers.
type Index interface {
	// NumDocs returns the number of indexed documents.
	NumDocs(ctx context.Context) (uint64, error)
	// DocumentContent returns the content field of docID, or an error
	// wrapping errors.ErrDocumentNotFound.
	DocumentContent(ctx context.Context, docID uint64) (string, error)
	// DocFreq returns the number of documents containing term.
	DocFreq(ctx context.Context, term string) (uint64, error)
	// TotalTermFreq returns the occurrences of term summed over every document.
	TotalTermFreq(ctx context.Context, term string) (uint64, error)
}

// TermEnumerator is implemented by indexes that can list their vocabulary.
type TermEnumerator interface {
	Terms(ctx context.Context) ([]string, error)
}

// TermEntry carries the collection-level counts of one term.
type TermEntry struct {
	Term          string `cbor:"t" json:"term"`
	DocFreq       uint64 `cbor:"d" json:"doc_freq"`
	TotalTermFreq uint64 `cbor:"f" json:"total_term_freq"`
}

// Snapshot is a point-in-time copy of an index: its stored documents in
// docID order and its term statistics sorted by term.
type Snapshot struct {
	Analyzer  string
	Documents []string
	Terms     []TermEntry
}
