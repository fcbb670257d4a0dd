// Package stats builds the collection-wide statistics the scorer's
// background model is drawn from. Statistics are computed once per run in a
// single pass over the collection and are read-only afterwards.
package stats

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/collection"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/termvector"
	apperrors "github.com/Adithya-Monish-Kumar-K/qlm-retrieval/pkg/errors"
)

// CollectionStatistics is the read-only statistical view consumed by the scorer.
type CollectionStatistics interface {
	NumDocs() uint64
	VocabularySize() uint64
	DocFreq(ctx context.Context, term string) (uint64, error)
	TotalTermFreq(ctx context.Context, term string) (uint64, error)
}

// Statistics holds the counts precomputed by Build. Term-level counts are
// served by the index, which keeps them alongside its dictionary.
type Statistics struct {
	index          collection.Index
	numDocs        uint64
	vocabularySize uint64
	skippedDocs    uint64
	digest         [sha256.Size]byte
}

var _ CollectionStatistics = (*Statistics)(nil)

// Build walks every document once, summing term-vector lengths into the
// vocabulary size and hashing each vector into the content digest behind
// Fingerprint. Vectors are pulled through src, so a caching src is warmed
// as a side effect. Missing documents are logged and skipped; any other read
// failure, or an empty collection, fails with ErrIndexUnavailable.
func Build(ctx context.Context, idx collection.Index, src termvector.Source, workers int) (*Statistics, error) {
	logger := slog.Default().With("component", "collection-stats")
	start := time.Now()

	numDocs, err := idx.NumDocs(ctx)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrIndexUnavailable, "counting documents: %v", err)
	}
	if numDocs == 0 {
		return nil, apperrors.New(apperrors.ErrIndexUnavailable, "collection has no documents")
	}
	if workers <= 0 {
		workers = 1
	}

	var vocabularySize, skipped atomic.Uint64
	// One digest per document, combined in docID order once all workers finish.
	docDigests := make([][sha256.Size]byte, numDocs)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for docID := uint64(0); docID < numDocs; docID++ {
		g.Go(func() error {
			v, err := src.Get(gctx, docID)
			if errors.Is(err, apperrors.ErrDocumentNotFound) {
				logger.Warn("document missing from collection, skipping", "doc_id", docID, "error", err)
				skipped.Add(1)
				return nil
			}
			if err != nil {
				return err
			}
			vocabularySize.Add(v.Length)
			docDigests[docID] = vectorDigest(docID, v)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("building collection statistics: %w", ctx.Err())
		}
		return nil, apperrors.Newf(apperrors.ErrIndexUnavailable, "reading collection: %v", err)
	}

	s := &Statistics{
		index:          idx,
		numDocs:        numDocs,
		vocabularySize: vocabularySize.Load(),
		skippedDocs:    skipped.Load(),
		digest:         combineDigests(docDigests),
	}
	logger.Info("collection statistics built",
		"num_docs", s.numDocs,
		"vocabulary_size", s.vocabularySize,
		"skipped_docs", s.skippedDocs,
		"duration", time.Since(start),
	)
	return s, nil
}

func (s *Statistics) NumDocs() uint64 { return s.numDocs }

// VocabularySize is the total number of term occurrences in the collection.
func (s *Statistics) VocabularySize() uint64 { return s.vocabularySize }

// SkippedDocs counts documents that could not be read during Build.
func (s *Statistics) SkippedDocs() uint64 { return s.skippedDocs }

func (s *Statistics) DocFreq(ctx context.Context, term string) (uint64, error) {
	return s.index.DocFreq(ctx, term)
}

func (s *Statistics) TotalTermFreq(ctx context.Context, term string) (uint64, error) {
	return s.index.TotalTermFreq(ctx, term)
}

// Fingerprint identifies the collection content for cache keys. Two
// collections share a fingerprint only if every document has the same term
// vector under the same docID.
func (s *Statistics) Fingerprint() string {
	return fmt.Sprintf("n%d-v%d-%s", s.numDocs, s.vocabularySize, hex.EncodeToString(s.digest[:16]))
}

// vectorDigest hashes the docID and the sorted (term, frequency) pairs. A
// skipped document keeps the zero digest.
func vectorDigest(docID uint64, v *termvector.Vector) [sha256.Size]byte {
	h := sha256.New()
	var buf [binary.MaxVarintLen64]byte
	h.Write(buf[:binary.PutUvarint(buf[:], docID)])
	for _, term := range v.Terms() {
		h.Write(buf[:binary.PutUvarint(buf[:], uint64(len(term)))])
		h.Write([]byte(term))
		h.Write(buf[:binary.PutUvarint(buf[:], v.TF(term))])
	}
	var out [sha256.Size]byte
	h.Sum(out[:0])
	return out
}

func combineDigests(digests [][sha256.Size]byte) [sha256.Size]byte {
	h := sha256.New()
	for i := range digests {
		h.Write(digests[i][:])
	}
	var out [sha256.Size]byte
	h.Sum(out[:0])
	return out
}

// Verify checks that the index's per-term totals add up to the vocabulary
// size measured by Build. It needs an index that can enumerate its terms and
// costs one lookup per term.
func (s *Statistics) Verify(ctx context.Context) error {
	enum, ok := s.index.(collection.TermEnumerator)
	if !ok {
		return fmt.Errorf("index %T cannot enumerate terms", s.index)
	}
	terms, err := enum.Terms(ctx)
	if err != nil {
		return fmt.Errorf("listing terms: %w", err)
	}
	var total uint64
	for _, term := range terms {
		ttf, err := s.index.TotalTermFreq(ctx, term)
		if err != nil {
			return fmt.Errorf("reading total term frequency of %q: %w", term, err)
		}
		total += ttf
	}
	if total != s.vocabularySize {
		return apperrors.Newf(apperrors.ErrIndexUnavailable,
			"term totals sum to %d but documents hold %d occurrences; was the index built with a different analyzer?",
			total, s.vocabularySize)
	}
	return nil
}
