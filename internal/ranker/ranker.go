// Package ranker orders scored documents for one query by descending score,
// breaking ties by ascending document id, and truncates to the top k.
package ranker

import (
	"slices"

	apperrors "github.com/Adithya-Monish-Kumar-K/qlm-retrieval/pkg/errors"
)

type ScoredDoc struct {
	DocID uint64  `json:"doc_id"`
	Score float64 `json:"score"`
}

// RankedDoc is a ScoredDoc with its 1-based position in the result list.
type RankedDoc struct {
	DocID uint64  `json:"doc_id"`
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
}

// Before reports whether a sorts ahead of b.
func Before(a, b ScoredDoc) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.DocID < b.DocID
}

func compare(a, b ScoredDoc) int {
	switch {
	case Before(a, b):
		return -1
	case Before(b, a):
		return 1
	default:
		return 0
	}
}

// ValidateK rejects a non-positive result limit.
func ValidateK(k int) error {
	if k <= 0 {
		return apperrors.Newf(apperrors.ErrConfiguration, "maximum result count must be positive, got %d", k)
	}
	return nil
}

// Rank sorts a copy of docs and returns at most k ranked entries.
func Rank(docs []ScoredDoc, k int) ([]RankedDoc, error) {
	if err := ValidateK(k); err != nil {
		return nil, err
	}
	sorted := slices.Clone(docs)
	slices.SortFunc(sorted, compare)
	if len(sorted) > k {
		sorted = sorted[:k]
	}
	return assignRanks(sorted), nil
}

func assignRanks(sorted []ScoredDoc) []RankedDoc {
	ranked := make([]RankedDoc, len(sorted))
	for i, d := range sorted {
		ranked[i] = RankedDoc{DocID: d.DocID, Score: d.Score, Rank: i + 1}
	}
	return ranked
}
