// Package scoring implements the query likelihood model with Jelinek-Mercer
// smoothing. Per query term t and document d:
//
//	P(t|d) = λ·tf(t,d)/|d| + (1−λ)·cf(t)/|C|
//
// where cf is the collection frequency and |C| the total number of term
// occurrences in the collection. A document's score is Σ ln P(t|d) over the
// distinct query terms; ranking on the log sum is equivalent to ranking on
// the product, without its underflow.
package scoring

import (
	"context"
	"fmt"
	"math"

	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/stats"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/termvector"
	apperrors "github.com/Adithya-Monish-Kumar-K/qlm-retrieval/pkg/errors"
)

// MinScore is the score of a document for which some query term has zero
// probability.
var MinScore = math.Inf(-1)

type Scorer struct {
	lambda float64
}

// New returns a scorer with smoothing weight lambda in (0, 1].
func New(lambda float64) (*Scorer, error) {
	if !(lambda > 0 && lambda <= 1) {
		return nil, apperrors.Newf(apperrors.ErrConfiguration, "lambda must be in (0,1], got %v", lambda)
	}
	return &Scorer{lambda: lambda}, nil
}

func (s *Scorer) Lambda() float64 { return s.lambda }

// TermProbability is the smoothed P(t|d). An empty document contributes no
// maximum-likelihood evidence; an empty collection no background evidence.
func TermProbability(lambda float64, tf, docLength, totalTermFreq, vocabularySize uint64) float64 {
	var mle, background float64
	if docLength > 0 {
		mle = float64(tf) / float64(docLength)
	}
	if vocabularySize > 0 {
		background = float64(totalTermFreq) / float64(vocabularySize)
	}
	return lambda*mle + (1-lambda)*background
}

// Query is a query bound to collection statistics. Background probabilities
// are looked up once here so that scoring a document touches only its own
// term vector.
type Query struct {
	lambda     float64
	terms      []string
	background []float64
}

// Prepare de-duplicates terms, keeping first-occurrence order, and fetches
// each term's collection frequency.
func (s *Scorer) Prepare(ctx context.Context, st stats.CollectionStatistics, terms []string) (*Query, error) {
	q := &Query{lambda: s.lambda}
	seen := make(map[string]struct{}, len(terms))
	vocabularySize := st.VocabularySize()
	for _, term := range terms {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		ttf, err := st.TotalTermFreq(ctx, term)
		if err != nil {
			return nil, fmt.Errorf("collection frequency of %q: %w", term, err)
		}
		var bg float64
		if vocabularySize > 0 {
			bg = float64(ttf) / float64(vocabularySize)
		}
		q.terms = append(q.terms, term)
		q.background = append(q.background, bg)
	}
	return q, nil
}

// Terms returns the distinct query terms.
func (q *Query) Terms() []string { return q.terms }

// Probability returns P(t|d) for the i-th distinct term.
func (q *Query) Probability(i int, v *termvector.Vector) float64 {
	var mle float64
	if v.Length > 0 {
		mle = float64(v.TF(q.terms[i])) / float64(v.Length)
	}
	return q.lambda*mle + (1-q.lambda)*q.background[i]
}

// Score returns Σ ln P(t|d). It is MinScore as soon as one term has zero
// probability.
func (q *Query) Score(v *termvector.Vector) float64 {
	var score float64
	for i := range q.terms {
		p := q.Probability(i, v)
		if p <= 0 {
			return MinScore
		}
		score += math.Log(p)
	}
	return score
}

// IsZeroEvidence reports whether score is the minimum possible score.
func IsZeroEvidence(score float64) bool {
	return math.IsInf(score, -1)
}
