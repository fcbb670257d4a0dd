// Package results writes ranked result records to run files and streams.
package results

import (
	"context"
	"errors"
	"strconv"

	apperrors "github.com/Adithya-Monish-Kumar-K/qlm-retrieval/pkg/errors"
)

// Record is one ranked result line.
type Record struct {
	QueryID string  `json:"query_id"`
	DocID   uint64  `json:"doc_id"`
	Rank    int     `json:"rank"`
	Score   float64 `json:"-"`
	RunTag  string  `json:"run_tag"`
	// ScoreText is Score as written to the run file; JSON cannot carry -Inf.
	ScoreText string `json:"score"`
}

// FormatScore renders a log score with fixed precision. Zero-evidence
// scores render as -Inf.
func FormatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', 6, 64)
}

// Sink receives the records of one query at a time, in emission order.
type Sink interface {
	Emit(ctx context.Context, queryID string, records []Record) error
	Close() error
}

// MultiSink fans each batch out to every sink in order.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Emit(ctx context.Context, queryID string, records []Record) error {
	for _, s := range m.sinks {
		if err := s.Emit(ctx, queryID, records); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Abort discards output of every sink that supports it.
func (m *MultiSink) Abort() {
	for _, s := range m.sinks {
		if a, ok := s.(interface{ Abort() }); ok {
			a.Abort()
		}
	}
}

func sinkError(op string, err error) error {
	return apperrors.Newf(apperrors.ErrSinkFailed, "%s: %v", op, err)
}
