package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.QueriesTotal.WithLabelValues(StatusRanked).Add(2)
	m.QueriesTotal.WithLabelValues(StatusMalformed).Inc()
	m.ResultsEmittedTotal.Add(6)

	expected := `
# HELP qlm_queries_total Queries processed by outcome (ranked, malformed, failed).
# TYPE qlm_queries_total counter
qlm_queries_total{status="malformed"} 1
qlm_queries_total{status="ranked"} 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "qlm_queries_total"); err != nil {
		t.Error(err)
	}
	if got := testutil.ToFloat64(m.ResultsEmittedTotal); got != 6 {
		t.Errorf("results emitted = %v, want 6", got)
	}
	if n := testutil.CollectAndCount(m.QueryDuration); n != 1 {
		t.Errorf("histogram collectors = %d", n)
	}
}

func TestNewWithoutRegistry(t *testing.T) {
	m := New(nil)
	m.DocumentsScoredTotal.Inc()
	if got := testutil.ToFloat64(m.DocumentsScoredTotal); got != 1 {
		t.Errorf("documents scored = %v", got)
	}
}
