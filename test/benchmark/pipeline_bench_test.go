// Package benchmark measures analysis, scoring, ranking and full-run
// throughput over synthetic collections.
package benchmark

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/collection/memory"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/query"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/ranker"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/results"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/runner"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/scoring"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/stats"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/termvector"
)

var words = strings.Fields(`distributed search analytics platform indexing query
processing ranking caching sharding language model smoothing retrieval document
collection statistics frequency vocabulary probability likelihood evaluation`)

func syntheticDocs(n, length int, seed int64) []string {
	rng := rand.New(rand.NewSource(seed))
	docs := make([]string, n)
	for i := range docs {
		var sb strings.Builder
		for j := 0; j < length; j++ {
			sb.WriteString(words[rng.Intn(len(words))])
			sb.WriteByte(' ')
		}
		docs[i] = sb.String()
	}
	return docs
}

type corpus struct {
	stats   *stats.Statistics
	vectors *termvector.Cache
}

func buildCorpus(b *testing.B, numDocs int) corpus {
	b.Helper()
	idx := memory.New(analysis.Standard())
	for _, d := range syntheticDocs(numDocs, 80, 1) {
		idx.AddDocument(d)
	}
	vectors := termvector.NewCache(termvector.NewExtractor(idx, analysis.Standard()))
	st, err := stats.Build(context.Background(), idx, vectors, 4)
	if err != nil {
		b.Fatal(err)
	}
	return corpus{stats: st, vectors: vectors}
}

// BenchmarkAnalyze measures analyzer throughput per 80-word document.
func BenchmarkAnalyze(b *testing.B) {
	doc := syntheticDocs(1, 80, 2)[0]
	for _, a := range []analysis.Analyzer{analysis.Standard(), analysis.English(), analysis.Whitespace()} {
		b.Run(a.Name(), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(doc)))
			for i := 0; i < b.N; i++ {
				_ = a.Analyze(doc)
			}
		})
	}
}

// BenchmarkScoreDocument measures log-space scoring of one document for
// query lengths from 2 to 64 terms.
func BenchmarkScoreDocument(b *testing.B) {
	c := buildCorpus(b, 100)
	vec, _ := c.vectors.Get(context.Background(), 0)
	scorer, _ := scoring.New(0.5)
	for _, n := range []int{2, 8, 64} {
		terms := make([]string, n)
		for i := range terms {
			terms[i] = fmt.Sprintf("%s%d", words[i%len(words)], i/len(words))
		}
		q, err := scorer.Prepare(context.Background(), c.stats, terms)
		if err != nil {
			b.Fatal(err)
		}
		b.Run(fmt.Sprintf("terms_%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = q.Score(vec)
			}
		})
	}
}

// BenchmarkRank compares full sort ranking against the bounded collector.
func BenchmarkRank(b *testing.B) {
	rng := rand.New(rand.NewSource(3))
	for _, n := range []int{1000, 100000} {
		docs := make([]ranker.ScoredDoc, n)
		for i := range docs {
			docs[i] = ranker.ScoredDoc{DocID: uint64(i), Score: -rng.Float64() * 40}
		}
		b.Run(fmt.Sprintf("sort_%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_, _ = ranker.Rank(docs, 1000)
			}
		})
		b.Run(fmt.Sprintf("collector_%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				c := ranker.NewCollector(1000)
				for _, d := range docs {
					c.Offer(d)
				}
				_ = c.Results()
			}
		})
	}
}

// BenchmarkRun measures a 50-query run over a 5 000-document collection with
// varying document parallelism.
func BenchmarkRun(b *testing.B) {
	c := buildCorpus(b, 5000)
	var queries strings.Builder
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&queries, "%d %s %s %s\n", i, words[i%len(words)], words[(i*7)%len(words)], words[(i*13)%len(words)])
	}
	for _, workers := range []int{1, 4} {
		b.Run(fmt.Sprintf("doc_workers_%d", workers), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				var buf bytes.Buffer
				r, err := runner.New(runner.Options{
					Lambda:          0.5,
					MaxResults:      1000,
					RunTag:          "bench",
					QueryWorkers:    2,
					DocumentWorkers: workers,
				}, runner.Deps{Stats: c.stats, Vectors: c.vectors, Sink: results.NewTRECWriter(&buf)})
				if err != nil {
					b.Fatal(err)
				}
				if _, err := r.Run(context.Background(), query.NewReader(strings.NewReader(queries.String()), analysis.Standard())); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
