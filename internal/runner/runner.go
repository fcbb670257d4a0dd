// Package runner drives a retrieval run: it reads queries, scores every
// document against each one, ranks, and emits results in query order.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/query"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/ranker"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/results"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/scoring"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/stats"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/termvector"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/qlm-retrieval/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/pkg/metrics"
)

type Options struct {
	Lambda             float64
	MaxResults         int
	RunTag             string
	FilterZeroEvidence bool
	QueryWorkers       int
	DocumentWorkers    int
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Lambda:             cfg.Retrieval.Lambda,
		MaxResults:         cfg.Retrieval.MaxResults,
		RunTag:             cfg.Retrieval.RunTag,
		FilterZeroEvidence: cfg.Retrieval.FilterZeroEvidence,
		QueryWorkers:       cfg.Workers.Queries,
		DocumentWorkers:    cfg.Workers.Documents,
	}
}

// Deps are the collaborators of a Runner. Cache and Metrics are optional.
type Deps struct {
	Stats   stats.CollectionStatistics
	Vectors termvector.Source
	Sink    results.Sink
	Cache   *RankedListCache
	Metrics *metrics.Metrics
	// Fingerprint and Analyzer identify the collection in cache keys.
	Fingerprint string
	Analyzer    string
}

type Runner struct {
	opts    Options
	deps    Deps
	scorer  *scoring.Scorer
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Summary describes a finished run.
type Summary struct {
	Ranked           int
	Malformed        int
	Failed           int
	ResultsEmitted   int
	DocumentsSkipped int64
}

func New(opts Options, deps Deps) (*Runner, error) {
	scorer, err := scoring.New(opts.Lambda)
	if err != nil {
		return nil, err
	}
	if err := ranker.ValidateK(opts.MaxResults); err != nil {
		return nil, err
	}
	if opts.QueryWorkers <= 0 || opts.DocumentWorkers <= 0 {
		return nil, apperrors.Newf(apperrors.ErrConfiguration,
			"worker counts must be positive, got queries=%d documents=%d", opts.QueryWorkers, opts.DocumentWorkers)
	}
	if deps.Stats == nil || deps.Vectors == nil || deps.Sink == nil {
		return nil, apperrors.New(apperrors.ErrConfiguration, "runner needs statistics, a vector source and a sink")
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.New(nil)
	}
	return &Runner{
		opts:    opts,
		deps:    deps,
		scorer:  scorer,
		metrics: m,
		logger:  slog.Default().With("component", "query-runner"),
	}, nil
}

type job struct {
	seq   int
	query *query.Query
}

type outcome struct {
	seq     int
	query   *query.Query
	ranked  []ranker.RankedDoc
	skipped int64
	err     error
}

// Run processes every query from src. Queries are ranked concurrently but
// emitted in the order they were read. Malformed lines and queries that fail
// for non-fatal reasons are logged and skipped. Cancelling ctx stops the run
// before the next query is started.
func (r *Runner) Run(ctx context.Context, src *query.Reader) (Summary, error) {
	var summary Summary
	start := time.Now()
	vecHits, vecMisses := r.vectorCacheStats()

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan job)
	outcomes := make(chan outcome)

	g.Go(func() error {
		defer close(jobs)
		return r.readQueries(gctx, src, jobs, &summary)
	})

	var workers sync.WaitGroup
	for i := 0; i < r.opts.QueryWorkers; i++ {
		workers.Add(1)
		g.Go(func() error {
			defer workers.Done()
			for j := range jobs {
				o := r.process(gctx, j)
				if o.err != nil && isFatal(o.err) {
					return o.err
				}
				select {
				case outcomes <- o:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		workers.Wait()
		close(outcomes)
	}()

	g.Go(func() error {
		return r.emitInOrder(gctx, outcomes, &summary)
	})

	err := g.Wait()
	r.recordVectorCacheStats(vecHits, vecMisses)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return summary, fmt.Errorf("run cancelled after %d queries: %w", summary.Ranked, ctxErr)
		}
		return summary, err
	}
	r.logger.Info("run complete",
		"ranked", summary.Ranked,
		"malformed", summary.Malformed,
		"failed", summary.Failed,
		"results", summary.ResultsEmitted,
		"documents_skipped", summary.DocumentsSkipped,
		"duration", time.Since(start),
	)
	return summary, nil
}

func (r *Runner) readQueries(ctx context.Context, src *query.Reader, jobs chan<- job, summary *Summary) error {
	seq := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		q, err := src.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, apperrors.ErrMalformedQuery) {
			summary.Malformed++
			r.metrics.QueriesTotal.WithLabelValues(metrics.StatusMalformed).Inc()
			r.logger.Warn("skipping malformed query", "line", src.Line(), "error", err)
			continue
		}
		if err != nil {
			return fmt.Errorf("reading query source: %w", err)
		}
		select {
		case jobs <- job{seq: seq, query: q}:
			seq++
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *Runner) process(ctx context.Context, j job) outcome {
	qctx := logger.WithQueryID(ctx, j.query.ID)
	start := time.Now()
	ranked, skipped, err := r.RankQuery(qctx, j.query)
	r.metrics.QueryDuration.Observe(time.Since(start).Seconds())
	return outcome{seq: j.seq, query: j.query, ranked: ranked, skipped: skipped, err: err}
}

// emitInOrder buffers completed queries until every earlier query has been
// emitted.
func (r *Runner) emitInOrder(ctx context.Context, outcomes <-chan outcome, summary *Summary) error {
	pending := make(map[int]outcome)
	next := 0
	for o := range outcomes {
		pending[o.seq] = o
		for {
			ready, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			if err := r.emit(ctx, ready, summary); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Runner) emit(ctx context.Context, o outcome, summary *Summary) error {
	log := logger.FromContext(logger.WithQueryID(ctx, o.query.ID))
	summary.DocumentsSkipped += o.skipped
	if o.err != nil {
		summary.Failed++
		r.metrics.QueriesTotal.WithLabelValues(metrics.StatusFailed).Inc()
		log.Error("skipping failed query", "line", o.query.Line, "error", o.err)
		return nil
	}
	records := make([]results.Record, len(o.ranked))
	for i, d := range o.ranked {
		records[i] = results.Record{
			QueryID: o.query.ID,
			DocID:   d.DocID,
			Rank:    d.Rank,
			Score:   d.Score,
			RunTag:  r.opts.RunTag,
		}
	}
	if err := r.deps.Sink.Emit(ctx, o.query.ID, records); err != nil {
		return err
	}
	summary.Ranked++
	summary.ResultsEmitted += len(records)
	r.metrics.QueriesTotal.WithLabelValues(metrics.StatusRanked).Inc()
	r.metrics.ResultsEmittedTotal.Add(float64(len(records)))
	log.Debug("query ranked", "terms", o.query.Terms, "results", len(records))
	return nil
}

// RankQuery scores every document against q and returns the top results.
// The skipped count is the number of documents whose content could not be
// read; it is zero for cached lists.
func (r *Runner) RankQuery(ctx context.Context, q *query.Query) ([]ranker.RankedDoc, int64, error) {
	var skipped int64
	compute := func() ([]ranker.RankedDoc, error) {
		ranked, n, err := r.rankAll(ctx, q)
		skipped = n
		return ranked, err
	}
	if r.deps.Cache == nil {
		ranked, err := compute()
		return ranked, skipped, err
	}
	key := CacheKey(r.deps.Fingerprint, r.deps.Analyzer, r.scorer.Lambda(), r.opts.MaxResults, r.opts.FilterZeroEvidence, q.Terms)
	ranked, hit, err := r.deps.Cache.GetOrCompute(ctx, key, compute)
	if hit {
		r.metrics.ResultCacheHits.Inc()
	} else {
		r.metrics.ResultCacheMisses.Inc()
	}
	return ranked, skipped, err
}

// rankAll fans documents out to DocumentWorkers goroutines. Each worker
// strides through the id space with its own top-k collector; the partial
// lists are merged once every worker is done.
func (r *Runner) rankAll(ctx context.Context, q *query.Query) ([]ranker.RankedDoc, int64, error) {
	prepared, err := r.scorer.Prepare(ctx, r.deps.Stats, q.Terms)
	if err != nil {
		return nil, 0, err
	}
	numDocs := r.deps.Stats.NumDocs()
	workers := r.opts.DocumentWorkers
	if uint64(workers) > numDocs {
		workers = int(max(numDocs, 1))
	}

	partials := make([][]ranker.ScoredDoc, workers)
	scored := make([]int64, workers)
	skipped := make([]int64, workers)
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			collector := ranker.NewCollector(r.opts.MaxResults)
			log := logger.FromContext(ctx)
			for docID := uint64(w); docID < numDocs; docID += uint64(workers) {
				if err := gctx.Err(); err != nil {
					return err
				}
				vec, err := r.deps.Vectors.Get(gctx, docID)
				if errors.Is(err, apperrors.ErrDocumentNotFound) {
					skipped[w]++
					log.Warn("skipping unreadable document", "doc_id", docID, "error", err)
					continue
				}
				if err != nil {
					return fmt.Errorf("term vector of doc %d: %w", docID, err)
				}
				score := prepared.Score(vec)
				scored[w]++
				if r.opts.FilterZeroEvidence && scoring.IsZeroEvidence(score) {
					continue
				}
				collector.Offer(ranker.ScoredDoc{DocID: docID, Score: score})
			}
			partials[w] = collector.Results()
			return nil
		})
	}
	err = g.Wait()
	var totalScored, totalSkipped int64
	for w := range scored {
		totalScored += scored[w]
		totalSkipped += skipped[w]
	}
	r.metrics.DocumentsScoredTotal.Add(float64(totalScored))
	r.metrics.DocumentsSkippedTotal.Add(float64(totalSkipped))
	if err != nil {
		return nil, totalSkipped, err
	}
	ranked, err := ranker.Merge(partials, r.opts.MaxResults)
	return ranked, totalSkipped, err
}

type cacheStats interface {
	Stats() (hits, misses int64)
}

func (r *Runner) vectorCacheStats() (hits, misses int64) {
	if c, ok := r.deps.Vectors.(cacheStats); ok {
		return c.Stats()
	}
	return 0, 0
}

func (r *Runner) recordVectorCacheStats(prevHits, prevMisses int64) {
	hits, misses := r.vectorCacheStats()
	r.metrics.TermVectorCacheHits.Add(float64(hits - prevHits))
	r.metrics.TermVectorCacheMisses.Add(float64(misses - prevMisses))
}

// isFatal reports whether a per-query error must end the run.
func isFatal(err error) bool {
	return apperrors.IsFatal(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
