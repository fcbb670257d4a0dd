package cli

import (
	"context"
	"io"

	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/collection"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/collection/memory"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/collection/segment"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/collection/sqlstore"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/stats"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/termvector"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/qlm-retrieval/pkg/errors"
)

// openedCollection is an index collaborator plus the analyzer its term
// statistics were built with.
type openedCollection struct {
	index    collection.Index
	analyzer analysis.Analyzer
	closer   io.Closer
}

func (o *openedCollection) Close() error {
	if o.closer == nil {
		return nil
	}
	return o.closer.Close()
}

func openCollection(ctx context.Context, cfg *config.Config) (*openedCollection, error) {
	analyzer, err := analysis.New(cfg.Collection.Analyzer)
	if err != nil {
		return nil, err
	}
	c := cfg.Collection
	switch c.Backend {
	case config.BackendMemory:
		idx, err := memory.Load(c.Path, c.Format, analyzer)
		if err != nil {
			return nil, apperrors.Newf(apperrors.ErrIndexUnavailable, "loading documents: %v", err)
		}
		return &openedCollection{index: idx, analyzer: analyzer}, nil
	case config.BackendSegment:
		r, err := segment.OpenReader(c.Path)
		if err != nil {
			return nil, apperrors.Newf(apperrors.ErrIndexUnavailable, "%v", err)
		}
		if err := checkAnalyzer(r.Analyzer(), analyzer); err != nil {
			r.Close()
			return nil, err
		}
		return &openedCollection{index: r, analyzer: analyzer, closer: r}, nil
	case config.BackendSQLite, config.BackendPostgres:
		store, err := openStore(ctx, cfg, c.Backend)
		if err != nil {
			return nil, apperrors.Newf(apperrors.ErrIndexUnavailable, "%v", err)
		}
		recorded, err := store.Analyzer(ctx)
		if err != nil {
			store.Close()
			return nil, apperrors.Newf(apperrors.ErrIndexUnavailable, "%v", err)
		}
		if err := checkAnalyzer(recorded, analyzer); err != nil {
			store.Close()
			return nil, err
		}
		return &openedCollection{index: store, analyzer: analyzer, closer: store}, nil
	default:
		return nil, apperrors.Newf(apperrors.ErrConfiguration, "unknown collection backend %q", c.Backend)
	}
}

func openStore(ctx context.Context, cfg *config.Config, backend string) (*sqlstore.Store, error) {
	if backend == config.BackendSQLite {
		return sqlstore.OpenSQLite(ctx, cfg.Collection.Path, cfg.SQLite)
	}
	return sqlstore.OpenPostgres(ctx, cfg.Postgres)
}

// checkAnalyzer fails when a persisted collection was indexed with a
// different analyzer than the one configured, since its term counts would
// not match the query terms.
func checkAnalyzer(recorded string, configured analysis.Analyzer) error {
	if recorded == "" {
		return apperrors.New(apperrors.ErrIndexUnavailable, "collection is empty; run qlm index first")
	}
	if recorded != configured.Name() {
		return apperrors.Newf(apperrors.ErrIndexUnavailable,
			"collection was indexed with analyzer %q but %q is configured", recorded, configured.Name())
	}
	return nil
}

// buildStatistics computes collection statistics once and returns the
// term-vector source the run should score with.
func buildStatistics(ctx context.Context, cfg *config.Config, oc *openedCollection) (*stats.Statistics, termvector.Source, error) {
	var vectors termvector.Source = termvector.NewExtractor(oc.index, oc.analyzer)
	if cfg.Collection.CacheVectors {
		vectors = termvector.NewCache(vectors)
	}
	st, err := stats.Build(ctx, oc.index, vectors, cfg.Workers.Documents)
	if err != nil {
		return nil, nil, err
	}
	return st, vectors, nil
}
