package cli

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/query"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/results"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/runner"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/qlm-retrieval/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/qlm-retrieval/pkg/redis"
)

// stdoutPath as the result file writes the run to standard output.
const stdoutPath = "-"

func (a *app) newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Rank the collection for every query and write a run file",
		Args:  cobra.NoArgs,
		RunE:  a.runRun,
	}
	f := cmd.Flags()
	f.StringP("queries", "q", "", "query file, one \"<id> <terms...>\" per line (- for stdin)")
	f.StringP("out", "o", "", "result file (- for stdout)")
	f.String("format", "", "document format for the memory backend (lines, jsonl)")
	f.String("run-tag", "", "run identifier written on every result line")
	f.Float64("lambda", 0, "smoothing weight in (0,1]")
	f.IntP("max-results", "k", 0, "results per query")
	f.Bool("filter-zero-evidence", false, "drop documents whose score is -Inf")
	f.Int("query-workers", 0, "queries ranked concurrently")
	f.Int("doc-workers", 0, "goroutines scoring documents per query")
	return cmd
}

func (a *app) runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Retrieval.QueryFile == "" {
		return apperrors.New(apperrors.ErrConfiguration, "retrieval.queryFile is required")
	}
	ctx := cmd.Context()
	log := slog.Default().With("component", "cli")

	oc, err := openCollection(ctx, cfg)
	if err != nil {
		return err
	}
	defer oc.Close()
	st, vectors, err := buildStatistics(ctx, cfg, oc)
	if err != nil {
		return err
	}

	queries, err := openQueries(cmd, cfg.Retrieval.QueryFile)
	if err != nil {
		return err
	}
	defer queries.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	checker := health.NewChecker()
	checker.Register("collection", func(ctx context.Context) error {
		_, err := oc.index.NumDocs(ctx)
		return err
	})

	deps := runner.Deps{
		Stats:       st,
		Vectors:     vectors,
		Metrics:     metrics.New(reg),
		Fingerprint: st.Fingerprint(),
		Analyzer:    oc.analyzer.Name(),
	}
	if cfg.Redis.Enabled {
		client, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Warn("redis unavailable, ranked-list cache disabled", "error", err)
		} else {
			defer client.Close()
			deps.Cache = runner.NewRankedListCache(client, cfg.Redis.CacheTTL)
			checker.Register("redis", client.Ping)
			log.Info("ranked-list cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", metrics.Handler(reg))
		mux.HandleFunc("GET /health/ready", checker.Handler())
		shutdown := metrics.StartServer(cfg.Metrics.Port, mux)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdown(sctx)
		}()
	}

	sink, err := openSinks(cmd, cfg)
	if err != nil {
		return err
	}
	deps.Sink = sink

	r, err := runner.New(runner.OptionsFromConfig(cfg), deps)
	if err != nil {
		sink.Abort()
		return err
	}
	summary, err := r.Run(ctx, query.NewReader(queries, oc.analyzer))
	if err != nil {
		sink.Abort()
		return err
	}
	if err := sink.Close(); err != nil {
		return err
	}
	log.Info("run written",
		"result_file", cfg.Retrieval.ResultFile,
		"queries", summary.Ranked,
		"results", summary.ResultsEmitted,
	)
	return nil
}

func openQueries(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == stdoutPath {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := query.Open(path)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// openSinks creates the run file and, when enabled, the Kafka stream.
func openSinks(cmd *cobra.Command, cfg *config.Config) (*results.MultiSink, error) {
	var sinks []results.Sink
	if cfg.Retrieval.ResultFile == stdoutPath {
		sinks = append(sinks, results.NewTRECWriter(cmd.OutOrStdout()))
	} else {
		f, err := results.CreateRunFile(cfg.Retrieval.ResultFile)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, f)
	}
	if cfg.Kafka.Enabled {
		sinks = append(sinks, results.NewKafkaSink(kafka.NewProducer(cfg.Kafka)))
	}
	return results.NewMultiSink(sinks...), nil
}
