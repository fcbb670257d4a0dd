package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/collection/memory"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/query"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/results"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/stats"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/termvector"
	apperrors "github.com/Adithya-Monish-Kumar-K/qlm-retrieval/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/pkg/metrics"
)

type fixture struct {
	stats   *stats.Statistics
	vectors *termvector.Cache
}

func newFixture(t testing.TB, docs ...string) fixture {
	t.Helper()
	idx := memory.New(analysis.Standard())
	for _, d := range docs {
		idx.AddDocument(d)
	}
	vectors := termvector.NewCache(termvector.NewExtractor(idx, analysis.Standard()))
	st, err := stats.Build(context.Background(), idx, vectors, 2)
	if err != nil {
		t.Fatal(err)
	}
	return fixture{stats: st, vectors: vectors}
}

func defaultOptions() Options {
	return Options{Lambda: 0.5, MaxResults: 1000, RunTag: "qlm", QueryWorkers: 3, DocumentWorkers: 2}
}

func runQueries(t *testing.T, f fixture, opts Options, deps Deps, queries string) (string, Summary, error) {
	t.Helper()
	var buf bytes.Buffer
	sink := results.NewTRECWriter(&buf)
	deps.Stats = f.stats
	deps.Vectors = f.vectors
	deps.Sink = sink
	deps.Fingerprint = f.stats.Fingerprint()
	deps.Analyzer = analysis.Standard().Name()
	r, err := New(opts, deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	summary, err := r.Run(context.Background(), query.NewReader(strings.NewReader(queries), analysis.Standard()))
	if cerr := sink.Close(); cerr != nil {
		t.Fatal(cerr)
	}
	return buf.String(), summary, err
}

func TestRunExampleCollection(t *testing.T) {
	f := newFixture(t, "the cat sat", "the dog sat on the mat")
	out, summary, err := runQueries(t, f, defaultOptions(), Deps{}, "301 cat sat\n")
	if err != nil {
		t.Fatal(err)
	}
	want := "301 Q0 0 1 -2.785011 qlm\n301 Q0 1 2 -4.527981 qlm\n"
	if out != want {
		t.Errorf("run output =\n%s\nwant\n%s", out, want)
	}
	if summary.Ranked != 1 || summary.ResultsEmitted != 2 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestRunTruncatesToK(t *testing.T) {
	var docs []string
	for i := 0; i < 10; i++ {
		docs = append(docs, strings.Repeat("alpha ", i+1)+strings.Repeat("beta ", 10-i))
	}
	f := newFixture(t, docs...)
	opts := defaultOptions()
	opts.MaxResults = 3
	out, _, err := runQueries(t, f, opts, Deps{}, "q alpha\n")
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), out)
	}
	for i, wantDoc := range []int{9, 8, 7} {
		fields := strings.Fields(lines[i])
		if fields[2] != fmt.Sprint(wantDoc) || fields[3] != fmt.Sprint(i+1) {
			t.Errorf("line %d = %q, want doc %d rank %d", i, lines[i], wantDoc, i+1)
		}
	}
}

func TestRunIsDeterministicAndOrdered(t *testing.T) {
	var docs []string
	for i := 0; i < 40; i++ {
		// Groups of identical documents force score ties.
		docs = append(docs, fmt.Sprintf("topic%d shared words here", i%4))
	}
	f := newFixture(t, docs...)
	var queries strings.Builder
	for i := 0; i < 25; i++ {
		fmt.Fprintf(&queries, "q%02d topic%d shared\n", i, i%5)
	}
	opts := defaultOptions()
	opts.QueryWorkers = 8
	opts.DocumentWorkers = 3
	first, _, err := runQueries(t, f, opts, Deps{}, queries.String())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		again, _, err := runQueries(t, f, opts, Deps{}, queries.String())
		if err != nil {
			t.Fatal(err)
		}
		if again != first {
			t.Fatalf("run %d output differs", i+2)
		}
	}

	prevQuery := ""
	for _, line := range strings.Split(strings.TrimSpace(first), "\n") {
		fields := strings.Fields(line)
		if fields[0] < prevQuery {
			t.Fatalf("query %s emitted after %s", fields[0], prevQuery)
		}
		prevQuery = fields[0]
	}
	// q00 matches topic0 docs 0,4,...,36 equally; ties break by ascending id.
	if !strings.HasPrefix(first, "q00 Q0 0 1 ") {
		t.Errorf("first line = %q", strings.SplitN(first, "\n", 2)[0])
	}
}

func TestRunSkipsMalformedQueries(t *testing.T) {
	f := newFixture(t, "the cat sat", "the dog sat on the mat")
	reg := metrics.New(nil)
	out, summary, err := runQueries(t, f, defaultOptions(), Deps{Metrics: reg}, "301 cat\n302\n303 ...\n304 dog\n")
	if err != nil {
		t.Fatal(err)
	}
	if summary.Malformed != 2 || summary.Ranked != 2 {
		t.Errorf("summary = %+v", summary)
	}
	if !strings.Contains(out, "301 Q0") || !strings.Contains(out, "304 Q0") {
		t.Errorf("output missing queries:\n%s", out)
	}
	if got := testutil.ToFloat64(reg.QueriesTotal.WithLabelValues(metrics.StatusMalformed)); got != 2 {
		t.Errorf("malformed counter = %v", got)
	}
	if got := testutil.ToFloat64(reg.DocumentsScoredTotal); got != 4 {
		t.Errorf("documents scored = %v, want 4", got)
	}
}

func TestRunZeroEvidence(t *testing.T) {
	f := newFixture(t, "cat sat", "dog sat", "cat cat")
	out, _, err := runQueries(t, f, defaultOptions(), Deps{}, "1 cat unicorn\n")
	if err != nil {
		t.Fatal(err)
	}
	want := "1 Q0 0 1 -Inf qlm\n1 Q0 1 2 -Inf qlm\n1 Q0 2 3 -Inf qlm\n"
	if out != want {
		t.Errorf("unseen term output =\n%s\nwant\n%s", out, want)
	}

	opts := defaultOptions()
	opts.FilterZeroEvidence = true
	out, summary, err := runQueries(t, f, opts, Deps{}, "1 cat unicorn\n2 cat\n")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "1 Q0") {
		t.Errorf("filtered output still has zero-evidence results:\n%s", out)
	}
	if summary.Ranked != 2 || summary.ResultsEmitted != 3 {
		t.Errorf("summary = %+v", summary)
	}
}

type missingDocSource struct {
	termvector.Source
	missing uint64
}

func (m missingDocSource) Get(ctx context.Context, docID uint64) (*termvector.Vector, error) {
	if docID == m.missing {
		return nil, apperrors.Newf(apperrors.ErrDocumentNotFound, "doc %d", docID)
	}
	return m.Source.Get(ctx, docID)
}

func TestRunSkipsMissingDocuments(t *testing.T) {
	f := newFixture(t, "cat", "cat dog", "dog")
	var buf bytes.Buffer
	r, err := New(defaultOptions(), Deps{
		Stats:   f.stats,
		Vectors: missingDocSource{Source: f.vectors, missing: 1},
		Sink:    results.NewTRECWriter(&buf),
	})
	if err != nil {
		t.Fatal(err)
	}
	summary, err := r.Run(context.Background(), query.NewReader(strings.NewReader("7 cat\n"), analysis.Standard()))
	if err != nil {
		t.Fatal(err)
	}
	if summary.DocumentsSkipped != 1 || summary.ResultsEmitted != 2 {
		t.Errorf("summary = %+v", summary)
	}
}

type failingSink struct{}

func (failingSink) Emit(context.Context, string, []results.Record) error {
	return apperrors.New(apperrors.ErrSinkFailed, "disk full")
}

func (failingSink) Close() error { return nil }

func TestRunStopsOnSinkFailure(t *testing.T) {
	f := newFixture(t, "cat", "dog")
	r, _ := New(defaultOptions(), Deps{Stats: f.stats, Vectors: f.vectors, Sink: failingSink{}})
	var queries strings.Builder
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&queries, "%d cat\n", i)
	}
	_, err := r.Run(context.Background(), query.NewReader(strings.NewReader(queries.String()), analysis.Standard()))
	if !errors.Is(err, apperrors.ErrSinkFailed) {
		t.Errorf("Run() error = %v, want ErrSinkFailed", err)
	}
}

func TestRunCancelled(t *testing.T) {
	f := newFixture(t, "cat", "dog")
	var buf bytes.Buffer
	r, _ := New(defaultOptions(), Deps{Stats: f.stats, Vectors: f.vectors, Sink: results.NewTRECWriter(&buf)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Run(ctx, query.NewReader(strings.NewReader("1 cat\n2 dog\n"), analysis.Standard()))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	f := newFixture(t, "cat")
	deps := Deps{Stats: f.stats, Vectors: f.vectors, Sink: results.NewTRECWriter(&bytes.Buffer{})}
	for name, mutate := range map[string]func(*Options){
		"lambda":  func(o *Options) { o.Lambda = 0 },
		"k":       func(o *Options) { o.MaxResults = 0 },
		"workers": func(o *Options) { o.QueryWorkers = 0 },
	} {
		opts := defaultOptions()
		mutate(&opts)
		if _, err := New(opts, deps); !errors.Is(err, apperrors.ErrConfiguration) {
			t.Errorf("%s: New() error = %v, want ErrConfiguration", name, err)
		}
	}
}

type memoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, goredis.Nil
	}
	return v, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memoryStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for key := range m.data {
		if ok, _ := path.Match(pattern, key); ok {
			delete(m.data, key)
			n++
		}
	}
	return n, nil
}

func TestRunUsesRankedListCache(t *testing.T) {
	f := newFixture(t, "cat sat", "dog sat", "cat cat")
	cache := NewRankedListCache(&memoryStore{data: map[string][]byte{}}, time.Minute)
	m := metrics.New(nil)
	deps := Deps{Cache: cache, Metrics: m}

	first, _, err := runQueries(t, f, defaultOptions(), deps, "1 cat sat\n2 unicorn\n")
	if err != nil {
		t.Fatal(err)
	}
	second, _, err := runQueries(t, f, defaultOptions(), deps, "1 sat cat\n2 unicorn\n")
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("cached output differs:\n%s\nvs\n%s", first, second)
	}
	if hits, misses := cache.Stats(); hits != 2 || misses != 2 {
		t.Errorf("cache hits=%d misses=%d, want 2/2", hits, misses)
	}
	if got := testutil.ToFloat64(m.ResultCacheHits); got != 2 {
		t.Errorf("result cache hit counter = %v", got)
	}
}

func TestRankedListCacheSeparatesCollectionsWithEqualCounts(t *testing.T) {
	a := newFixture(t, "cat sat", "dog mat")
	b := newFixture(t, "dog mat", "cat sat")
	if a.stats.NumDocs() != b.stats.NumDocs() || a.stats.VocabularySize() != b.stats.VocabularySize() {
		t.Fatalf("fixtures should share counts")
	}
	if a.stats.Fingerprint() == b.stats.Fingerprint() {
		t.Fatalf("reordered collection kept fingerprint %s", a.stats.Fingerprint())
	}

	store := &memoryStore{data: map[string][]byte{}}
	deps := Deps{Cache: NewRankedListCache(store, time.Minute)}
	outA, _, err := runQueries(t, a, defaultOptions(), deps, "1 cat\n")
	if err != nil {
		t.Fatal(err)
	}
	outB, _, err := runQueries(t, b, defaultOptions(), deps, "1 cat\n")
	if err != nil {
		t.Fatal(err)
	}
	fresh, _, err := runQueries(t, b, defaultOptions(), Deps{}, "1 cat\n")
	if err != nil {
		t.Fatal(err)
	}
	if outB != fresh {
		t.Errorf("cached run on second collection =\n%s\nwant\n%s", outB, fresh)
	}
	if want := "1 Q0 1 1 -0.980829 qlm\n1 Q0 0 2 -2.079442 qlm\n"; outB != want {
		t.Errorf("second collection output =\n%s\nwant\n%s", outB, want)
	}
	if outA == outB {
		t.Errorf("collections produced identical rankings:\n%s", outA)
	}
	if len(store.data) != 2 {
		t.Errorf("store holds %d entries, want one per collection", len(store.data))
	}
}

func TestInvalidateRankedLists(t *testing.T) {
	f := newFixture(t, "cat sat", "dog sat")
	store := &memoryStore{data: map[string][]byte{"unrelated": []byte("x")}}
	cache := NewRankedListCache(store, time.Minute)
	if _, _, err := runQueries(t, f, defaultOptions(), Deps{Cache: cache}, "1 cat\n2 dog\n"); err != nil {
		t.Fatal(err)
	}
	n, err := InvalidateRankedLists(context.Background(), store)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("InvalidateRankedLists() removed %d, want 2", n)
	}
	if _, ok := store.data["unrelated"]; !ok || len(store.data) != 1 {
		t.Errorf("store after invalidation = %v", store.data)
	}
	if _, _, err := runQueries(t, f, defaultOptions(), Deps{Cache: cache}, "1 cat\n"); err != nil {
		t.Fatal(err)
	}
	if hits, misses := cache.Stats(); hits != 0 || misses != 3 {
		t.Errorf("cache hits=%d misses=%d after invalidation, want 0/3", hits, misses)
	}
}

func TestCacheKey(t *testing.T) {
	a := CacheKey("n2-v9", "standard", 0.5, 10, false, []string{"sat", "cat"})
	b := CacheKey("n2-v9", "standard", 0.5, 10, false, []string{"cat", "sat"})
	if a != b {
		t.Errorf("term order changed the key")
	}
	for _, other := range []string{
		CacheKey("n3-v9", "standard", 0.5, 10, false, []string{"cat", "sat"}),
		CacheKey("n2-v9", "whitespace", 0.5, 10, false, []string{"cat", "sat"}),
		CacheKey("n2-v9", "standard", 0.6, 10, false, []string{"cat", "sat"}),
		CacheKey("n2-v9", "standard", 0.5, 11, false, []string{"cat", "sat"}),
		CacheKey("n2-v9", "standard", 0.5, 10, true, []string{"cat", "sat"}),
		CacheKey("n2-v9", "standard", 0.5, 10, false, []string{"cat"}),
	} {
		if other == a {
			t.Errorf("distinct inputs share key %s", a)
		}
	}
}
