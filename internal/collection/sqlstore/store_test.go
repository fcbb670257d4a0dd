package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/collection/memory"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/qlm-retrieval/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/pkg/postgres"
)

func sampleIndex() *memory.Index {
	idx := memory.New(analysis.Standard())
	idx.AddDocument("the cat sat")
	idx.AddDocument("the dog sat on the mat")
	idx.AddDocument("")
	return idx
}

func checkStore(t *testing.T, s *Store, mem *memory.Index) {
	t.Helper()
	ctx := context.Background()
	if err := s.Import(ctx, mem.Snapshot()); err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	// A second import must replace, not append.
	if err := s.Import(ctx, mem.Snapshot()); err != nil {
		t.Fatalf("second Import() error = %v", err)
	}
	n, err := s.NumDocs(ctx)
	if err != nil || n != 3 {
		t.Fatalf("NumDocs() = %d, %v; want 3", n, err)
	}
	for docID := uint64(0); docID < n; docID++ {
		want, _ := mem.DocumentContent(ctx, docID)
		got, err := s.DocumentContent(ctx, docID)
		if err != nil || got != want {
			t.Errorf("DocumentContent(%d) = %q, %v; want %q", docID, got, err, want)
		}
	}
	if _, err := s.DocumentContent(ctx, 99); !errors.Is(err, apperrors.ErrDocumentNotFound) {
		t.Errorf("DocumentContent(99) error = %v, want ErrDocumentNotFound", err)
	}
	wantTerms, _ := mem.Terms(ctx)
	gotTerms, err := s.Terms(ctx)
	if err != nil || !reflect.DeepEqual(gotTerms, wantTerms) {
		t.Errorf("Terms() = %v, %v; want %v", gotTerms, err, wantTerms)
	}
	for _, term := range append(wantTerms, "absent") {
		wdf, _ := mem.DocFreq(ctx, term)
		wttf, _ := mem.TotalTermFreq(ctx, term)
		df, err := s.DocFreq(ctx, term)
		if err != nil {
			t.Fatal(err)
		}
		ttf, err := s.TotalTermFreq(ctx, term)
		if err != nil {
			t.Fatal(err)
		}
		if df != wdf || ttf != wttf {
			t.Errorf("%q: df=%d ttf=%d, want df=%d ttf=%d", term, df, ttf, wdf, wttf)
		}
	}
	if name, err := s.Analyzer(ctx); err != nil || name != "standard" {
		t.Errorf("Analyzer() = %q, %v", name, err)
	}
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collection.db")
	s, err := OpenSQLite(context.Background(), path, config.SQLiteConfig{})
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	defer s.Close()
	checkStore(t, s, sampleIndex())
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("QLM_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("QLM_TEST_POSTGRES_DSN not set")
	}
	db, err := sql.Open(postgres.DriverName, dsn)
	if err != nil {
		t.Fatal(err)
	}
	s := New(db, Postgres)
	defer s.Close()
	if err := s.Migrate(context.Background()); err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	checkStore(t, s, sampleIndex())
}

func TestRebind(t *testing.T) {
	q := `INSERT INTO t (a, b, c) VALUES (?, ?, ?)`
	if got := Postgres.rebind(q); got != `INSERT INTO t (a, b, c) VALUES ($1, $2, $3)` {
		t.Errorf("Postgres.rebind() = %q", got)
	}
	if got := SQLite.rebind(q); got != q {
		t.Errorf("SQLite.rebind() = %q", got)
	}
}
