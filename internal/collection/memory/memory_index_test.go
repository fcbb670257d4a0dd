package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/analysis"
	apperrors "github.com/Adithya-Monish-Kumar-K/qlm-retrieval/pkg/errors"
)

func newTestIndex() *Index {
	idx := New(analysis.Standard())
	idx.AddDocument("the cat sat")
	idx.AddDocument("the dog sat on the mat")
	return idx
}

func TestTermStatistics(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex()

	tests := []struct {
		term    string
		docFreq uint64
		ttf     uint64
	}{
		{"the", 2, 3},
		{"cat", 1, 1},
		{"sat", 2, 2},
		{"mat", 1, 1},
		{"unicorn", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			df, _ := idx.DocFreq(ctx, tt.term)
			ttf, _ := idx.TotalTermFreq(ctx, tt.term)
			if df != tt.docFreq || ttf != tt.ttf {
				t.Errorf("df=%d ttf=%d, want df=%d ttf=%d", df, ttf, tt.docFreq, tt.ttf)
			}
		})
	}
	if n, _ := idx.NumDocs(ctx); n != 2 {
		t.Errorf("NumDocs() = %d, want 2", n)
	}
	if idx.TokenCount() != 9 {
		t.Errorf("TokenCount() = %d, want 9", idx.TokenCount())
	}
}

func TestDocumentContentNotFound(t *testing.T) {
	idx := newTestIndex()
	_, err := idx.DocumentContent(context.Background(), 2)
	if !errors.Is(err, apperrors.ErrDocumentNotFound) {
		t.Errorf("error = %v, want ErrDocumentNotFound", err)
	}
	content, err := idx.DocumentContent(context.Background(), 1)
	if err != nil || content != "the dog sat on the mat" {
		t.Errorf("DocumentContent(1) = %q, %v", content, err)
	}
}

func TestSnapshotSortedTerms(t *testing.T) {
	snap := newTestIndex().Snapshot()
	var terms []string
	for _, e := range snap.Terms {
		terms = append(terms, e.Term)
	}
	want := []string{"cat", "dog", "mat", "on", "sat", "the"}
	if !reflect.DeepEqual(terms, want) {
		t.Errorf("terms = %v, want %v", terms, want)
	}
	if snap.Analyzer != "standard" || len(snap.Documents) != 2 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docs.txt")
	if err := os.WriteFile(path, []byte("alpha beta\n\nbeta gamma gamma\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	idx, err := Load(path, "lines", analysis.Standard())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if n, _ := idx.NumDocs(ctx); n != 3 {
		t.Errorf("NumDocs() = %d, want 3 (blank line is an empty document)", n)
	}
	if ttf, _ := idx.TotalTermFreq(ctx, "gamma"); ttf != 2 {
		t.Errorf("TotalTermFreq(gamma) = %d, want 2", ttf)
	}
}
