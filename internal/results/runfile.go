package results

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// TRECWriter renders records as "qid Q0 docid rank score runtag" lines.
type TRECWriter struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func NewTRECWriter(w io.Writer) *TRECWriter {
	return &TRECWriter{w: bufio.NewWriter(w)}
}

func (t *TRECWriter) Emit(_ context.Context, _ string, records []Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range records {
		if _, err := fmt.Fprintf(t.w, "%s Q0 %d %d %s %s\n", r.QueryID, r.DocID, r.Rank, FormatScore(r.Score), r.RunTag); err != nil {
			return sinkError("writing run line", err)
		}
	}
	return nil
}

func (t *TRECWriter) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.w.Flush(); err != nil {
		return sinkError("flushing run output", err)
	}
	return nil
}

// Close flushes buffered lines. The underlying writer stays open.
func (t *TRECWriter) Close() error { return t.Flush() }

// RunFile is a TREC run file written to a temporary sibling and renamed into
// place on Close, so a failed run never leaves a partial file at path.
type RunFile struct {
	*TRECWriter
	path string
	tmp  *os.File
	done bool
}

func CreateRunFile(path string) (*RunFile, error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, sinkError("creating run file", err)
	}
	return &RunFile{
		TRECWriter: NewTRECWriter(tmp),
		path:       path,
		tmp:        tmp,
	}, nil
}

// Close commits the file.
func (f *RunFile) Close() error {
	if f.done {
		return nil
	}
	f.done = true
	if err := f.TRECWriter.Flush(); err != nil {
		f.discard()
		return err
	}
	if err := f.tmp.Sync(); err != nil {
		f.discard()
		return sinkError("syncing run file", err)
	}
	if err := f.tmp.Close(); err != nil {
		os.Remove(f.tmp.Name())
		return sinkError("closing run file", err)
	}
	if err := os.Rename(f.tmp.Name(), f.path); err != nil {
		os.Remove(f.tmp.Name())
		return sinkError("renaming run file", err)
	}
	return nil
}

// Abort removes the temporary file without touching path.
func (f *RunFile) Abort() {
	if f.done {
		return
	}
	f.done = true
	f.discard()
}

func (f *RunFile) discard() {
	f.tmp.Close()
	os.Remove(f.tmp.Name())
}
