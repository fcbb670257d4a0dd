package collection

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

const maxLineSize = 16 * 1024 * 1024

type jsonDocument struct {
	Content string `json:"content"`
}

// ReadDocuments streams documents from r in the given format and calls fn
// with each document's content in file order. "lines" treats every line as
// one document; "jsonl" expects one {"content": "..."} object per line.
func ReadDocuments(r io.Reader, format string, fn func(content string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		var content string
		switch format {
		case "lines", "":
			content = line
		case "jsonl":
			if strings.TrimSpace(line) == "" {
				continue
			}
			var doc jsonDocument
			if err := json.Unmarshal([]byte(line), &doc); err != nil {
				return fmt.Errorf("decoding document on line %d: %w", lineNo, err)
			}
			content = doc.Content
		default:
			return fmt.Errorf("unknown document format %q", format)
		}
		if err := fn(content); err != nil {
			return fmt.Errorf("document on line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading documents: %w", err)
	}
	return nil
}

// ReadDocumentsFile opens path and streams it through ReadDocuments.
func ReadDocumentsFile(path string, format string, fn func(content string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening documents file: %w", err)
	}
	defer f.Close()
	return ReadDocuments(f, format, fn)
}
