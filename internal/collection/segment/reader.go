package segment

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/collection"
	apperrors "github.com/Adithya-Monish-Kumar-K/qlm-retrieval/pkg/errors"
)

// Reader serves a segment file as a read-only collection.Index. The document
// table and dictionary are held in memory; stored contents are read and
// decompressed on demand.
type Reader struct {
	file     *os.File
	filePath string
	header   SegmentHeader
	docs     []DocEntry
	dict     dictionary
}

var (
	_ collection.Index          = (*Reader)(nil)
	_ collection.TermEnumerator = (*Reader)(nil)
)

func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	r, err := readSegment(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("segment %s: %w", path, err)
	}
	r.filePath = path
	return r, nil
}

func readSegment(f *os.File) (*Reader, error) {
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	header := decodeHeader(headerBytes)
	if header.Magic != MagicBytes {
		return nil, fmt.Errorf("invalid segment file: bad magic bytes %x", header.Magic)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported segment version %d", header.Version)
	}

	docTableBytes := make([]byte, header.DocTableSize)
	if _, err := f.ReadAt(docTableBytes, header.DocTableOffset); err != nil {
		return nil, fmt.Errorf("reading document table: %w", err)
	}
	dictBytes := make([]byte, header.DictSize)
	if _, err := f.ReadAt(dictBytes, header.DictOffset); err != nil {
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, header.DictOffset+header.DictSize); err != nil {
		return nil, fmt.Errorf("reading footer: %w", err)
	}
	if crc32.ChecksumIEEE(docTableBytes) != binary.LittleEndian.Uint32(footer[0:4]) {
		return nil, fmt.Errorf("document table checksum mismatch")
	}
	if crc32.ChecksumIEEE(dictBytes) != binary.LittleEndian.Uint32(footer[4:8]) {
		return nil, fmt.Errorf("dictionary checksum mismatch")
	}

	var docs []DocEntry
	if err := decMode.Unmarshal(docTableBytes, &docs); err != nil {
		return nil, fmt.Errorf("parsing document table: %w", err)
	}
	var dict dictionary
	if err := decMode.Unmarshal(dictBytes, &dict); err != nil {
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}
	if uint64(len(docs)) != header.DocCount || uint64(len(dict.Terms)) != header.TermCount {
		return nil, fmt.Errorf("header counts disagree with tables: docs %d/%d terms %d/%d",
			len(docs), header.DocCount, len(dict.Terms), header.TermCount)
	}
	return &Reader{file: f, header: header, docs: docs, dict: dict}, nil
}

func (r *Reader) NumDocs(ctx context.Context) (uint64, error) {
	return uint64(len(r.docs)), nil
}

func (r *Reader) DocumentContent(ctx context.Context, docID uint64) (string, error) {
	if docID >= uint64(len(r.docs)) {
		return "", apperrors.Newf(apperrors.ErrDocumentNotFound, "doc %d of %d in %s", docID, len(r.docs), r.filePath)
	}
	entry := r.docs[docID]
	if entry.RawLen == 0 {
		return "", nil
	}
	blob := make([]byte, entry.Len)
	if _, err := r.file.ReadAt(blob, entry.Offset); err != nil {
		return "", fmt.Errorf("reading stored document %d: %w", docID, err)
	}
	raw, err := decompress(blob, entry.RawLen)
	if err != nil {
		return "", fmt.Errorf("stored document %d: %w", docID, err)
	}
	return string(raw), nil
}

func (r *Reader) DocFreq(ctx context.Context, term string) (uint64, error) {
	if e, ok := r.lookup(term); ok {
		return e.DocFreq, nil
	}
	return 0, nil
}

func (r *Reader) TotalTermFreq(ctx context.Context, term string) (uint64, error) {
	if e, ok := r.lookup(term); ok {
		return e.TotalTermFreq, nil
	}
	return 0, nil
}

func (r *Reader) Terms(ctx context.Context) ([]string, error) {
	terms := make([]string, len(r.dict.Terms))
	for i, e := range r.dict.Terms {
		terms[i] = e.Term
	}
	return terms, nil
}

// Analyzer names the analyzer chain the segment was built with.
func (r *Reader) Analyzer() string {
	return r.dict.Analyzer
}

func (r *Reader) Header() SegmentHeader {
	return r.header
}

func (r *Reader) Close() error {
	return r.file.Close()
}

func (r *Reader) lookup(term string) (collection.TermEntry, bool) {
	terms := r.dict.Terms
	idx := sort.Search(len(terms), func(i int) bool {
		return terms[i].Term >= term
	})
	if idx >= len(terms) || terms[idx].Term != term {
		return collection.TermEntry{}, false
	}
	return terms[idx], true
}
