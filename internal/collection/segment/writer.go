// Package segment stores a collection snapshot in a single immutable .qlmx
// file: zstd-compressed stored contents, a CBOR document table, and a CBOR
// term dictionary carrying per-term document and total term frequencies.
package segment

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/collection"
)

// MagicBytes identifies a valid .qlmx segment file.
const (
	MagicBytes    uint32 = 0x514C4D58
	FormatVersion uint32 = 1
	HeaderSize    int    = 64
	FooterSize    int    = 8
)

// SegmentHeader is the 64-byte header written at the start of every segment.
type SegmentHeader struct {
	Magic          uint32
	Version        uint32
	DocCount       uint64
	TermCount      uint64
	CreatedAt      int64
	DocTableOffset int64
	DocTableSize   int64
	DictOffset     int64
	DictSize       int64
}

// DocEntry locates one compressed stored document.
type DocEntry struct {
	Offset int64 `cbor:"o"`
	Len    int   `cbor:"l"`
	RawLen int   `cbor:"r"`
}

type dictionary struct {
	Analyzer string                 `cbor:"a"`
	Terms    []collection.TermEntry `cbor:"t"`
}

// Write atomically creates the segment file at path from snap. It writes to
// a .tmp file first and renames on success. snap.Terms must be sorted by term.
func Write(path string, snap collection.Snapshot) error {
	if len(snap.Documents) == 0 {
		return fmt.Errorf("cannot write empty segment")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating segment directory: %w", err)
	}
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp segment file: %w", err)
	}
	defer os.Remove(tmpPath)
	defer f.Close()

	headerBytes := make([]byte, HeaderSize)
	if _, err := f.Write(headerBytes); err != nil {
		return fmt.Errorf("writing header placeholder: %w", err)
	}

	offset := int64(HeaderSize)
	docTable := make([]DocEntry, 0, len(snap.Documents))
	for docID, content := range snap.Documents {
		var blob []byte
		if content != "" {
			blob = compress([]byte(content))
		}
		if _, err := f.Write(blob); err != nil {
			return fmt.Errorf("writing stored document %d: %w", docID, err)
		}
		docTable = append(docTable, DocEntry{Offset: offset, Len: len(blob), RawLen: len(content)})
		offset += int64(len(blob))
	}

	docTableData, err := encMode.Marshal(docTable)
	if err != nil {
		return fmt.Errorf("marshaling document table: %w", err)
	}
	docTableOffset := offset
	if _, err := f.Write(docTableData); err != nil {
		return fmt.Errorf("writing document table: %w", err)
	}
	offset += int64(len(docTableData))

	dictData, err := encMode.Marshal(dictionary{Analyzer: snap.Analyzer, Terms: snap.Terms})
	if err != nil {
		return fmt.Errorf("marshaling dictionary: %w", err)
	}
	dictOffset := offset
	if _, err := f.Write(dictData); err != nil {
		return fmt.Errorf("writing dictionary: %w", err)
	}

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(docTableData))
	binary.LittleEndian.PutUint32(footer[4:8], crc32.ChecksumIEEE(dictData))
	if _, err := f.Write(footer); err != nil {
		return fmt.Errorf("writing footer: %w", err)
	}

	header := SegmentHeader{
		Magic:          MagicBytes,
		Version:        FormatVersion,
		DocCount:       uint64(len(snap.Documents)),
		TermCount:      uint64(len(snap.Terms)),
		CreatedAt:      time.Now().Unix(),
		DocTableOffset: docTableOffset,
		DocTableSize:   int64(len(docTableData)),
		DictOffset:     dictOffset,
		DictSize:       int64(len(dictData)),
	}
	encodeHeader(headerBytes, header)
	if _, err := f.WriteAt(headerBytes, 0); err != nil {
		return fmt.Errorf("updating header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing segment file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing segment file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming segment file: %w", err)
	}
	return nil
}

func encodeHeader(b []byte, h SegmentHeader) {
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	binary.LittleEndian.PutUint64(b[8:16], h.DocCount)
	binary.LittleEndian.PutUint64(b[16:24], h.TermCount)
	binary.LittleEndian.PutUint64(b[24:32], uint64(h.CreatedAt))
	binary.LittleEndian.PutUint64(b[32:40], uint64(h.DocTableOffset))
	binary.LittleEndian.PutUint64(b[40:48], uint64(h.DocTableSize))
	binary.LittleEndian.PutUint64(b[48:56], uint64(h.DictOffset))
	binary.LittleEndian.PutUint64(b[56:64], uint64(h.DictSize))
}

func decodeHeader(b []byte) SegmentHeader {
	return SegmentHeader{
		Magic:          binary.LittleEndian.Uint32(b[0:4]),
		Version:        binary.LittleEndian.Uint32(b[4:8]),
		DocCount:       binary.LittleEndian.Uint64(b[8:16]),
		TermCount:      binary.LittleEndian.Uint64(b[16:24]),
		CreatedAt:      int64(binary.LittleEndian.Uint64(b[24:32])),
		DocTableOffset: int64(binary.LittleEndian.Uint64(b[32:40])),
		DocTableSize:   int64(binary.LittleEndian.Uint64(b[40:48])),
		DictOffset:     int64(binary.LittleEndian.Uint64(b[48:56])),
		DictSize:       int64(binary.LittleEndian.Uint64(b[56:64])),
	}
}
