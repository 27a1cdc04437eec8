// Package storage persists bases as JSONL (source of truth) and caches them
// in SQLite for queries.
package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/natefinch/atomic"

	"github.com/matsen/bibreview/internal/base"
)

// MaxJSONLLineCapacity is the maximum buffer size for reading JSONL lines (1MB per line).
const MaxJSONLLineCapacity = 1024 * 1024

// Files names the three files a saved base is spread over.
type Files struct {
	Base string // base.json: base metadata
	Tags string // tags.jsonl: one TagRecord per line, pre-order
	Refs string // refs.jsonl: one RefRecord per line, base order
}

// readJSONL reads one JSON value per non-empty line. A missing file yields
// an empty slice.
func readJSONL[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var records []T
	scanner := bufio.NewScanner(f)

	// Increase buffer size for long lines
	buf := make([]byte, MaxJSONLLineCapacity)
	scanner.Buffer(buf, MaxJSONLLineCapacity)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec T
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("parsing %s line %d: %w", path, lineNum, err)
		}
		records = append(records, rec)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	return records, nil
}

// writeJSONL atomically replaces path with one JSON value per line.
func writeJSONL[T any](path string, records []T) error {
	var buf bytes.Buffer
	for i, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encoding record %d: %w", i, err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}

	if err := atomic.WriteFile(path, &buf); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// ReadRefs reads all reference records from a JSONL file.
func ReadRefs(path string) ([]RefRecord, error) {
	return readJSONL[RefRecord](path)
}

// WriteRefs writes all reference records to a JSONL file, replacing existing content.
func WriteRefs(path string, refs []RefRecord) error {
	return writeJSONL(path, refs)
}

// ReadTags reads all tag records from a JSONL file.
func ReadTags(path string) ([]TagRecord, error) {
	return readJSONL[TagRecord](path)
}

// WriteTags writes all tag records to a JSONL file, replacing existing content.
func WriteTags(path string, tags []TagRecord) error {
	return writeJSONL(path, tags)
}

// SaveBase writes a base to its three files.
func SaveBase(files Files, b *base.Base) error {
	return WriteSnapshot(files, NewSnapshot(b))
}

// LoadBase reads a base saved by SaveBase.
func LoadBase(files Files) (*base.Base, error) {
	s, err := ReadSnapshot(files)
	if err != nil {
		return nil, err
	}
	return s.ToBase()
}

// WriteSnapshot writes records to their three files.
func WriteSnapshot(files Files, s Snapshot) error {
	data, err := json.MarshalIndent(s.Base, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding base: %w", err)
	}
	if err := atomic.WriteFile(files.Base, bytes.NewReader(append(data, '\n'))); err != nil {
		return fmt.Errorf("writing %s: %w", files.Base, err)
	}

	if err := WriteTags(files.Tags, s.Tags); err != nil {
		return err
	}
	return WriteRefs(files.Refs, s.Refs)
}

// ReadSnapshot reads the records written by WriteSnapshot.
func ReadSnapshot(files Files) (Snapshot, error) {
	var s Snapshot
	var err error
	if s.Base, err = readBaseRecord(files.Base); err != nil {
		return s, err
	}
	if s.Tags, err = ReadTags(files.Tags); err != nil {
		return s, err
	}
	if s.Refs, err = ReadRefs(files.Refs); err != nil {
		return s, err
	}
	return s, nil
}

func readBaseRecord(path string) (BaseRecord, error) {
	var meta BaseRecord
	data, err := os.ReadFile(path)
	if err != nil {
		return meta, fmt.Errorf("reading base: %w", err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("parsing base: %w", err)
	}
	return meta, nil
}

// FindByID searches reference records by ID.
func FindByID(refs []RefRecord, id string) (int, bool) {
	for i, ref := range refs {
		if ref.ID == id {
			return i, true
		}
	}
	return -1, false
}

// GenerateUniqueID returns an ID that doesn't conflict with existing records.
// If the base ID exists, appends -2, -3, etc.
func GenerateUniqueID(refs []RefRecord, baseID string) string {
	if _, found := FindByID(refs, baseID); !found {
		return baseID
	}

	// Start at 2: baseID is taken, so first duplicate becomes baseID-2
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d", baseID, i)
		if _, found := FindByID(refs, candidate); !found {
			return candidate
		}
	}
}
