package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
)

// errMalformedLine marks a line that is not "<checksum>\t<json>"
var errMalformedLine = errors.New("malformed WAL line")

// TornTailError reports an incomplete last line, left by a crash mid-append.
// Entries before Offset are intact.
type TornTailError struct {
	Path   string
	Offset int64
	Err    error
}

func (e *TornTailError) Error() string {
	return fmt.Sprintf("torn WAL tail in %s at offset %d: %v", e.Path, e.Offset, e.Err)
}

func (e *TornTailError) Unwrap() error {
	return e.Err
}

// NewWALEngine creates a new WAL engine
func NewWALEngine(walDir string, durabilityLevel DurabilityLevel) *WALEngine {
	return &WALEngine{
		walDir:          walDir,
		durabilityLevel: durabilityLevel,
		currentLSN:      0,
	}
}

// WriteEntry writes a WAL entry to the log
func (w *WALEngine) WriteEntry(entry *WALEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Ensure WAL file is open
	if err := w.ensureWALFile(); err != nil {
		return fmt.Errorf("failed to ensure WAL file: %w", err)
	}

	entry.LSN = w.currentLSN

	data, err := w.serializeEntry(entry)
	if err != nil {
		return fmt.Errorf("failed to serialize WAL entry: %w", err)
	}

	if err := w.writeToWALFile(data); err != nil {
		return fmt.Errorf("failed to write to WAL file: %w", err)
	}

	if err := w.applyDurability(); err != nil {
		return fmt.Errorf("failed to apply durability: %w", err)
	}

	// Only advance once the entry is on the log
	w.currentLSN++
	return nil
}

// ReadEntries reads WAL entries from a file. When only the last line is
// unreadable the intact entries are returned with a *TornTailError.
func (w *WALEngine) ReadEntries(filename string) ([]*WALEntry, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAL file: %w", err)
	}
	defer file.Close()

	var entries []*WALEntry
	reader := bufio.NewReaderSize(file, 64*1024)
	offset := int64(0)

	for {
		line, readErr := reader.ReadBytes('\n')
		if readErr != nil && readErr != io.EOF {
			return nil, fmt.Errorf("error reading WAL file: %w", readErr)
		}
		if len(line) == 0 {
			break
		}

		complete := line[len(line)-1] == '\n'
		last := !complete
		if complete {
			if _, err := reader.Peek(1); err == io.EOF {
				last = true
			}
		}

		if trimmed := bytes.TrimRight(line, "\r\n"); len(trimmed) > 0 {
			entry, err := w.deserializeEntry(trimmed)
			switch {
			case err == nil:
				entries = append(entries, entry)
			case last && (!complete || errors.Is(err, errMalformedLine)):
				return entries, &TornTailError{Path: filename, Offset: offset, Err: err}
			default:
				return nil, err
			}
		}

		offset += int64(len(line))
		if readErr == io.EOF {
			break
		}
	}

	return entries, nil
}

// GetCurrentLSN returns the LSN the next entry will receive
func (w *WALEngine) GetCurrentLSN() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.currentLSN
}

func (w *WALEngine) setCurrentLSN(lsn int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if lsn > w.currentLSN {
		w.currentLSN = lsn
	}
}

// Close closes the WAL engine
func (w *WALEngine) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.walFile != nil {
		err := w.walFile.File.Close()
		w.walFile = nil
		return err
	}
	return nil
}

// GetWALFiles returns the WAL files in the WAL directory, oldest first
func (w *WALEngine) GetWALFiles() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(w.walDir, "wal_*.log"))
	if err != nil {
		return nil, fmt.Errorf("failed to list WAL files: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// RotateWALFile closes the current WAL file and opens a new one
func (w *WALEngine) RotateWALFile() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.walFile != nil {
		if err := w.walFile.File.Close(); err != nil {
			return fmt.Errorf("failed to close current WAL file: %w", err)
		}
		w.walFile = nil
	}

	return w.ensureWALFile()
}

// RemoveInactiveFiles deletes every WAL file except the one being written
func (w *WALEngine) RemoveInactiveFiles() (int, error) {
	files, err := w.GetWALFiles()
	if err != nil {
		return 0, err
	}

	w.mu.RLock()
	active := ""
	if w.walFile != nil {
		active = w.walFile.Path
	}
	w.mu.RUnlock()

	removed := 0
	for _, f := range files {
		if f == active {
			continue
		}
		if err := os.Remove(f); err != nil {
			return removed, fmt.Errorf("failed to remove WAL file %s: %w", f, err)
		}
		removed++
	}
	return removed, nil
}

// Private methods

func (w *WALEngine) ensureWALFile() error {
	if w.walFile != nil {
		return nil
	}

	// Zero-padded nanoseconds keep lexical order equal to creation order
	filename := fmt.Sprintf("wal_%020d.log", time.Now().UnixNano())
	path := filepath.Join(w.walDir, filename)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create WAL file: %w", err)
	}

	w.walFile = &WALFile{
		Path: path,
		File: file,
	}

	return nil
}

func (w *WALEngine) writeToWALFile(data []byte) error {
	if w.walFile == nil {
		return fmt.Errorf("WAL file not initialized")
	}

	n, err := w.walFile.File.Write(data)
	if err != nil {
		return fmt.Errorf("failed to write to WAL file: %w", err)
	}

	w.walFile.Position += int64(n)
	w.walFile.Entries++

	return nil
}

func (w *WALEngine) applyDurability() error {
	switch w.durabilityLevel {
	case DurabilityNone, DurabilityMemory, DurabilityOS:
		// The OS flushes to disk when appropriate
		return nil
	case DurabilityFull:
		return w.walFile.File.Sync()
	default:
		return fmt.Errorf("unknown durability level: %d", w.durabilityLevel)
	}
}

// serializeEntry renders "<checksum>\t<json>\n". The checksum covers the
// exact JSON bytes written, so replay never depends on re-encoding.
func (w *WALEngine) serializeEntry(entry *WALEntry) ([]byte, error) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal WAL entry: %w", err)
	}
	entry.Checksum = xxhash.Sum64(payload)

	line := make([]byte, 0, len(payload)+18)
	line = fmt.Appendf(line, "%016x\t", entry.Checksum)
	line = append(line, payload...)
	return append(line, '\n'), nil
}

func (w *WALEngine) deserializeEntry(line []byte) (*WALEntry, error) {
	sumHex, payload, ok := bytes.Cut(line, []byte{'\t'})
	if !ok || len(sumHex) != 16 {
		return nil, errMalformedLine
	}
	sum, err := strconv.ParseUint(string(sumHex), 16, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedLine, err)
	}

	if xxhash.Sum64(payload) != sum {
		var header struct {
			LSN int64 `json:"lsn"`
		}
		if json.Unmarshal(payload, &header) != nil {
			return nil, fmt.Errorf("%w: checksum verification failed", errMalformedLine)
		}
		return nil, fmt.Errorf("checksum verification failed for LSN %d", header.LSN)
	}

	// UseNumber keeps integers above 2^53 exact
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var entry WALEntry
	if err := dec.Decode(&entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal WAL entry: %w", err)
	}
	entry.Checksum = sum
	for i := range entry.Ops {
		if entry.Ops[i].Data != nil {
			entry.Ops[i].Data = normalizeNumbers(map[string]interface{}(entry.Ops[i].Data)).(map[string]interface{})
		}
	}
	return &entry, nil
}

// normalizeNumbers turns json.Number into int64 when it fits, float64
// otherwise, so replayed documents hold the same kinds as fresh ones.
func normalizeNumbers(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]interface{}:
		for k, inner := range t {
			t[k] = normalizeNumbers(inner)
		}
		return t
	case []interface{}:
		for i, inner := range t {
			t[i] = normalizeNumbers(inner)
		}
		return t
	}
	return v
}
