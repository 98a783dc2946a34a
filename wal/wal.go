// Package wal journals scan lifecycle events to append-only files. The
// journal answers two questions the findings database cannot: what a
// crashed scan was doing when it died, and in what order findings were
// emitted. Entries are one JSON object per line so a partial final line
// never corrupts earlier entries.
package wal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// EntryType defines the type of journal entry.
type EntryType string

const (
	EntryScanStarted  EntryType = "scan_started"
	EntryKindListed   EntryType = "kind_listed"
	EntryKindSkipped  EntryType = "kind_skipped"
	EntryFinding      EntryType = "finding"
	EntryScanFinished EntryType = "scan_finished"
)

// Entry is a single journal record.
type Entry struct {
	Timestamp time.Time       `json:"timestamp"`
	Sequence  int64           `json:"sequence"`
	ScanID    string          `json:"scan_id"`
	Type      EntryType       `json:"type"`
	Subject   string          `json:"subject,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Config controls journal rotation and retention.
type Config struct {
	FilePrefix    string
	MaxFileSize   int64
	RetentionDays int
}

// DefaultConfig returns the journal defaults.
func DefaultConfig() Config {
	return Config{
		FilePrefix:    "gleaner",
		MaxFileSize:   64 << 20,
		RetentionDays: 14,
	}
}

// WAL appends journal entries to the current segment file.
type WAL struct {
	mu       sync.Mutex
	file     *os.File
	writer   *bufio.Writer
	sequence int64
	dir      string
	config   Config
}

// Open creates or opens a journal in dir, continuing the sequence from
// any segments already present.
func Open(dir string, config Config) (*WAL, error) {
	if config.FilePrefix == "" {
		config = DefaultConfig()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	w := &WAL{
		dir:      dir,
		config:   config,
		sequence: lastSequenceInDir(dir, config.FilePrefix),
	}
	if err := w.openSegment(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *WAL) openSegment() error {
	name := fmt.Sprintf("%s-%s.wal", w.config.FilePrefix, time.Now().UTC().Format("20060102-150405.000000"))
	file, err := os.OpenFile(filepath.Join(w.dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open journal segment: %w", err)
	}
	w.file = file
	w.writer = bufio.NewWriter(file)
	return nil
}

// Close flushes and closes the journal.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return err
	}
	return w.file.Close()
}

// Append journals one event. Data may be nil.
func (w *WAL) Append(scanID string, entryType EntryType, subject string, data any) error {
	return w.append(scanID, entryType, subject, data, nil)
}

// AppendError journals a failure event.
func (w *WAL) AppendError(scanID string, entryType EntryType, subject string, failure error) error {
	return w.append(scanID, entryType, subject, nil, failure)
}

func (w *WAL) append(scanID string, entryType EntryType, subject string, data any, failure error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var payload json.RawMessage
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal entry data: %w", err)
		}
		payload = encoded
	}

	w.sequence++
	entry := Entry{
		Timestamp: time.Now().UTC(),
		Sequence:  w.sequence,
		ScanID:    scanID,
		Type:      entryType,
		Subject:   subject,
		Data:      payload,
	}
	if failure != nil {
		entry.Error = failure.Error()
	}

	return w.writeEntry(entry)
}

func (w *WAL) writeEntry(entry Entry) error {
	if w.shouldRotate() {
		if err := w.rotate(); err != nil {
			return err
		}
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	if _, err := w.writer.Write(line); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	// Durability over throughput: a scan writes a few hundred entries.
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	return w.file.Sync()
}

// Sequence returns the last written sequence number.
func (w *WAL) Sequence() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sequence
}

// lastSequenceInDir scans existing segments for the highest sequence so
// a reopened journal never reuses numbers.
func lastSequenceInDir(dir, prefix string) int64 {
	var last int64
	for _, path := range segmentFiles(dir, prefix) {
		reader, err := NewReader(path)
		if err != nil {
			continue
		}
		for {
			entry, err := reader.Next()
			if err != nil {
				break
			}
			if entry.Sequence > last {
				last = entry.Sequence
			}
		}
		reader.Close()
	}
	return last
}

// segmentFiles lists journal segments oldest first. Segment names embed
// a UTC timestamp, so lexical order is chronological order.
func segmentFiles(dir, prefix string) []string {
	files, err := filepath.Glob(filepath.Join(dir, prefix+"-*.wal"))
	if err != nil {
		return nil
	}
	sort.Strings(files)
	return files
}

// Reader iterates entries in one segment file.
type Reader struct {
	scanner *bufio.Scanner
	file    *os.File
}

// NewReader opens a segment for reading.
func NewReader(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal segment: %w", err)
	}
	return &Reader{scanner: bufio.NewScanner(file), file: file}, nil
}

// Next reads the next entry, io.EOF when exhausted.
func (r *Reader) Next() (*Entry, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}

	var entry Entry
	if err := json.Unmarshal(r.scanner.Bytes(), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
	}
	return &entry, nil
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.file.Close()
}

// Replay walks every entry after since, oldest segment first.
func Replay(dir string, config Config, since time.Time, handler func(*Entry) error) error {
	if config.FilePrefix == "" {
		config = DefaultConfig()
	}

	for _, path := range segmentFiles(dir, config.FilePrefix) {
		reader, err := NewReader(path)
		if err != nil {
			return err
		}

		for {
			entry, err := reader.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				// A torn final line from a crash ends the segment.
				break
			}
			if !entry.Timestamp.After(since) {
				continue
			}
			if err := handler(entry); err != nil {
				reader.Close()
				return err
			}
		}
		reader.Close()
	}
	return nil
}

// LastScan returns the journal of the most recent scan and whether that
// scan reached a terminal entry. An incomplete journal means the
// process died mid-scan.
func LastScan(dir string, config Config) ([]*Entry, bool, error) {
	var (
		scanID   string
		entries  []*Entry
		complete bool
	)

	err := Replay(dir, config, time.Time{}, func(entry *Entry) error {
		if entry.Type == EntryScanStarted {
			scanID = entry.ScanID
			entries = entries[:0]
			complete = false
		}
		if entry.ScanID != scanID {
			return nil
		}
		entries = append(entries, entry)
		if entry.Type == EntryScanFinished {
			complete = true
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return entries, complete, nil
}
