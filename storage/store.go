// Package storage persists findings and scan reports in a local bbolt
// database. An in-memory btree index tracks each finding's lifecycle
// across scans: when it first appeared, when it was last confirmed, and
// whether a later scan that covered its kind stopped reporting it. Only
// covered kinds resolve findings; a skipped kind leaves them open.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/btree"
	"github.com/shopspring/decimal"
	"go.etcd.io/bbolt"

	"github.com/velhola/gleaner/types"
)

var (
	bucketFindings  = []byte("findings")
	bucketReports   = []byte("reports")
	bucketLifecycle = []byte("lifecycle")
	bucketMeta      = []byte("meta")

	keySequence = []byte("scan_sequence")
)

// FindingRecord is one finding's lifecycle across scans.
type FindingRecord struct {
	Key          string     `json:"key"`
	ResourceID   string     `json:"resource_id"`
	ScenarioID   string     `json:"scenario_id"`
	Kind         types.Kind `json:"kind"`
	AccountID    string     `json:"account_id"`
	FirstSeenSeq int64      `json:"first_seen_seq"`
	LastSeenSeq  int64      `json:"last_seen_seq"`
	ResolvedSeq  int64      `json:"resolved_seq,omitempty"`
	Open         bool       `json:"open"`
	Suppressed   bool       `json:"suppressed,omitempty"`
}

// FindingSink receives one scan's results. The orchestrator depends on
// this rather than on the bbolt store so scans can run without
// persistence, and tests can capture batches in memory.
type FindingSink interface {
	SaveScan(report types.ScanReport, findings []types.Finding) (int64, error)
}

// Store is the findings database. Writes go through SaveScan so that a
// scan's report, its findings and the lifecycle fold commit atomically.
type Store struct {
	mu    sync.RWMutex
	index *btree.BTreeG[*FindingRecord]
	db    *bbolt.DB
	seq   int64
	dir   string
}

var _ FindingSink = (*Store)(nil)

// Open opens or creates the findings database in dir.
func Open(dir string) (*Store, error) {
	db, err := bbolt.Open(filepath.Join(dir, "gleaner.db"), 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketFindings, bucketReports, bucketLifecycle, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	s := &Store{
		index: btree.NewG[*FindingRecord](32, func(a, b *FindingRecord) bool {
			return a.Key < b.Key
		}),
		db:  db,
		dir: dir,
	}

	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Sequence returns the sequence number of the last saved scan.
func (s *Store) Sequence() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

// SaveScan persists one scan's report and findings under the next
// sequence number and folds the outcome into the lifecycle index:
// reported findings are confirmed, and open findings whose kind the
// scan covered but no longer reports are resolved.
func (s *Store) SaveScan(report types.ScanReport, findings []types.Finding) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.seq + 1
	changed := s.foldLifecycle(seq, report, findings)

	err := s.db.Update(func(tx *bbolt.Tx) error {
		reportValue, err := json.Marshal(report)
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		if err := tx.Bucket(bucketReports).Put(seqKey(seq), reportValue); err != nil {
			return err
		}

		fb := tx.Bucket(bucketFindings)
		for _, finding := range findings {
			value, err := json.Marshal(finding)
			if err != nil {
				return fmt.Errorf("failed to encode finding %s: %w", finding.Key(), err)
			}
			if err := fb.Put(findingKey(seq, finding.Key()), value); err != nil {
				return err
			}
		}

		lb := tx.Bucket(bucketLifecycle)
		for _, record := range changed {
			value, err := json.Marshal(record)
			if err != nil {
				return fmt.Errorf("failed to encode lifecycle record: %w", err)
			}
			if err := lb.Put([]byte(record.Key), value); err != nil {
				return err
			}
		}

		return tx.Bucket(bucketMeta).Put(keySequence, seqKey(seq))
	})
	if err != nil {
		return 0, err
	}

	s.seq = seq
	for _, record := range changed {
		s.index.ReplaceOrInsert(record)
	}
	return seq, nil
}

// foldLifecycle computes the updated lifecycle records for one scan
// without touching the index, so a failed transaction changes nothing.
func (s *Store) foldLifecycle(seq int64, report types.ScanReport, findings []types.Finding) []*FindingRecord {
	var changed []*FindingRecord
	reported := make(map[string]bool, len(findings))

	for _, finding := range findings {
		key := finding.Key()
		reported[key] = true

		record := &FindingRecord{
			Key:          key,
			ResourceID:   finding.ResourceID,
			ScenarioID:   finding.ScenarioID,
			Kind:         finding.ResourceKind,
			AccountID:    finding.AccountID,
			FirstSeenSeq: seq,
			LastSeenSeq:  seq,
			Open:         true,
			Suppressed:   finding.Suppressed,
		}
		if existing, found := s.index.Get(&FindingRecord{Key: key}); found {
			record.FirstSeenSeq = existing.FirstSeenSeq
		}
		changed = append(changed, record)
	}

	s.index.Ascend(func(record *FindingRecord) bool {
		if !record.Open || reported[record.Key] {
			return true
		}
		if !report.Covered(record.AccountID, record.Kind) {
			// The scan never checked this kind, so its absence proves nothing.
			return true
		}
		resolved := *record
		resolved.Open = false
		resolved.ResolvedSeq = seq
		changed = append(changed, &resolved)
		return true
	})

	return changed
}

// FindingFilter narrows lifecycle queries. Zero values match everything.
type FindingFilter struct {
	AccountID         string
	Kind              types.Kind
	ScenarioID        string
	IncludeSuppressed bool
}

func (f FindingFilter) matches(record *FindingRecord) bool {
	if f.AccountID != "" && record.AccountID != f.AccountID {
		return false
	}
	if f.Kind != "" && record.Kind != f.Kind {
		return false
	}
	if f.ScenarioID != "" && record.ScenarioID != f.ScenarioID {
		return false
	}
	if record.Suppressed && !f.IncludeSuppressed {
		return false
	}
	return true
}

// OpenFindings returns the latest stored payload of every open finding
// matching the filter.
func (s *Store) OpenFindings(filter FindingFilter) ([]types.Finding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var wanted []*FindingRecord
	s.index.Ascend(func(record *FindingRecord) bool {
		if record.Open && filter.matches(record) {
			wanted = append(wanted, record)
		}
		return true
	})

	findings := make([]types.Finding, 0, len(wanted))
	err := s.db.View(func(tx *bbolt.Tx) error {
		fb := tx.Bucket(bucketFindings)
		for _, record := range wanted {
			value := fb.Get(findingKey(record.LastSeenSeq, record.Key))
			if value == nil {
				// Compacted away; the lifecycle record alone remains.
				continue
			}
			var finding types.Finding
			if err := json.Unmarshal(value, &finding); err != nil {
				return fmt.Errorf("failed to decode finding %s: %w", record.Key, err)
			}
			findings = append(findings, finding)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return findings, nil
}

// Record returns the lifecycle record for a finding key.
func (s *Store) Record(key string) (FindingRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, found := s.index.Get(&FindingRecord{Key: key})
	if !found {
		return FindingRecord{}, false
	}
	return *record, true
}

// Report returns the scan report saved under seq.
func (s *Store) Report(seq int64) (types.ScanReport, error) {
	var report types.ScanReport
	err := s.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(bucketReports).Get(seqKey(seq))
		if value == nil {
			return fmt.Errorf("no scan with sequence %d", seq)
		}
		return json.Unmarshal(value, &report)
	})
	return report, err
}

// Reports returns up to limit scan reports, newest first.
func (s *Store) Reports(limit int) ([]types.ScanReport, error) {
	var reports []types.ScanReport
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketReports).Cursor()
		for k, v := c.Last(); k != nil && len(reports) < limit; k, v = c.Prev() {
			var report types.ScanReport
			if err := json.Unmarshal(v, &report); err != nil {
				return fmt.Errorf("failed to decode report: %w", err)
			}
			reports = append(reports, report)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reports, nil
}

// LastScanFor returns the most recent report whose coverage includes
// the account. The bool is false when no scan has touched it yet.
func (s *Store) LastScanFor(accountID string) (types.ScanReport, bool, error) {
	var report types.ScanReport
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketReports).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var candidate types.ScanReport
			if err := json.Unmarshal(v, &candidate); err != nil {
				return fmt.Errorf("failed to decode report: %w", err)
			}
			for _, cell := range candidate.Coverage {
				if cell.AccountID == accountID {
					report = candidate
					found = true
					return nil
				}
			}
		}
		return nil
	})
	if err != nil {
		return types.ScanReport{}, false, err
	}
	return report, found, nil
}

// OpenMonthlyWaste totals the monthly estimate across every open,
// unsuppressed finding.
func (s *Store) OpenMonthlyWaste() (decimal.Decimal, error) {
	findings, err := s.OpenFindings(FindingFilter{})
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, finding := range findings {
		total = total.Add(finding.Cost.TotalMonthly)
	}
	return total, nil
}

// Compact drops findings and reports older than the last keepScans
// scans. Lifecycle records survive compaction.
func (s *Store) Compact(keepScans int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.seq - keepScans + 1
	if cutoff <= 0 {
		return nil
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketFindings, bucketReports} {
			c := tx.Bucket(name).Cursor()
			var stale [][]byte
			for k, _ := c.First(); k != nil; k, _ = c.Next() {
				if keySeq(k) < cutoff {
					stale = append(stale, k)
				}
			}
			for _, k := range stale {
				if err := tx.Bucket(name).Delete(k); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// load restores the sequence counter and the lifecycle index from disk.
func (s *Store) load() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		if value := tx.Bucket(bucketMeta).Get(keySequence); value != nil {
			s.seq = keySeq(value)
		}

		return tx.Bucket(bucketLifecycle).ForEach(func(_, value []byte) error {
			var record FindingRecord
			if err := json.Unmarshal(value, &record); err != nil {
				return fmt.Errorf("failed to decode lifecycle record: %w", err)
			}
			s.index.ReplaceOrInsert(&record)
			return nil
		})
	})
}

// Sequence numbers are stored big endian so bbolt's byte ordering is
// also chronological ordering. Finding keys carry ARNs with ':' and '/'
// in them, so the sequence is a fixed 8-byte prefix rather than a
// delimited string.

func seqKey(seq int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(seq))
	return buf
}

func keySeq(key []byte) int64 {
	return int64(binary.BigEndian.Uint64(key[:8]))
}

func findingKey(seq int64, key string) []byte {
	return append(seqKey(seq), key...)
}
