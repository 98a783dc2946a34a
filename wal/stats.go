package wal

import (
	"io"
	"os"
	"time"
)

// Stats summarizes the journal on disk.
type Stats struct {
	Segments      int
	TotalBytes    int64
	FirstSequence int64
	LastSequence  int64
	OldestEntry   time.Time
	NewestEntry   time.Time
}

// GetStats inspects every segment under dir.
func GetStats(dir string, config Config) (Stats, error) {
	if config.FilePrefix == "" {
		config = DefaultConfig()
	}

	var stats Stats
	for _, path := range segmentFiles(dir, config.FilePrefix) {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		stats.Segments++
		stats.TotalBytes += info.Size()
		scanSegmentBounds(path, &stats)
	}
	return stats, nil
}

// scanSegmentBounds folds one segment's entries into the aggregate,
// skipping lines a crash left unparseable.
func scanSegmentBounds(path string, stats *Stats) {
	reader, err := NewReader(path)
	if err != nil {
		return
	}
	defer reader.Close()

	for {
		entry, err := reader.Next()
		if err == io.EOF {
			return
		}
		if err != nil {
			return
		}
		if stats.FirstSequence == 0 || entry.Sequence < stats.FirstSequence {
			stats.FirstSequence = entry.Sequence
			stats.OldestEntry = entry.Timestamp
		}
		if entry.Sequence > stats.LastSequence {
			stats.LastSequence = entry.Sequence
			stats.NewestEntry = entry.Timestamp
		}
	}
}
