package wal

import (
	"fmt"
	"os"
	"time"
)

// CleanupStats reports what a retention pass removed.
type CleanupStats struct {
	FilesRemoved int
	BytesFreed   int64
}

// Cleanup removes segments older than the configured retention.
func Cleanup(dir string, config Config) error {
	_, err := CleanupWithStats(dir, config)
	return err
}

// CleanupWithStats removes expired segments and reports what went.
func CleanupWithStats(dir string, config Config) (CleanupStats, error) {
	if config.FilePrefix == "" {
		config = DefaultConfig()
	}

	var stats CleanupStats
	cutoff := time.Now().AddDate(0, 0, -config.RetentionDays)

	for _, path := range segmentFiles(dir, config.FilePrefix) {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			return stats, fmt.Errorf("failed to remove segment %s: %w", path, err)
		}
		stats.FilesRemoved++
		stats.BytesFreed += info.Size()
	}
	return stats, nil
}
