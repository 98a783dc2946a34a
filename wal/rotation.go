package wal

// shouldRotate reports whether the current segment has outgrown the
// configured limit. Callers hold w.mu.
func (w *WAL) shouldRotate() bool {
	if w.config.MaxFileSize <= 0 {
		return false
	}
	info, err := w.file.Stat()
	if err != nil {
		return false
	}
	return info.Size() >= w.config.MaxFileSize
}

// rotate closes the current segment and starts a new one. The sequence
// keeps counting across segments.
func (w *WAL) rotate() error {
	if err := w.writer.Flush(); err != nil {
		return err
	}
	if err := w.file.Close(); err != nil {
		return err
	}
	return w.openSegment()
}
