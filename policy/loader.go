package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadDir compiles every .rego file under dir. A missing directory is
// an error; an empty one leaves the engine empty, which disables
// suppression entirely.
func (e *Engine) LoadDir(ctx context.Context, dir string) error {
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("policy directory %s: %w", dir, err)
	}

	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".rego") {
			return nil
		}
		return e.loadFile(ctx, path)
	})
}

func (e *Engine) loadFile(ctx context.Context, path string) error {
	source, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to read policy file %s: %w", path, err)
	}

	name := strings.TrimSuffix(filepath.Base(path), ".rego")
	if err := e.LoadModule(ctx, name, string(source)); err != nil {
		return fmt.Errorf("failed to load policy %s: %w", path, err)
	}
	return nil
}
