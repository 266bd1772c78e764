package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Func wraps an arbitrary check function as a named [Checker].
func Func(name string, fn func(ctx context.Context) error) Checker {
	return Checker{Name: name, Check: fn}
}

// DirWritable returns a [Checker] that verifies dir exists and accepts
// writes. It probes by creating and removing a scratch file, which catches
// read-only mounts that os.Stat alone would miss.
func DirWritable(name, dir string) Checker {
	return Checker{
		Name: name,
		Check: func(_ context.Context) error {
			info, err := os.Stat(dir)
			if err != nil {
				return fmt.Errorf("stat %s: %w", dir, err)
			}
			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", dir)
			}
			probe := filepath.Join(dir, ".healthz")
			f, err := os.Create(probe)
			if err != nil {
				return fmt.Errorf("write probe: %w", err)
			}
			f.Close()
			if err := os.Remove(probe); err != nil {
				return fmt.Errorf("remove probe: %w", err)
			}
			return nil
		},
	}
}
