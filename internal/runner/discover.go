package runner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Discover walks input and calls emit for every candidate file. A regular
// file is emitted alone whatever its extension. Directories yield only
// entries accepted by eligible: immediate children, or the whole subtree
// when recursive. Unreadable entries are skipped.
func Discover(ctx context.Context, input string, recursive bool, eligible func(string) bool, emit func(string) error) error {
	info, err := os.Stat(input)
	if err != nil {
		return fmt.Errorf("stat input %s: %w", input, err)
	}
	if !info.IsDir() {
		return emit(input)
	}

	if recursive {
		return filepath.WalkDir(input, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if d.IsDir() || !eligible(path) {
				return nil
			}
			return emit(path)
		})
	}

	entries, err := os.ReadDir(input)
	if err != nil && len(entries) == 0 {
		return fmt.Errorf("read input dir %s: %w", input, err)
	}
	for _, entry := range entries {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		path := filepath.Join(input, entry.Name())
		if entry.IsDir() || !eligible(path) {
			continue
		}
		if err := emit(path); err != nil {
			return err
		}
	}
	return nil
}
