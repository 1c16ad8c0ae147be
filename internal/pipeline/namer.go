package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dunamismax/pixelbatch/internal/claim"
	"github.com/dunamismax/pixelbatch/internal/domain"
)

// OutputPath returns the preferred output path for source: the source file
// name when no format is configured, otherwise the stem with the format's
// canonical extension.
func OutputPath(source, outputDir string, format domain.Format) string {
	name := filepath.Base(source)
	if format != domain.FormatNone {
		name = strings.TrimSuffix(name, filepath.Ext(name)) + "." + format.Extension()
	}
	return filepath.Join(outputDir, name)
}

// candidatePath returns path for n == 0 and <stem>_<n><ext> otherwise.
func candidatePath(path string, n int) string {
	if n == 0 {
		return path
	}
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(path, ext), n, ext)
}

// ReserveOutput creates the first free candidate for path with O_EXCL, so two
// workers can never end up writing the same file. The caller owns the
// returned file and must remove it if encoding fails.
func ReserveOutput(ctx context.Context, path string, claimer claim.Claimer) (*os.File, error) {
	if claimer == nil {
		claimer = claim.Local{}
	}

	for n := 0; ; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		candidate := candidatePath(path, n)
		ok, err := claimer.Claim(ctx, candidate)
		if err != nil {
			return nil, fmt.Errorf("claim output name: %w", err)
		}
		if !ok {
			continue
		}

		f, err := os.OpenFile(candidate, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, nil
		}
		_ = claimer.Release(ctx, candidate)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		return nil, fmt.Errorf("create output %s: %w", candidate, err)
	}
}
