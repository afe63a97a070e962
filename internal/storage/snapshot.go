package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/moby/go-archive"
	"github.com/moby/sys/atomicwriter"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/yz4230/selfupdate/internal/utils"
)

// Snapshotter archives working tree files that a hard reset would discard.
type Snapshotter interface {
	// Snapshot writes the repo-relative paths under root into
	// <dir>/<label>-<UTC timestamp>.tar and returns its path. A -N suffix
	// keeps snapshots taken within the same second apart. It returns ""
	// when none of the paths exist.
	Snapshot(root string, paths []string, label string) (string, error)
}

type SnapshotterImpl struct {
	dir string
	now func() time.Time
	log zerolog.Logger
}

// Snapshot implements Snapshotter.
func (s *SnapshotterImpl) Snapshot(root string, paths []string, label string) (string, error) {
	existing := lo.Filter(paths, func(p string, _ int) bool {
		info, err := os.Lstat(filepath.Join(root, filepath.FromSlash(p)))
		return err == nil && !info.IsDir()
	})
	if len(existing) == 0 {
		return "", nil
	}

	rd, err := archive.TarWithOptions(root, &archive.TarOptions{IncludeFiles: existing})
	if err != nil {
		return "", fmt.Errorf("archive working tree: %w", err)
	}
	defer rd.Close()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}
	if label = utils.SanitizeName(label); label == "" {
		label = "snapshot"
	}
	path := uniquePath(s.dir, label+"-"+s.now().UTC().Format("20060102T150405Z"), ".tar")

	w, err := atomicwriter.New(path, 0o644)
	if err != nil {
		return "", fmt.Errorf("create snapshot: %w", err)
	}
	if _, err := io.Copy(w, rd); err != nil {
		_ = w.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	s.log.Info().Str("path", path).Int("files", len(existing)).Msg("working tree snapshot written")
	return path, nil
}

// uniquePath returns dir/base+ext, adding a -N counter to base while that
// name is taken.
func uniquePath(dir, base, ext string) string {
	path := filepath.Join(dir, base+ext)
	for n := 1; ; n++ {
		if _, err := os.Lstat(path); os.IsNotExist(err) {
			return path
		}
		path = filepath.Join(dir, fmt.Sprintf("%s-%d%s", base, n, ext))
	}
}

func NewSnapshotter(dir string, log zerolog.Logger) Snapshotter {
	return &SnapshotterImpl{dir: dir, now: time.Now, log: log}
}
