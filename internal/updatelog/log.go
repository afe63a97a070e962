// Package updatelog maintains the append-only, human-readable transcript of
// update and rollback runs.
package updatelog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/yz4230/selfupdate/internal/utils"
)

// Log appends "[timestamp] text" lines to a file. It satisfies
// command.Transcript.
type Log struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

func New(path string) *Log {
	return &Log{path: path, now: time.Now}
}

func (l *Log) Path() string { return l.path }

// Append writes one entry. Carriage returns and trailing newlines are
// dropped. Write failures are ignored.
func (l *Log) Append(text string) {
	_ = l.append(strings.TrimRight(strings.ReplaceAll(text, "\r", ""), "\n"))
}

func (l *Log) append(text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := zerolog.ConsoleWriter{
		Out:        f,
		NoColor:    true,
		PartsOrder: []string{zerolog.TimestampFieldName, zerolog.MessageFieldName},
		FormatTimestamp: func(i any) string {
			return "[" + fmt.Sprint(i) + "]"
		},
	}
	logger := zerolog.New(w)
	logger.Log().
		Str(zerolog.TimestampFieldName, l.now().UTC().Format(time.RFC3339)).
		Msg(text)
	return nil
}

// Marker writes a run boundary such as "=== update start ===".
func (l *Log) Marker(text string) {
	l.Append("=== " + text + " ===")
}

// Tail returns the last n lines (all when n <= 0), or "" when the log does
// not exist yet.
func (l *Log) Tail(n int) (string, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read update log: %w", err)
	}
	return utils.LastLines(string(data), n), nil
}

// Follow copies everything appended to the log after the call to w until ctx
// is done. The log does not need to exist yet.
func (l *Log) Follow(ctx context.Context, w io.Writer) error {
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	var offset int64
	if info, err := os.Stat(l.path); err == nil {
		offset = info.Size()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch update log: %w", err)
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(l.path) {
				continue
			}
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				offset = 0
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			offset, err = l.copyFrom(offset, w)
			if err != nil {
				return err
			}
		}
	}
}

func (l *Log) copyFrom(offset int64, w io.Writer) (int64, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return offset, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return offset, err
	}
	if info.Size() < offset {
		offset = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return offset, err
	}
	n, err := io.Copy(w, f)
	return offset + n, err
}
