// Package watch implements the change-trigger boundary: a file-system watch
// on a single sentinel file whose content is a comma-separated list of
// changed plugin names. Events are debounced by a short fixed delay before
// the file is read. A read racing a concurrent write is an accepted,
// undetected inconsistency; an empty or partial list is forwarded as-is and
// treated as "no change" downstream.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Delimiter separates plugin names in the sentinel file.
const Delimiter = ","

// DefaultDebounce is applied when no delay is configured.
const DefaultDebounce = 50 * time.Millisecond

// SentinelWatcher watches one sentinel file and forwards the parsed name
// list to a sink after each debounced change.
type SentinelWatcher struct {
	path     string
	debounce time.Duration
	sink     func([]string)
	watcher  *fsnotify.Watcher
}

// NewSentinelWatcher creates a watcher for the given sentinel path. The sink
// is invoked from the watch goroutine with each non-empty name list.
func NewSentinelWatcher(path string, debounce time.Duration, sink func([]string)) (*SentinelWatcher, error) {
	if sink == nil {
		return nil, fmt.Errorf("sentinel watcher requires a sink")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve sentinel path: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &SentinelWatcher{
		path:     abs,
		debounce: debounce,
		sink:     sink,
		watcher:  watcher,
	}, nil
}

// Start begins monitoring. Watching the parent directory rather than the
// file itself survives editors and builds that replace the file.
func (sw *SentinelWatcher) Start(ctx context.Context) error {
	dir := filepath.Dir(sw.path)
	if err := sw.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch sentinel directory %s: %w", dir, err)
	}
	slog.Info("Watching sentinel file", "path", sw.path, "debounce", sw.debounce)
	go sw.watchLoop(ctx)
	return nil
}

// Close stops the underlying file-system watcher.
func (sw *SentinelWatcher) Close() error {
	return sw.watcher.Close()
}

func (sw *SentinelWatcher) watchLoop(ctx context.Context) {
	base := filepath.Base(sw.path)

	// The timer is armed on the first matching event and re-armed by each
	// subsequent one; the file is read only after a quiet period.
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			slog.Debug("Sentinel change detected", "op", event.Op.String())
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(sw.debounce)
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Sentinel watch error", "error", err)
		case <-timer.C:
			names := sw.readNames()
			if len(names) == 0 {
				continue
			}
			sw.sink(names)
		}
	}
}

func (sw *SentinelWatcher) readNames() []string {
	data, err := os.ReadFile(sw.path)
	if err != nil {
		// Deleted or mid-replace; treat as no change.
		slog.Debug("Sentinel read failed", "error", err)
		return nil
	}
	return ParseNames(string(data))
}

// ParseNames splits sentinel content into plugin names, dropping empties.
func ParseNames(content string) []string {
	parts := strings.Split(strings.TrimSpace(content), Delimiter)
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			names = append(names, p)
		}
	}
	return names
}

// Init creates the sentinel file with empty content, the expected state at
// process start.
func Init(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create sentinel directory: %w", err)
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		return fmt.Errorf("failed to create sentinel file: %w", err)
	}
	return nil
}

// Write replaces the sentinel content with the delimiter-joined name list,
// which is what triggers connected watchers. The parent directory is created
// if missing, so one-shot builds into a fresh output directory work without
// a prior Init.
func Write(path string, names []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create sentinel directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(strings.Join(names, Delimiter)), 0o644); err != nil {
		return fmt.Errorf("failed to write sentinel file: %w", err)
	}
	return nil
}

// Cleanup removes the sentinel file on clean process exit.
func Cleanup(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove sentinel file: %w", err)
	}
	return nil
}
