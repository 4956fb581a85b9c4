package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher polls a config file and hands every new valid revision to a
// callback. Edits that fail to parse or validate are logged and skipped, so
// [Watcher.Current] always returns the last config that loaded cleanly.
type Watcher struct {
	path     string
	interval time.Duration
	apply    func(next *Config)

	mu      sync.Mutex
	current *Config
	seen    revision
}

// revision identifies one observed state of the file.
type revision struct {
	modTime time.Time
	sum     [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path once and returns a watcher for it. Polling starts
// with [Watcher.Run]. apply may be nil.
func NewWatcher(path string, apply func(next *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		apply:    apply,
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, rev, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current, w.seen = cfg, rev
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls until ctx is done. It always returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := w.Check(); err != nil {
				slog.Warn("config watcher: keeping previous config", "path", w.path, "err", err)
			}
		}
	}
}

// Check looks at the file once. It reports whether a new revision was
// applied. A touched file with unchanged content is not a new revision.
func (w *Watcher) Check() (bool, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.seen.modTime)
	w.mu.Unlock()
	if unchanged {
		return false, nil
	}

	cfg, rev, err := w.read()
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	if rev.sum == w.seen.sum {
		w.seen.modTime = rev.modTime
		w.mu.Unlock()
		return false, nil
	}
	w.current, w.seen = cfg, rev
	w.mu.Unlock()

	slog.Info("config watcher: new revision loaded", "path", w.path)
	if w.apply != nil {
		w.apply(cfg)
	}
	return true, nil
}

func (w *Watcher) read() (*Config, revision, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, revision{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, revision{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, revision{}, err
	}
	return cfg, revision{modTime: info.ModTime(), sum: sha256.Sum256(data)}, nil
}
