// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long Watch waits for a burst of events to settle.
const DefaultDebounce = 100 * time.Millisecond

// Watcher reports changes to a fixed set of files.
//
// The parent directories are watched rather than the files, so editors
// that save by renaming a temporary file over the original still trigger
// a change.
type Watcher struct {
	Debounce time.Duration
	Logger   *slog.Logger

	files map[string]bool
	w     *fsnotify.Watcher
}

// NewWatcher starts watching the given files.
func NewWatcher(paths ...string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	fw := &Watcher{
		Debounce: DefaultDebounce,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		files:    make(map[string]bool),
		w:        w,
	}
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		fw.files[abs] = true
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		dirs[dir] = true
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	return fw, nil
}

// Close stops the watcher.
func (fw *Watcher) Close() error {
	return fw.w.Close()
}

// Run calls onChange after each settled burst of changes to the watched
// files, until ctx is canceled or the watcher is closed. It returns
// ctx.Err() on cancellation.
func (fw *Watcher) Run(ctx context.Context, onChange func()) error {
	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.w.Events:
			if !ok {
				return nil
			}
			if !fw.relevant(ev) {
				continue
			}
			fw.Logger.Debug("file changed", "path", ev.Name, "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(fw.Debounce)
			} else {
				timer.Reset(fw.Debounce)
			}
			fire = timer.C
		case err, ok := <-fw.w.Errors:
			if !ok {
				return nil
			}
			fw.Logger.Warn("file watcher error", "error", err)
		case <-fire:
			fire = nil
			onChange()
		}
	}
}

func (fw *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	abs, err := filepath.Abs(ev.Name)
	return err == nil && fw.files[abs]
}
