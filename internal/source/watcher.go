// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package source

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	bugjarlog "github.com/tombee/bugjar/internal/log"
)

// Watcher evicts cache entries when their files change on disk, so
// breakpoint checks after an edit see the new text.
type Watcher struct {
	cache   *Cache
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	mu      sync.Mutex
	watched map[string]bool // directories

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewWatcher creates a watcher for cache. Call Track for each file of
// interest and Start to begin processing events.
func NewWatcher(cache *Cache, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &Watcher{
		cache:   cache,
		watcher: fsw,
		logger:  bugjarlog.WithComponent(logger, "source"),
		watched: make(map[string]bool),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Track watches the directory holding filename. Editors often replace files
// by rename, so directories are watched rather than the files themselves.
func (w *Watcher) Track(filename string) error {
	dir := filepath.Dir(Canonical(filename))

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watched[dir] {
		return nil
	}
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	w.watched[dir] = true
	return nil
}

// Start begins processing filesystem events.
func (w *Watcher) Start(ctx context.Context) {
	go w.eventLoop(ctx)
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() error {
	close(w.stopCh)
	<-w.doneCh
	return w.watcher.Close()
}

func (w *Watcher) eventLoop(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.cache.Invalidate(event.Name)
			w.logger.Debug("source changed", slog.String(bugjarlog.FileKey, event.Name), slog.String("op", event.Op.String()))
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("source watcher error", bugjarlog.Error(err))
		}
	}
}
