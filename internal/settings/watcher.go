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

package settings

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher invalidates the service cache when the settings file changes on
// disk, so edits made by another process (or a manual restore) become
// visible without a restart. It watches the parent directory because the
// atomic save replaces the file by rename, which drops a watch placed on
// the file itself.
type Watcher struct {
	svc    *Service
	logger *slog.Logger
	fw     *fsnotify.Watcher
}

// NewWatcher creates a watcher for the service's settings file.
func NewWatcher(svc *Service, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	if err := fw.Add(filepath.Dir(svc.store.Path())); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch settings directory: %w", err)
	}

	return &Watcher{svc: svc, logger: logger, fw: fw}, nil
}

// Run processes events until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fw.Close()

	target := w.svc.store.Path()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			if event.Name != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}

			w.svc.InvalidateCache()
			cacheInvalidations.Inc()
			w.logger.Debug("settings file changed, cache invalidated", "op", event.Op.String())

		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("settings watcher error", "error", err)
		}
	}
}
