// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 Keyplane Authors

package vault

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/keyplane-btc/keyplane/internal/util"
)

// Watch starts a file system watcher on the store directory and invokes
// onChange after record or PIN files are created, modified, or deleted.
// Rapid bursts of events (an import rewriting many records) collapse into a
// single callback via a debounce timer. The watcher runs until ctx is done.
func (s *Store) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	if err := watcher.Add(s.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch store directory: %w", err)
	}

	go func() {
		defer func() { _ = watcher.Close() }()

		// Debounce timer to avoid a callback per file during bulk rewrites
		var debounceTimer *time.Timer
		const debounceDelay = 500 * time.Millisecond

		for {
			select {
			case <-ctx.Done():
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}

				// Only record files and the PIN credential matter;
				// ignore temp files from in-flight atomic writes.
				name := filepath.Base(event.Name)
				if !strings.HasSuffix(name, recordExt) && name != pinFile {
					continue
				}

				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
					if debounceTimer != nil {
						debounceTimer.Stop()
					}
					debounceTimer = time.AfterFunc(debounceDelay, onChange)
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				util.Logger.Warn("store watcher error", "error", err)
			}
		}
	}()

	return nil
}
