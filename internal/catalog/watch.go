/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package catalog

import (
	"context"
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher keeps a FileCatalog in sync with its directory.
type Watcher struct {
	fc       *FileCatalog
	w        *fsnotify.Watcher
	onChange func(gid string)
	stopCh   chan struct{}
	doneCh   chan struct{}
	once     sync.Once
}

// Watch starts watching the catalog directory. The directory is registered
// before Watch returns. onChange, if set, receives the GID of every
// definition that was added, changed or removed.
func (fc *FileCatalog) Watch(ctx context.Context, onChange func(gid string)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(fc.dir); err != nil {
		_ = w.Close()
		return nil, err
	}
	cw := &Watcher{
		fc:       fc,
		w:        w,
		onChange: onChange,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go cw.run(ctx)
	return cw, nil
}

// Close stops the watcher and waits for its goroutine.
func (cw *Watcher) Close() error {
	var err error
	cw.once.Do(func() {
		close(cw.stopCh)
		<-cw.doneCh
		err = cw.w.Close()
	})
	return err
}

func (cw *Watcher) run(ctx context.Context) {
	defer close(cw.doneCh)
	lg := cw.fc.log.With(slog.String("op", "watch"))
	for {
		select {
		case <-ctx.Done():
			return
		case <-cw.stopCh:
			return
		case ev, ok := <-cw.w.Events:
			if !ok {
				return
			}
			if !IsDescriptor(ev.Name) || ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			gid, err := cw.fc.reloadFile(ev.Name)
			if err != nil {
				lg.Warn("descriptor reload failed", slog.String("path", ev.Name), slog.Any("err", err))
				continue
			}
			if gid != "" && cw.onChange != nil {
				cw.onChange(gid)
			}
		case err, ok := <-cw.w.Errors:
			if !ok {
				return
			}
			lg.Error("watcher error", slog.Any("err", err))
		}
	}
}
