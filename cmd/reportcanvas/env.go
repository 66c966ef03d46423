/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"reportcanvas/internal/bundle"
	"reportcanvas/internal/canvas"
	"reportcanvas/internal/catalog"
	"reportcanvas/internal/config"
	"reportcanvas/internal/layout"
	applog "reportcanvas/internal/log"
	"reportcanvas/internal/project"
	"reportcanvas/internal/storage"
	"reportcanvas/internal/undo"
)

// workspace is an opened project with a canvas controller on top of it.
type workspace struct {
	cfg    config.AppConfig
	ph     *storage.ProjectHandle
	cat    catalog.Catalog
	loader *bundle.Loader
	sess   *project.Session
	canvas *canvas.Controller
	log    *slog.Logger
	unsub  func()

	// origin[i] is the stored index page i had when the snapshot history was
	// last keyed, or -1 for a page added since. base is the page count then.
	mu     sync.Mutex
	origin []int
	base   int
}

func abs(dir string) string {
	if p, err := filepath.Abs(dir); err == nil {
		return p
	}
	return dir
}

// loadConfig reads the user config and applies command line overrides.
func loadConfig(g *globalFlags) (config.AppConfig, string, error) {
	cfg, token, err := config.Load()
	if err != nil {
		return cfg, "", err
	}
	if g != nil {
		if g.catalogDir != "" {
			cfg.Catalog.Dir = g.catalogDir
		}
		if g.bundleURL != "" {
			cfg.Bundle.BaseURL = g.bundleURL
		}
	}
	return cfg, token, nil
}

func openCatalog(cfg config.AppConfig) (catalog.Catalog, error) {
	if strings.TrimSpace(cfg.Catalog.Dir) == "" {
		return catalog.NewMemoryCatalog(), nil
	}
	fc, err := catalog.OpenDir(cfg.Catalog.Dir)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	return fc, nil
}

// openWorkspace opens the project at dir and builds the editing session.
func openWorkspace(g *globalFlags, dir string) (*workspace, error) {
	cfg, token, err := loadConfig(g)
	if err != nil {
		return nil, err
	}
	root := abs(dir)
	lg := applog.WithComponent("cli").With(slog.String("root", root))
	ph, err := storage.Open(root)
	if err != nil {
		return nil, err
	}
	openProject = ph
	if ph.Recovered {
		lg.Warn("manifest unreadable, opened latest backup")
	}
	cat, err := openCatalog(cfg)
	if err != nil {
		return nil, err
	}
	loader := bundle.NewLoader(bundle.NewHTTPFetcher(cfg.Bundle.BaseURL, token, cfg.Bundle.Timeout()))
	sess := project.NewSession(ph.Project, cat, loader, nil)
	c := canvas.New(sess, canvas.Options{
		History: undo.New(undo.Config{MaxPerPage: cfg.Canvas.UndoDepth, MinInterval: 500 * time.Millisecond}),
	})
	w := &workspace{cfg: cfg, ph: ph, cat: cat, loader: loader, sess: sess, canvas: c, log: lg}
	w.rekeyed(sess.Pages.Len())
	w.unsub = sess.Pages.Subscribe(w.track)
	return w, nil
}

func (w *workspace) rekeyed(n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.origin = make([]int, n)
	for i := range w.origin {
		w.origin[i] = i
	}
	w.base = n
}

// track follows page insertions, removals and moves so snapshot history can
// be re-keyed to the pages' new positions on commit.
func (w *workspace) track(ev layout.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch ev.Kind {
	case layout.EventAdd:
		w.origin = append(w.origin, -1)
	case layout.EventInsert:
		w.origin = append(w.origin[:ev.Index], append([]int{-1}, w.origin[ev.Index:]...)...)
	case layout.EventRemove:
		w.origin = append(w.origin[:ev.Index], w.origin[ev.Index+1:]...)
	case layout.EventMove:
		o := w.origin[ev.Index]
		w.origin = append(w.origin[:ev.Index], w.origin[ev.Index+1:]...)
		w.origin = append(w.origin[:ev.Index2], append([]int{o}, w.origin[ev.Index2:]...)...)
	case layout.EventReplace:
		// a replaced document keeps the history of the positions it still has
		w.origin = make([]int, ev.Count)
		for i := range w.origin {
			w.origin[i] = i
		}
	}
}

// remap returns the old-to-new index mapping, or nil when history keys are current.
func (w *workspace) remap() map[int]int {
	w.mu.Lock()
	defer w.mu.Unlock()
	moved := make(map[int]int, len(w.origin))
	changed := false
	for i, o := range w.origin {
		if o < 0 {
			changed = true
			continue
		}
		moved[o] = i
		if o != i {
			changed = true
		}
	}
	if !changed && len(moved) == w.base {
		return nil
	}
	return moved
}

// page loads the one-based page number, defaulting to the first page.
func (w *workspace) page(ctx context.Context, number int) error {
	if number <= 0 {
		number = 1
	}
	if w.sess.Pages.Len() == 0 {
		return w.canvas.Open(ctx)
	}
	ok, err := w.canvas.GoToPage(ctx, number)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("page %d does not exist (report has %d pages)", number, w.sess.Pages.Len())
	}
	return nil
}

// commit saves the session back to the manifest, refreshes the project index
// and records a history snapshot of every listed page.
func (w *workspace) commit(ctx context.Context, pages ...int) error {
	w.ph.Project = w.sess.Project()
	if err := storage.Save(w.ph); err != nil {
		return err
	}
	if err := storage.UpdateIndex(ctx, w.ph.Root, w.ph.Project); err != nil {
		w.log.Warn("index update failed", slog.Any("err", err))
	}
	if moved := w.remap(); moved != nil {
		if err := storage.RemapSnapshots(ctx, w.ph, moved); err != nil {
			return fmt.Errorf("re-key page history: %w", err)
		}
		w.rekeyed(w.sess.Pages.Len())
	}
	for _, i := range pages {
		pg, err := w.sess.Pages.Page(i)
		if err != nil {
			continue
		}
		if err := storage.SavePageSnapshot(ctx, w.ph, i, pg); err != nil {
			w.log.Warn("page snapshot failed", slog.Int("page", i), slog.Any("err", err))
		}
	}
	return nil
}

func (w *workspace) close() {
	w.unsub()
	w.canvas.Close()
	w.loader.Close()
}
