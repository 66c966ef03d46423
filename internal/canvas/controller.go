/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package canvas implements the report canvas controller: placing widgets on
// the paginated grid, selection, property editing, page commands and undo.
//
// The controller owns no rendering. It mutates the session's layout store,
// keeps the cell registry in sync and publishes events; the UI layer supplies
// screen geometry and a busy cursor through small interfaces.
package canvas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"reportcanvas/internal/bundle"
	"reportcanvas/internal/domain"
	"reportcanvas/internal/layout"
	applog "reportcanvas/internal/log"
	"reportcanvas/internal/project"
	"reportcanvas/internal/render"
	"reportcanvas/internal/undo"
)

var (
	ErrReadOnly     = errors.New("report is read-only")
	ErrStalePage    = errors.New("page changed while the widget bundle was loading")
	ErrNoSelection  = errors.New("no widget selected")
	ErrNoPage       = errors.New("no page loaded")
	ErrUnknownKey   = errors.New("no widget with this key on the current page")
	ErrNoProperties = errors.New("widget declares no editable properties")
	ErrUnknownStyle = errors.New("unknown visual style property")
	ErrNoLoader     = errors.New("session has no bundle loader")
)

// State is the controller state for the current page.
type State int

const (
	StateEmpty State = iota
	StateLoaded
	StateEditing
	StateIdle
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoaded:
		return "loaded"
	case StateEditing:
		return "editing"
	case StateIdle:
		return "idle"
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}

// Selection is the selected widget and where it is shown.
type Selection struct {
	Key    string
	Bounds domain.Bounds
}

// Options configure a Controller. Zero values select defaults.
type Options struct {
	Grid     layout.Grid
	Cursor   Cursor
	Geometry Geometry
	Emitter  EventEmitter
	History  *undo.History
	Now      func() time.Time
}

// Controller drives one session's canvas. Methods are safe for concurrent
// use; bundle fetches are awaited without holding the controller lock.
// Events, cursor changes and cell sink notifications raised under the lock
// are queued and delivered after it is released, so handlers may call back
// into the controller.
type Controller struct {
	s      *project.Session
	grid   layout.Grid
	cursor Cursor
	geom   Geometry
	events EventEmitter
	hist   *undo.History
	now    func() time.Time
	log    *slog.Logger
	unsub  func()

	mu         sync.Mutex
	current    int
	gen        uint64
	state      State
	sel        *Selection
	editorOpen bool
	showGrid   bool
	lastKey    int64
	busy       int

	outMu    sync.Mutex
	outbox   []func()
	draining bool
}

// New creates a controller for s. Call Open to load the first page and
// Close to drop the store subscription.
func New(s *project.Session, opt Options) *Controller {
	c := &Controller{
		s:        s,
		grid:     opt.Grid,
		cursor:   opt.Cursor,
		geom:     opt.Geometry,
		events:   opt.Emitter,
		hist:     opt.History,
		now:      opt.Now,
		log:      applog.WithComponent("canvas"),
		current:  -1,
		showGrid: true,
	}
	if c.grid.Cols == 0 {
		c.grid = layout.DefaultGrid
	}
	if c.cursor == nil {
		c.cursor = nopCursor{}
	}
	if c.events == nil {
		c.events = NopEmitter{}
	}
	if c.hist == nil {
		c.hist = undo.New(undo.Config{MaxPerPage: 50, MinInterval: 500 * time.Millisecond})
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.unsub = s.Pages.Subscribe(func(ev layout.Event) {
		if ev.Kind == layout.EventUpdate {
			return
		}
		c.emitLocked(context.Background(), EventPagesChanged, ev)
		// Store mutations from outside the controller deliver right away;
		// otherwise the lock holder delivers on unlock.
		if c.mu.TryLock() {
			c.mu.Unlock()
			c.deliver()
		}
	})
	return c
}

func (c *Controller) lock() {
	c.mu.Lock()
	c.s.Cells.Hold()
}

func (c *Controller) unlock() {
	c.mu.Unlock()
	c.s.Cells.Release()
	c.deliver()
}

// later queues fn for delivery after the controller lock is released.
func (c *Controller) later(fn func()) {
	c.outMu.Lock()
	c.outbox = append(c.outbox, fn)
	c.outMu.Unlock()
}

func (c *Controller) emitLocked(ctx context.Context, event string, data any) {
	c.later(func() { c.events.Emit(ctx, event, data) })
}

// deliver runs queued callbacks in order. Only one goroutine drains at a
// time; callers arriving meanwhile leave their entries to it.
func (c *Controller) deliver() {
	c.outMu.Lock()
	if c.draining {
		c.outMu.Unlock()
		return
	}
	c.draining = true
	for len(c.outbox) > 0 {
		q := c.outbox
		c.outbox = nil
		c.outMu.Unlock()
		for _, fn := range q {
			fn()
		}
		c.outMu.Lock()
	}
	c.draining = false
	c.outMu.Unlock()
}

// Close releases the store subscription.
func (c *Controller) Close() { c.unsub() }

// Session returns the edited session.
func (c *Controller) Session() *project.Session { return c.s }

// Current returns the zero-based index of the loaded page, or -1.
func (c *Controller) Current() int {
	c.lock()
	defer c.unlock()
	return c.current
}

// State returns the state of the current page.
func (c *Controller) State() State {
	c.lock()
	defer c.unlock()
	return c.state
}

// Selected returns the current selection.
func (c *Controller) Selected() (Selection, bool) {
	c.lock()
	defer c.unlock()
	if c.sel == nil {
		return Selection{}, false
	}
	return *c.sel, true
}

// EditorOpen reports whether the property editor is shown.
func (c *Controller) EditorOpen() bool {
	c.lock()
	defer c.unlock()
	return c.editorOpen
}

// ToggleGrid flips grid line visibility and returns the new value.
func (c *Controller) ToggleGrid() bool {
	c.lock()
	defer c.unlock()
	c.showGrid = !c.showGrid
	return c.showGrid
}

// GridVisible reports whether grid lines are shown.
func (c *Controller) GridVisible() bool {
	c.lock()
	defer c.unlock()
	return c.showGrid
}

// Open loads page 0, creating it first when the report has no pages.
func (c *Controller) Open(ctx context.Context) error {
	c.lock()
	if c.s.Pages.Len() == 0 {
		c.s.Pages.Add(domain.Page{})
	}
	plan, err := c.beginLoadLocked(0)
	c.unlock()
	if err != nil {
		return err
	}
	return c.finishLoad(ctx, plan)
}

// LoadPage makes page n (zero-based) current and renders its cells.
func (c *Controller) LoadPage(ctx context.Context, n int) error {
	c.lock()
	plan, err := c.beginLoadLocked(n)
	c.unlock()
	if err != nil {
		return err
	}
	return c.finishLoad(ctx, plan)
}

// loadPlan carries a page load across the unlocked bundle wait.
type loadPlan struct {
	page  int
	gen   uint64
	items []pendingCell
}

type pendingCell struct {
	item   domain.ReportWidgetItem
	def    domain.WidgetDefinition
	layout domain.LayoutItem
}

// beginLoadLocked switches to page n, clears selection and cells and renders
// placeholders for entries that cannot be resolved.
func (c *Controller) beginLoadLocked(n int) (loadPlan, error) {
	pg, err := c.s.Pages.Page(n)
	if err != nil {
		return loadPlan{}, err
	}
	c.current = n
	c.gen++
	c.sel = nil
	c.editorOpen = false
	c.s.Cells.Clear()

	plan := loadPlan{page: n, gen: c.gen}
	readonly := c.s.Readonly()
	for _, it := range pg.Layouts {
		if readonly {
			it.Static = true
		}
		wi := pg.FindWidget(it.Key)
		if wi < 0 {
			c.log.Warn("layout entry without widget item", slog.String("key", it.Key), slog.Int("page", n))
			c.s.Cells.Set(render.InvalidWidget(it.Key, it))
			continue
		}
		item := pg.ReportWidgets[wi]
		def, ok := c.s.Widget(item.WidgetGID)
		if !ok {
			c.log.Warn("unknown widget gid", slog.String("key", it.Key), slog.String("gid", item.WidgetGID))
			c.s.Cells.Set(render.InvalidWidget(it.Key, it))
			continue
		}
		plan.items = append(plan.items, pendingCell{item: item, def: def, layout: it})
	}
	if len(pg.Layouts) == 0 {
		c.state = StateEmpty
	} else {
		c.state = StateLoaded
	}
	return plan, nil
}

// finishLoad resolves the bundles of plan and renders the cells, unless a
// newer page load started meanwhile. Failed bundles are logged and their
// cells stay unrendered.
func (c *Controller) finishLoad(ctx context.Context, plan loadPlan) error {
	bundles := map[string]bundle.Bundle{}
	if len(plan.items) > 0 && c.s.Loader != nil {
		gids := make([]string, 0, len(plan.items))
		missing := false
		for _, p := range plan.items {
			gids = append(gids, p.def.GID)
			if _, ok := c.s.Loader.Cached(p.def.GID); !ok {
				missing = true
			}
		}
		if missing {
			c.setBusy(true)
		}
		var err error
		bundles, err = c.s.Loader.Preload(ctx, gids)
		if missing {
			c.setBusy(false)
		}
		if err != nil {
			c.log.Error("bundle preload incomplete", slog.Int("page", plan.page), slog.Any("err", err))
		}
	}

	c.lock()
	defer c.unlock()
	if c.gen != plan.gen {
		return nil
	}
	props := c.s.Properties()
	editing := !c.s.Readonly()
	for _, p := range plan.items {
		b, ok := bundles[p.def.GID]
		if !ok {
			continue
		}
		c.s.Cells.Set(render.Wrap(p.item, p.def, b, p.layout, props, editing))
	}
	c.emitLocked(ctx, EventPageLoaded, plan.page)
	return nil
}

func (c *Controller) setBusy(on bool) {
	c.lock()
	defer c.unlock()
	if on {
		c.busy++
		if c.busy == 1 {
			c.later(c.cursor.Wait)
		}
		return
	}
	if c.busy > 0 {
		c.busy--
		if c.busy == 0 {
			c.later(c.cursor.Default)
		}
	}
}

// Drop places a new instance of def at the dropped grid position. The bundle
// is requested before the controller lock is released, so concurrent drops of
// one widget type share a single fetch. Nothing is stored when the fetch
// fails or when another page was loaded while waiting.
func (c *Controller) Drop(ctx context.Context, def domain.WidgetDefinition, at domain.Rect) (domain.ReportWidgetItem, error) {
	lg := applog.WithOperation(c.log, "drop").With(slog.String("gid", def.GID))

	c.lock()
	if c.s.Readonly() {
		c.unlock()
		return domain.ReportWidgetItem{}, ErrReadOnly
	}
	if c.current < 0 {
		c.unlock()
		return domain.ReportWidgetItem{}, ErrNoPage
	}
	if c.s.Loader == nil {
		c.unlock()
		return domain.ReportWidgetItem{}, ErrNoLoader
	}
	page, gen := c.current, c.gen
	candidate := c.grid.Place("", at, def.Size)
	pg, err := c.s.Pages.Page(page)
	if err != nil {
		c.unlock()
		return domain.ReportWidgetItem{}, err
	}
	if err := layout.CheckPlacement(pg, candidate); err != nil {
		c.unlock()
		return domain.ReportWidgetItem{}, err
	}
	pending := c.s.Loader.Request(def.GID)
	waiting := false
	select {
	case <-pending.Done():
	default:
		waiting = true
	}
	c.unlock()

	if waiting {
		c.setBusy(true)
	}
	b, err := pending.Wait(ctx)
	if waiting {
		c.setBusy(false)
	}
	if err != nil {
		lg.Error("drop aborted, bundle unavailable", slog.Any("err", err))
		return domain.ReportWidgetItem{}, err
	}

	c.lock()
	defer c.unlock()
	if c.s.Readonly() {
		lg.Warn("drop discarded, report became read-only", slog.Int("page", page))
		return domain.ReportWidgetItem{}, ErrReadOnly
	}
	if c.gen != gen || c.current != page {
		lg.Warn("drop discarded, page changed while loading", slog.Int("page", page))
		return domain.ReportWidgetItem{}, ErrStalePage
	}
	pg, err = c.s.Pages.Page(page)
	if err != nil {
		return domain.ReportWidgetItem{}, err
	}
	candidate.Key = c.nextKeyLocked(pg)
	if err := layout.CheckPlacement(pg, candidate); err != nil {
		return domain.ReportWidgetItem{}, err
	}

	item := domain.ReportWidgetItem{
		Key:                  candidate.Key,
		WidgetGID:            def.GID,
		Properties:           map[string]string{},
		LayoutItemProperties: domain.DefaultLayoutItemProperties,
	}
	for _, p := range def.Properties {
		item.Properties[p.Key] = p.Default
	}
	err = c.s.Pages.Update(page, layout.PageUpdate{
		Layouts:       append(pg.Layouts, candidate),
		ReportWidgets: append(pg.ReportWidgets, item),
	})
	if err != nil {
		return domain.ReportWidgetItem{}, err
	}
	c.recordLocked(page, pg)
	c.s.AddReportWidget(item, def)
	c.s.Cells.Set(render.Wrap(item, def, b, candidate, c.s.Properties(), true))
	c.selectLocked(candidate)
	lg.Info("widget placed", slog.String("key", item.Key), slog.Int("page", page))
	c.emitLocked(ctx, EventWidgetAdded, item)
	return item, nil
}

// nextKeyLocked returns a millisecond timestamp key, bumped past the last
// issued key and any key already used on pg.
func (c *Controller) nextKeyLocked(pg domain.Page) string {
	k := c.now().UnixMilli()
	if k <= c.lastKey {
		k = c.lastKey + 1
	}
	for {
		s := strconv.FormatInt(k, 10)
		if pg.FindLayout(s) < 0 && pg.FindWidget(s) < 0 {
			c.lastKey = k
			return s
		}
		k++
	}
}

// recordLocked stores the page state from before an edit for undo. Call it
// only once the edit has been applied.
func (c *Controller) recordLocked(page int, before domain.Page) {
	blob, err := json.Marshal(before)
	if err != nil {
		c.log.Error("undo snapshot failed", slog.Any("err", err))
		return
	}
	c.hist.Record(page, blob)
}

func (c *Controller) currentPageLocked() (domain.Page, error) {
	if c.current < 0 {
		return domain.Page{}, ErrNoPage
	}
	return c.s.Pages.Page(c.current)
}

func (c *Controller) boundsLocked(it domain.LayoutItem) domain.Bounds {
	if c.geom != nil {
		if b, ok := c.geom.Bounds(it.Key); ok {
			return b
		}
	}
	return c.grid.ToBounds(it.Rect())
}

func (c *Controller) selectLocked(it domain.LayoutItem) {
	c.sel = &Selection{Key: it.Key, Bounds: c.boundsLocked(it)}
	c.state = StateEditing
	c.emitLocked(context.Background(), EventWidgetSelected, *c.sel)
}

func (c *Controller) clearSelectionLocked() {
	had := c.sel != nil
	c.sel = nil
	c.editorOpen = false
	if had {
		c.state = StateIdle
		c.emitLocked(context.Background(), EventSelectionClear, nil)
	}
}

func (c *Controller) findSelectedLocked() (domain.Page, int, int, error) {
	if c.sel == nil {
		return domain.Page{}, -1, -1, ErrNoSelection
	}
	pg, err := c.currentPageLocked()
	if err != nil {
		return pg, -1, -1, err
	}
	li, wi := pg.FindLayout(c.sel.Key), pg.FindWidget(c.sel.Key)
	if li < 0 && wi < 0 {
		return pg, -1, -1, fmt.Errorf("selected %s: %w", c.sel.Key, ErrUnknownKey)
	}
	return pg, li, wi, nil
}
