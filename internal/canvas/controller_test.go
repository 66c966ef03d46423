/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package canvas

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"reportcanvas/internal/bundle"
	"reportcanvas/internal/catalog"
	"reportcanvas/internal/domain"
	"reportcanvas/internal/project"
	"reportcanvas/internal/render"
	"reportcanvas/internal/undo"
)

var (
	headerDef = domain.WidgetDefinition{
		GID:  "aiverify.stock:header",
		Name: "Header",
		Size: domain.WidgetSize{MinW: 4, MinH: 3, MaxW: 12, MaxH: 6},
		Properties: []domain.WidgetProperty{
			{Key: "title", Default: "Report"},
			{Key: "by", Default: ""},
		},
		Dependencies: []domain.WidgetDependency{{GID: "aiverify.algo:fairness", Version: "1.0"}},
	}
	dividerDef = domain.WidgetDefinition{
		GID:  "aiverify.stock:divider",
		Name: "Divider",
		Size: domain.WidgetSize{MinW: 12, MinH: 1, MaxW: 12, MaxH: 1},
	}
)

type countingCursor struct {
	mu            sync.Mutex
	waits, resets int
}

func (c *countingCursor) Wait() {
	c.mu.Lock()
	c.waits++
	c.mu.Unlock()
}

func (c *countingCursor) Default() {
	c.mu.Lock()
	c.resets++
	c.mu.Unlock()
}

func (c *countingCursor) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waits, c.resets
}

func okFetcher() bundle.Fetcher {
	return bundle.FetcherFunc(func(ctx context.Context, gid string) (bundle.Bundle, error) {
		return bundle.Bundle{Code: "code:" + gid}, nil
	})
}

// gate holds every fetch until released and counts the fetches per GID.
type gate struct {
	release chan struct{}
	mu      sync.Mutex
	calls   map[string]int
}

func newGate() *gate { return &gate{release: make(chan struct{}), calls: map[string]int{}} }

func (g *gate) GetBundle(ctx context.Context, gid string) (bundle.Bundle, error) {
	g.mu.Lock()
	g.calls[gid]++
	g.mu.Unlock()
	select {
	case <-g.release:
		return bundle.Bundle{Code: "code:" + gid}, nil
	case <-ctx.Done():
		return bundle.Bundle{}, ctx.Err()
	}
}

func (g *gate) count(gid string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[gid]
}

type fixture struct {
	c      *Controller
	s      *project.Session
	loader *bundle.Loader
	events *RecordingEmitter
	cursor *countingCursor
}

func newFixture(t *testing.T, p domain.Project, f bundle.Fetcher, opt Options) *fixture {
	t.Helper()
	l := bundle.NewLoader(f)
	s := project.NewSession(p, catalog.NewMemoryCatalog(headerDef, dividerDef), l, nil)
	fx := &fixture{s: s, loader: l, events: &RecordingEmitter{}, cursor: &countingCursor{}}
	opt.Emitter = fx.events
	opt.Cursor = fx.cursor
	if opt.History == nil {
		opt.History = undo.New(undo.Config{})
	}
	if opt.Now == nil {
		opt.Now = func() time.Time { return time.UnixMilli(1000) }
	}
	fx.c = New(s, opt)
	t.Cleanup(func() {
		fx.c.Close()
		l.Close()
	})
	return fx
}

func (fx *fixture) page(t *testing.T, i int) domain.Page {
	t.Helper()
	pg, err := fx.s.Pages.Page(i)
	if err != nil {
		t.Fatalf("page %d: %v", i, err)
	}
	return pg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func (c *Controller) busyCount() int {
	c.lock()
	defer c.unlock()
	return c.busy
}

func placedProject() domain.Project {
	return domain.Project{
		Name:       "Placed",
		GlobalVars: []domain.GlobalVariable{{Key: "author", Value: "Alice"}},
		Pages: []domain.Page{{
			Layouts: []domain.LayoutItem{
				{Key: "h1", X: 0, Y: 0, W: 6, H: 3, MinW: 4, MinH: 3, MaxW: 12, MaxH: 6},
				{Key: "d1", X: 0, Y: 3, W: 12, H: 1},
			},
			ReportWidgets: []domain.ReportWidgetItem{
				{Key: "h1", WidgetGID: headerDef.GID, Properties: map[string]string{"title": "Summary", "by": "author"}, LayoutItemProperties: domain.DefaultLayoutItemProperties},
				{Key: "d1", WidgetGID: dividerDef.GID, LayoutItemProperties: domain.DefaultLayoutItemProperties},
			},
		}},
	}
}

func TestOpenCreatesFirstPage(t *testing.T) {
	fx := newFixture(t, domain.Project{Name: "Empty"}, okFetcher(), Options{})
	if err := fx.c.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if fx.s.Pages.Len() != 1 || fx.c.Current() != 0 {
		t.Fatalf("expected one page loaded, got len=%d current=%d", fx.s.Pages.Len(), fx.c.Current())
	}
	if fx.c.State() != StateEmpty {
		t.Fatalf("state = %v, want empty", fx.c.State())
	}
	if len(fx.events.Named(EventPageLoaded)) != 1 {
		t.Fatalf("expected a page-loaded event")
	}
}

func TestRapidDropsShareOneFetch(t *testing.T) {
	defer goleak.VerifyNone(t)
	g := newGate()
	fx := newFixture(t, domain.Project{Name: "Rapid"}, g, Options{})
	defer fx.loader.Close()
	ctx := context.Background()
	if err := fx.c.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, at := range []domain.Rect{{X: 0, Y: 0}, {X: 6, Y: 0}} {
		i, at := i, at
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = fx.c.Drop(ctx, headerDef, at)
		}()
	}
	waitFor(t, "both drops to await the bundle", func() bool { return fx.c.busyCount() == 2 })
	close(g.release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("drop %d: %v", i, err)
		}
	}
	if n := g.count(headerDef.GID); n != 1 {
		t.Fatalf("expected one fetch for both drops, got %d", n)
	}
	pg := fx.page(t, 0)
	if len(pg.Layouts) != 2 || len(pg.ReportWidgets) != 2 {
		t.Fatalf("expected two placed widgets, got %d layouts %d widgets", len(pg.Layouts), len(pg.ReportWidgets))
	}
	keys := map[string]bool{pg.Layouts[0].Key: true, pg.Layouts[1].Key: true}
	if !keys["1000"] || !keys["1001"] {
		t.Fatalf("expected bumped timestamp keys, got %v", keys)
	}
	for _, w := range pg.ReportWidgets {
		if pg.FindLayout(w.Key) < 0 {
			t.Fatalf("widget %s has no layout entry", w.Key)
		}
	}
	if waits, resets := fx.cursor.counts(); waits != 1 || resets != 1 {
		t.Fatalf("cursor waits=%d resets=%d, want 1/1", waits, resets)
	}
	if fx.s.Cells.Len() != 2 {
		t.Fatalf("expected two rendered cells, got %d", fx.s.Cells.Len())
	}
}

func TestDropPlacesDefaults(t *testing.T) {
	fx := newFixture(t, domain.Project{Name: "D"}, okFetcher(), Options{})
	ctx := context.Background()
	if err := fx.c.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	item, err := fx.c.Drop(ctx, headerDef, domain.Rect{X: 2, Y: 1})
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	want := domain.ReportWidgetItem{
		Key:                  "1000",
		WidgetGID:            headerDef.GID,
		Properties:           map[string]string{"title": "Report", "by": ""},
		LayoutItemProperties: domain.LayoutItemProperties{JustifyContent: "left", AlignItems: "top"},
	}
	if diff := cmp.Diff(want, item); diff != "" {
		t.Fatalf("item (-want +got):\n%s", diff)
	}
	pg := fx.page(t, 0)
	li := pg.Layouts[pg.FindLayout("1000")]
	if li.X != 2 || li.Y != 1 || li.W != 4 || li.H != 3 || li.MaxW != 12 {
		t.Fatalf("unexpected layout entry %+v", li)
	}
	sel, ok := fx.c.Selected()
	if !ok || sel.Key != "1000" || fx.c.State() != StateEditing {
		t.Fatalf("new widget must be selected, got %+v ok=%v state=%v", sel, ok, fx.c.State())
	}
	if n := fx.s.Dependencies().Count("aiverify.algo:fairness"); n != 1 {
		t.Fatalf("dependency count = %d, want 1", n)
	}
	if _, err := fx.c.Drop(ctx, headerDef, domain.Rect{X: 3, Y: 2}); err == nil {
		t.Fatalf("expected collision error for overlapping drop")
	}
}

func TestDropFailureStoresNothing(t *testing.T) {
	release := make(chan struct{})
	fail := bundle.FetcherFunc(func(ctx context.Context, gid string) (bundle.Bundle, error) {
		<-release
		return bundle.Bundle{}, errors.New("compile failed")
	})
	fx := newFixture(t, domain.Project{Name: "F"}, fail, Options{})
	ctx := context.Background()
	if err := fx.c.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		_, err := fx.c.Drop(ctx, headerDef, domain.Rect{})
		done <- err
	}()
	waitFor(t, "drop to await the bundle", func() bool { return fx.c.busyCount() == 1 })
	close(release)
	err := <-done
	var le *bundle.LoadError
	if !errors.As(err, &le) || le.GID != headerDef.GID {
		t.Fatalf("expected LoadError, got %v", err)
	}
	pg := fx.page(t, 0)
	if len(pg.Layouts) != 0 || len(pg.ReportWidgets) != 0 {
		t.Fatalf("failed drop must not store anything: %+v", pg)
	}
	if waits, resets := fx.cursor.counts(); waits != 1 || resets != 1 {
		t.Fatalf("cursor waits=%d resets=%d, want 1/1", waits, resets)
	}
	if fx.s.Dependencies().Count("aiverify.algo:fairness") != 0 {
		t.Fatalf("failed drop must not register dependencies")
	}
}

func TestDropDiscardedWhenPageChanges(t *testing.T) {
	g := newGate()
	fx := newFixture(t, domain.Project{Name: "Stale", Pages: []domain.Page{{}, {}}}, g, Options{})
	ctx := context.Background()
	if err := fx.c.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		_, err := fx.c.Drop(ctx, headerDef, domain.Rect{})
		done <- err
	}()
	waitFor(t, "drop to await the bundle", func() bool { return fx.c.busyCount() == 1 })
	if err := fx.c.LoadPage(ctx, 1); err != nil {
		t.Fatalf("load page: %v", err)
	}
	close(g.release)
	if err := <-done; !errors.Is(err, ErrStalePage) {
		t.Fatalf("expected ErrStalePage, got %v", err)
	}
	for i := 0; i < 2; i++ {
		if pg := fx.page(t, i); len(pg.Layouts) != 0 {
			t.Fatalf("page %d received the stale widget", i)
		}
	}
}

func TestLoadRendersInvalidWidgets(t *testing.T) {
	p := placedProject()
	p.Pages[0].Layouts = append(p.Pages[0].Layouts,
		domain.LayoutItem{Key: "orphan", X: 0, Y: 5, W: 2, H: 2},
		domain.LayoutItem{Key: "ghost", X: 2, Y: 5, W: 2, H: 2},
	)
	p.Pages[0].ReportWidgets = append(p.Pages[0].ReportWidgets,
		domain.ReportWidgetItem{Key: "ghost", WidgetGID: "aiverify.stock:removed"})
	fx := newFixture(t, p, okFetcher(), Options{})
	if err := fx.c.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, key := range []string{"orphan", "ghost"} {
		cell, ok := fx.s.Cells.Get(key)
		if !ok || !cell.Invalid {
			t.Fatalf("expected invalid placeholder for %s, got %+v ok=%v", key, cell, ok)
		}
	}
	h, ok := fx.s.Cells.Get("h1")
	if !ok || h.Invalid || h.Bundle.Code != "code:"+headerDef.GID {
		t.Fatalf("expected rendered header cell, got %+v", h)
	}
	if h.Context.Properties["by"] != "Alice" || h.Context.Properties["title"] != "Summary" {
		t.Fatalf("unexpected resolved properties %v", h.Context.Properties)
	}
	if fx.c.State() != StateLoaded {
		t.Fatalf("state = %v, want loaded", fx.c.State())
	}
}

func TestGlobalChangeRefreshesBoundWidgetOnly(t *testing.T) {
	p := placedProject()
	p.Pages[0].ReportWidgets[1].WidgetGID = headerDef.GID
	p.Pages[0].ReportWidgets[1].Properties = map[string]string{"title": "fixed text"}
	fx := newFixture(t, p, okFetcher(), Options{})
	if err := fx.c.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	fx.c.SetGlobals([]domain.GlobalVariable{{Key: "author", Value: "Bob"}})

	h, _ := fx.s.Cells.Get("h1")
	if h.Context.Properties["by"] != "Bob" {
		t.Fatalf("bound property not refreshed: %v", h.Context.Properties)
	}
	if h.Revision != 2 {
		t.Fatalf("bound widget revision = %d, want 2", h.Revision)
	}
	d, _ := fx.s.Cells.Get("d1")
	if d.Revision != 1 {
		t.Fatalf("unbound widget re-rendered, revision %d", d.Revision)
	}
	if pg := fx.page(t, 0); pg.ReportWidgets[0].Properties["by"] != "author" {
		t.Fatalf("stored binding must stay unresolved, got %q", pg.ReportWidgets[0].Properties["by"])
	}

	fx.c.SetProjectInfo(domain.ProjectInfo{Name: "P", Company: "ACME"})
	if h, _ := fx.s.Cells.Get("h1"); h.Revision != 2 {
		t.Fatalf("info change without affected bindings re-rendered the header")
	}
}

func TestReadOnlyForcesStaticAndRefusesEdits(t *testing.T) {
	p := placedProject()
	p.Readonly = true
	fx := newFixture(t, p, okFetcher(), Options{})
	ctx := context.Background()
	if err := fx.c.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, key := range []string{"h1", "d1"} {
		cell, ok := fx.s.Cells.Get(key)
		if !ok || !cell.Layout.Static {
			t.Fatalf("cell %s not static in read-only mode", key)
		}
		if cell.Styles["cursor"] == "move" {
			t.Fatalf("read-only cell %s shows move cursor", key)
		}
	}
	if _, err := fx.c.Drop(ctx, dividerDef, domain.Rect{Y: 10}); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("drop: %v", err)
	}
	if err := fx.c.DeletePage(ctx); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("delete page: %v", err)
	}
	if err := fx.c.MovePage(ctx, 0); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("move page: %v", err)
	}
	if _, err := fx.c.Select("h1"); err != nil {
		t.Fatalf("selection is allowed in read-only mode: %v", err)
	}
	if err := fx.c.OpenEditor(); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("open editor: %v", err)
	}
	if err := fx.c.SetProperty("title", "x"); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("set property: %v", err)
	}
	if err := fx.c.DeleteSelected(); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("delete widget: %v", err)
	}
	before := fx.page(t, 0)
	out, err := fx.c.ApplyLayout([]domain.LayoutItem{{Key: "h1", X: 6, Y: 0, W: 6, H: 3}}, "h1")
	if !errors.Is(err, ErrReadOnly) {
		t.Fatalf("apply layout: %v", err)
	}
	if len(out) != 1 || !out[0].Static {
		t.Fatalf("read-only layout must come back static: %+v", out)
	}
	if diff := cmp.Diff(before, fx.page(t, 0)); diff != "" {
		t.Fatalf("read-only layout change was stored:\n%s", diff)
	}
}

func TestDeletePageLoadsFloor(t *testing.T) {
	tag := func(key string) domain.Page {
		return domain.Page{Layouts: []domain.LayoutItem{{Key: key, W: 1, H: 1}}}
	}
	cases := []struct {
		name      string
		pages     int
		current   int
		wantLen   int
		wantIndex int
		wantKey   string
	}{
		{name: "only page", pages: 1, current: 0, wantLen: 1, wantIndex: 0, wantKey: ""},
		{name: "last page", pages: 3, current: 2, wantLen: 2, wantIndex: 1, wantKey: "p1"},
		{name: "middle page", pages: 3, current: 1, wantLen: 2, wantIndex: 1, wantKey: "p2"},
		{name: "first page", pages: 3, current: 0, wantLen: 2, wantIndex: 0, wantKey: "p1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := domain.Project{Name: tc.name}
			for i := 0; i < tc.pages; i++ {
				p.Pages = append(p.Pages, tag("p"+string(rune('0'+i))))
			}
			fx := newFixture(t, p, okFetcher(), Options{})
			ctx := context.Background()
			if err := fx.c.LoadPage(ctx, tc.current); err != nil {
				t.Fatalf("load: %v", err)
			}
			if err := fx.c.DeletePage(ctx); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if fx.s.Pages.Len() != tc.wantLen || fx.c.Current() != tc.wantIndex {
				t.Fatalf("len=%d current=%d, want %d/%d", fx.s.Pages.Len(), fx.c.Current(), tc.wantLen, tc.wantIndex)
			}
			pg := fx.page(t, fx.c.Current())
			got := ""
			if len(pg.Layouts) > 0 {
				got = pg.Layouts[0].Key
			}
			if got != tc.wantKey {
				t.Fatalf("loaded page %q, want %q", got, tc.wantKey)
			}
		})
	}
}

func TestDeletePageReleasesDependencies(t *testing.T) {
	p := placedProject()
	p.Pages = append(p.Pages, domain.Page{})
	fx := newFixture(t, p, okFetcher(), Options{})
	ctx := context.Background()
	if err := fx.c.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	if fx.s.Dependencies().Count("aiverify.algo:fairness") != 1 {
		t.Fatalf("expected the header dependency to be registered")
	}
	if err := fx.c.DeletePage(ctx); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n := fx.s.Dependencies().Count("aiverify.algo:fairness"); n != 0 {
		t.Fatalf("dependency count after page delete = %d", n)
	}
}

func TestMovePageDialogSemantics(t *testing.T) {
	order := func(fx *fixture) []string {
		var out []string
		for _, pg := range fx.s.Pages.Pages() {
			out = append(out, pg.Layouts[0].Key)
		}
		return out
	}
	cases := []struct {
		name      string
		current   int
		target    int
		want      []string
		wantIndex int
	}{
		{name: "same index", current: 2, target: 2, want: []string{"a", "b", "c", "d"}, wantIndex: 2},
		{name: "backwards", current: 3, target: 0, want: []string{"a", "d", "b", "c"}, wantIndex: 1},
		{name: "forwards", current: 0, target: 2, want: []string{"b", "c", "a", "d"}, wantIndex: 2},
		{name: "negative", current: 2, target: -1, want: []string{"a", "c", "b", "d"}, wantIndex: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := domain.Project{Name: "M"}
			for _, k := range []string{"a", "b", "c", "d"} {
				p.Pages = append(p.Pages, domain.Page{Layouts: []domain.LayoutItem{{Key: k, W: 1, H: 1}}})
			}
			fx := newFixture(t, p, okFetcher(), Options{})
			ctx := context.Background()
			if err := fx.c.LoadPage(ctx, tc.current); err != nil {
				t.Fatalf("load: %v", err)
			}
			if err := fx.c.MovePage(ctx, tc.target); err != nil {
				t.Fatalf("move: %v", err)
			}
			if diff := cmp.Diff(tc.want, order(fx)); diff != "" {
				t.Fatalf("order (-want +got):\n%s", diff)
			}
			if fx.c.Current() != tc.wantIndex {
				t.Fatalf("current = %d, want %d", fx.c.Current(), tc.wantIndex)
			}
		})
	}
}

func TestAddAndGoToPage(t *testing.T) {
	fx := newFixture(t, domain.Project{Name: "A", Pages: []domain.Page{{}}}, okFetcher(), Options{})
	ctx := context.Background()
	if err := fx.c.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	idx, err := fx.c.AddPage(ctx, -1)
	if err != nil || idx != 1 || fx.c.Current() != 1 {
		t.Fatalf("append: idx=%d current=%d err=%v", idx, fx.c.Current(), err)
	}
	idx, err = fx.c.AddPage(ctx, 0)
	if err != nil || idx != 0 || fx.s.Pages.Len() != 3 {
		t.Fatalf("insert: idx=%d len=%d err=%v", idx, fx.s.Pages.Len(), err)
	}
	if ok, _ := fx.c.GoToPage(ctx, 4); ok {
		t.Fatalf("page 4 of 3 must be ignored")
	}
	if ok, _ := fx.c.GoToPage(ctx, 0); ok {
		t.Fatalf("page 0 must be ignored")
	}
	if ok, err := fx.c.GoToPage(ctx, 3); !ok || err != nil || fx.c.Current() != 2 {
		t.Fatalf("go to page 3: ok=%v err=%v current=%d", ok, err, fx.c.Current())
	}
}

func TestSelectionAndDialogPosition(t *testing.T) {
	geom := GeometryFunc(func(key string) (domain.Bounds, bool) {
		if key == "h1" {
			return domain.Bounds{X: 100, Y: 200, Width: 300, Height: 90}, true
		}
		return domain.Bounds{}, false
	})
	fx := newFixture(t, placedProject(), okFetcher(), Options{Geometry: geom})
	if err := fx.c.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := fx.c.Select("nope"); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("select unknown: %v", err)
	}
	sel, err := fx.c.Select("d1")
	if err != nil {
		t.Fatalf("select d1: %v", err)
	}
	if sel.Bounds.Width != 774 || sel.Bounds.Y != 90 {
		t.Fatalf("fallback bounds from grid geometry expected, got %+v", sel.Bounds)
	}
	if err := fx.c.OpenEditor(); !errors.Is(err, ErrNoProperties) {
		t.Fatalf("divider has no properties, got %v", err)
	}
	if _, _, ok := fx.c.DialogPosition(1000, 0); ok {
		t.Fatalf("dialog position requires an open editor")
	}

	if _, err := fx.c.Select("h1"); err != nil {
		t.Fatalf("select h1: %v", err)
	}
	if err := fx.c.OpenEditor(); err != nil {
		t.Fatalf("open editor: %v", err)
	}
	x, y, ok := fx.c.DialogPosition(1000, 10)
	if !ok || x != 250 || y != 210 {
		t.Fatalf("dialog below: x=%v y=%v ok=%v", x, y, ok)
	}
	_, y, _ = fx.c.DialogPosition(500, 10)
	if y != -170 {
		t.Fatalf("dialog above: y=%v, want -170", y)
	}

	if fx.c.ClickOutside() {
		t.Fatalf("click outside must not clear while the editor is open")
	}
	fx.c.CloseEditor()
	if !fx.c.ClickOutside() {
		t.Fatalf("click outside should clear the selection")
	}
	if _, ok := fx.c.Selected(); ok || fx.c.State() != StateIdle {
		t.Fatalf("selection not cleared, state %v", fx.c.State())
	}
}

func TestSetPropertyRerendersOnlyThatCell(t *testing.T) {
	fx := newFixture(t, placedProject(), okFetcher(), Options{})
	if err := fx.c.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := fx.c.SetProperty("title", "x"); !errors.Is(err, ErrNoSelection) {
		t.Fatalf("expected ErrNoSelection, got %v", err)
	}
	if _, err := fx.c.Select("h1"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := fx.c.SetProperty("title", "Prepared by ${author}"); err != nil {
		t.Fatalf("set property: %v", err)
	}
	h, _ := fx.s.Cells.Get("h1")
	if h.Context.Properties["title"] != "Prepared by Alice" || h.Revision != 2 {
		t.Fatalf("unexpected header cell %+v", h.Context.Properties)
	}
	if d, _ := fx.s.Cells.Get("d1"); d.Revision != 1 {
		t.Fatalf("divider re-rendered")
	}
	if got := fx.page(t, 0).ReportWidgets[0].Properties["title"]; got != "Prepared by ${author}" {
		t.Fatalf("stored value = %q", got)
	}
	if len(fx.events.Named(EventPropertyChanged)) != 1 {
		t.Fatalf("expected one property-changed event")
	}

	if err := fx.c.SetVisualStyle("justifyContent", "center"); err != nil {
		t.Fatalf("set style: %v", err)
	}
	if err := fx.c.SetVisualStyle("color", "red"); !errors.Is(err, ErrUnknownStyle) {
		t.Fatalf("expected ErrUnknownStyle, got %v", err)
	}
	if got := fx.page(t, 0).ReportWidgets[0].LayoutItemProperties.JustifyContent; got != "center" {
		t.Fatalf("justifyContent = %q", got)
	}
}

func TestApplyLayoutConstrainsAndReselects(t *testing.T) {
	fx := newFixture(t, placedProject(), okFetcher(), Options{})
	if err := fx.c.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	out, err := fx.c.ApplyLayout([]domain.LayoutItem{
		{Key: "h1", X: 10, Y: 5, W: 6, H: 3},
		{Key: "unknown", X: 1, Y: 1, W: 1, H: 1},
	}, "h1")
	if err != nil {
		t.Fatalf("apply layout: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("unknown entries must be ignored, got %+v", out)
	}
	li := fx.page(t, 0).Layouts[0]
	if li.X != 6 || li.Y != 5 || li.MinW != 4 || li.MaxH != 6 {
		t.Fatalf("unexpected constrained layout %+v", li)
	}
	if cell, _ := fx.s.Cells.Get("h1"); cell.Layout != li {
		t.Fatalf("cell layout not updated: %+v", cell.Layout)
	}
	sel, ok := fx.c.Selected()
	if !ok || sel.Key != "h1" || sel.Bounds.X != 387 || sel.Bounds.Y != 150 {
		t.Fatalf("moved widget must be re-selected with new geometry, got %+v", sel)
	}
}

func TestDeleteSelectedRemovesEverything(t *testing.T) {
	fx := newFixture(t, placedProject(), okFetcher(), Options{})
	if err := fx.c.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := fx.c.DeleteSelected(); !errors.Is(err, ErrNoSelection) {
		t.Fatalf("expected ErrNoSelection, got %v", err)
	}
	if _, err := fx.c.Select("h1"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := fx.c.DeleteSelected(); err != nil {
		t.Fatalf("delete: %v", err)
	}
	pg := fx.page(t, 0)
	if pg.FindLayout("h1") >= 0 || pg.FindWidget("h1") >= 0 {
		t.Fatalf("widget still stored: %+v", pg)
	}
	if _, ok := fx.s.Cells.Get("h1"); ok {
		t.Fatalf("cell still registered")
	}
	if fx.s.Dependencies().Count("aiverify.algo:fairness") != 0 {
		t.Fatalf("dependencies not released")
	}
	if _, ok := fx.c.Selected(); ok {
		t.Fatalf("selection not cleared")
	}
}

func TestUndoRedoDrop(t *testing.T) {
	fx := newFixture(t, domain.Project{Name: "U"}, okFetcher(), Options{})
	ctx := context.Background()
	if err := fx.c.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	if ok, err := fx.c.Undo(ctx); ok || err != nil {
		t.Fatalf("nothing to undo yet: ok=%v err=%v", ok, err)
	}
	if _, err := fx.c.Drop(ctx, headerDef, domain.Rect{}); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if !fx.c.CanUndo() {
		t.Fatalf("drop must be undoable")
	}
	if ok, err := fx.c.Undo(ctx); !ok || err != nil {
		t.Fatalf("undo: ok=%v err=%v", ok, err)
	}
	if pg := fx.page(t, 0); len(pg.Layouts) != 0 || len(pg.ReportWidgets) != 0 {
		t.Fatalf("undo did not restore the empty page: %+v", pg)
	}
	if fx.s.Cells.Len() != 0 || fx.s.Dependencies().Count("aiverify.algo:fairness") != 0 {
		t.Fatalf("undo left cells or dependencies behind")
	}
	if ok, err := fx.c.Redo(ctx); !ok || err != nil {
		t.Fatalf("redo: ok=%v err=%v", ok, err)
	}
	if pg := fx.page(t, 0); len(pg.Layouts) != 1 || pg.ReportWidgets[0].Key != "1000" {
		t.Fatalf("redo did not restore the widget: %+v", pg)
	}
	if fx.s.Cells.Len() != 1 {
		t.Fatalf("redo should render the widget again")
	}
	if _, err := fx.c.AddPage(ctx, -1); err != nil {
		t.Fatalf("add page: %v", err)
	}
	if err := fx.c.LoadPage(ctx, 0); err != nil {
		t.Fatalf("load: %v", err)
	}
	if fx.c.CanUndo() {
		t.Fatalf("history must reset when pages are added")
	}
}

func TestStateString(t *testing.T) {
	if StateEditing.String() != "editing" || State(9).String() != "state(9)" {
		t.Fatalf("unexpected state names")
	}
}

// callbackEmitter reads controller state from inside every event handler.
type callbackEmitter struct {
	c        *Controller
	mu       sync.Mutex
	selected []string
	events   int
}

func (e *callbackEmitter) Emit(ctx context.Context, event string, data any) {
	sel, ok := e.c.Selected()
	_ = e.c.State()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events++
	if event == EventWidgetSelected && ok {
		e.selected = append(e.selected, sel.Key)
	}
}

// callbackSink reads controller state from inside every cell notification.
type callbackSink struct {
	c       *Controller
	mu      sync.Mutex
	renders int
}

func (s *callbackSink) Render(render.Cell) {
	_ = s.c.Current()
	s.mu.Lock()
	s.renders++
	s.mu.Unlock()
}

func (s *callbackSink) Remove(string) { _, _ = s.c.Selected() }

func TestHandlersMayCallBackIntoController(t *testing.T) {
	sink := &callbackSink{}
	s := project.NewSession(placedProject(), catalog.NewMemoryCatalog(headerDef, dividerDef), bundle.NewLoader(okFetcher()), sink)
	em := &callbackEmitter{}
	c := New(s, Options{Emitter: em, History: undo.New(undo.Config{}), Now: func() time.Time { return time.UnixMilli(1000) }})
	em.c, sink.c = c, c
	t.Cleanup(func() {
		c.Close()
		s.Loader.Close()
	})

	ctx := context.Background()
	done := make(chan error, 1)
	go func() {
		done <- func() error {
			if err := c.Open(ctx); err != nil {
				return err
			}
			if _, err := c.Select("h1"); err != nil {
				return err
			}
			if err := c.SetProperty("title", "Changed"); err != nil {
				return err
			}
			if _, err := c.Drop(ctx, dividerDef, domain.Rect{Y: 10}); err != nil {
				return err
			}
			if err := c.DeleteSelected(); err != nil {
				return err
			}
			_, err := c.AddPage(ctx, -1)
			return err
		}()
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("edit sequence: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("controller blocked while a handler called back into it")
	}

	em.mu.Lock()
	defer em.mu.Unlock()
	if diff := cmp.Diff([]string{"h1", "1000"}, em.selected); diff != "" {
		t.Fatalf("handlers must see the new selection (-want +got):\n%s", diff)
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.renders == 0 {
		t.Fatalf("sink was never notified")
	}
}

func TestPagesChangedFromOutsideIsDelivered(t *testing.T) {
	fx := newFixture(t, domain.Project{Name: "Ext"}, okFetcher(), Options{})
	if err := fx.c.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	fx.s.Pages.Add(domain.Page{})
	if len(fx.events.Named(EventPagesChanged)) != 2 {
		t.Fatalf("expected pages-changed for open and the direct store add, got %d", len(fx.events.Named(EventPagesChanged)))
	}
}

func TestDropRefusedWhenReportTurnsReadOnly(t *testing.T) {
	g := newGate()
	fx := newFixture(t, domain.Project{Name: "Lock"}, g, Options{})
	ctx := context.Background()
	if err := fx.c.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		_, err := fx.c.Drop(ctx, headerDef, domain.Rect{})
		done <- err
	}()
	waitFor(t, "drop to await the bundle", func() bool { return fx.c.busyCount() == 1 })
	if err := fx.c.SetReadonly(ctx, true); err != nil {
		t.Fatalf("set readonly: %v", err)
	}
	close(g.release)
	if err := <-done; !errors.Is(err, ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
	if pg := fx.page(t, 0); len(pg.Layouts) != 0 || len(pg.ReportWidgets) != 0 {
		t.Fatalf("read-only page received the dropped widget: %+v", pg)
	}
	if fx.s.Dependencies().Count("aiverify.algo:fairness") != 0 {
		t.Fatalf("refused drop must not register dependencies")
	}
}

func TestSetReadonlyRerendersCells(t *testing.T) {
	fx := newFixture(t, placedProject(), okFetcher(), Options{})
	ctx := context.Background()
	if err := fx.c.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := fx.c.Select("h1"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := fx.c.SetReadonly(ctx, true); err != nil {
		t.Fatalf("set readonly: %v", err)
	}
	for _, key := range []string{"h1", "d1"} {
		cell, ok := fx.s.Cells.Get(key)
		if !ok || !cell.Layout.Static || cell.Styles["cursor"] == "move" {
			t.Fatalf("cell %s not re-rendered static: %+v", key, cell)
		}
	}
	if _, ok := fx.c.Selected(); ok {
		t.Fatalf("switching modes must clear the selection")
	}
	if fx.page(t, 0).Layouts[0].Static {
		t.Fatalf("static flag of read-only mode must not be stored")
	}

	if err := fx.c.SetReadonly(ctx, false); err != nil {
		t.Fatalf("clear readonly: %v", err)
	}
	if cell, _ := fx.s.Cells.Get("h1"); cell.Layout.Static || cell.Styles["cursor"] != "move" {
		t.Fatalf("h1 must be editable again: %+v", cell)
	}
	if _, err := fx.c.Drop(ctx, dividerDef, domain.Rect{Y: 10}); err != nil {
		t.Fatalf("drop after leaving read-only: %v", err)
	}
}

func TestUndoRestoresStateBeforePropertyEdits(t *testing.T) {
	fx := newFixture(t, placedProject(), okFetcher(), Options{})
	ctx := context.Background()
	if err := fx.c.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := fx.c.Select("h1"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := fx.c.SetProperty("title", "Changed"); err != nil {
		t.Fatalf("set property: %v", err)
	}
	if ok, err := fx.c.Undo(ctx); !ok || err != nil {
		t.Fatalf("undo property: ok=%v err=%v", ok, err)
	}
	if got := fx.page(t, 0).ReportWidgets[0].Properties["title"]; got != "Summary" {
		t.Fatalf("undo restored title %q, want Summary", got)
	}

	if _, err := fx.c.Select("h1"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := fx.c.SetVisualStyle("alignItems", "bottom"); err != nil {
		t.Fatalf("set style: %v", err)
	}
	if ok, err := fx.c.Undo(ctx); !ok || err != nil {
		t.Fatalf("undo style: ok=%v err=%v", ok, err)
	}
	if got := fx.page(t, 0).ReportWidgets[0].LayoutItemProperties.AlignItems; got != "top" {
		t.Fatalf("undo restored alignItems %q, want top", got)
	}
}

func TestFailedEditLeavesNoUndoEntry(t *testing.T) {
	p := placedProject()
	p.Pages = append([]domain.Page{{}}, p.Pages...)
	fx := newFixture(t, p, okFetcher(), Options{})
	ctx := context.Background()
	if err := fx.c.LoadPage(ctx, 1); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := fx.c.Select("h1"); err != nil {
		t.Fatalf("select: %v", err)
	}
	// the loaded page disappears behind the controller's back
	if err := fx.s.Pages.Remove(1); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := fx.c.SetProperty("title", "x"); err == nil {
		t.Fatalf("edit of a vanished page must fail")
	}
	if err := fx.c.DeleteSelected(); err == nil {
		t.Fatalf("delete on a vanished page must fail")
	}
	if _, err := fx.c.ApplyLayout([]domain.LayoutItem{{Key: "h1", X: 6, W: 6, H: 3}}, ""); err == nil {
		t.Fatalf("layout change on a vanished page must fail")
	}
	if fx.c.CanUndo() {
		t.Fatalf("failed edits recorded an undo entry")
	}
}

func TestRestorePageIsUndoable(t *testing.T) {
	fx := newFixture(t, placedProject(), okFetcher(), Options{})
	ctx := context.Background()
	if err := fx.c.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	snap := domain.Page{
		Layouts:       []domain.LayoutItem{{Key: "d9", X: 0, Y: 0, W: 12, H: 1}},
		ReportWidgets: []domain.ReportWidgetItem{{Key: "d9", WidgetGID: dividerDef.GID, LayoutItemProperties: domain.DefaultLayoutItemProperties}},
	}
	if err := fx.c.RestorePage(ctx, snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if diff := cmp.Diff([]string{"d9"}, fx.s.Cells.Keys()); diff != "" {
		t.Fatalf("cells after restore (-want +got):\n%s", diff)
	}
	if fx.s.Dependencies().Count("aiverify.algo:fairness") != 0 {
		t.Fatalf("restored page without a header must release its dependency")
	}
	if ok, err := fx.c.Undo(ctx); !ok || err != nil {
		t.Fatalf("undo restore: ok=%v err=%v", ok, err)
	}
	if diff := cmp.Diff([]string{"d1", "h1"}, fx.s.Cells.Keys()); diff != "" {
		t.Fatalf("cells after undo (-want +got):\n%s", diff)
	}

	if err := fx.c.SetReadonly(ctx, true); err != nil {
		t.Fatalf("set readonly: %v", err)
	}
	if err := fx.c.RestorePage(ctx, snap); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("restore in read-only mode: %v", err)
	}
}

func TestLoadProjectDiscardsPendingDrop(t *testing.T) {
	g := newGate()
	fx := newFixture(t, domain.Project{Name: "Old"}, g, Options{})
	ctx := context.Background()
	if err := fx.c.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		_, err := fx.c.Drop(ctx, headerDef, domain.Rect{})
		done <- err
	}()
	waitFor(t, "drop to await the bundle", func() bool { return fx.c.busyCount() == 1 })

	pulled := domain.Project{Name: "Pulled", Pages: []domain.Page{{}, {}}}
	if err := fx.c.LoadProject(ctx, pulled); err != nil {
		t.Fatalf("load project: %v", err)
	}
	close(g.release)
	if err := <-done; !errors.Is(err, ErrStalePage) {
		t.Fatalf("expected ErrStalePage, got %v", err)
	}
	if fx.s.Name() != "Pulled" || fx.s.Pages.Len() != 2 || fx.c.Current() != 0 {
		t.Fatalf("name=%q len=%d current=%d", fx.s.Name(), fx.s.Pages.Len(), fx.c.Current())
	}
	for i := 0; i < 2; i++ {
		if pg := fx.page(t, i); len(pg.Layouts) != 0 {
			t.Fatalf("page %d of the loaded project received the stale widget", i)
		}
	}
	if fx.c.CanUndo() {
		t.Fatalf("loading a project must drop undo history")
	}
}
