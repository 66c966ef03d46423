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
	"fmt"
	"log/slog"

	"reportcanvas/internal/domain"
	"reportcanvas/internal/layout"
	"reportcanvas/internal/render"
)

const (
	dialogHeight = 380
	topbarHeight = 54
)

// Select makes key the single selected widget and captures its screen bounds.
func (c *Controller) Select(key string) (Selection, error) {
	c.lock()
	defer c.unlock()
	pg, err := c.currentPageLocked()
	if err != nil {
		return Selection{}, err
	}
	li := pg.FindLayout(key)
	if li < 0 {
		return Selection{}, fmt.Errorf("select %s: %w", key, ErrUnknownKey)
	}
	if c.sel != nil && c.sel.Key != key {
		c.editorOpen = false
	}
	c.selectLocked(pg.Layouts[li])
	return *c.sel, nil
}

// ClickOutside handles a click outside any grid item or widget panel. The
// selection is cleared unless the property editor is open; it reports
// whether the selection was cleared.
func (c *Controller) ClickOutside() bool {
	c.lock()
	defer c.unlock()
	if c.editorOpen || c.sel == nil {
		return false
	}
	c.clearSelectionLocked()
	return true
}

// ClearSelection drops the selection and closes the editor.
func (c *Controller) ClearSelection() {
	c.lock()
	defer c.unlock()
	c.clearSelectionLocked()
}

// OpenEditor shows the property editor for the selected widget.
func (c *Controller) OpenEditor() error {
	c.lock()
	defer c.unlock()
	if c.s.Readonly() {
		return ErrReadOnly
	}
	pg, _, wi, err := c.findSelectedLocked()
	if err != nil {
		return err
	}
	if wi < 0 || len(pg.ReportWidgets[wi].Properties) == 0 {
		return ErrNoProperties
	}
	c.editorOpen = true
	c.emitLocked(context.Background(), EventEditorToggled, true)
	return nil
}

// CloseEditor hides the property editor; the selection stays.
func (c *Controller) CloseEditor() {
	c.lock()
	defer c.unlock()
	if !c.editorOpen {
		return
	}
	c.editorOpen = false
	c.emitLocked(context.Background(), EventEditorToggled, false)
}

// DialogPosition places the data population dialog next to the selected
// widget: centred horizontally on it, below its top edge when the dialog
// fits in the viewport and above otherwise. ok is false unless the editor is open.
func (c *Controller) DialogPosition(viewportHeight, scrollTop float64) (x, y float64, ok bool) {
	c.lock()
	defer c.unlock()
	if !c.editorOpen || c.sel == nil {
		return 0, 0, false
	}
	b := c.sel.Bounds
	x = b.X + b.Width/2
	if viewportHeight-topbarHeight-b.Y > dialogHeight {
		y = b.Y + scrollTop
	} else {
		y = b.Y + scrollTop - dialogHeight
	}
	return x, y, true
}

// SetProperty binds property prop of the selected widget to value. The value
// is stored as written and resolved for display; only that cell re-renders.
func (c *Controller) SetProperty(prop, value string) error {
	c.lock()
	defer c.unlock()
	if c.s.Readonly() {
		return ErrReadOnly
	}
	pg, _, wi, err := c.findSelectedLocked()
	if err != nil {
		return err
	}
	if wi < 0 {
		return fmt.Errorf("set property on %s: %w", c.sel.Key, ErrUnknownKey)
	}
	before := pg.Clone()
	item := pg.ReportWidgets[wi]
	if item.Properties == nil {
		item.Properties = map[string]string{}
	}
	item.Properties[prop] = value
	pg.ReportWidgets[wi] = item
	if err := c.s.Pages.Update(c.current, layout.PageUpdate{ReportWidgets: pg.ReportWidgets}); err != nil {
		return err
	}
	c.recordLocked(c.current, before)
	if cell, ok := c.s.Cells.Get(item.Key); ok && !cell.Invalid {
		props := make(map[string]string, len(cell.Context.Properties)+1)
		for k, v := range cell.Context.Properties {
			props[k] = v
		}
		props[prop] = c.s.Properties().Resolve(value)
		cell.Context.Properties = props
		c.s.Cells.Set(cell)
	}
	c.emitLocked(context.Background(), EventPropertyChanged, map[string]string{"key": item.Key, "property": prop, "value": value})
	return nil
}

// SetVisualStyle changes the justifyContent or alignItems setting of the selected widget.
func (c *Controller) SetVisualStyle(prop, value string) error {
	c.lock()
	defer c.unlock()
	if c.s.Readonly() {
		return ErrReadOnly
	}
	pg, _, wi, err := c.findSelectedLocked()
	if err != nil {
		return err
	}
	if wi < 0 {
		return fmt.Errorf("set style on %s: %w", c.sel.Key, ErrUnknownKey)
	}
	item := pg.ReportWidgets[wi]
	switch prop {
	case "justifyContent":
		item.LayoutItemProperties.JustifyContent = value
	case "alignItems":
		item.LayoutItemProperties.AlignItems = value
	default:
		return fmt.Errorf("%q: %w", prop, ErrUnknownStyle)
	}
	before := pg.Clone()
	pg.ReportWidgets[wi] = item
	if err := c.s.Pages.Update(c.current, layout.PageUpdate{ReportWidgets: pg.ReportWidgets}); err != nil {
		return err
	}
	c.recordLocked(c.current, before)
	if cell, ok := c.s.Cells.Get(item.Key); ok && !cell.Invalid {
		cell.Styles = render.ItemStyles(item.LayoutItemProperties, true)
		c.s.Cells.Set(cell)
	}
	return nil
}

// ApplyLayout takes the grid's layout after a move or resize. Coordinates of
// known entries are updated and constrained to the grid, then moved (if
// non-empty) is re-selected at its new position. In read-only mode every
// entry is returned static and nothing is stored.
func (c *Controller) ApplyLayout(items []domain.LayoutItem, moved string) ([]domain.LayoutItem, error) {
	c.lock()
	defer c.unlock()
	if c.s.Readonly() {
		out := make([]domain.LayoutItem, len(items))
		for i, it := range items {
			it.Static = true
			out[i] = it
		}
		return out, ErrReadOnly
	}
	pg, err := c.currentPageLocked()
	if err != nil {
		return nil, err
	}
	next := append([]domain.LayoutItem(nil), pg.Layouts...)
	changed := false
	for _, in := range items {
		li := pg.FindLayout(in.Key)
		if li < 0 {
			continue
		}
		it := next[li]
		it.X, it.Y, it.W, it.H = in.X, in.Y, in.W, in.H
		it = c.grid.Constrain(it)
		if it != next[li] {
			next[li] = it
			changed = true
		}
	}
	if changed {
		if err := c.s.Pages.Update(c.current, layout.PageUpdate{Layouts: next}); err != nil {
			return nil, err
		}
		c.recordLocked(c.current, pg)
		for _, it := range next {
			if cell, ok := c.s.Cells.Get(it.Key); ok && cell.Layout != it {
				cell.Layout = it
				c.s.Cells.Set(cell)
			}
		}
		c.emitLocked(context.Background(), EventLayoutChanged, c.current)
	}
	if moved != "" {
		for _, it := range next {
			if it.Key == moved {
				c.selectLocked(it)
				break
			}
		}
	}
	return next, nil
}

// DeleteSelected removes the selected widget's layout entry and widget item
// in one store update and releases its cell and dependencies.
func (c *Controller) DeleteSelected() error {
	c.lock()
	defer c.unlock()
	if c.s.Readonly() {
		return ErrReadOnly
	}
	pg, li, wi, err := c.findSelectedLocked()
	if err != nil {
		return err
	}
	key := c.sel.Key
	layouts := append([]domain.LayoutItem{}, pg.Layouts...)
	widgets := append([]domain.ReportWidgetItem{}, pg.ReportWidgets...)
	if li >= 0 {
		layouts = append(layouts[:li], layouts[li+1:]...)
	}
	if wi >= 0 {
		widgets = append(widgets[:wi], widgets[wi+1:]...)
	}
	if err := c.s.Pages.Update(c.current, layout.PageUpdate{Layouts: layouts, ReportWidgets: widgets}); err != nil {
		return err
	}
	c.recordLocked(c.current, pg)
	c.s.Cells.Unset(key)
	c.s.RemoveReportWidget(key)
	c.clearSelectionLocked()
	if len(layouts) == 0 {
		c.state = StateEmpty
	}
	c.log.Info("widget removed", slog.String("key", key), slog.Int("page", c.current))
	c.emitLocked(context.Background(), EventWidgetRemoved, key)
	return nil
}

// SetReadonly toggles read-only mode and reloads the current page so every
// cell is re-rendered static (or editable again). Selection is cleared.
func (c *Controller) SetReadonly(ctx context.Context, v bool) error {
	c.lock()
	c.s.SetReadonly(v)
	if c.current < 0 {
		c.unlock()
		return nil
	}
	plan, err := c.beginLoadLocked(c.current)
	c.unlock()
	if err != nil {
		return err
	}
	return c.finishLoad(ctx, plan)
}

// SetGlobals replaces the global variables and refreshes the resolved
// property context of every widget on the current page.
func (c *Controller) SetGlobals(vars []domain.GlobalVariable) {
	c.s.SetGlobals(vars)
	c.refreshContexts()
}

// SetProjectInfo replaces the project info fields and refreshes contexts.
func (c *Controller) SetProjectInfo(info domain.ProjectInfo) {
	c.s.SetProjectInfo(info)
	c.refreshContexts()
}

// refreshContexts re-resolves bound properties. Cells whose resolved values
// did not change are not re-rendered.
func (c *Controller) refreshContexts() {
	c.lock()
	defer c.unlock()
	pg, err := c.currentPageLocked()
	if err != nil {
		return
	}
	props := c.s.Properties()
	n := 0
	for _, w := range pg.ReportWidgets {
		cell, ok := c.s.Cells.Get(w.Key)
		if !ok || cell.Invalid {
			continue
		}
		resolved := props.ResolveAll(w.Properties)
		if equalProps(resolved, cell.Context.Properties) {
			continue
		}
		cell.Context.Properties = resolved
		c.s.Cells.Set(cell)
		n++
	}
	c.emitLocked(context.Background(), EventContextRefresh, n)
}

func equalProps(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}
