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
	"encoding/json"
	"fmt"
	"log/slog"

	"reportcanvas/internal/domain"
	"reportcanvas/internal/layout"
)

// AddPage creates an empty page and loads it. at < 0 appends, otherwise the
// page is inserted at index at. It returns the index of the new page.
func (c *Controller) AddPage(ctx context.Context, at int) (int, error) {
	c.lock()
	idx := at
	if at < 0 || at >= c.s.Pages.Len() {
		c.s.Pages.Add(domain.Page{})
		idx = c.s.Pages.Len() - 1
	} else if err := c.s.Pages.Insert(at, domain.Page{}); err != nil {
		c.unlock()
		return -1, err
	}
	c.hist.Reset()
	plan, err := c.beginLoadLocked(idx)
	c.unlock()
	if err != nil {
		return -1, err
	}
	c.log.Info("page added", slog.Int("page", idx))
	return idx, c.finishLoad(ctx, plan)
}

// DeletePage removes the current page and releases its widget dependencies.
// Deleting the only page leaves a fresh empty page; deleting the last page
// loads the previous one, otherwise the page now at the same index is loaded.
func (c *Controller) DeletePage(ctx context.Context) error {
	c.lock()
	if c.s.Readonly() {
		c.unlock()
		return ErrReadOnly
	}
	idx := c.current
	pg, err := c.currentPageLocked()
	if err != nil {
		c.unlock()
		return err
	}
	count := c.s.Pages.Len()
	if err := c.s.Pages.Remove(idx); err != nil {
		c.unlock()
		return err
	}
	for _, w := range pg.ReportWidgets {
		c.s.RemoveReportWidget(w.Key)
	}
	c.hist.Reset()
	next := idx
	switch {
	case count == 1:
		c.s.Pages.Add(domain.Page{})
		next = 0
	case idx == count-1:
		next = idx - 1
	}
	plan, err := c.beginLoadLocked(next)
	c.unlock()
	if err != nil {
		return err
	}
	c.log.Info("page deleted", slog.Int("page", idx), slog.Int("load", next))
	return c.finishLoad(ctx, plan)
}

// MovePage moves the current page to the position chosen in the move dialog
// and loads it there. A target equal to the current index does nothing.
func (c *Controller) MovePage(ctx context.Context, target int) error {
	c.lock()
	if c.s.Readonly() {
		c.unlock()
		return ErrReadOnly
	}
	from := c.current
	if from < 0 {
		c.unlock()
		return ErrNoPage
	}
	if target == from {
		c.unlock()
		return nil
	}
	if target < 0 {
		target = 0
	}
	if from > target {
		target++
	}
	if err := c.s.Pages.Move(from, target); err != nil {
		c.unlock()
		return err
	}
	c.hist.Reset()
	plan, err := c.beginLoadLocked(target)
	c.unlock()
	if err != nil {
		return err
	}
	c.log.Info("page moved", slog.Int("from", from), slog.Int("to", target))
	return c.finishLoad(ctx, plan)
}

// RestorePage replaces the current page's content with pg, e.g. a stored
// snapshot, and reloads it. The replaced state is kept for undo.
func (c *Controller) RestorePage(ctx context.Context, pg domain.Page) error {
	c.lock()
	if c.s.Readonly() {
		c.unlock()
		return ErrReadOnly
	}
	before, err := c.currentPageLocked()
	if err != nil {
		c.unlock()
		return err
	}
	pg = pg.Clone()
	if err := c.s.Pages.Update(c.current, layout.PageUpdate{Layouts: pg.Layouts, ReportWidgets: pg.ReportWidgets}); err != nil {
		c.unlock()
		return err
	}
	c.recordLocked(c.current, before)
	c.s.SyncDependencies()
	plan, err := c.beginLoadLocked(c.current)
	c.unlock()
	if err != nil {
		return err
	}
	c.log.Info("page restored", slog.Int("page", plan.page))
	return c.finishLoad(ctx, plan)
}

// LoadProject swaps the whole session content for p and loads its first
// page. Undo history is dropped and drops still waiting for a bundle are
// discarded as stale.
func (c *Controller) LoadProject(ctx context.Context, p domain.Project) error {
	c.lock()
	c.s.Load(p)
	c.hist.Reset()
	if c.s.Pages.Len() == 0 {
		c.s.Pages.Add(domain.Page{})
	}
	plan, err := c.beginLoadLocked(0)
	c.unlock()
	if err != nil {
		return err
	}
	c.log.Info("project loaded", slog.String("name", p.Name), slog.Int("pages", len(p.Pages)))
	return c.finishLoad(ctx, plan)
}

// GoToPage loads the page with the given one-based number. Numbers outside
// the report are ignored and reported as false.
func (c *Controller) GoToPage(ctx context.Context, number int) (bool, error) {
	if number < 1 || number > c.s.Pages.Len() {
		return false, nil
	}
	if err := c.LoadPage(ctx, number-1); err != nil {
		return false, err
	}
	return true, nil
}

// CanUndo reports whether the current page has edits to undo.
func (c *Controller) CanUndo() bool {
	c.lock()
	defer c.unlock()
	return c.current >= 0 && c.hist.CanUndo(c.current)
}

// CanRedo reports whether the current page has undone edits to reapply.
func (c *Controller) CanRedo() bool {
	c.lock()
	defer c.unlock()
	return c.current >= 0 && c.hist.CanRedo(c.current)
}

// Undo restores the current page to its state before the last edit.
func (c *Controller) Undo(ctx context.Context) (bool, error) {
	return c.step(ctx, "undo", c.hist.Undo)
}

// Redo reapplies the most recently undone edit of the current page.
func (c *Controller) Redo(ctx context.Context) (bool, error) {
	return c.step(ctx, "redo", c.hist.Redo)
}

func (c *Controller) step(ctx context.Context, op string, swap func(int, []byte) ([]byte, bool)) (bool, error) {
	c.lock()
	if c.s.Readonly() {
		c.unlock()
		return false, ErrReadOnly
	}
	pg, err := c.currentPageLocked()
	if err != nil {
		c.unlock()
		return false, err
	}
	cur, err := json.Marshal(pg)
	if err != nil {
		c.unlock()
		return false, fmt.Errorf("%s: %w", op, err)
	}
	blob, ok := swap(c.current, cur)
	if !ok {
		c.unlock()
		return false, nil
	}
	var restored domain.Page
	if err := json.Unmarshal(blob, &restored); err != nil {
		c.unlock()
		return false, fmt.Errorf("%s: decode page: %w", op, err)
	}
	if restored.Layouts == nil {
		restored.Layouts = []domain.LayoutItem{}
	}
	if restored.ReportWidgets == nil {
		restored.ReportWidgets = []domain.ReportWidgetItem{}
	}
	if err := c.s.Pages.Update(c.current, layout.PageUpdate{Layouts: restored.Layouts, ReportWidgets: restored.ReportWidgets}); err != nil {
		c.unlock()
		return false, err
	}
	c.s.SyncDependencies()
	plan, err := c.beginLoadLocked(c.current)
	c.unlock()
	if err != nil {
		return false, err
	}
	c.log.Debug(op+" applied", slog.Int("page", plan.page))
	return true, c.finishLoad(ctx, plan)
}
