/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package layout

import (
	"errors"
	"fmt"

	"reportcanvas/internal/domain"
)

// ErrCollision is returned when a rectangle overlaps another layout entry.
var ErrCollision = errors.New("layout item collides with existing item")

// Grid describes the canvas grid. Width and RowHeight are in screen units.
type Grid struct {
	Cols      int
	MaxRows   int
	Width     float64
	RowHeight float64
}

// DefaultGrid matches the portal report canvas (one A4-like page).
var DefaultGrid = Grid{Cols: 12, MaxRows: 36, Width: 774, RowHeight: 30}

// ColWidth returns the width of one grid column in screen units.
func (g Grid) ColWidth() float64 {
	if g.Cols <= 0 {
		return 0
	}
	return g.Width / float64(g.Cols)
}

// Height returns the full canvas height in screen units.
func (g Grid) Height() float64 { return float64(g.MaxRows) * g.RowHeight }

// Place builds a layout entry for a widget dropped at r, applying the widget's
// size constraints. A zero W/H takes the declared minimum, like the drop preview does.
func (g Grid) Place(key string, r domain.Rect, size domain.WidgetSize) domain.LayoutItem {
	if r.W <= 0 {
		r.W = size.MinW
	}
	if r.H <= 0 {
		r.H = size.MinH
	}
	it := domain.LayoutItem{
		Key:  key,
		X:    r.X,
		Y:    r.Y,
		W:    r.W,
		H:    r.H,
		MinW: size.MinW,
		MinH: size.MinH,
		MaxW: size.MaxW,
		MaxH: size.MaxH,
	}
	return g.Constrain(it)
}

// Constrain clamps the item size to its min/max and keeps it inside the grid bounds.
func (g Grid) Constrain(it domain.LayoutItem) domain.LayoutItem {
	if it.MinW > 0 && it.W < it.MinW {
		it.W = it.MinW
	}
	if it.MinH > 0 && it.H < it.MinH {
		it.H = it.MinH
	}
	if it.MaxW > 0 && it.W > it.MaxW {
		it.W = it.MaxW
	}
	if it.MaxH > 0 && it.H > it.MaxH {
		it.H = it.MaxH
	}
	if it.W < 1 {
		it.W = 1
	}
	if it.H < 1 {
		it.H = 1
	}
	if g.Cols > 0 && it.W > g.Cols {
		it.W = g.Cols
	}
	if g.MaxRows > 0 && it.H > g.MaxRows {
		it.H = g.MaxRows
	}
	if it.X < 0 {
		it.X = 0
	}
	if it.Y < 0 {
		it.Y = 0
	}
	if g.Cols > 0 && it.X+it.W > g.Cols {
		it.X = g.Cols - it.W
	}
	if g.MaxRows > 0 && it.Y+it.H > g.MaxRows {
		it.Y = g.MaxRows - it.H
	}
	return it
}

// Collides returns the key of the first layout entry on pg overlapping r,
// ignoring the entry named ignoreKey.
func Collides(pg domain.Page, r domain.Rect, ignoreKey string) (string, bool) {
	for _, l := range pg.Layouts {
		if l.Key == ignoreKey {
			continue
		}
		if l.Rect().Overlaps(r) {
			return l.Key, true
		}
	}
	return "", false
}

// CheckPlacement reports ErrCollision when it overlaps another entry of pg.
func CheckPlacement(pg domain.Page, it domain.LayoutItem) error {
	if other, hit := Collides(pg, it.Rect(), it.Key); hit {
		return fmt.Errorf("place %s over %s: %w", it.Key, other, ErrCollision)
	}
	return nil
}

// ToBounds converts a grid rectangle to screen-space geometry.
func (g Grid) ToBounds(r domain.Rect) domain.Bounds {
	cw := g.ColWidth()
	return domain.Bounds{
		X:      float64(r.X) * cw,
		Y:      float64(r.Y) * g.RowHeight,
		Width:  float64(r.W) * cw,
		Height: float64(r.H) * g.RowHeight,
	}
}
