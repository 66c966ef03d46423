/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export renders report designs to print and raster formats. Widget
// bundles are not executed; every grid cell is drawn as a labelled box.
package export

import (
	"fmt"
	"sort"
	"strings"

	"reportcanvas/internal/catalog"
	"reportcanvas/internal/domain"
	"reportcanvas/internal/layout"
	"reportcanvas/internal/properties"
	"reportcanvas/internal/render"
)

// cellBox is one drawable grid cell of a page.
type cellBox struct {
	Key     string
	Rect    domain.Rect
	Title   string
	Lines   []string
	Invalid bool
}

// pageCells resolves the layout entries of pg into boxes in layout order.
// Entries without a widget item, or whose GID is unknown to cat, are invalid.
func pageCells(pg domain.Page, cat catalog.Catalog, props *properties.Store) []cellBox {
	out := make([]cellBox, 0, len(pg.Layouts))
	for _, it := range pg.Layouts {
		box := cellBox{Key: it.Key, Rect: it.Rect()}
		wi := pg.FindWidget(it.Key)
		if wi < 0 {
			box.Invalid = true
			box.Title = render.InvalidLabel
			out = append(out, box)
			continue
		}
		w := pg.ReportWidgets[wi]
		var def domain.WidgetDefinition
		known := false
		if cat != nil {
			def, known = cat.Get(w.WidgetGID)
		}
		if !known {
			box.Invalid = true
			box.Title = render.InvalidLabel
			box.Lines = []string{w.WidgetGID}
			out = append(out, box)
			continue
		}
		box.Title = def.Name
		if box.Title == "" {
			box.Title = def.GID
		}
		box.Lines = propertyLines(w.Properties, props)
		out = append(out, box)
	}
	return out
}

func propertyLines(p map[string]string, props *properties.Store) []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		v := props.Resolve(p[k])
		if strings.TrimSpace(v) == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", k, v))
	}
	return lines
}

// pageIndexes returns specific if set, otherwise every page index.
func pageIndexes(total int, specific []int) []int {
	if len(specific) == 0 {
		out := make([]int, total)
		for i := range out {
			out[i] = i
		}
		return out
	}
	return specific
}

// gridSize is the full canvas extent in pixels.
func gridSize(g layout.Grid) (w, h float64) {
	return g.Width, float64(g.MaxRows) * g.RowHeight
}
