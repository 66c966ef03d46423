/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

// This file defines the core data model of a report project: pages, the grid
// layout entries placed on them and the widget instances bound to those entries.
// JSON names follow the portal's project document so manifests stay interchangeable.

// Project is a report (or report template) and its design document.
// It serializes to the human-readable JSON manifest (report.json).
type Project struct {
	Name       string           `json:"name"`
	Template   bool             `json:"isTemplate,omitempty"`
	Readonly   bool             `json:"readonly,omitempty"`
	Info       ProjectInfo      `json:"projectInfo"`
	GlobalVars []GlobalVariable `json:"globalVars"`
	Pages      []Page           `json:"pages"`
}

// ProjectInfo holds descriptive project fields. Every field is also available
// to widget property bindings under its JSON key.
type ProjectInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ReportTitle string `json:"reportTitle,omitempty"`
	Company     string `json:"company,omitempty"`
}

// Fields returns the info fields as ordered key/value pairs.
func (pi ProjectInfo) Fields() []GlobalVariable {
	return []GlobalVariable{
		{Key: "name", Value: pi.Name},
		{Key: "description", Value: pi.Description},
		{Key: "reportTitle", Value: pi.ReportTitle},
		{Key: "company", Value: pi.Company},
	}
}

// GlobalVariable is a user-defined key/value pair usable in property bindings.
type GlobalVariable struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Page is one page of the report canvas.
// Every layout entry is expected to have exactly one widget item with the same key.
type Page struct {
	Layouts       []LayoutItem       `json:"layouts"`
	ReportWidgets []ReportWidgetItem `json:"reportWidgets"`
}

// Clone returns a deep copy of the page.
func (p Page) Clone() Page {
	out := Page{
		Layouts:       make([]LayoutItem, len(p.Layouts)),
		ReportWidgets: make([]ReportWidgetItem, len(p.ReportWidgets)),
	}
	copy(out.Layouts, p.Layouts)
	for i, w := range p.ReportWidgets {
		out.ReportWidgets[i] = w.Clone()
	}
	return out
}

// FindLayout returns the index of the layout entry with key, or -1.
func (p Page) FindLayout(key string) int {
	for i := range p.Layouts {
		if p.Layouts[i].Key == key {
			return i
		}
	}
	return -1
}

// FindWidget returns the index of the widget item with key, or -1.
func (p Page) FindWidget(key string) int {
	for i := range p.ReportWidgets {
		if p.ReportWidgets[i].Key == key {
			return i
		}
	}
	return -1
}

// LayoutItem is the grid placement of one widget instance, in grid units.
type LayoutItem struct {
	Key    string `json:"i"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	W      int    `json:"w"`
	H      int    `json:"h"`
	MinW   int    `json:"minW,omitempty"`
	MinH   int    `json:"minH,omitempty"`
	MaxW   int    `json:"maxW,omitempty"`
	MaxH   int    `json:"maxH,omitempty"`
	Static bool   `json:"static,omitempty"`
}

// Rect returns the occupied grid rectangle.
func (l LayoutItem) Rect() Rect { return Rect{X: l.X, Y: l.Y, W: l.W, H: l.H} }

// ReportWidgetItem is a placed instance of a widget definition.
// Properties map a declared property key to a value reference, which is resolved
// against project info and global variables at render time.
type ReportWidgetItem struct {
	Key                  string               `json:"key"`
	WidgetGID            string               `json:"widgetGID"`
	Properties           map[string]string    `json:"properties,omitempty"`
	LayoutItemProperties LayoutItemProperties `json:"layoutItemProperties"`
}

// Clone returns a deep copy of the widget item.
func (w ReportWidgetItem) Clone() ReportWidgetItem {
	out := w
	if w.Properties != nil {
		out.Properties = make(map[string]string, len(w.Properties))
		for k, v := range w.Properties {
			out.Properties[k] = v
		}
	}
	return out
}

// LayoutItemProperties are the visual alignment settings of a grid cell.
type LayoutItemProperties struct {
	JustifyContent string `json:"justifyContent"`
	AlignItems     string `json:"alignItems"`
}

// DefaultLayoutItemProperties is applied to newly placed widgets.
var DefaultLayoutItemProperties = LayoutItemProperties{JustifyContent: "left", AlignItems: "top"}

// Rect is a grid rectangle in grid units.
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Overlaps reports whether two rectangles share at least one grid cell.
func (r Rect) Overlaps(o Rect) bool {
	return r.X < o.X+o.W && o.X < r.X+r.W && r.Y < o.Y+o.H && o.Y < r.Y+r.H
}

// Bounds is screen-space geometry reported by the rendering layer.
type Bounds struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}
