/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

// MockDataType discriminates where mock data is exposed to a widget.
type MockDataType string

const (
	MockDataAlgorithm  MockDataType = "Algorithm"
	MockDataInputBlock MockDataType = "InputBlock"
)

// WidgetDefinition is an immutable descriptor of a report widget, owned by
// an external catalog and referenced by GID.
type WidgetDefinition struct {
	GID          string             `json:"gid" yaml:"gid"`
	Name         string             `json:"name" yaml:"name"`
	Description  string             `json:"description,omitempty" yaml:"description,omitempty"`
	Size         WidgetSize         `json:"widgetSize" yaml:"widgetSize"`
	Properties   []WidgetProperty   `json:"properties,omitempty" yaml:"properties,omitempty"`
	MockData     []MockData         `json:"mockdata,omitempty" yaml:"mockdata,omitempty"`
	Dependencies []WidgetDependency `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}

// WidgetSize holds the grid size constraints of a widget.
type WidgetSize struct {
	MinW int `json:"minW" yaml:"minW"`
	MinH int `json:"minH" yaml:"minH"`
	MaxW int `json:"maxW" yaml:"maxW"`
	MaxH int `json:"maxH" yaml:"maxH"`
}

// WidgetProperty is a user-editable property declared by a widget.
type WidgetProperty struct {
	Key     string `json:"key" yaml:"key"`
	Helper  string `json:"helper,omitempty" yaml:"helper,omitempty"`
	Default string `json:"default,omitempty" yaml:"default,omitempty"`
}

// MockData is sample data shown while designing.
type MockData struct {
	Type MockDataType `json:"type" yaml:"type"`
	GID  string       `json:"gid" yaml:"gid"`
	Data any          `json:"data" yaml:"data"`
}

// WidgetDependency names an algorithm or input block a widget needs.
type WidgetDependency struct {
	GID     string `json:"gid" yaml:"gid"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
}

// HasProperties reports whether the widget declares editable properties.
func (d WidgetDefinition) HasProperties() bool { return len(d.Properties) > 0 }
