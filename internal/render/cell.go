/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package render turns placed widget items into displayable grid cells.
// A cell carries everything a rendering layer needs: the compiled bundle, the
// resolved property context, mock data and the wrapper alignment styles.
package render

import (
	"reportcanvas/internal/bundle"
	"reportcanvas/internal/domain"
	"reportcanvas/internal/properties"
)

// InvalidLabel is shown in place of a widget whose reference cannot be resolved.
const InvalidLabel = "Invalid Widget"

// WidgetContext is the data handed to a widget bundle when it renders.
type WidgetContext struct {
	Key            string                  `json:"key"`
	Meta           domain.WidgetDefinition `json:"meta"`
	Properties     map[string]string       `json:"properties"`
	Result         map[string]any          `json:"result"`
	InputBlockData map[string]any          `json:"inputBlockData"`
}

// Cell is one rendered grid cell.
type Cell struct {
	Key      string
	Layout   domain.LayoutItem
	Invalid  bool
	Bundle   bundle.Bundle
	Context  WidgetContext
	Styles   map[string]string
	Revision int
}

// Label is the text a plain renderer shows for the cell.
func (c Cell) Label() string {
	if c.Invalid {
		return InvalidLabel
	}
	if c.Context.Meta.Name != "" {
		return c.Context.Meta.Name
	}
	return c.Context.Meta.GID
}

// Wrap builds the cell for a resolved widget item.
func Wrap(item domain.ReportWidgetItem, def domain.WidgetDefinition, b bundle.Bundle, layout domain.LayoutItem, props *properties.Store, editing bool) Cell {
	ctx := WidgetContext{
		Key:            item.Key,
		Meta:           def,
		Properties:     props.ResolveAll(item.Properties),
		Result:         map[string]any{},
		InputBlockData: map[string]any{},
	}
	for _, m := range def.MockData {
		if m.Type == domain.MockDataAlgorithm {
			ctx.Result[m.GID] = m.Data
		} else {
			ctx.InputBlockData[m.GID] = m.Data
		}
	}
	return Cell{
		Key:     item.Key,
		Layout:  layout,
		Bundle:  b,
		Context: ctx,
		Styles:  ItemStyles(item.LayoutItemProperties, editing),
	}
}

// InvalidWidget builds the error placeholder for a layout entry without a usable widget.
func InvalidWidget(key string, layout domain.LayoutItem) Cell {
	return Cell{
		Key:     key,
		Layout:  layout,
		Invalid: true,
		Context: WidgetContext{Key: key},
		Styles:  map[string]string{"color": "#f73939"},
	}
}

// ItemStyles maps alignment properties to the wrapper's flex styles.
func ItemStyles(p domain.LayoutItemProperties, editing bool) map[string]string {
	st := map[string]string{
		"display":        "flex",
		"flexDirection":  "column",
		"height":         "100%",
		"justifyContent": flexValue(p.AlignItems),
		"alignItems":     flexValue(p.JustifyContent),
	}
	if editing {
		st["cursor"] = "move"
	}
	return st
}

// flexValue converts the designer's left/top/center/right/bottom vocabulary to flex alignment.
// A column flex axis is used, so horizontal justification maps onto alignItems.
func flexValue(v string) string {
	switch v {
	case "center":
		return "center"
	case "right", "bottom":
		return "flex-end"
	default:
		return "flex-start"
	}
}
