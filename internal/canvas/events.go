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
	"sync"

	"reportcanvas/internal/domain"
)

// Event names published by the controller.
const (
	EventPageLoaded      = "canvas:page-loaded"
	EventPagesChanged    = "canvas:pages-changed"
	EventWidgetAdded     = "canvas:widget-added"
	EventWidgetRemoved   = "canvas:widget-removed"
	EventWidgetSelected  = "canvas:widget-selected"
	EventSelectionClear  = "canvas:selection-cleared"
	EventPropertyChanged = "canvas:property-changed"
	EventLayoutChanged   = "canvas:layout-changed"
	EventContextRefresh  = "canvas:context-refreshed"
	EventEditorToggled   = "canvas:editor-toggled"
)

// EventEmitter delivers controller events to the UI layer.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// NopEmitter drops every event.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, string, any) {}

// RecordingEmitter keeps every emitted event, for tests and headless runs.
type RecordingEmitter struct {
	mu     sync.Mutex
	events []EmittedEvent
}

// EmittedEvent is one recorded emission.
type EmittedEvent struct {
	Event string
	Data  any
}

func (r *RecordingEmitter) Emit(_ context.Context, event string, data any) {
	r.mu.Lock()
	r.events = append(r.events, EmittedEvent{Event: event, Data: data})
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *RecordingEmitter) Events() []EmittedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]EmittedEvent(nil), r.events...)
}

// Named returns the recorded events with the given name.
func (r *RecordingEmitter) Named(event string) []EmittedEvent {
	var out []EmittedEvent
	for _, e := range r.Events() {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

// Cursor shows the busy state while bundles are fetched.
type Cursor interface {
	Wait()
	Default()
}

type nopCursor struct{}

func (nopCursor) Wait()    {}
func (nopCursor) Default() {}

// Geometry is implemented by the rendering layer to report where a grid
// cell is shown on screen.
type Geometry interface {
	Bounds(key string) (domain.Bounds, bool)
}

// GeometryFunc adapts a function to Geometry.
type GeometryFunc func(key string) (domain.Bounds, bool)

func (f GeometryFunc) Bounds(key string) (domain.Bounds, bool) { return f(key) }
