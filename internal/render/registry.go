/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package render

import (
	"sort"
	"sync"
)

// Sink is implemented by the rendering layer. It is told about individual
// cells so that only affected cells redraw.
type Sink interface {
	Render(c Cell)
	Remove(key string)
}

// NopSink discards notifications.
type NopSink struct{}

func (NopSink) Render(Cell)   {}
func (NopSink) Remove(string) {}

// Registry holds the rendered cell of every widget on the current page.
// Between Hold and Release, sink notifications are queued in order and
// delivered by the last Release; cell state itself updates immediately.
type Registry struct {
	mu      sync.RWMutex
	cells   map[string]Cell
	sink    Sink
	held    int
	pending []func(Sink)
}

// NewRegistry creates a registry notifying sink; nil means NopSink.
func NewRegistry(sink Sink) *Registry {
	if sink == nil {
		sink = NopSink{}
	}
	return &Registry{cells: map[string]Cell{}, sink: sink}
}

// Set stores c and renders it. The revision counts how often a key was rendered.
func (r *Registry) Set(c Cell) Cell {
	r.mu.Lock()
	if prev, ok := r.cells[c.Key]; ok {
		c.Revision = prev.Revision + 1
	} else {
		c.Revision = 1
	}
	r.cells[c.Key] = c
	r.notifyLocked(func(s Sink) { s.Render(c) })
	return c
}

// Unset removes the cell for key.
func (r *Registry) Unset(key string) {
	r.mu.Lock()
	_, ok := r.cells[key]
	delete(r.cells, key)
	if !ok {
		r.mu.Unlock()
		return
	}
	r.notifyLocked(func(s Sink) { s.Remove(key) })
}

// Get returns the cell for key.
func (r *Registry) Get(key string) (Cell, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cells[key]
	return c, ok
}

// Keys returns the registered keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.cells))
	for k := range r.cells {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of registered cells.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cells)
}

// Clear removes every cell, e.g. before a different page is loaded.
func (r *Registry) Clear() {
	r.mu.Lock()
	keys := make([]string, 0, len(r.cells))
	for k := range r.cells {
		keys = append(keys, k)
	}
	r.cells = map[string]Cell{}
	sort.Strings(keys)
	r.notifyLocked(func(s Sink) {
		for _, k := range keys {
			s.Remove(k)
		}
	})
}

// Hold defers sink notifications until the matching Release.
func (r *Registry) Hold() {
	r.mu.Lock()
	r.held++
	r.mu.Unlock()
}

// Release ends a Hold. The last one delivers every queued notification.
func (r *Registry) Release() {
	r.mu.Lock()
	if r.held > 0 {
		r.held--
	}
	if r.held > 0 || len(r.pending) == 0 {
		r.mu.Unlock()
		return
	}
	q := r.pending
	r.pending = nil
	r.mu.Unlock()
	for _, fn := range q {
		fn(r.sink)
	}
}

// notifyLocked unlocks r.mu, then runs fn now or queues it while held.
func (r *Registry) notifyLocked(fn func(Sink)) {
	if r.held > 0 {
		r.pending = append(r.pending, fn)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	fn(r.sink)
}
