/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package project

import (
	"sort"
	"sync"

	"reportcanvas/internal/domain"
)

// DependencyUse is one algorithm or input block required by placed widgets.
type DependencyUse struct {
	GID     string
	Version string
	Count   int
}

// Dependencies reference-counts the dependency GIDs of placed widgets.
// Each widget key is registered at most once.
type Dependencies struct {
	mu       sync.Mutex
	byWidget map[string][]domain.WidgetDependency
	counts   map[string]int
	versions map[string]string
}

// NewDependencies creates an empty registry.
func NewDependencies() *Dependencies {
	d := &Dependencies{}
	d.Reset()
	return d
}

// Add registers deps for the widget key. Widgets without dependencies and
// keys already registered are ignored.
func (d *Dependencies) Add(key string, deps []domain.WidgetDependency) {
	if len(deps) == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byWidget[key]; ok {
		return
	}
	d.byWidget[key] = append([]domain.WidgetDependency(nil), deps...)
	for _, dep := range deps {
		d.counts[dep.GID]++
		if dep.Version != "" {
			d.versions[dep.GID] = dep.Version
		}
	}
}

// Remove releases the dependencies of key. Unknown keys are a no-op.
func (d *Dependencies) Remove(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	deps, ok := d.byWidget[key]
	if !ok {
		return
	}
	delete(d.byWidget, key)
	for _, dep := range deps {
		d.counts[dep.GID]--
		if d.counts[dep.GID] <= 0 {
			delete(d.counts, dep.GID)
			delete(d.versions, dep.GID)
		}
	}
}

// Count returns how many placed widgets depend on gid.
func (d *Dependencies) Count(gid string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counts[gid]
}

// List returns the required dependencies sorted by GID.
func (d *Dependencies) List() []DependencyUse {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DependencyUse, 0, len(d.counts))
	for gid, n := range d.counts {
		out = append(out, DependencyUse{GID: gid, Version: d.versions[gid], Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GID < out[j].GID })
	return out
}

// Reset forgets all registrations.
func (d *Dependencies) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byWidget = map[string][]domain.WidgetDependency{}
	d.counts = map[string]int{}
	d.versions = map[string]string{}
}
