/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package project holds the in-memory editing session of one report. A
// Session is the explicit context handed to the canvas controller: pages,
// bundle cache, property bindings, widget catalog and rendered cells.
package project

import (
	"sync"

	"reportcanvas/internal/bundle"
	"reportcanvas/internal/catalog"
	"reportcanvas/internal/domain"
	"reportcanvas/internal/layout"
	"reportcanvas/internal/properties"
	"reportcanvas/internal/render"
)

// Session is a report being edited. It is safe for concurrent use.
type Session struct {
	Pages   *layout.Store
	Loader  *bundle.Loader
	Catalog catalog.Catalog
	Cells   *render.Registry

	deps *Dependencies

	mu       sync.RWMutex
	name     string
	template bool
	readonly bool
	info     domain.ProjectInfo
	globals  []domain.GlobalVariable
	props    *properties.Store
}

// NewSession builds a session for p. Dependencies of widgets already placed
// in p are registered when cat knows their definitions.
func NewSession(p domain.Project, cat catalog.Catalog, loader *bundle.Loader, sink render.Sink) *Session {
	if cat == nil {
		cat = catalog.NewMemoryCatalog()
	}
	s := &Session{
		Pages:    layout.NewStore(p.Pages),
		Loader:   loader,
		Catalog:  cat,
		Cells:    render.NewRegistry(sink),
		deps:     NewDependencies(),
		name:     p.Name,
		template: p.Template,
		readonly: p.Readonly,
		info:     p.Info,
		globals:  append([]domain.GlobalVariable(nil), p.GlobalVars...),
	}
	s.props = properties.New(s.info, s.globals)
	s.SyncDependencies()
	return s
}

// Name returns the report name.
func (s *Session) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// Template reports whether the session edits a report template.
func (s *Session) Template() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.template
}

// Readonly reports whether destructive edits are disabled.
func (s *Session) Readonly() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readonly
}

// SetReadonly toggles read-only mode.
func (s *Session) SetReadonly(v bool) {
	s.mu.Lock()
	s.readonly = v
	s.mu.Unlock()
}

// Info returns the project info fields.
func (s *Session) Info() domain.ProjectInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info
}

// GlobalVars returns a copy of the user-defined variables.
func (s *Session) GlobalVars() []domain.GlobalVariable {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.GlobalVariable(nil), s.globals...)
}

// Properties returns the current property store snapshot.
func (s *Session) Properties() *properties.Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.props
}

// SetGlobals replaces the global variables and recomputes the property store.
func (s *Session) SetGlobals(vars []domain.GlobalVariable) *properties.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globals = append([]domain.GlobalVariable(nil), vars...)
	s.props = properties.New(s.info, s.globals)
	return s.props
}

// SetProjectInfo replaces the project info and recomputes the property store.
func (s *Session) SetProjectInfo(info domain.ProjectInfo) *properties.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info = info
	if info.Name != "" {
		s.name = info.Name
	}
	s.props = properties.New(s.info, s.globals)
	return s.props
}

// Widget looks up a widget definition in the catalog.
func (s *Session) Widget(gid string) (domain.WidgetDefinition, bool) {
	return s.Catalog.Get(gid)
}

// Dependencies returns the widget dependency registry.
func (s *Session) Dependencies() *Dependencies { return s.deps }

// AddReportWidget registers the dependencies of a newly placed widget.
func (s *Session) AddReportWidget(item domain.ReportWidgetItem, def domain.WidgetDefinition) {
	s.deps.Add(item.Key, def.Dependencies)
}

// RemoveReportWidget releases the dependencies registered for key.
func (s *Session) RemoveReportWidget(key string) {
	s.deps.Remove(key)
}

// SyncDependencies rebuilds the dependency registry from every placed widget.
func (s *Session) SyncDependencies() {
	s.deps.Reset()
	for _, pg := range s.Pages.Pages() {
		for _, w := range pg.ReportWidgets {
			if def, ok := s.Catalog.Get(w.WidgetGID); ok {
				s.deps.Add(w.Key, def.Dependencies)
			}
		}
	}
}

// Project assembles the persisted project document from the session state.
func (s *Session) Project() domain.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.Project{
		Name:       s.name,
		Template:   s.template,
		Readonly:   s.readonly,
		Info:       s.info,
		GlobalVars: append([]domain.GlobalVariable{}, s.globals...),
		Pages:      s.Pages.Pages(),
	}
}

// Load replaces the session content with p, keeping the bundle cache and catalog.
func (s *Session) Load(p domain.Project) {
	s.mu.Lock()
	s.name, s.template, s.readonly = p.Name, p.Template, p.Readonly
	s.info = p.Info
	s.globals = append([]domain.GlobalVariable(nil), p.GlobalVars...)
	s.props = properties.New(s.info, s.globals)
	s.mu.Unlock()
	s.Cells.Clear()
	s.Pages.Replace(p.Pages)
	s.SyncDependencies()
}
