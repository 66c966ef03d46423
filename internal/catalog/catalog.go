/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package catalog provides read-only widget definitions by GID.
package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"reportcanvas/internal/domain"
	applog "reportcanvas/internal/log"
)

// Catalog resolves widget definitions.
type Catalog interface {
	Get(gid string) (domain.WidgetDefinition, bool)
	List() []domain.WidgetDefinition
}

// MemoryCatalog is a fixed in-memory catalog.
type MemoryCatalog struct {
	defs map[string]domain.WidgetDefinition
}

// NewMemoryCatalog returns a catalog of defs. Later duplicates replace earlier ones.
func NewMemoryCatalog(defs ...domain.WidgetDefinition) *MemoryCatalog {
	m := &MemoryCatalog{defs: make(map[string]domain.WidgetDefinition, len(defs))}
	for _, d := range defs {
		m.defs[d.GID] = d
	}
	return m
}

func (m *MemoryCatalog) Get(gid string) (domain.WidgetDefinition, bool) {
	d, ok := m.defs[gid]
	return d, ok
}

func (m *MemoryCatalog) List() []domain.WidgetDefinition { return sortedDefs(m.defs) }

// FileCatalog loads widget descriptors (*.yaml, *.yml) from a directory.
// Each file describes one widget.
type FileCatalog struct {
	dir string
	log *slog.Logger

	mu   sync.RWMutex
	defs map[string]domain.WidgetDefinition
	src  map[string]string // file path -> gid
}

// OpenDir loads every descriptor in dir. Files that fail to parse are logged
// and skipped; a missing directory is an error.
func OpenDir(dir string) (*FileCatalog, error) {
	fc := &FileCatalog{dir: dir, log: applog.WithComponent("catalog")}
	if err := fc.Reload(); err != nil {
		return nil, err
	}
	return fc, nil
}

// Dir returns the watched directory.
func (fc *FileCatalog) Dir() string { return fc.dir }

// Reload re-reads the whole directory.
func (fc *FileCatalog) Reload() error {
	entries, err := os.ReadDir(fc.dir)
	if err != nil {
		return fmt.Errorf("read catalog dir: %w", err)
	}
	defs := map[string]domain.WidgetDefinition{}
	src := map[string]string{}
	for _, e := range entries {
		if e.IsDir() || !IsDescriptor(e.Name()) {
			continue
		}
		p := filepath.Join(fc.dir, e.Name())
		d, err := LoadDescriptor(p)
		if err != nil {
			fc.log.Warn("skipping widget descriptor", slog.String("path", p), slog.Any("err", err))
			continue
		}
		defs[d.GID] = d
		src[p] = d.GID
	}
	fc.mu.Lock()
	fc.defs = defs
	fc.src = src
	fc.mu.Unlock()
	fc.log.Debug("catalog loaded", slog.String("dir", fc.dir), slog.Int("widgets", len(defs)))
	return nil
}

// reloadFile applies a single file change and returns the affected GID.
func (fc *FileCatalog) reloadFile(path string) (string, error) {
	d, err := LoadDescriptor(path)
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if old, ok := fc.src[path]; ok {
		delete(fc.defs, old)
		delete(fc.src, path)
		if err != nil {
			return old, nil
		}
	}
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	fc.defs[d.GID] = d
	fc.src[path] = d.GID
	return d.GID, nil
}

func (fc *FileCatalog) Get(gid string) (domain.WidgetDefinition, bool) {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	d, ok := fc.defs[gid]
	return d, ok
}

func (fc *FileCatalog) List() []domain.WidgetDefinition {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	return sortedDefs(fc.defs)
}

// LoadDescriptor parses one YAML widget descriptor.
func LoadDescriptor(path string) (domain.WidgetDefinition, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return domain.WidgetDefinition{}, err
	}
	return ParseDescriptor(filepath.Base(path), b)
}

// ParseDescriptor decodes descriptor data; name is used in error messages.
func ParseDescriptor(name string, data []byte) (domain.WidgetDefinition, error) {
	var d domain.WidgetDefinition
	if err := yaml.Unmarshal(data, &d); err != nil {
		return d, fmt.Errorf("parse %s: %w", name, err)
	}
	if strings.TrimSpace(d.GID) == "" {
		return d, fmt.Errorf("%s: gid is required", name)
	}
	if d.Size.MinW < 1 {
		d.Size.MinW = 1
	}
	if d.Size.MinH < 1 {
		d.Size.MinH = 1
	}
	return d, nil
}

// IsDescriptor reports whether a file name has a descriptor extension.
func IsDescriptor(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

func sortedDefs(m map[string]domain.WidgetDefinition) []domain.WidgetDefinition {
	out := make([]domain.WidgetDefinition, 0, len(m))
	for _, d := range m {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GID < out[j].GID })
	return out
}
