/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package widgetpack bundles widget descriptors into zip archives so a widget
// catalog can be shared between designer installations.
package widgetpack

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"reportcanvas/internal/catalog"
	applog "reportcanvas/internal/log"
)

// ManifestName is the archive entry describing the pack.
const ManifestName = "widgetpack.yaml"

// maxDescriptorSize bounds a single extracted descriptor.
const maxDescriptorSize = 1 << 20

// Manifest lists the widgets contained in a pack.
type Manifest struct {
	Created time.Time `yaml:"created"`
	Source  string    `yaml:"source,omitempty"`
	Widgets []Entry   `yaml:"widgets"`
}

// Entry is one packed descriptor.
type Entry struct {
	GID  string `yaml:"gid"`
	Name string `yaml:"name,omitempty"`
	File string `yaml:"file"`
}

// Result reports what InstallPack did.
type Result struct {
	Installed []string
	Skipped   []string
}

// ExportPack writes every valid descriptor of catalogDir into a zip at dest.
// Unparseable descriptors are left out and logged.
func ExportPack(catalogDir, dest string) (Manifest, error) {
	l := applog.WithOperation(applog.WithComponent("widgetpack"), "export").With(slog.String("dir", catalogDir))
	if strings.TrimSpace(catalogDir) == "" || strings.TrimSpace(dest) == "" {
		return Manifest{}, errors.New("catalog dir and destination are required")
	}
	entries, err := os.ReadDir(catalogDir)
	if err != nil {
		return Manifest{}, fmt.Errorf("read catalog: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return Manifest{}, fmt.Errorf("ensure pack dir: %w", err)
	}
	_ = os.Remove(dest)
	zf, err := os.Create(dest)
	if err != nil {
		return Manifest{}, fmt.Errorf("create pack: %w", err)
	}
	defer func() { _ = zf.Close() }()
	zw := zip.NewWriter(zf)

	m := Manifest{Created: time.Now().UTC().Truncate(time.Second), Source: catalogDir}
	for _, e := range entries {
		if e.IsDir() || !catalog.IsDescriptor(e.Name()) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(catalogDir, e.Name()))
		if err != nil {
			return m, err
		}
		def, err := catalog.ParseDescriptor(e.Name(), data)
		if err != nil {
			l.Warn("skip invalid descriptor", slog.String("file", e.Name()), slog.Any("err", err))
			continue
		}
		w, err := zw.Create("widgets/" + e.Name())
		if err != nil {
			return m, fmt.Errorf("add %s: %w", e.Name(), err)
		}
		if _, err := w.Write(data); err != nil {
			return m, fmt.Errorf("write %s: %w", e.Name(), err)
		}
		m.Widgets = append(m.Widgets, Entry{GID: def.GID, Name: def.Name, File: e.Name()})
	}
	sort.Slice(m.Widgets, func(i, j int) bool { return m.Widgets[i].GID < m.Widgets[j].GID })
	mb, err := yaml.Marshal(m)
	if err != nil {
		return m, err
	}
	w, err := zw.Create(ManifestName)
	if err != nil {
		return m, fmt.Errorf("add manifest: %w", err)
	}
	if _, err := w.Write(mb); err != nil {
		return m, fmt.Errorf("write manifest: %w", err)
	}
	if err := zw.Close(); err != nil {
		return m, fmt.Errorf("finish pack: %w", err)
	}
	l.Info("widget pack exported", slog.Int("widgets", len(m.Widgets)), slog.String("zip", dest))
	return m, nil
}

// InstallPack extracts the descriptors of the pack at src into catalogDir.
// Existing files are never overwritten and entries that do not parse as
// descriptors are rejected.
func InstallPack(catalogDir, src string) (Result, error) {
	l := applog.WithOperation(applog.WithComponent("widgetpack"), "install").With(slog.String("dir", catalogDir))
	var res Result
	if strings.TrimSpace(catalogDir) == "" || strings.TrimSpace(src) == "" {
		return res, errors.New("catalog dir and pack path are required")
	}
	if err := os.MkdirAll(catalogDir, 0o755); err != nil {
		return res, fmt.Errorf("ensure catalog dir: %w", err)
	}
	r, err := zip.OpenReader(src)
	if err != nil {
		return res, fmt.Errorf("open pack: %w", err)
	}
	defer func() { _ = r.Close() }()

	for _, f := range r.File {
		if f.FileInfo().IsDir() || f.Name == ManifestName {
			continue
		}
		name := path.Base(f.Name)
		if !strings.HasPrefix(f.Name, "widgets/") || strings.Contains(f.Name, "..") || !catalog.IsDescriptor(name) {
			l.Warn("skip foreign entry", slog.String("entry", f.Name))
			continue
		}
		data, err := readEntry(f)
		if err != nil {
			return res, err
		}
		if _, err := catalog.ParseDescriptor(name, data); err != nil {
			return res, fmt.Errorf("pack entry %s: %w", f.Name, err)
		}
		target := filepath.Join(catalogDir, name)
		if _, err := os.Stat(target); err == nil {
			res.Skipped = append(res.Skipped, name)
			continue
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return res, err
		}
		res.Installed = append(res.Installed, name)
	}
	l.Info("widget pack installed", slog.Int("installed", len(res.Installed)), slog.Int("skipped", len(res.Skipped)))
	return res, nil
}

// ReadManifest returns the manifest of the pack at src.
func ReadManifest(src string) (Manifest, error) {
	var m Manifest
	r, err := zip.OpenReader(src)
	if err != nil {
		return m, fmt.Errorf("open pack: %w", err)
	}
	defer func() { _ = r.Close() }()
	for _, f := range r.File {
		if f.Name != ManifestName {
			continue
		}
		data, err := readEntry(f)
		if err != nil {
			return m, err
		}
		if err := yaml.Unmarshal(data, &m); err != nil {
			return m, fmt.Errorf("parse manifest: %w", err)
		}
		return m, nil
	}
	return m, errors.New("pack has no manifest")
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(io.LimitReader(rc, maxDescriptorSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxDescriptorSize {
		return nil, fmt.Errorf("%s exceeds %d bytes", f.Name, maxDescriptorSize)
	}
	return data, nil
}
