/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package widgetpack

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"reportcanvas/internal/catalog"
)

const (
	headerYAML  = "gid: aiverify.stock:header\nname: Header\nwidgetSize: {minW: 4, minH: 2, maxW: 12, maxH: 4}\n"
	dividerYAML = "gid: aiverify.stock:divider\nname: Divider\n"
)

func write(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestExportAndInstallPack(t *testing.T) {
	src := t.TempDir()
	write(t, src, "header.yaml", headerYAML)
	write(t, src, "divider.yml", dividerYAML)
	write(t, src, "broken.yaml", "gid: [")
	write(t, src, "notes.txt", "ignored")

	zipPath := filepath.Join(t.TempDir(), "packs", "stock.zip")
	m, err := ExportPack(src, zipPath)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	want := []Entry{
		{GID: "aiverify.stock:divider", Name: "Divider", File: "divider.yml"},
		{GID: "aiverify.stock:header", Name: "Header", File: "header.yaml"},
	}
	if diff := cmp.Diff(want, m.Widgets); diff != "" {
		t.Fatalf("manifest widgets (-want +got):\n%s", diff)
	}
	read, err := ReadManifest(zipPath)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	if diff := cmp.Diff(m.Widgets, read.Widgets); diff != "" {
		t.Fatalf("stored manifest differs:\n%s", diff)
	}

	dst := t.TempDir()
	write(t, dst, "divider.yml", "gid: local:divider\n")
	res, err := InstallPack(dst, zipPath)
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if diff := cmp.Diff([]string{"header.yaml"}, res.Installed); diff != "" {
		t.Fatalf("installed (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"divider.yml"}, res.Skipped); diff != "" {
		t.Fatalf("skipped (-want +got):\n%s", diff)
	}
	fc, err := catalog.OpenDir(dst)
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	if _, ok := fc.Get("aiverify.stock:header"); !ok {
		t.Fatalf("installed descriptor not in catalog")
	}
	if _, ok := fc.Get("local:divider"); !ok {
		t.Fatalf("existing descriptor must not be overwritten")
	}
}

func TestInstallRejectsForeignEntries(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "evil.zip")
	f, err := os.Create(zipPath)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	zw := zip.NewWriter(f)
	for name, body := range map[string]string{
		"widgets/../escape.yaml": headerYAML,
		"other/header.yaml":      headerYAML,
		"widgets/ok.yaml":        dividerYAML,
	} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	_ = f.Close()

	dst := t.TempDir()
	res, err := InstallPack(dst, zipPath)
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if diff := cmp.Diff([]string{"ok.yaml"}, res.Installed); diff != "" {
		t.Fatalf("installed (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(dst), "escape.yaml")); err == nil {
		t.Fatalf("entry escaped the catalog directory")
	}
	if _, err := ReadManifest(zipPath); err == nil {
		t.Fatalf("expected missing manifest error")
	}
}

func TestInstallFailsOnInvalidDescriptor(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "bad.zip")
	f, err := os.Create(zipPath)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	zw := zip.NewWriter(f)
	w, _ := zw.Create("widgets/nogid.yaml")
	_, _ = w.Write([]byte("name: No GID\n"))
	_ = zw.Close()
	_ = f.Close()
	if _, err := InstallPack(t.TempDir(), zipPath); err == nil {
		t.Fatalf("descriptor without gid must be rejected")
	}
}
