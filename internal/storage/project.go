/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"reportcanvas/internal/domain"
	applog "reportcanvas/internal/log"
)

const (
	ManifestFileName = "report.json"
	BackupsDirName   = "backups"
	ExportsDirName   = "exports"

	backupStamp = "20060102-150405.000"
)

var standardSubDirs = []string{ExportsDirName, BackupsDirName}

// ProjectHandle is a project loaded from or saved to disk.
// Root is the directory containing report.json.
type ProjectHandle struct {
	Root         string
	ManifestPath string
	Project      domain.Project
	// Recovered is set when Open had to fall back to a backup.
	Recovered bool
}

// InitProject creates root and its standard subfolders and writes the manifest.
func InitProject(root string, proj domain.Project) (*ProjectHandle, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("root path is required")
	}
	if err := scaffold(root); err != nil {
		return nil, err
	}
	ph := &ProjectHandle{Root: root, ManifestPath: filepath.Join(root, ManifestFileName), Project: proj}
	if err := Save(ph); err != nil {
		return nil, err
	}
	return ph, nil
}

// Open loads the project at root. If report.json is missing, unreadable or
// invalid, the latest backup is used instead and Recovered is set.
func Open(root string) (*ProjectHandle, error) {
	mpath := filepath.Join(root, ManifestFileName)
	ph := &ProjectHandle{Root: root, ManifestPath: mpath}
	p, err := readManifest(mpath)
	if err == nil {
		ph.Project = p
		return ph, nil
	}
	bp, berr := openFromLatestBackup(root)
	if berr != nil {
		return nil, fmt.Errorf("open manifest: %w; backup attempt: %v", err, berr)
	}
	applog.WithComponent("storage").Warn("manifest unreadable, recovered from backup",
		slog.String("root", root), slog.Any("err", err))
	ph.Project = *bp
	ph.Recovered = true
	return ph, nil
}

func readManifest(path string) (domain.Project, error) {
	var p domain.Project
	b, err := os.ReadFile(path)
	if err != nil {
		return p, err
	}
	if err := Validate(b); err != nil {
		return p, err
	}
	if err := json.Unmarshal(b, &p); err != nil {
		return p, fmt.Errorf("parse manifest: %w", err)
	}
	return p, nil
}

// Marshal renders a project in the on-disk manifest form.
func Marshal(p domain.Project) ([]byte, error) {
	p = normalizeProject(p)
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	return append(data, '\n'), nil
}

// Save writes ph.Project transactionally (temp file and rename) after copying
// the current manifest to a timestamped backup.
func Save(ph *ProjectHandle) error {
	if err := checkHandle(ph); err != nil {
		return err
	}
	data, err := Marshal(ph.Project)
	if err != nil {
		return err
	}
	bdir := filepath.Join(ph.Root, BackupsDirName)
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return fmt.Errorf("ensure backups dir: %w", err)
	}
	if _, statErr := os.Stat(ph.ManifestPath); statErr == nil {
		bpath := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", ManifestFileName, time.Now().Format(backupStamp)))
		if cerr := copyFile(ph.ManifestPath, bpath); cerr != nil {
			return fmt.Errorf("backup current manifest: %w", cerr)
		}
	}
	if err := writeAtomic(ph.ManifestPath, data); err != nil {
		return fmt.Errorf("replace manifest: %w", err)
	}
	ph.Recovered = false
	return nil
}

// SaveAs writes the manifest under newRoot and points the handle there.
func SaveAs(ph *ProjectHandle, newRoot string) error {
	if ph == nil {
		return errors.New("nil ProjectHandle")
	}
	if strings.TrimSpace(newRoot) == "" {
		return errors.New("new root is empty")
	}
	if err := scaffold(newRoot); err != nil {
		return err
	}
	ph.Root = newRoot
	ph.ManifestPath = filepath.Join(newRoot, ManifestFileName)
	return Save(ph)
}

// AutosaveCrashSnapshot writes the in-memory project to the backups folder
// without touching report.json. The file is picked up by Open's backup fallback.
func AutosaveCrashSnapshot(ph *ProjectHandle) (string, error) {
	if err := checkHandle(ph); err != nil {
		return "", err
	}
	data, err := Marshal(ph.Project)
	if err != nil {
		return "", err
	}
	bdir := filepath.Join(ph.Root, BackupsDirName)
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(bdir, fmt.Sprintf("%s.%s.crash.bak", ManifestFileName, time.Now().Format(backupStamp)))
	if err := writeFileSync(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// ExportPath returns a path inside the project's exports folder.
func ExportPath(ph *ProjectHandle, name string) string {
	return filepath.Join(ph.Root, ExportsDirName, name)
}

func checkHandle(ph *ProjectHandle) error {
	if ph == nil {
		return errors.New("nil ProjectHandle")
	}
	if ph.Root == "" || ph.ManifestPath == "" {
		return errors.New("invalid ProjectHandle: missing paths")
	}
	return nil
}

func scaffold(root string) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create project root: %w", err)
	}
	for _, d := range standardSubDirs {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			return fmt.Errorf("create subdir %s: %w", d, err)
		}
	}
	return nil
}

// normalizeProject replaces nil slices so the manifest always carries arrays.
func normalizeProject(p domain.Project) domain.Project {
	if p.GlobalVars == nil {
		p.GlobalVars = []domain.GlobalVariable{}
	}
	if p.Pages == nil {
		p.Pages = []domain.Page{}
	}
	pages := make([]domain.Page, len(p.Pages))
	for i, pg := range p.Pages {
		if pg.Layouts == nil {
			pg.Layouts = []domain.LayoutItem{}
		}
		if pg.ReportWidgets == nil {
			pg.ReportWidgets = []domain.ReportWidgetItem{}
		}
		pages[i] = pg
	}
	p.Pages = pages
	return p
}

// writeAtomic writes to a temp file in the target directory and renames it over path.
func writeAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	temp := f.Name()
	_ = f.Close()
	if err := writeFileSync(temp, data); err != nil {
		_ = os.Remove(temp)
		return err
	}
	if err := os.Rename(temp, path); err != nil {
		// Windows cannot rename over an existing file
		_ = os.Remove(path)
		if err2 := os.Rename(temp, path); err2 != nil {
			_ = os.Remove(temp)
			return err2
		}
	}
	return nil
}

func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

func copyFile(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sf.Close()
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := df.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(df, sf); err != nil {
		return err
	}
	return df.Sync()
}

// ListBackups returns backup file paths, oldest first.
func ListBackups(root string) ([]string, error) {
	bdir := filepath.Join(root, BackupsDirName)
	ents, err := os.ReadDir(bdir)
	if err != nil {
		return nil, fmt.Errorf("read backups dir: %w", err)
	}
	var out []string
	for _, e := range ents {
		name := e.Name()
		if strings.HasPrefix(name, ManifestFileName+".") && strings.HasSuffix(name, ".bak") {
			out = append(out, filepath.Join(bdir, name))
		}
	}
	// timestamp in name yields lexicographic order
	sort.Strings(out)
	return out, nil
}

// openFromLatestBackup returns the newest backup that still parses.
func openFromLatestBackup(root string) (*domain.Project, error) {
	candidates, err := ListBackups(root)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, errors.New("no backups found")
	}
	var lastErr error
	for i := len(candidates) - 1; i >= 0; i-- {
		p, err := readManifest(candidates[i])
		if err == nil {
			return &p, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("no usable backup: %w", lastErr)
}
