/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crash writes a crash report and autosaves the open report when the CLI panics.
package crash

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	applog "reportcanvas/internal/log"
	"reportcanvas/internal/storage"
	"reportcanvas/internal/version"
)

// Test hooks.
var (
	exitFn           = os.Exit
	stderr io.Writer = os.Stderr
	now              = time.Now
)

// Recover must be deferred directly: defer crash.Recover(ph).
// The panic is logged with its stack and written to a crash report, and an
// open report is autosaved next to its manifest backups. ph may be nil.
func Recover(ph *storage.ProjectHandle) {
	if r := recover(); r != nil {
		Handle(ph, r)
	}
}

// Handle runs the crash path for a panic value the caller already recovered.
func Handle(ph *storage.ProjectHandle, r any) {
	l := applog.WithComponent("crash")
	stack := debug.Stack()
	l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

	reportPath, err := writeReport(ph, r, stack)
	if err != nil {
		l.Error("crash report not written", slog.Any("err", err), slog.String("path", reportPath))
	}
	var saved string
	if ph != nil {
		if saved, err = storage.AutosaveCrashSnapshot(ph); err != nil {
			l.Error("crash autosave failed", slog.Any("err", err))
		}
	}

	fmt.Fprintf(stderr, "reportcanvas stopped unexpectedly (%s, %s/%s).\n", version.String(), runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(stderr, "Crash report: %s\n", reportPath)
	if saved != "" {
		fmt.Fprintf(stderr, "Unsaved changes were kept in %s\n", saved)
	}
	exitFn(2)
}

// reportDir is the backups folder of the open report, or the temp dir.
func reportDir(ph *storage.ProjectHandle) string {
	if ph == nil || ph.Root == "" {
		return os.TempDir()
	}
	dir := filepath.Join(ph.Root, storage.BackupsDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return os.TempDir()
	}
	return dir
}

func writeReport(ph *storage.ProjectHandle, panicVal any, stack []byte) (string, error) {
	at := now()
	path := filepath.Join(reportDir(ph), "crash-"+at.Format("20060102-150405")+".log")

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Report Canvas Crash Report\n")
	fmt.Fprintf(&buf, "Timestamp: %s\n", at.Format(time.RFC3339))
	fmt.Fprintf(&buf, "Version: %s\n", version.String())
	fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if ph != nil {
		widgets := 0
		for _, pg := range ph.Project.Pages {
			widgets += len(pg.ReportWidgets)
		}
		fmt.Fprintf(&buf, "Report: %s\n", ph.ManifestPath)
		fmt.Fprintf(&buf, "Design: %q, %d pages, %d widgets\n", ph.Project.Name, len(ph.Project.Pages), widgets)
	}
	fmt.Fprintf(&buf, "\nPanic: %v\n\nStack:\n%s\n", panicVal, stack)

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return path, err
	}
	return path, nil
}
