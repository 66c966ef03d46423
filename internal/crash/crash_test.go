package crash

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reportcanvas/internal/domain"
	"reportcanvas/internal/storage"
)

func TestWriteReportInTempDir(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())
	path, err := writeReport(nil, "boom", []byte("stacktrace"))
	if err != nil {
		t.Fatalf("writeReport: %v", err)
	}
	if filepath.Dir(path) != os.TempDir() {
		t.Fatalf("report %s not in temp dir", path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	s := string(b)
	for _, want := range []string{"Report Canvas Crash Report", "Panic: boom", "stacktrace"} {
		if !strings.Contains(s, want) {
			t.Fatalf("report lacks %q:\n%s", want, s)
		}
	}
	if strings.Contains(s, "Design:") {
		t.Fatalf("report without a project must not describe a design")
	}
}

func TestWriteReportDescribesOpenDesign(t *testing.T) {
	root := t.TempDir()
	ph := &storage.ProjectHandle{
		Root:         root,
		ManifestPath: filepath.Join(root, storage.ManifestFileName),
		Project: domain.Project{Name: "Quarterly", Pages: []domain.Page{
			{ReportWidgets: []domain.ReportWidgetItem{{Key: "a"}, {Key: "b"}}},
			{},
		}},
	}
	path, err := writeReport(ph, "kaboom", []byte("stack"))
	if err != nil {
		t.Fatalf("writeReport: %v", err)
	}
	if filepath.Dir(path) != filepath.Join(root, storage.BackupsDirName) {
		t.Fatalf("expected crash report under backups dir, got %s", path)
	}
	b, _ := os.ReadFile(path)
	if !strings.Contains(string(b), `Design: "Quarterly", 2 pages, 2 widgets`) {
		t.Fatalf("design summary missing:\n%s", b)
	}
}
