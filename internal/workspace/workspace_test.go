package workspace

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCreateProjectScaffold(t *testing.T) {
	w := NewManager(t.TempDir())

	base, err := w.CreateProject("shop", "apps")
	if err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	for _, d := range projectDirs {
		if fi, err := os.Stat(filepath.Join(base, d)); err != nil || !fi.IsDir() {
			t.Errorf("missing project dir %s: %v", d, err)
		}
	}
	for _, f := range []string{"package.json", "tsconfig.json"} {
		if _, err := os.Stat(filepath.Join(base, f)); err != nil {
			t.Errorf("missing %s: %v", f, err)
		}
	}
}

func TestCreateFile(t *testing.T) {
	w := NewManager(t.TempDir())

	abs, err := w.CreateFile("notes/todo.md", "# todo\n")
	if err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}
	data, err := os.ReadFile(abs)
	if err != nil || string(data) != "# todo\n" {
		t.Errorf("file content = %q, err %v", data, err)
	}
}

func TestCreateDir(t *testing.T) {
	w := NewManager(t.TempDir())
	abs, err := w.CreateDir("a/b/c")
	if err != nil {
		t.Fatalf("CreateDir failed: %v", err)
	}
	if fi, err := os.Stat(abs); err != nil || !fi.IsDir() {
		t.Errorf("dir missing: %v", err)
	}
}

func TestPathEscapeRejected(t *testing.T) {
	w := NewManager(t.TempDir())
	for _, rel := range []string{"../outside", "a/../../outside", "  "} {
		if _, err := w.CreateDir(rel); err == nil {
			t.Errorf("expected rejection for %q", rel)
		}
	}
}
