// Package workspace executes the file and project actions the command
// router completes. Everything happens under a single configured root.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"nexus/internal/logging"
)

// Manager creates projects, files and directories under root.
type Manager struct {
	root string
	log  *zap.Logger
}

func NewManager(root string) *Manager {
	return &Manager{root: root, log: logging.L("workspace")}
}

// resolve joins rel to the root and rejects escapes.
func (w *Manager) resolve(rel string) (string, error) {
	if strings.TrimSpace(rel) == "" {
		return "", fmt.Errorf("empty path")
	}
	abs := filepath.Join(w.root, filepath.FromSlash(rel))
	cleanRoot := filepath.Clean(w.root)
	if abs != cleanRoot && !strings.HasPrefix(abs, cleanRoot+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes workspace: %s", rel)
	}
	return abs, nil
}

var projectDirs = []string{
	"src/components",
	"src/pages",
	"src/services",
	"src/types",
}

// CreateProject scaffolds a web project skeleton at path/name: the src
// tree plus package.json and tsconfig.json stubs.
func (w *Manager) CreateProject(name, path string) (string, error) {
	base, err := w.resolve(filepath.Join(path, name))
	if err != nil {
		return "", err
	}
	for _, d := range projectDirs {
		if err := os.MkdirAll(filepath.Join(base, d), 0o755); err != nil {
			return "", fmt.Errorf("create project tree: %w", err)
		}
	}

	pkg := fmt.Sprintf(`{
  "name": %q,
  "version": "0.1.0",
  "private": true
}
`, name)
	if err := os.WriteFile(filepath.Join(base, "package.json"), []byte(pkg), 0o644); err != nil {
		return "", err
	}

	tsconfig := `{
  "compilerOptions": {
    "target": "ES2020",
    "module": "ESNext",
    "strict": true,
    "outDir": "dist"
  },
  "include": ["src"]
}
`
	if err := os.WriteFile(filepath.Join(base, "tsconfig.json"), []byte(tsconfig), 0o644); err != nil {
		return "", err
	}

	w.log.Info("project created", zap.String("name", name), zap.String("path", base))
	return base, nil
}

// CreateFile writes content to rel, creating parent directories.
func (w *Manager) CreateFile(rel, content string) (string, error) {
	abs, err := w.resolve(rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return "", err
	}
	w.log.Info("file created", zap.String("path", abs))
	return abs, nil
}

// CreateDir creates the directory rel and its parents.
func (w *Manager) CreateDir(rel string) (string, error) {
	abs, err := w.resolve(rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", err
	}
	w.log.Info("directory created", zap.String("path", abs))
	return abs, nil
}
