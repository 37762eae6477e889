package snapshot

import (
	"archive/tar"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"nexus/internal/types"
)

const (
	backupMessagesFile = "messages.json"
	backupPackagesFile = "packages.txt"
	backupServicesFile = "services.json"
	backupArchiveFile  = "project.tar.zst"
	backupMetadataFile = "metadata.json"

	// Files larger than this are left out of the project archive.
	maxArchiveFileSize = 8 << 20
)

// Directories never worth bundling.
var archiveSkipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	".venv":        true,
	"dist":         true,
	"build":        true,
}

type backupMetadata struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	Timestamp time.Time `json:"timestamp"`
	GoVersion string    `json:"go_version"`
	Hostname  string    `json:"hostname,omitempty"`
}

type serviceStatus struct {
	Name   string `json:"name"`
	Active string `json:"active"`
}

// writeSystemBackup bundles the conversation, environment manifests and
// the project tree under system_backups/<id>/. Manifest collection runs
// concurrently; any single collector failing fails the backup as a whole,
// which Persist logs and moves past.
func (m *Manager) writeSystemBackup(ctx context.Context, chatID, id string, msgs []types.Message) error {
	dir := m.backupPath(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		data, err := json.MarshalIndent(msgs, "", "  ")
		if err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(dir, backupMessagesFile), data, 0o644)
	})

	g.Go(func() error {
		return os.WriteFile(filepath.Join(dir, backupPackagesFile), collectPackages(), 0o644)
	})

	g.Go(func() error {
		data, err := json.Marshal(collectServices(gctx))
		if err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(dir, backupServicesFile), data, 0o644)
	})

	g.Go(func() error {
		if m.projectRoot == "" {
			return nil
		}
		return archiveTree(m.projectRoot, filepath.Join(dir, backupArchiveFile))
	})

	g.Go(func() error {
		hostname, _ := os.Hostname()
		meta := backupMetadata{
			ID:        id,
			ChatID:    chatID,
			Timestamp: time.Now().UTC(),
			GoVersion: runtime.Version(),
			Hostname:  hostname,
		}
		data, err := json.MarshalIndent(meta, "", "  ")
		if err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(dir, backupMetadataFile), data, 0o644)
	})

	if err := g.Wait(); err != nil {
		os.RemoveAll(dir)
		return err
	}
	return nil
}

// collectPackages renders the running binary's module manifest. When build
// info is unavailable the manifest just says so.
func collectPackages() []byte {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return []byte("build info unavailable\n")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", info.Main.Path, info.Main.Version)
	for _, dep := range info.Deps {
		fmt.Fprintf(&b, "%s %s\n", dep.Path, dep.Version)
	}
	return []byte(b.String())
}

// collectServices asks systemctl for running units. Absent systemctl or a
// failing call yields an empty list, never an error.
func collectServices(ctx context.Context) []serviceStatus {
	if _, err := exec.LookPath("systemctl"); err != nil {
		return []serviceStatus{}
	}
	cmd := exec.CommandContext(ctx, "systemctl", "list-units",
		"--type=service", "--state=running", "--no-legend", "--plain")
	out, err := cmd.Output()
	if err != nil {
		return []serviceStatus{}
	}
	var services []serviceStatus
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		services = append(services, serviceStatus{Name: fields[0], Active: fields[3]})
	}
	return services
}

// archiveTree writes root as a zstd-compressed tar. Oversized files and
// the usual dependency directories are skipped.
func archiveTree(root, dest string) error {
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return err
	}
	defer zw.Close()

	tw := tar.NewWriter(zw)
	defer tw.Close()

	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if archiveSkipDirs[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() || info.Size() > maxArchiveFileSize {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(tw, src)
		src.Close()
		return err
	})
	if err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return zw.Close()
}

// restoreBackup restores from system_backups/<id>/. Returns os.ErrNotExist
// when no such backup exists. The project tree, when bundled, is
// re-extracted over projectRoot.
func (m *Manager) restoreBackup(ctx context.Context, id string) ([]types.Message, string, error) {
	dir := m.backupPath(id)
	if _, err := os.Stat(dir); err != nil {
		return nil, "", os.ErrNotExist
	}

	data, err := os.ReadFile(filepath.Join(dir, backupMessagesFile))
	if err != nil {
		return nil, "", fmt.Errorf("backup %s: %w", id, err)
	}
	var msgs []types.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, "", fmt.Errorf("corrupt backup %s: %w", id, err)
	}

	chatID := id
	if meta, err := m.readBackupMetadata(id); err == nil && meta.ChatID != "" {
		chatID = meta.ChatID
	}

	if m.projectRoot != "" {
		archive := filepath.Join(dir, backupArchiveFile)
		if _, err := os.Stat(archive); err == nil {
			if err := extractTree(archive, m.projectRoot); err != nil {
				m.log.Warn("project re-extract failed",
					zap.String("backup_id", id),
					zap.Error(err))
			}
		}
	}
	return msgs, chatID, nil
}

func (m *Manager) readBackupMetadata(id string) (backupMetadata, error) {
	var meta backupMetadata
	data, err := os.ReadFile(filepath.Join(m.backupPath(id), backupMetadataFile))
	if err != nil {
		return meta, err
	}
	err = json.Unmarshal(data, &meta)
	return meta, err
}

// extractTree unpacks a zstd tar under root, refusing paths that escape it.
func extractTree(archive, root string) error {
	f, err := os.Open(archive)
	if err != nil {
		return err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		dest := filepath.Join(root, filepath.FromSlash(hdr.Name))
		if !strings.HasPrefix(dest, filepath.Clean(root)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry escapes root: %s", hdr.Name)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode)&0o777)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return err
		}
		out.Close()
	}
}

// listBackups summarizes the system_backups directory for List.
func (m *Manager) listBackups() []Summary {
	dir := filepath.Join(m.dataDir, backupsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []Summary
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		meta, err := m.readBackupMetadata(e.Name())
		if err != nil {
			m.log.Warn("skipping backup without metadata",
				zap.String("backup_id", e.Name()),
				zap.Error(err))
			continue
		}
		summary := Summary{
			ID:        meta.ID,
			ChatID:    meta.ChatID,
			Timestamp: meta.Timestamp,
			Kind:      "backup",
		}
		if data, err := os.ReadFile(filepath.Join(dir, e.Name(), backupMessagesFile)); err == nil {
			var msgs []types.Message
			if json.Unmarshal(data, &msgs) == nil {
				summary.Preview = preview(msgs)
			}
		}
		out = append(out, summary)
	}
	return out
}
