// Package snapshot persists conversation state and restores it on demand.
// A checkpoint is written after every completed assistant turn, keyed by
// that turn's message ID; retention keeps the newest N. System backups
// bundle environment state next to the checkpoint and are pruned on the
// same schedule, independently.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"nexus/internal/logging"
	"nexus/internal/metrics"
	"nexus/internal/types"
)

const (
	messagesDir    = "messages"
	checkpointsDir = "checkpoints"
	backupsDir     = "system_backups"
)

// Summary is one row of List output.
type Summary struct {
	ID        string
	ChatID    string
	Timestamp time.Time
	Preview   string
	Kind      string // "checkpoint" or "backup"
}

// checkpointFile is the on-disk checkpoint shape.
type checkpointFile struct {
	ID        string          `json:"id"`
	ChatID    string          `json:"chat_id"`
	Timestamp time.Time       `json:"timestamp"`
	Messages  []types.Message `json:"messages"`
}

// Manager owns the snapshot directory tree. All methods are fail-soft
// except Restore, which reports a missing id with ErrRestoreNotFound.
type Manager struct {
	dataDir       string
	retention     int
	systemBackups bool
	projectRoot   string
	log           *zap.Logger
}

// NewManager builds a manager over dataDir. The directory tree must
// already exist (config.EnsureDirs creates it).
func NewManager(dataDir string, retention int, systemBackups bool, projectRoot string) *Manager {
	if retention <= 0 {
		retention = 10
	}
	return &Manager{
		dataDir:       dataDir,
		retention:     retention,
		systemBackups: systemBackups,
		projectRoot:   projectRoot,
		log:           logging.L("snapshot"),
	}
}

func (m *Manager) messagesPath(chatID string) string {
	return filepath.Join(m.dataDir, messagesDir, chatID+".json")
}

func (m *Manager) checkpointPath(id string) string {
	return filepath.Join(m.dataDir, checkpointsDir, id+".json")
}

func (m *Manager) backupPath(id string) string {
	return filepath.Join(m.dataDir, backupsDir, id)
}

// Persist writes the chat's live message file and, when the conversation
// ends on an assistant turn, a checkpoint keyed by that turn's message ID.
// Failures are logged and swallowed; persistence never interrupts a
// conversation.
func (m *Manager) Persist(ctx context.Context, chatID string, msgs []types.Message) {
	if len(msgs) == 0 {
		return
	}
	normalized := make([]types.Message, len(msgs))
	for i, msg := range msgs {
		normalized[i] = msg.Normalize()
	}

	if err := m.writeMessages(chatID, normalized); err != nil {
		m.log.Error("persist messages failed",
			zap.String("chat_id", chatID),
			zap.Error(err))
		return
	}

	last := normalized[len(normalized)-1]
	if last.Role != types.RoleAssistant {
		return
	}

	if err := m.writeCheckpoint(chatID, last.ID, normalized); err != nil {
		m.log.Error("checkpoint write failed",
			zap.String("checkpoint_id", last.ID),
			zap.Error(err))
	} else {
		metrics.CheckpointsWritten.Inc()
		m.log.Debug("checkpoint written",
			zap.String("chat_id", chatID),
			zap.String("checkpoint_id", last.ID))
	}

	if m.systemBackups {
		if err := m.writeSystemBackup(ctx, chatID, last.ID, normalized); err != nil {
			m.log.Warn("system backup failed",
				zap.String("backup_id", last.ID),
				zap.Error(err))
		}
	}

	m.Prune()
}

// writeMessages atomically replaces the chat's live message file.
func (m *Manager) writeMessages(chatID string, msgs []types.Message) error {
	data, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return err
	}
	path := m.messagesPath(chatID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &types.PersistenceError{Path: path, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		return &types.PersistenceError{Path: path, Err: err}
	}
	return nil
}

func (m *Manager) writeCheckpoint(chatID, id string, msgs []types.Message) error {
	cp := checkpointFile{
		ID:        id,
		ChatID:    chatID,
		Timestamp: time.Now().UTC(),
		Messages:  msgs,
	}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return err
	}
	path := m.checkpointPath(id)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &types.PersistenceError{Path: path, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		return &types.PersistenceError{Path: path, Err: err}
	}
	return nil
}

// Prune trims checkpoints and system backups to the newest N by mtime.
// The two categories are counted independently.
func (m *Manager) Prune() {
	m.pruneDir(filepath.Join(m.dataDir, checkpointsDir), false)
	m.pruneDir(filepath.Join(m.dataDir, backupsDir), true)
}

func (m *Manager) pruneDir(dir string, dirs bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	type candidate struct {
		path  string
		mtime time.Time
	}
	var found []candidate
	for _, e := range entries {
		if e.IsDir() != dirs {
			continue
		}
		if !dirs && (!strings.HasSuffix(e.Name(), ".json") || strings.HasSuffix(e.Name(), ".tmp")) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		found = append(found, candidate{
			path:  filepath.Join(dir, e.Name()),
			mtime: info.ModTime(),
		})
	}
	if len(found) <= m.retention {
		return
	}
	sort.Slice(found, func(i, j int) bool { return found[i].mtime.After(found[j].mtime) })
	for _, c := range found[m.retention:] {
		if err := os.RemoveAll(c.path); err != nil {
			m.log.Warn("prune failed", zap.String("path", c.path), zap.Error(err))
			continue
		}
		metrics.CheckpointsPruned.Inc()
	}
}

// Restore brings back the conversation saved under id. A system backup
// wins over a plain checkpoint; restoring a backup also re-extracts the
// bundled project tree. The restored messages become the chat's live
// history. Unknown ids return ErrRestoreNotFound.
func (m *Manager) Restore(ctx context.Context, id string) ([]types.Message, error) {
	msgs, chatID, err := m.restoreBackup(ctx, id)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if errors.Is(err, os.ErrNotExist) {
		msgs, chatID, err = m.restoreCheckpoint(id)
		if errors.Is(err, os.ErrNotExist) {
			return nil, types.ErrRestoreNotFound
		}
		if err != nil {
			return nil, err
		}
	}

	if err := m.writeMessages(chatID, msgs); err != nil {
		return nil, fmt.Errorf("rewrite live history: %w", err)
	}
	m.log.Info("conversation restored",
		zap.String("id", id),
		zap.String("chat_id", chatID),
		zap.Int("messages", len(msgs)))
	return msgs, nil
}

func (m *Manager) restoreCheckpoint(id string) ([]types.Message, string, error) {
	data, err := os.ReadFile(m.checkpointPath(id))
	if err != nil {
		return nil, "", err
	}
	var cp checkpointFile
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, "", fmt.Errorf("corrupt checkpoint %s: %w", id, err)
	}
	return cp.Messages, cp.ChatID, nil
}

// List returns checkpoint and backup summaries newest first. Corrupt files
// are logged and skipped.
func (m *Manager) List(ctx context.Context) []Summary {
	var out []Summary

	cpDir := filepath.Join(m.dataDir, checkpointsDir)
	if entries, err := os.ReadDir(cpDir); err == nil {
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			data, err := os.ReadFile(filepath.Join(cpDir, e.Name()))
			if err != nil {
				continue
			}
			var cp checkpointFile
			if err := json.Unmarshal(data, &cp); err != nil {
				m.log.Warn("skipping corrupt checkpoint",
					zap.String("file", e.Name()),
					zap.Error(err))
				continue
			}
			out = append(out, Summary{
				ID:        cp.ID,
				ChatID:    cp.ChatID,
				Timestamp: cp.Timestamp,
				Preview:   preview(cp.Messages),
				Kind:      "checkpoint",
			})
		}
	}

	out = append(out, m.listBackups()...)

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// ClearHistory removes the chat's live message file. Checkpoints and
// backups stay; clearing is not pruning.
func (m *Manager) ClearHistory(chatID string) {
	if err := os.Remove(m.messagesPath(chatID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		m.log.Warn("clear history failed",
			zap.String("chat_id", chatID),
			zap.Error(err))
	}
}

// LoadHistory reads the chat's live message file. A missing file is an
// empty history.
func (m *Manager) LoadHistory(chatID string) []types.Message {
	data, err := os.ReadFile(m.messagesPath(chatID))
	if err != nil {
		return nil
	}
	var msgs []types.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		m.log.Warn("corrupt message file",
			zap.String("chat_id", chatID),
			zap.Error(err))
		return nil
	}
	return msgs
}

func preview(msgs []types.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == types.RoleUser {
			return truncate(msgs[i].Content, 60)
		}
	}
	if len(msgs) > 0 {
		return truncate(msgs[len(msgs)-1].Content, 60)
	}
	return ""
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
