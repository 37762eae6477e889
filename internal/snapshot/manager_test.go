package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"nexus/internal/types"
)

func newTestManager(t *testing.T, retention int) *Manager {
	t.Helper()
	dir := t.TempDir()
	for _, sub := range []string{messagesDir, checkpointsDir, backupsDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return NewManager(dir, retention, false, "")
}

func conversation(lastRole types.Role) []types.Message {
	return []types.Message{
		types.NewMessage(types.RoleUser, "what is the capital of France"),
		types.NewMessage(lastRole, "Paris"),
	}
}

func TestPersistWritesCheckpointAfterAssistantTurn(t *testing.T) {
	m := newTestManager(t, 10)
	msgs := conversation(types.RoleAssistant)

	m.Persist(context.Background(), "chat-1", msgs)

	// Keyed by the assistant message's ID.
	cpPath := m.checkpointPath(msgs[1].ID)
	if _, err := os.Stat(cpPath); err != nil {
		t.Fatalf("checkpoint missing: %v", err)
	}
	if _, err := os.Stat(m.messagesPath("chat-1")); err != nil {
		t.Fatalf("live message file missing: %v", err)
	}
}

func TestPersistSkipsCheckpointAfterUserTurn(t *testing.T) {
	m := newTestManager(t, 10)
	msgs := []types.Message{
		types.NewMessage(types.RoleAssistant, "Paris"),
		types.NewMessage(types.RoleUser, "thanks"),
	}

	m.Persist(context.Background(), "chat-1", msgs)

	entries, _ := os.ReadDir(filepath.Join(m.dataDir, checkpointsDir))
	if len(entries) != 0 {
		t.Fatalf("no checkpoint expected, found %d files", len(entries))
	}
	if _, err := os.Stat(m.messagesPath("chat-1")); err != nil {
		t.Fatalf("live message file must still be written: %v", err)
	}
}

func TestPersistNormalizesMessages(t *testing.T) {
	m := newTestManager(t, 10)
	msgs := []types.Message{
		{Role: types.RoleUser, Content: "no id here"},
		{Role: types.RoleAssistant, Content: "reply"},
	}

	m.Persist(context.Background(), "chat-1", msgs)

	got := m.LoadHistory("chat-1")
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	for _, msg := range got {
		if msg.ID == "" || msg.Timestamp.IsZero() {
			t.Errorf("message not normalized: %+v", msg)
		}
	}
}

func TestPruneRetention(t *testing.T) {
	const retention = 3
	m := newTestManager(t, retention)

	for i := 0; i < retention+2; i++ {
		msgs := conversation(types.RoleAssistant)
		m.Persist(context.Background(), "chat-1", msgs)
		// Distinct mtimes so ordering is deterministic.
		os.Chtimes(m.checkpointPath(msgs[1].ID), time.Now(), time.Now().Add(time.Duration(i)*time.Second))
	}

	entries, _ := os.ReadDir(filepath.Join(m.dataDir, checkpointsDir))
	if len(entries) != retention {
		t.Fatalf("expected %d checkpoints after prune, got %d", retention, len(entries))
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	m := newTestManager(t, 10)
	msgs := conversation(types.RoleAssistant)
	m.Persist(context.Background(), "chat-1", msgs)

	// Normalize the expectation the way Persist does.
	want := make([]types.Message, len(msgs))
	for i, msg := range msgs {
		want[i] = msg.Normalize()
	}

	got, err := m.Restore(context.Background(), msgs[1].ID)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("restored messages mismatch (-want +got):\n%s", diff)
	}

	// Restore rewrites the live file.
	live := m.LoadHistory("chat-1")
	if diff := cmp.Diff(want, live); diff != "" {
		t.Errorf("live history mismatch (-want +got):\n%s", diff)
	}
}

func TestRestoreUnknownID(t *testing.T) {
	m := newTestManager(t, 10)
	_, err := m.Restore(context.Background(), "no-such-id")
	if !errors.Is(err, types.ErrRestoreNotFound) {
		t.Fatalf("expected ErrRestoreNotFound, got %v", err)
	}
}

func TestListSkipsCorruptFiles(t *testing.T) {
	m := newTestManager(t, 10)

	msgs := conversation(types.RoleAssistant)
	m.Persist(context.Background(), "chat-1", msgs)
	os.WriteFile(filepath.Join(m.dataDir, checkpointsDir, "broken.json"), []byte("{not json"), 0o644)

	got := m.List(context.Background())
	if len(got) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(got))
	}
	if got[0].ID != msgs[1].ID || got[0].Kind != "checkpoint" {
		t.Errorf("unexpected summary: %+v", got[0])
	}
	if got[0].Preview == "" {
		t.Error("summary preview is empty")
	}
}

func TestListSortedNewestFirst(t *testing.T) {
	m := newTestManager(t, 10)

	var ids []string
	for i := 0; i < 3; i++ {
		msgs := conversation(types.RoleAssistant)
		m.Persist(context.Background(), "chat-1", msgs)
		ids = append(ids, msgs[1].ID)
		// Checkpoint timestamps come from the wall clock; force order.
		stamped := []byte(fmt.Sprintf(`{"id":"%s","chat_id":"chat-1","timestamp":"2026-01-0%dT00:00:00Z","messages":[]}`, msgs[1].ID, i+1))
		os.WriteFile(m.checkpointPath(msgs[1].ID), stamped, 0o644)
	}

	got := m.List(context.Background())
	if len(got) != 3 {
		t.Fatalf("expected 3 summaries, got %d", len(got))
	}
	if got[0].ID != ids[2] || got[2].ID != ids[0] {
		t.Errorf("summaries not newest first: %+v", got)
	}
}

func TestClearHistoryKeepsCheckpoints(t *testing.T) {
	m := newTestManager(t, 10)
	msgs := conversation(types.RoleAssistant)
	m.Persist(context.Background(), "chat-1", msgs)

	m.ClearHistory("chat-1")

	if _, err := os.Stat(m.messagesPath("chat-1")); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("live message file must be gone")
	}
	if _, err := os.Stat(m.checkpointPath(msgs[1].ID)); err != nil {
		t.Fatalf("checkpoint must survive clear: %v", err)
	}
}

func TestSystemBackupRoundTrip(t *testing.T) {
	dataDir := t.TempDir()
	for _, sub := range []string{messagesDir, checkpointsDir, backupsDir} {
		os.MkdirAll(filepath.Join(dataDir, sub), 0o755)
	}
	project := t.TempDir()
	os.WriteFile(filepath.Join(project, "main.go"), []byte("package main\n"), 0o644)
	os.MkdirAll(filepath.Join(project, "node_modules", "junk"), 0o755)
	os.WriteFile(filepath.Join(project, "node_modules", "junk", "x.js"), []byte("skip"), 0o644)

	m := NewManager(dataDir, 10, true, project)
	msgs := conversation(types.RoleAssistant)
	m.Persist(context.Background(), "chat-1", msgs)

	backupDir := m.backupPath(msgs[1].ID)
	for _, f := range []string{backupMessagesFile, backupPackagesFile, backupServicesFile, backupArchiveFile, backupMetadataFile} {
		if _, err := os.Stat(filepath.Join(backupDir, f)); err != nil {
			t.Errorf("backup file %s missing: %v", f, err)
		}
	}

	// Mutate the project, then restore from the backup.
	os.WriteFile(filepath.Join(project, "main.go"), []byte("package broken\n"), 0o644)
	if _, err := m.Restore(context.Background(), msgs[1].ID); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(project, "main.go"))
	if err != nil || string(data) != "package main\n" {
		t.Errorf("project file not re-extracted: %q err=%v", data, err)
	}
}
