package router

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"nexus/internal/config"
	"nexus/internal/snapshot"
	"nexus/internal/types"
	"nexus/internal/workspace"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeProvider struct {
	reply string
	err   error
	calls [][]types.Message
}

func (f *fakeProvider) Chat(_ context.Context, msgs []types.Message) (string, error) {
	f.calls = append(f.calls, msgs)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fakeMemory struct {
	recorded  []types.Message
	retrieved types.ContextResult
	cleared   []string
	panicOn   string
}

func (f *fakeMemory) Record(_ context.Context, chatID string, role types.Role, content string) (string, error) {
	m := types.NewMessage(role, content)
	f.recorded = append(f.recorded, m)
	return m.ID, nil
}

func (f *fakeMemory) Retrieve(_ context.Context, chatID, query string) types.ContextResult {
	if f.panicOn != "" && strings.Contains(query, f.panicOn) {
		panic("memory corrupted")
	}
	return f.retrieved
}

func (f *fakeMemory) Recent(chatID string) []types.Message { return nil }

func (f *fakeMemory) ClearChat(_ context.Context, chatID string) {
	f.cleared = append(f.cleared, chatID)
}

type fakeSnapshots struct {
	persisted  [][]types.Message
	cleared    []string
	summaries  []snapshot.Summary
	restoreErr error
	restored   []types.Message
}

func (f *fakeSnapshots) Persist(_ context.Context, chatID string, msgs []types.Message) {
	f.persisted = append(f.persisted, msgs)
}

func (f *fakeSnapshots) Restore(_ context.Context, id string) ([]types.Message, error) {
	if f.restoreErr != nil {
		return nil, f.restoreErr
	}
	return f.restored, nil
}

func (f *fakeSnapshots) List(_ context.Context) []snapshot.Summary { return f.summaries }

func (f *fakeSnapshots) ClearHistory(chatID string) { f.cleared = append(f.cleared, chatID) }

func (f *fakeSnapshots) LoadHistory(chatID string) []types.Message { return nil }

func newTestRouter(t *testing.T, prov ChatProvider) (*Router, *fakeMemory, *fakeSnapshots, string) {
	t.Helper()
	mem := &fakeMemory{}
	snaps := &fakeSnapshots{}
	wsRoot := t.TempDir()
	r := New(config.RouterConfig{SystemPrompt: "be helpful"}, mem, snaps, prov, workspace.NewManager(wsRoot), 10, time.Minute)
	return r, mem, snaps, wsRoot
}

func TestClassify(t *testing.T) {
	r, _, _, _ := newTestRouter(t, &fakeProvider{})

	if r.Classify("c", "/help") != KindCommand {
		t.Error("/help must classify as command")
	}
	if r.Classify("c", "!list") != KindCommand {
		t.Error("!list must classify as command")
	}
	if r.Classify("c", "hello there") != KindConversation {
		t.Error("plain text must classify as conversation")
	}

	// An in-flight dialogue claims unprefixed text.
	r.states.set("c", &commandState{State: stateAwaitingProjectName, Fields: map[string]string{}})
	if r.Classify("c", "my-project") != KindCommand {
		t.Error("in-flight dialogue must claim the raw text")
	}
}

func TestProjectDialogue(t *testing.T) {
	r, _, _, wsRoot := newTestRouter(t, &fakeProvider{})
	ctx := context.Background()

	res := r.Handle(ctx, "c", "/project")
	if res.Kind != types.KindQuestion {
		t.Fatalf("expected question after /project, got %+v", res)
	}

	// Name alone must not complete the command.
	res = r.Handle(ctx, "c", "shop")
	if res.Kind != types.KindQuestion {
		t.Fatalf("expected question for path, got %+v", res)
	}
	if res.Action != nil {
		t.Fatal("no action before all fields are collected")
	}

	res = r.Handle(ctx, "c", "apps")
	if res.Kind != types.KindCompleted || res.Action == nil {
		t.Fatalf("expected completed action, got %+v", res)
	}
	if res.Action.Name != "create_project" || res.Action.Params["name"] != "shop" {
		t.Errorf("unexpected action: %+v", res.Action)
	}
	if _, err := os.Stat(filepath.Join(wsRoot, "apps", "shop", "package.json")); err != nil {
		t.Errorf("project not scaffolded: %v", err)
	}

	// Dialogue state is gone; the next message is conversation again.
	if r.Classify("c", "thanks") != KindConversation {
		t.Error("state must clear after completion")
	}
}

func TestFileDialogue(t *testing.T) {
	r, _, _, wsRoot := newTestRouter(t, &fakeProvider{})
	ctx := context.Background()

	r.Handle(ctx, "c", "/file")
	r.Handle(ctx, "c", "notes/todo.md")
	res := r.Handle(ctx, "c", "# remember the milk")
	if res.Kind != types.KindCompleted || res.Action.Name != "create_file" {
		t.Fatalf("expected create_file, got %+v", res)
	}
	data, err := os.ReadFile(filepath.Join(wsRoot, "notes", "todo.md"))
	if err != nil || string(data) != "# remember the milk" {
		t.Errorf("file content = %q, err %v", data, err)
	}
}

func TestCancelClearsDialogue(t *testing.T) {
	r, _, _, _ := newTestRouter(t, &fakeProvider{})
	ctx := context.Background()

	r.Handle(ctx, "c", "/project")
	res := r.Handle(ctx, "c", "/cancel")
	if res.Kind != types.KindAnswer {
		t.Fatalf("expected answer, got %+v", res)
	}
	if r.Classify("c", "plain text") != KindConversation {
		t.Error("cancel must clear the dialogue state")
	}
}

func TestUnknownCommand(t *testing.T) {
	r, _, _, _ := newTestRouter(t, &fakeProvider{})
	res := r.Handle(context.Background(), "c", "/frobnicate")
	if !res.IsError() {
		t.Fatalf("expected error result, got %+v", res)
	}
}

func TestConversationFlow(t *testing.T) {
	prov := &fakeProvider{reply: "Paris"}
	r, mem, snaps, _ := newTestRouter(t, prov)

	res := r.Handle(context.Background(), "c", "what is the capital of France")
	if res.Kind != types.KindAnswer || res.Reply != "Paris" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(res.Steps) == 0 {
		t.Error("expected step events on the result")
	}
	for _, s := range res.Steps {
		if s.Status == types.StepError {
			t.Errorf("unexpected failed step: %+v", s)
		}
	}

	// System prompt leads the provider window.
	if len(prov.calls) != 1 || prov.calls[0][0].Role != types.RoleSystem {
		t.Fatalf("unexpected provider window: %+v", prov.calls)
	}

	// Both turns recorded, both persisted.
	if len(mem.recorded) != 2 {
		t.Errorf("recorded %d messages, want 2", len(mem.recorded))
	}
	if len(snaps.persisted) != 1 || len(snaps.persisted[0]) != 2 {
		t.Errorf("unexpected persist calls: %+v", snaps.persisted)
	}
}

func TestConversationProviderFailure(t *testing.T) {
	prov := &fakeProvider{err: fmt.Errorf("boom")}
	r, mem, snaps, _ := newTestRouter(t, prov)

	res := r.Handle(context.Background(), "c", "hello")
	if !res.IsError() {
		t.Fatalf("expected error result, got %+v", res)
	}
	var sawError bool
	for _, s := range res.Steps {
		if s.Agent == "provider" && s.Status == types.StepError {
			sawError = true
		}
	}
	if !sawError {
		t.Error("expected a failed provider step event")
	}
	if len(mem.recorded) != 0 || len(snaps.persisted) != 0 {
		t.Error("nothing must be recorded or persisted on provider failure")
	}
}

func TestHandleRecoversPanics(t *testing.T) {
	r, mem, _, _ := newTestRouter(t, &fakeProvider{reply: "ok"})
	mem.panicOn = "explode"

	res := r.Handle(context.Background(), "c", "please explode now")
	if !res.IsError() {
		t.Fatalf("panic must become an error result, got %+v", res)
	}

	// The chat keeps working afterwards.
	res = r.Handle(context.Background(), "c", "hello again")
	if res.Kind != types.KindAnswer {
		t.Fatalf("chat broken after recovered panic: %+v", res)
	}
}

func TestRestoreCommand(t *testing.T) {
	r, _, snaps, _ := newTestRouter(t, &fakeProvider{})
	snaps.restored = []types.Message{types.NewMessage(types.RoleUser, "hi")}

	res := r.Handle(context.Background(), "c", "!restore abc-123")
	if res.Kind != types.KindAnswer {
		t.Fatalf("expected answer, got %+v", res)
	}

	snaps.restoreErr = types.ErrRestoreNotFound
	res = r.Handle(context.Background(), "c", "!restore missing")
	if !res.IsError() {
		t.Fatalf("expected error for unknown id, got %+v", res)
	}
}

func TestClearCommand(t *testing.T) {
	r, mem, snaps, _ := newTestRouter(t, &fakeProvider{})

	res := r.Handle(context.Background(), "c", "!clear")
	if res.Kind != types.KindAnswer {
		t.Fatalf("expected answer, got %+v", res)
	}
	if len(mem.cleared) != 1 || mem.cleared[0] != "c" {
		t.Error("memory not cleared")
	}
	if len(snaps.cleared) != 1 {
		t.Error("history not cleared")
	}
}

func TestListCommand(t *testing.T) {
	r, _, snaps, _ := newTestRouter(t, &fakeProvider{})

	res := r.Handle(context.Background(), "c", "!list")
	if res.Kind != types.KindAnswer || res.Reply != "No checkpoints saved yet." {
		t.Fatalf("unexpected empty-list reply: %+v", res)
	}

	snaps.summaries = []snapshot.Summary{
		{ID: "cp-1", ChatID: "c", Timestamp: time.Now(), Preview: "capital of France", Kind: "checkpoint"},
	}
	res = r.Handle(context.Background(), "c", "!list")
	if !strings.Contains(res.Reply, "cp-1") {
		t.Errorf("listing misses checkpoint id: %q", res.Reply)
	}
}
