package router

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nexus/internal/config"
	"nexus/internal/types"
	"nexus/internal/workspace"
)

func newNaturalRouter(t *testing.T, prov ChatProvider) *Router {
	t.Helper()
	cfg := config.RouterConfig{NaturalCommands: true, SystemPrompt: "be helpful"}
	return New(cfg, &fakeMemory{}, &fakeSnapshots{}, prov, workspace.NewManager(t.TempDir()), 10, time.Minute)
}

// intentProvider answers the analyzer call with a canned intent and every
// later call with a conversational reply.
type intentProvider struct {
	intent string
	calls  int
}

func (p *intentProvider) Chat(_ context.Context, msgs []types.Message) (string, error) {
	p.calls++
	if p.calls == 1 {
		return p.intent, nil
	}
	return "sure thing", nil
}

func TestNaturalCommandCreateDir(t *testing.T) {
	prov := &intentProvider{intent: `{"type":"create_dir","path":"docs/api"}`}
	r := newNaturalRouter(t, prov)

	res := r.Handle(context.Background(), "c", "make me a folder for the api docs")
	if res.Kind != types.KindCompleted || res.Action.Name != "create_dir" {
		t.Fatalf("expected create_dir completion, got %+v", res)
	}
}

func TestNaturalCommandFencedJSON(t *testing.T) {
	prov := &intentProvider{intent: "```json\n{\"type\":\"create_project\",\"name\":\"shop\"}\n```"}
	r := newNaturalRouter(t, prov)

	res := r.Handle(context.Background(), "c", "spin up a project called shop")
	if res.Kind != types.KindQuestion {
		t.Fatalf("name without a location must ask where, got %+v", res)
	}

	res = r.Handle(context.Background(), "c", "apps")
	if res.Kind != types.KindCompleted || res.Action.Name != "create_project" {
		t.Fatalf("expected create_project completion, got %+v", res)
	}
	if !strings.HasSuffix(res.Action.Params["path"], filepath.Join("apps", "shop")) {
		t.Errorf("unexpected project path %q", res.Action.Params["path"])
	}
}

func TestNaturalCommandProjectWithPath(t *testing.T) {
	prov := &intentProvider{intent: `{"type":"create_project","name":"shop","path":"apps"}`}
	r := newNaturalRouter(t, prov)

	res := r.Handle(context.Background(), "c", "scaffold shop under apps")
	if res.Kind != types.KindCompleted || res.Action.Name != "create_project" {
		t.Fatalf("fully specified project should complete, got %+v", res)
	}
}

func TestNaturalCommandAmbiguousFallsBack(t *testing.T) {
	for _, intent := range []string{
		`{"type":"conversation"}`,
		`{"type":"create_dir"}`,
		`not json at all`,
	} {
		prov := &intentProvider{intent: intent}
		r := newNaturalRouter(t, prov)
		res := r.Handle(context.Background(), "c", "hmm can you do something with folders")
		if res.Kind != types.KindAnswer {
			t.Errorf("intent %q: expected conversation fallback, got %+v", intent, res)
		}
	}
}

func TestNaturalCommandAnalyzerFailureFallsBack(t *testing.T) {
	prov := &failThenReplyProvider{}
	r := newNaturalRouter(t, prov)
	res := r.Handle(context.Background(), "c", "make a folder maybe")
	if res.Kind != types.KindAnswer {
		t.Fatalf("analyzer failure must fall back to conversation, got %+v", res)
	}
}

type failThenReplyProvider struct{ calls int }

func (p *failThenReplyProvider) Chat(_ context.Context, msgs []types.Message) (string, error) {
	p.calls++
	if p.calls == 1 {
		return "", fmt.Errorf("analysis down")
	}
	return "just chatting", nil
}
