// Package router turns inbound chat messages into results. A message is
// either a command (reserved prefix, or the next field of an in-flight
// command dialogue) or free conversation handled through the context store
// and the language-model provider. Handle is the fail-soft boundary: it
// recovers panics into error results and serializes work per chat.
package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"nexus/internal/config"
	"nexus/internal/logging"
	"nexus/internal/metrics"
	"nexus/internal/session"
	"nexus/internal/snapshot"
	"nexus/internal/types"
)

// MessageKind classifies one inbound message.
type MessageKind int

const (
	KindConversation MessageKind = iota
	KindCommand
)

// ChatProvider is the language-model dependency.
type ChatProvider interface {
	Chat(ctx context.Context, messages []types.Message) (string, error)
}

// Memory is the slice of the context store the router needs.
// *memory.ContextStore satisfies it.
type Memory interface {
	Record(ctx context.Context, chatID string, role types.Role, content string) (string, error)
	Retrieve(ctx context.Context, chatID, query string) types.ContextResult
	Recent(chatID string) []types.Message
	ClearChat(ctx context.Context, chatID string)
}

// Snapshots is the persistence dependency. *snapshot.Manager satisfies it.
type Snapshots interface {
	Persist(ctx context.Context, chatID string, msgs []types.Message)
	Restore(ctx context.Context, id string) ([]types.Message, error)
	List(ctx context.Context) []snapshot.Summary
	ClearHistory(chatID string)
	LoadHistory(chatID string) []types.Message
}

// Workspace executes completed file and project actions.
// *workspace.Manager satisfies it.
type Workspace interface {
	CreateProject(name, path string) (string, error)
	CreateFile(rel, content string) (string, error)
	CreateDir(rel string) (string, error)
}

// Router dispatches messages for all chats.
type Router struct {
	cfg       config.RouterConfig
	memory    Memory
	snapshots Snapshots
	provider  ChatProvider
	workspace Workspace
	sessions  *session.Registry
	states    *commandStates
	window    int
	log       *zap.Logger
}

// New builds a router. window is how many recent messages accompany each
// provider call.
func New(cfg config.RouterConfig, mem Memory, snaps Snapshots, prov ChatProvider, ws Workspace, window int, ttl time.Duration) *Router {
	if window <= 0 {
		window = 10
	}
	return &Router{
		cfg:       cfg,
		memory:    mem,
		snapshots: snaps,
		provider:  prov,
		workspace: ws,
		sessions:  session.NewRegistry(),
		states:    newCommandStates(ttl),
		window:    window,
		log:       logging.L("router"),
	}
}

// Classify decides how text is routed. Any in-flight command dialogue
// claims the message regardless of prefix; otherwise the reserved prefixes
// "/" and "!" mark commands.
func (r *Router) Classify(chatID, text string) MessageKind {
	if _, ok := r.states.get(chatID); ok {
		return KindCommand
	}
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "/") || strings.HasPrefix(trimmed, "!") {
		return KindCommand
	}
	return KindConversation
}

// Handle routes one message and always returns a result. Panics anywhere
// below become error results; a chat's messages are processed one at a
// time.
func (r *Router) Handle(ctx context.Context, chatID, text string) (result types.RouterResult) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("recovered panic",
				zap.String("chat_id", chatID),
				zap.Any("panic", rec))
			result = types.Errorf("internal error while processing your message")
		}
	}()

	err := r.sessions.Do(ctx, chatID, func() error {
		result = r.dispatch(ctx, chatID, text)
		return nil
	})
	if err != nil {
		return types.Errorf("request cancelled")
	}
	return result
}

func (r *Router) dispatch(ctx context.Context, chatID, text string) types.RouterResult {
	text = strings.TrimSpace(text)
	if text == "" {
		return types.Errorf("empty message")
	}

	if r.Classify(chatID, text) == KindCommand {
		return r.processCommand(ctx, chatID, text)
	}

	if r.cfg.NaturalCommands {
		if res, ok := r.tryNaturalCommand(ctx, chatID, text); ok {
			return res
		}
	}
	return r.ProcessConversation(ctx, chatID, text)
}

// ProcessConversation answers free text: retrieve context, call the
// provider with system prompt + context + recent window, record both
// turns, persist. Every stage leaves a step event on the result.
func (r *Router) ProcessConversation(ctx context.Context, chatID, text string) types.RouterResult {
	var steps []types.StepEvent
	step := func(agent, action string, status types.StepStatus) {
		steps = append(steps, types.StepEvent{Agent: agent, Action: action, Status: status})
	}

	step("memory", "retrieve", types.StepStarted)
	retrieved := r.memory.Retrieve(ctx, chatID, text)
	step("memory", "retrieve", types.StepSuccess)

	msgs := r.buildWindow(chatID, retrieved, text)

	step("provider", "chat", types.StepStarted)
	reply, err := r.provider.Chat(ctx, msgs)
	if err != nil {
		metrics.ProviderErrors.Inc()
		step("provider", "chat", types.StepError)
		r.log.Warn("provider call failed",
			zap.String("chat_id", chatID),
			zap.Error(err))
		return types.Errorf("I could not reach the language model, please try again").WithSteps(steps)
	}
	step("provider", "chat", types.StepSuccess)

	step("memory", "record", types.StepStarted)
	userID, uerr := r.memory.Record(ctx, chatID, types.RoleUser, text)
	asstID, aerr := r.memory.Record(ctx, chatID, types.RoleAssistant, reply)
	if uerr != nil || aerr != nil {
		step("memory", "record", types.StepError)
	} else {
		step("memory", "record", types.StepSuccess)
	}

	step("snapshot", "persist", types.StepStarted)
	history := r.snapshots.LoadHistory(chatID)
	history = append(history,
		types.Message{ID: userID, Role: types.RoleUser, Content: text},
		types.Message{ID: asstID, Role: types.RoleAssistant, Content: reply},
	)
	r.snapshots.Persist(ctx, chatID, history)
	step("snapshot", "persist", types.StepSuccess)

	return types.Answer(reply).WithSteps(steps)
}

// buildWindow assembles the provider call: system prompt, retrieved
// context as system turns, then the last messages of the chat and the new
// user text.
func (r *Router) buildWindow(chatID string, retrieved types.ContextResult, text string) []types.Message {
	var msgs []types.Message
	if r.cfg.SystemPrompt != "" {
		msgs = append(msgs, types.Message{Role: types.RoleSystem, Content: r.cfg.SystemPrompt})
	}
	if retrieved.Found && retrieved.Source != types.SourceShortTerm {
		var b strings.Builder
		b.WriteString("Relevant context:\n")
		for _, item := range retrieved.Items {
			fmt.Fprintf(&b, "- %s\n", item.Content)
		}
		msgs = append(msgs, types.Message{Role: types.RoleSystem, Content: b.String()})
	}

	recent := r.memory.Recent(chatID)
	if len(recent) > r.window {
		recent = recent[len(recent)-r.window:]
	}
	msgs = append(msgs, recent...)
	msgs = append(msgs, types.Message{Role: types.RoleUser, Content: text})
	return msgs
}
