package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	cache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"nexus/internal/types"
)

// Named states of the multi-step command dialogue.
const (
	stateAwaitingProjectName = "awaiting_project_name"
	stateAwaitingProjectPath = "awaiting_project_path"
	stateAwaitingFileName    = "awaiting_file_name"
	stateAwaitingFileContent = "awaiting_file_content"
)

// commandState holds one chat's in-flight dialogue: the state name plus
// the fields collected so far.
type commandState struct {
	State  string
	Fields map[string]string
}

// commandStates stores dialogue state per chat with a TTL so abandoned
// dialogues expire on their own.
type commandStates struct {
	c *cache.Cache
}

func newCommandStates(ttl time.Duration) *commandStates {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	// No janitor goroutine; expiry is enforced lazily on Get.
	return &commandStates{c: cache.New(ttl, 0)}
}

func (s *commandStates) get(chatID string) (*commandState, bool) {
	v, ok := s.c.Get(chatID)
	if !ok {
		return nil, false
	}
	return v.(*commandState), true
}

func (s *commandStates) set(chatID string, st *commandState) {
	s.c.SetDefault(chatID, st)
}

func (s *commandStates) clear(chatID string) {
	s.c.Delete(chatID)
}

const helpText = `Commands:
  /project        create a project (asks for name and path)
  /file           create a file (asks for name and content)
  /dir <path>     create a directory
  /cancel         abandon the current command
  !list           list saved checkpoints and backups
  !restore <id>   restore a conversation
  !clear          clear this chat's history
Anything else is treated as conversation.`

// processCommand advances or starts a command dialogue. An in-flight
// dialogue consumes the raw text as the awaited field, except /cancel
// which always aborts.
func (r *Router) processCommand(ctx context.Context, chatID, text string) types.RouterResult {
	if strings.EqualFold(text, "/cancel") {
		if _, ok := r.states.get(chatID); ok {
			r.states.clear(chatID)
			return types.Answer("Command cancelled.")
		}
		return types.Answer("Nothing to cancel.")
	}

	if st, ok := r.states.get(chatID); ok {
		return r.advance(chatID, st, text)
	}

	name, args := splitCommand(text)
	switch name {
	case "/start":
		return types.Answer("Hello! I keep track of our conversation and can manage files and projects. Send /help for the command list.")
	case "/help":
		return types.Answer(helpText)
	case "/project":
		r.states.set(chatID, &commandState{
			State:  stateAwaitingProjectName,
			Fields: map[string]string{},
		})
		return types.Question("What should the project be called?")
	case "/file":
		r.states.set(chatID, &commandState{
			State:  stateAwaitingFileName,
			Fields: map[string]string{},
		})
		return types.Question("What is the file path?")
	case "/dir":
		if args == "" {
			return types.Errorf("usage: /dir <path>")
		}
		return r.completeDir(args)
	case "!list":
		return r.listCheckpoints(ctx)
	case "!restore":
		if args == "" {
			return types.Errorf("usage: !restore <id>")
		}
		return r.restore(ctx, args)
	case "!clear":
		r.memory.ClearChat(ctx, chatID)
		r.snapshots.ClearHistory(chatID)
		return types.Answer("Chat history cleared. Checkpoints are kept; use !list to see them.")
	default:
		return types.Errorf("unknown command %s, send /help for the list", name)
	}
}

// advance feeds the raw text into the dialogue as the awaited field.
func (r *Router) advance(chatID string, st *commandState, text string) types.RouterResult {
	switch st.State {
	case stateAwaitingProjectName:
		st.Fields["name"] = text
		st.State = stateAwaitingProjectPath
		r.states.set(chatID, st)
		return types.Question("Where should it live? Give a path relative to the workspace (\".\" for the root).")

	case stateAwaitingProjectPath:
		st.Fields["path"] = text
		r.states.clear(chatID)
		return r.completeProject(st.Fields["name"], st.Fields["path"])

	case stateAwaitingFileName:
		st.Fields["name"] = text
		st.State = stateAwaitingFileContent
		r.states.set(chatID, st)
		return types.Question("What should the file contain?")

	case stateAwaitingFileContent:
		st.Fields["content"] = text
		r.states.clear(chatID)
		return r.completeFile(st.Fields["name"], st.Fields["content"])

	default:
		r.states.clear(chatID)
		r.log.Error("unknown dialogue state",
			zap.String("chat_id", chatID),
			zap.String("state", st.State))
		return types.Errorf("the command got into an unknown state, please start over")
	}
}

func (r *Router) completeProject(name, path string) types.RouterResult {
	created, err := r.workspace.CreateProject(name, path)
	if err != nil {
		return types.Errorf("could not create project %s: %v", name, err)
	}
	return types.Completed("create_project", map[string]string{
		"name": name,
		"path": created,
	})
}

func (r *Router) completeFile(name, content string) types.RouterResult {
	created, err := r.workspace.CreateFile(name, content)
	if err != nil {
		return types.Errorf("could not create file %s: %v", name, err)
	}
	return types.Completed("create_file", map[string]string{
		"name": name,
		"path": created,
	})
}

func (r *Router) completeDir(path string) types.RouterResult {
	created, err := r.workspace.CreateDir(path)
	if err != nil {
		return types.Errorf("could not create directory %s: %v", path, err)
	}
	return types.Completed("create_dir", map[string]string{
		"path": created,
	})
}

func (r *Router) listCheckpoints(ctx context.Context) types.RouterResult {
	summaries := r.snapshots.List(ctx)
	if len(summaries) == 0 {
		return types.Answer("No checkpoints saved yet.")
	}
	var b strings.Builder
	b.WriteString("Saved checkpoints:\n")
	for _, s := range summaries {
		fmt.Fprintf(&b, "%s  %s  [%s] %s\n",
			s.Timestamp.Format("2006-01-02 15:04"), s.ID, s.Kind, s.Preview)
	}
	return types.Answer(b.String())
}

func (r *Router) restore(ctx context.Context, id string) types.RouterResult {
	msgs, err := r.snapshots.Restore(ctx, id)
	if err != nil {
		if errors.Is(err, types.ErrRestoreNotFound) {
			return types.Errorf("no checkpoint or backup with id %s, use !list to see what exists", id)
		}
		return types.Errorf("restore failed: %v", err)
	}
	return types.Answer(fmt.Sprintf("Restored %d messages from %s.", len(msgs), id))
}

// splitCommand separates the command word from its argument rest.
func splitCommand(text string) (name, args string) {
	parts := strings.SplitN(strings.TrimSpace(text), " ", 2)
	name = strings.ToLower(parts[0])
	if len(parts) == 2 {
		args = strings.TrimSpace(parts[1])
	}
	return name, args
}
