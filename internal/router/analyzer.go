package router

import (
	"context"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"nexus/internal/types"
)

const analyzerPrompt = `You classify assistant messages. Reply with a single JSON object, nothing else.
Shape: {"type": "conversation" | "create_dir" | "create_file" | "create_project", "name": "...", "path": "..."}
Use "create_dir" when the user asks to make a folder or directory,
"create_file" when they ask to create a file with given content,
"create_project" when they ask to scaffold a project,
"conversation" for everything else or when you are unsure.
Omit fields you cannot extract.`

// tryNaturalCommand asks the provider whether unprefixed text is really a
// file or project request. Anything short of a confident, fully specified
// command falls back to conversation; normal chat must never be hijacked.
func (r *Router) tryNaturalCommand(ctx context.Context, chatID, text string) (types.RouterResult, bool) {
	raw, err := r.provider.Chat(ctx, []types.Message{
		{Role: types.RoleSystem, Content: analyzerPrompt},
		{Role: types.RoleUser, Content: text},
	})
	if err != nil {
		r.log.Debug("intent analysis unavailable", zap.Error(err))
		return types.RouterResult{}, false
	}

	parsed := gjson.Parse(extractJSON(raw))
	if !parsed.IsObject() {
		return types.RouterResult{}, false
	}

	name := strings.TrimSpace(parsed.Get("name").String())
	path := strings.TrimSpace(parsed.Get("path").String())

	switch parsed.Get("type").String() {
	case "create_dir":
		if path == "" {
			path = name
		}
		if path == "" {
			return types.RouterResult{}, false
		}
		return r.completeDir(path), true
	case "create_project":
		if name == "" {
			return types.RouterResult{}, false
		}
		if path == "" {
			// Location collection still runs through the dialogue.
			r.states.set(chatID, &commandState{
				State:  stateAwaitingProjectPath,
				Fields: map[string]string{"name": name},
			})
			return types.Question("Where should it live? Give a path relative to the workspace (\".\" for the root)."), true
		}
		return r.completeProject(name, path), true
	case "create_file":
		if name == "" {
			return types.RouterResult{}, false
		}
		// Content collection still runs through the dialogue.
		r.states.set(chatID, &commandState{
			State:  stateAwaitingFileContent,
			Fields: map[string]string{"name": name},
		})
		return types.Question("What should the file contain?"), true
	default:
		return types.RouterResult{}, false
	}
}

// extractJSON strips markdown fences and surrounding prose from a model
// reply, keeping the outermost object.
func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}
