package memory

import (
	"strings"

	"nexus/internal/types"
)

// Default classifier keyword lists. Config may override either list; an
// empty override keeps the defaults.
var (
	defaultImportantKeywords = []string{
		"remember", "important", "attention", "configure", "install",
		"define", "change", "problem", "error", "failure", "bug",
		"how", "why", "when", "where", "which",
		"!restore", "!list", "!clear",
	}
	defaultCriticalKeywords = []string{
		"!restore", "!list", "critical error", "system configuration",
		"backup", "api key", "credentials", "database",
	}
)

type classifier struct {
	important         []string
	critical          []string
	minImportantWords int
}

func newClassifier(important, critical []string, minImportantWords int) *classifier {
	if len(important) == 0 {
		important = defaultImportantKeywords
	}
	if len(critical) == 0 {
		critical = defaultCriticalKeywords
	}
	if minImportantWords <= 0 {
		minImportantWords = 5
	}
	return &classifier{
		important:         lowered(important),
		critical:          lowered(critical),
		minImportantWords: minImportantWords,
	}
}

// isImportant decides whether a message is worth promoting to the
// long-term index once the short-term buffer drops it. Assistant replies
// always qualify; otherwise the keywords and a length threshold decide.
func (c *classifier) isImportant(m types.Message) bool {
	if m.Role == types.RoleAssistant {
		return true
	}
	content := strings.ToLower(m.Content)
	for _, kw := range c.important {
		if strings.Contains(content, kw) {
			return true
		}
	}
	return len(strings.Fields(m.Content)) > c.minImportantWords
}

// isCritical decides whether a message belongs in the permanent index.
// The keyword list is deliberately narrow; permanent entries are never
// pruned.
func (c *classifier) isCritical(m types.Message) bool {
	content := strings.ToLower(m.Content)
	for _, kw := range c.critical {
		if strings.Contains(content, kw) {
			return true
		}
	}
	return false
}

func lowered(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
