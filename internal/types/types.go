// Package types defines the shared data model for the assistant core:
// conversation messages, retrieval results, and the tagged router result
// variant exchanged between the router and its front ends.
package types

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single conversation turn. Immutable once created; ordering
// is insertion order.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates a Message with a fresh ID and timestamp.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// Normalize fills in a missing ID or timestamp. Used by the snapshot layer
// before persisting externally supplied message lists.
func (m Message) Normalize() Message {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	return m
}

// ContextSource names the memory tier that produced a retrieval result.
type ContextSource string

const (
	SourceShortTerm ContextSource = "short_term"
	SourceLongTerm  ContextSource = "long_term"
	SourceWeb       ContextSource = "web"
)

// ContextResult is the outcome of a tiered context retrieval. Found=false
// is a valid outcome, not an error; callers must handle it.
type ContextResult struct {
	Found  bool
	Source ContextSource
	Items  []Message
}

// EmptyContext is the canonical "no tier produced results" value.
func EmptyContext() ContextResult {
	return ContextResult{}
}

// ErrRestoreNotFound reports that no checkpoint or system backup exists
// under the requested id.
var ErrRestoreNotFound = errors.New("checkpoint or backup not found")

// PersistenceError wraps a failed write of conversation state.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ProviderError wraps a failure from the external language-model provider.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
