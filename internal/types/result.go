package types

import "fmt"

// ResultKind tags a RouterResult variant. Each kind has a fixed field set;
// callers switch exhaustively on it.
type ResultKind string

const (
	// KindAnswer carries a free-conversation reply in Reply.
	KindAnswer ResultKind = "answer"
	// KindQuestion asks the user for the next field of a multi-step
	// command; the question text is in Reply.
	KindQuestion ResultKind = "question"
	// KindCompleted carries a finished command action in Action.
	KindCompleted ResultKind = "completed"
	// KindError carries a human-readable failure message in Reply.
	KindError ResultKind = "error"
)

// Action describes a completed command ready for dispatch to an external
// collaborator, e.g. {"create_project", {"name": "demo", "path": "/tmp"}}.
type Action struct {
	Name   string            `json:"name"`
	Params map[string]string `json:"params"`
}

// StepStatus is the lifecycle state of a dispatch step.
type StepStatus string

const (
	StepStarted StepStatus = "started"
	StepSuccess StepStatus = "success"
	StepError   StepStatus = "error"
)

// StepEvent is one entry of the per-message flow log. Events are
// observational only and never alter control flow.
type StepEvent struct {
	Agent  string     `json:"agent"`
	Action string     `json:"action"`
	Status StepStatus `json:"status"`
}

// RouterResult is the tagged result of routing one inbound message.
type RouterResult struct {
	Kind   ResultKind
	Reply  string
	Action *Action
	Steps  []StepEvent
}

// Answer builds a free-conversation reply result.
func Answer(reply string) RouterResult {
	return RouterResult{Kind: KindAnswer, Reply: reply}
}

// Question builds an ask-for-more result for a command dialogue.
func Question(text string) RouterResult {
	return RouterResult{Kind: KindQuestion, Reply: text}
}

// Completed builds a finished-command result.
func Completed(name string, params map[string]string) RouterResult {
	return RouterResult{Kind: KindCompleted, Action: &Action{Name: name, Params: params}}
}

// Errorf builds an error result with a formatted user-visible message.
func Errorf(format string, args ...interface{}) RouterResult {
	return RouterResult{Kind: KindError, Reply: fmt.Sprintf(format, args...)}
}

// WithSteps attaches the accumulated flow log to the result.
func (r RouterResult) WithSteps(steps []StepEvent) RouterResult {
	r.Steps = steps
	return r
}

// IsError reports whether the result is the error variant.
func (r RouterResult) IsError() bool { return r.Kind == KindError }
