package main

import (
	"bytes"
	"strings"
	"testing"

	"nexus/internal/types"
)

func TestPrintResultVerboseSteps(t *testing.T) {
	res := types.Answer("hello there").WithSteps([]types.StepEvent{
		{Agent: "memory", Action: "retrieve", Status: types.StepStarted},
		{Agent: "memory", Action: "retrieve", Status: types.StepSuccess},
		{Agent: "provider", Action: "chat", Status: types.StepError},
	})

	var quiet bytes.Buffer
	printResult(&quiet, res, false)
	if got := quiet.String(); got != "hello there\n" {
		t.Errorf("steps must stay hidden without verbose, got %q", got)
	}

	var loud bytes.Buffer
	printResult(&loud, res, true)
	out := loud.String()
	for _, want := range []string{
		"🔄 memory.retrieve",
		"✓ memory.retrieve",
		"✗ provider.chat",
		"hello there",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("verbose output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintResultKinds(t *testing.T) {
	var b bytes.Buffer
	printResult(&b, types.Errorf("boom"), false)
	if !strings.HasPrefix(b.String(), "error: boom") {
		t.Errorf("unexpected error rendering: %q", b.String())
	}

	b.Reset()
	printResult(&b, types.Completed("create_dir", map[string]string{"path": "docs"}), false)
	if got := b.String(); got != "done: create_dir (docs)\n" {
		t.Errorf("unexpected action rendering: %q", got)
	}
}
