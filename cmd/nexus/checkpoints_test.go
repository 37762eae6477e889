package main

import (
	"strings"
	"testing"

	"nexus/internal/types"
)

func TestSnapshotTail(t *testing.T) {
	if _, err := snapshotTail(nil); err == nil {
		t.Error("empty history should error")
	}

	userTurn := []types.Message{
		types.NewMessage(types.RoleUser, "hello"),
	}
	if _, err := snapshotTail(userTurn); err == nil {
		t.Error("history ending on a user message should error")
	} else if !strings.Contains(err.Error(), "nothing to snapshot") {
		t.Errorf("error should say nothing was snapshotted: %v", err)
	}

	full := append(userTurn, types.NewMessage(types.RoleAssistant, "hi"))
	tail, err := snapshotTail(full)
	if err != nil {
		t.Fatalf("snapshotTail failed: %v", err)
	}
	if tail.ID != full[1].ID {
		t.Errorf("tail should be the closing assistant message, got %s", tail.ID)
	}
}
