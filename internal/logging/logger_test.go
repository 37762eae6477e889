package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitWritesJSONFile(t *testing.T) {
	dir := t.TempDir()
	if err := Init(Config{Level: "debug", Dir: dir}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	L("testcat").Info("hello from test")
	Sync()

	data, err := os.ReadFile(filepath.Join(dir, "nexus.log"))
	if err != nil {
		t.Fatalf("log file missing: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "hello from test") || !strings.Contains(out, "testcat") {
		t.Errorf("log output missing entry: %s", out)
	}
}

func TestSetLevelFilters(t *testing.T) {
	dir := t.TempDir()
	if err := Init(Config{Level: "info", Dir: dir}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	SetLevel("error")
	L("quiet").Info("should be filtered")
	SetLevel("debug")
	L("loud").Debug("should appear")
	Sync()

	data, _ := os.ReadFile(filepath.Join(dir, "nexus.log"))
	out := string(data)
	if strings.Contains(out, "should be filtered") {
		t.Error("info entry logged despite error level")
	}
	if !strings.Contains(out, "should appear") {
		t.Error("debug entry missing after SetLevel(debug)")
	}
}

func TestParseLevelFallsBackToInfo(t *testing.T) {
	if got := parseLevel("nonsense"); got.String() != "info" {
		t.Errorf("parseLevel fallback = %s", got)
	}
}
