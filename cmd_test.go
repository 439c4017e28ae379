//go:build integration

package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/soocke/framering-go/config"
)

// executeCommand runs a fresh command tree with args and returns captured stdout.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "none.env")))
	err := root.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	root := newRootCmd()
	if root.Use != "framering" {
		t.Errorf("root.Use = %q, want %q", root.Use, "framering")
	}
	cmdMap := make(map[string]*cobra.Command)
	for _, cmd := range root.Commands() {
		cmdMap[cmd.Name()] = cmd
	}
	for _, expected := range []string{"record", "preview", "config"} {
		if cmdMap[expected] == nil {
			t.Errorf("expected subcommand %q not found", expected)
		}
	}
}

func TestConfigInitShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "framering.json")

	out, err := executeCommand(t, "config", "init", "-c", path, "--target-fps", "15")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, "wrote "+path) {
		t.Errorf("unexpected output %q", out)
	}
	if _, err := executeCommand(t, "config", "init", "-c", path); err == nil {
		t.Errorf("expected error when file exists")
	}

	out, err = executeCommand(t, "config", "show", "-c", path)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(out), &cfg); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if cfg.TargetFPS != 15 {
		t.Errorf("target_fps = %d, want 15", cfg.TargetFPS)
	}
}

func TestConfigRejectsInvalidOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "framering.json")
	if _, err := executeCommand(t, "config", "show", "-c", path, "--memory-budget-mb", "-1"); err == nil {
		t.Errorf("expected invalid budget to fail")
	}
}

func TestRecordSynthetic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "framering.json")
	out, err := executeCommand(t, "record", "-c", path,
		"--synthetic", "--synthetic-width", "64", "--synthetic-height", "32",
		"--target-fps", "100", "--duration", "300ms", "--log-level", "error")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !strings.HasPrefix(out, "session ") || !strings.Contains(out, "64x32") {
		t.Errorf("unexpected summary %q", out)
	}
}
