// manager_test.go: CLI manager construction and command routing
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"path/filepath"
	"testing"

	"github.com/agilira/aether"
)

func TestNewManager(t *testing.T) {
	manager := NewManager()
	if manager == nil {
		t.Fatal("NewManager() returned nil")
	}
	if manager.app == nil {
		t.Fatal("Manager.app not initialized")
	}
	if manager.events != nil {
		t.Error("Manager.events should be nil by default")
	}
}

func TestManagerWithEventLog(t *testing.T) {
	cfg := aether.DefaultEventLogConfig()
	cfg.OutputFile = filepath.Join(t.TempDir(), "cli.jsonl")
	cfg.FlushInterval = 0

	logger, err := aether.NewEventLogger(cfg)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}
	defer func() {
		_ = logger.Close()
	}()

	manager := NewManager().WithEventLog(logger)
	if manager.events == nil {
		t.Error("WithEventLog did not attach the logger")
	}
}

func TestRunUnknownCommandFails(t *testing.T) {
	manager := NewManager()
	if err := manager.Run([]string{"no-such-command"}); err == nil {
		t.Error("expected error for unknown command")
	}
}

func TestRunCommandTreeRegistered(t *testing.T) {
	manager := NewManager()

	// Commands that work without external state must succeed outright.
	for _, args := range [][]string{
		{"drivers"},
		{"info"},
		{"info", "--verbose"},
		{"completion", "bash"},
		{"completion", "zsh"},
		{"completion", "fish"},
	} {
		if err := manager.Run(args); err != nil {
			t.Errorf("Run(%v) failed: %v", args, err)
		}
	}

	if err := manager.Run([]string{"completion", "powershell"}); err == nil {
		t.Error("expected error for unsupported shell")
	}
}
