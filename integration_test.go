// integration_test.go: Settings layer and Hub assembly
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package aether

import (
	"fmt"
	"testing"
	"time"
)

func TestSettingsDefaults(t *testing.T) {
	s := NewSettings("testapp")
	if err := s.Parse([]string{}); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if s.GetString("config") != "" {
		t.Errorf("config default should be empty, got %q", s.GetString("config"))
	}
	if s.GetInt("queue-len") != 64 {
		t.Errorf("queue-len default should be 64, got %d", s.GetInt("queue-len"))
	}
	if s.GetBool("event-log-disable") {
		t.Error("event log should be enabled by default")
	}
	if s.GetDuration("event-log-flush") != 5*time.Second {
		t.Errorf("flush interval default wrong: %v", s.GetDuration("event-log-flush"))
	}
}

func TestSettingsParseAndOverride(t *testing.T) {
	s := NewSettings("testapp").
		StringFlag("station", "north", "Station name").
		IntFlag("channels", 4, "Channel count")

	err := s.Parse([]string{"--queue-len", "128", "--station", "south"})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if s.GetInt("queue-len") != 128 {
		t.Errorf("expected queue-len 128, got %d", s.GetInt("queue-len"))
	}
	if s.GetString("station") != "south" {
		t.Errorf("expected station south, got %q", s.GetString("station"))
	}
	if s.GetInt("channels") != 4 {
		t.Errorf("expected channels default 4, got %d", s.GetInt("channels"))
	}

	// Explicit Set wins over the parsed flag.
	s.Set("station", "east")
	if s.GetString("station") != "east" {
		t.Errorf("override lost, got %q", s.GetString("station"))
	}
}

func TestSettingsHelpRequested(t *testing.T) {
	s := NewSettings("testapp")
	if err := s.Parse([]string{"--help"}); err == nil {
		t.Error("expected error for --help")
	}
}

func TestSettingsHubConfig(t *testing.T) {
	s := NewSettings("testapp")
	err := s.Parse([]string{
		"--event-log", "/tmp/ev.jsonl",
		"--event-log-disable",
		"--event-log-flush", "2s",
		"--queue-len", "32",
	})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	cfg := s.HubConfig()
	if cfg.EventLog.Enabled {
		t.Error("event log should be disabled")
	}
	if cfg.EventLog.OutputFile != "/tmp/ev.jsonl" {
		t.Errorf("output file wrong: %q", cfg.EventLog.OutputFile)
	}
	if cfg.EventLog.FlushInterval != 2*time.Second {
		t.Errorf("flush interval wrong: %v", cfg.EventLog.FlushInterval)
	}
	if cfg.DefaultQueueLen != 32 {
		t.Errorf("queue length wrong: %d", cfg.DefaultQueueLen)
	}
}

func TestSettingsBoundFlags(t *testing.T) {
	s := NewSettings("myapp").StringFlag("station", "", "Station name")
	bound := s.BoundFlags()

	if bound["queue-len"] != "MYAPP_QUEUE_LEN" {
		t.Errorf("env key wrong: %q", bound["queue-len"])
	}
	if bound["station"] != "MYAPP_STATION" {
		t.Errorf("env key wrong: %q", bound["station"])
	}
}

func TestBuildHubWithConfigFile(t *testing.T) {
	d := newFakeDriver(SchedModePull)
	name := registerFake(t, d)
	cfgPath := writeConfigFile(t, fmt.Sprintf(`drivers:
  - driver: %s
    path: /dev/%s
    schema: %s
`, name, name, writeTestSchema(t)))

	s := NewSettings("testapp")
	err := s.Parse([]string{"--config", cfgPath, "--event-log-disable"})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	h, err := s.BuildHub()
	if err != nil {
		t.Fatalf("BuildHub failed: %v", err)
	}
	defer func() { _ = h.Shutdown() }()

	descs, err := h.DataDescs()
	if err != nil {
		t.Fatalf("DataDescs failed: %v", err)
	}
	if len(descs) != 2 {
		t.Errorf("expected 2 data descriptors, got %d", len(descs))
	}
}

func TestBuildHubShutsDownOnBadConfig(t *testing.T) {
	cfgPath := writeConfigFile(t, "drivers: []\n")

	s := NewSettings("testapp")
	if err := s.Parse([]string{"--config", cfgPath, "--event-log-disable"}); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if _, err := s.BuildHub(); err == nil {
		t.Error("expected error for empty driver list")
	}
}
