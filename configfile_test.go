// configfile_test.go: Driver config file parsing and transactional load
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package aether

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aether.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestParseConfigFile(t *testing.T) {
	path := writeConfigFile(t, `drivers:
  - driver: counter
    path: /dev/counter0
    schema: counter.yaml
    args:
      - type: uint64
        value: 100
  - driver: file
    path: /var/log/sensor.bin
    schema: sensor.yaml
`)

	configs, err := ParseConfigFile(path)
	if err != nil {
		t.Fatalf("ParseConfigFile failed: %v", err)
	}
	if len(configs) != 2 {
		t.Fatalf("expected 2 driver sections, got %d", len(configs))
	}

	first := configs[0]
	if first.Driver != "counter" || first.Path != "/dev/counter0" || first.Schema != "counter.yaml" {
		t.Errorf("first section wrong: %+v", first)
	}
	if len(first.Args) != 1 {
		t.Fatalf("expected 1 init arg, got %d", len(first.Args))
	}
	if first.Args[0].Type != FieldTypeUint64 {
		t.Errorf("arg type wrong: %v", first.Args[0].Type)
	}
	if v, ok := first.Args[0].Value.(uint64); !ok || v != 100 {
		t.Errorf("arg value not coerced to uint64: %T %v", first.Args[0].Value, first.Args[0].Value)
	}
	if len(configs[1].Args) != 0 {
		t.Errorf("second section should have no args: %v", configs[1].Args)
	}
}

func TestParseConfigRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"not yaml", "{{{"},
		{"no drivers", "drivers: []\n"},
		{"missing driver name", "drivers:\n  - path: /dev/x\n    schema: s.yaml\n"},
		{"missing path", "drivers:\n  - driver: counter\n    schema: s.yaml\n"},
		{"missing schema", "drivers:\n  - driver: counter\n    path: /dev/x\n"},
		{
			"duplicate path",
			`drivers:
  - {driver: counter, path: /dev/x, schema: a.yaml}
  - {driver: file, path: /dev/x, schema: b.yaml}
`,
		},
		{
			"unknown arg type",
			`drivers:
  - driver: counter
    path: /dev/x
    schema: s.yaml
    args: [{type: matrix, value: 1}]
`,
		},
		{
			"arg value type mismatch",
			`drivers:
  - driver: counter
    path: /dev/x
    schema: s.yaml
    args: [{type: uint64, value: hello}]
`,
		},
		{
			"negative value for unsigned",
			`drivers:
  - driver: counter
    path: /dev/x
    schema: s.yaml
    args: [{type: uint32, value: -1}]
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseConfig([]byte(tt.yaml))
			assertErrCode(t, err, ErrCodeInvalidConfig)
		})
	}
}

func TestCoerceArgValue(t *testing.T) {
	tests := []struct {
		name string
		t    FieldType
		in   any
		want any
	}{
		{"bool", FieldTypeBool, true, true},
		{"int to int64", FieldTypeInt32, int(-5), int64(-5)},
		{"int to uint64", FieldTypeUint16, int(7), uint64(7)},
		{"int to float64", FieldTypeFloat32, int(3), float64(3)},
		{"float stays float", FieldTypeFloat64, 2.5, 2.5},
		{"string", FieldTypeString, "dev", "dev"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := coerceArgValue(tt.t, tt.in)
			if err != nil {
				t.Fatalf("coerceArgValue failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %T %v, want %T %v", got, got, tt.want, tt.want)
			}
		})
	}

	// Bytes come in as a string, out as a byte slice.
	got, err := coerceArgValue(FieldTypeBytes, "ab")
	if err != nil {
		t.Fatalf("coerceArgValue failed: %v", err)
	}
	b, ok := got.([]byte)
	if !ok || string(b) != "ab" {
		t.Errorf("expected []byte(ab), got %T %v", got, got)
	}

	if _, err := coerceArgValue(FieldTypeBool, "yes"); err == nil {
		t.Error("string should not coerce to bool")
	}
}

func TestLoadConfigFileOpensDrivers(t *testing.T) {
	h := newTestHub(t)
	d := newFakeDriver(SchedModePull)
	name := registerFake(t, d)

	path := writeConfigFile(t, fmt.Sprintf(`drivers:
  - driver: %s
    path: /dev/%s
    schema: %s
`, name, name, writeTestSchema(t)))

	if err := h.LoadConfigFile(path); err != nil {
		t.Fatalf("LoadConfigFile failed: %v", err)
	}

	descs, err := h.DataDescs()
	if err != nil {
		t.Fatalf("DataDescs failed: %v", err)
	}
	if len(descs) != 2 {
		t.Errorf("expected 2 data descriptors after load, got %d", len(descs))
	}
}

func TestLoadConfigFileRollsBackOnFailure(t *testing.T) {
	h := newTestHub(t)

	good := newFakeDriver(SchedModePull)
	goodName := registerFake(t, good)
	bad := newFakeDriver(SchedModePull)
	bad.failInit = true
	badName := registerFake(t, bad)

	path := writeConfigFile(t, fmt.Sprintf(`drivers:
  - driver: %s
    path: /dev/good
    schema: %s
  - driver: %s
    path: /dev/bad
    schema: %s
`, goodName, writeTestSchema(t), badName, writeTestSchemaWithIDs(t, 10)))

	assertErrCode(t, h.LoadConfigFile(path), ErrCodeInvalidConfig)

	// The first driver was opened and must be closed again.
	good.mu.Lock()
	destroys := good.destroyCount
	good.mu.Unlock()
	if destroys != 1 {
		t.Errorf("rolled-back driver should be destroyed, got %d destroys", destroys)
	}
	descs, err := h.DataDescs()
	if err != nil {
		t.Fatalf("DataDescs failed: %v", err)
	}
	if len(descs) != 0 {
		t.Errorf("expected empty registry after rollback, got %d descriptors", len(descs))
	}
}
