// configfile.go: YAML driver configuration files
//
// A config file lists drivers to open at startup: driver name, device path,
// schema file, and typed init arguments. Loading is transactional at the
// file level: if any driver fails to open, the ones already opened by the
// same load are closed again and the error is returned.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package aether

import (
	"os"

	"github.com/agilira/go-errors"
	"go.yaml.in/yaml/v3"
)

// rawConfigFile mirrors the YAML layout of a driver config file.
type rawConfigFile struct {
	Drivers []struct {
		Driver string `yaml:"driver"`
		Path   string `yaml:"path"`
		Schema string `yaml:"schema"`
		Args   []struct {
			Type  string `yaml:"type"`
			Value any    `yaml:"value"`
		} `yaml:"args"`
	} `yaml:"drivers"`
}

// DriverConfig is one parsed driver section.
type DriverConfig struct {
	Driver string
	Path   string
	Schema string
	Args   []InitArg
}

// ParseConfigFile reads and validates a driver config file without opening
// anything. Useful for the CLI's validate command.
func ParseConfigFile(path string) ([]DriverConfig, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- config path comes from the operator
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeInvalidConfig, "failed to read config file").
			WithContext("path", path)
	}
	return parseConfig(data)
}

// parseConfig parses config YAML from memory.
func parseConfig(data []byte) ([]DriverConfig, error) {
	var raw rawConfigFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, ErrCodeInvalidConfig, "malformed config YAML")
	}
	if len(raw.Drivers) == 0 {
		return nil, errors.New(ErrCodeInvalidConfig, "config lists no drivers")
	}

	seen := make(map[string]bool, len(raw.Drivers))
	out := make([]DriverConfig, 0, len(raw.Drivers))
	for i, rd := range raw.Drivers {
		if rd.Driver == "" {
			return nil, errors.New(ErrCodeInvalidConfig, "driver section missing driver name").
				WithContext("index", i)
		}
		if rd.Path == "" {
			return nil, errors.New(ErrCodeInvalidConfig, "driver section missing device path").
				WithContext("driver", rd.Driver)
		}
		if rd.Schema == "" {
			return nil, errors.New(ErrCodeInvalidConfig, "driver section missing schema file").
				WithContext("driver", rd.Driver).
				WithContext("path", rd.Path)
		}
		if seen[rd.Path] {
			return nil, errors.New(ErrCodeInvalidConfig, "device path listed twice").
				WithContext("path", rd.Path)
		}
		seen[rd.Path] = true

		dc := DriverConfig{Driver: rd.Driver, Path: rd.Path, Schema: rd.Schema}
		for j, ra := range rd.Args {
			t, err := parseFieldType(ra.Type)
			if err != nil {
				return nil, errors.Wrap(err, ErrCodeInvalidConfig, "bad init arg type").
					WithContext("driver", rd.Driver).
					WithContext("arg", j)
			}
			v, err := coerceArgValue(t, ra.Value)
			if err != nil {
				return nil, errors.Wrap(err, ErrCodeInvalidConfig, "bad init arg value").
					WithContext("driver", rd.Driver).
					WithContext("arg", j)
			}
			dc.Args = append(dc.Args, InitArg{Type: t, Value: v})
		}
		out = append(out, dc)
	}
	return out, nil
}

// coerceArgValue normalizes a YAML scalar to the canonical Go type for the
// declared field type: signed ints become int64, unsigned become uint64,
// floats become float64.
func coerceArgValue(t FieldType, v any) (any, error) {
	switch t {
	case FieldTypeBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case FieldTypeInt8, FieldTypeInt16, FieldTypeInt32, FieldTypeInt64:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int64:
			return n, nil
		case uint64:
			return int64(n), nil
		}
	case FieldTypeUint8, FieldTypeUint16, FieldTypeUint32, FieldTypeUint64:
		switch n := v.(type) {
		case int:
			if n >= 0 {
				return uint64(n), nil
			}
		case int64:
			if n >= 0 {
				return uint64(n), nil
			}
		case uint64:
			return n, nil
		}
	case FieldTypeFloat32, FieldTypeFloat64:
		switch n := v.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		}
	case FieldTypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case FieldTypeBytes:
		if s, ok := v.(string); ok {
			return []byte(s), nil
		}
	}
	return nil, errors.New(ErrCodeInvalidValue, "value does not match declared type").
		WithContext("type", t.String())
}

// LoadConfigFile opens every driver listed in the file. On any failure the
// drivers opened by this call are closed again before returning.
func (h *Hub) LoadConfigFile(path string) error {
	if err := h.guard(); err != nil {
		return err
	}

	configs, err := ParseConfigFile(path)
	if err != nil {
		return err
	}

	opened := make([]string, 0, len(configs))
	for _, dc := range configs {
		if err := h.registry.Open(dc.Driver, dc.Path, dc.Schema, dc.Args); err != nil {
			for i := len(opened) - 1; i >= 0; i-- {
				if cerr := h.registry.Close(opened[i]); cerr != nil {
					h.events.Log(EventWarn, "config_rollback_close_failed", map[string]any{
						"path": opened[i], "error": cerr.Error(),
					})
				}
			}
			return errors.Wrap(err, ErrCodeInvalidConfig, "failed to open configured driver").
				WithContext("driver", dc.Driver).
				WithContext("path", dc.Path)
		}
		opened = append(opened, dc.Path)
	}

	h.events.Log(EventInfo, "config_loaded", map[string]any{
		"file":    path,
		"drivers": len(opened),
	})
	return nil
}
