// Command handlers for the aether CLI
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"fmt"

	"github.com/agilira/aether"
	"github.com/agilira/go-errors"
	"github.com/agilira/orpheus/pkg/orpheus"
)

// handleConfigValidate parses a driver config file and reports the result.
func (m *Manager) handleConfigValidate(ctx *orpheus.Context) error {
	filePath := ctx.GetArg(0)
	if filePath == "" {
		return errors.New(aether.ErrCodeInvalidConfig, "usage: config validate <file>")
	}

	m.events.Log(aether.EventInfo, "cli_config_validate", map[string]any{"file": filePath})

	configs, err := aether.ParseConfigFile(filePath)
	if err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		return err
	}

	fmt.Printf("Valid configuration: %s (%d drivers)\n", filePath, len(configs))
	return nil
}

// handleConfigShow prints each driver section of a config file.
func (m *Manager) handleConfigShow(ctx *orpheus.Context) error {
	filePath := ctx.GetArg(0)
	if filePath == "" {
		return errors.New(aether.ErrCodeInvalidConfig, "usage: config show <file>")
	}

	configs, err := aether.ParseConfigFile(filePath)
	if err != nil {
		return err
	}

	fmt.Printf("Drivers in %s:\n", filePath)
	for _, dc := range configs {
		fmt.Printf("  %-12s path=%s schema=%s args=%d\n", dc.Driver, dc.Path, dc.Schema, len(dc.Args))
	}
	return nil
}

// handleSchemaValidate parses a schema file and reports the result.
func (m *Manager) handleSchemaValidate(ctx *orpheus.Context) error {
	filePath := ctx.GetArg(0)
	if filePath == "" {
		return errors.New(aether.ErrCodeInvalidSchema, "usage: schema validate <file>")
	}

	descs, err := aether.ParseSchemaFile(filePath)
	if err != nil {
		fmt.Printf("Invalid schema: %v\n", err)
		return err
	}

	fmt.Printf("Valid schema: %s (%d descriptors)\n", filePath, len(descs))
	return nil
}

// handleSchemaShow prints descriptors with their field layouts.
func (m *Manager) handleSchemaShow(ctx *orpheus.Context) error {
	filePath := ctx.GetArg(0)
	if filePath == "" {
		return errors.New(aether.ErrCodeInvalidSchema, "usage: schema show <file>")
	}

	descs, err := aether.ParseSchemaFile(filePath)
	if err != nil {
		return err
	}

	for _, desc := range descs {
		fmt.Printf("%s (id %d):\n", desc.Name, uint64(desc.DataID))
		for _, f := range desc.Fields {
			size := "variable"
			if f.Size > 0 {
				size = fmt.Sprintf("%d bytes", f.Size)
			}
			unit := ""
			if f.Unit != "" {
				unit = " [" + f.Unit + "]"
			}
			fmt.Printf("  +%-4d %-16s %s (%s)%s\n", f.Offset, f.Name, f.Type.String(), size, unit)
		}
	}
	return nil
}

// handleDrivers lists the drivers compiled into this binary.
func (m *Manager) handleDrivers(ctx *orpheus.Context) error {
	names := aether.RegisteredDrivers()
	if len(names) == 0 {
		fmt.Println("No drivers compiled in")
		return nil
	}
	fmt.Println("Compiled-in drivers:")
	for _, name := range names {
		fmt.Printf("  %s\n", name)
	}
	return nil
}

// withHub opens a Hub from the --config flag, runs fn, and tears the Hub
// down again. The event log is disabled; one-shot CLI invocations should
// not write the operational trail.
func (m *Manager) withHub(ctx *orpheus.Context, fn func(h *aether.Hub) error) error {
	configPath := ctx.GetFlagString("config")
	if configPath == "" {
		return errors.New(aether.ErrCodeInvalidConfig, "missing --config flag")
	}

	h, err := aether.New(aether.Config{})
	if err != nil {
		return err
	}
	defer func() {
		_ = h.Shutdown()
	}()

	if err := h.LoadConfigFile(configPath); err != nil {
		return err
	}
	return fn(h)
}

// handleDataList opens the configured drivers and lists available data IDs.
func (m *Manager) handleDataList(ctx *orpheus.Context) error {
	return m.withHub(ctx, func(h *aether.Hub) error {
		descs, err := h.DataDescs()
		if err != nil {
			return err
		}
		fmt.Printf("%-8s %-20s %-8s %s\n", "ID", "NAME", "DEVICE", "PERIODS")
		for _, desc := range descs {
			fmt.Printf("%-8d %-20s %-8d %s\n",
				uint64(desc.ID), desc.Name, int(desc.DeviceID), formatPeriods(desc.Periods))
		}
		return nil
	})
}

// handleDevices opens the configured drivers and lists their devices.
func (m *Manager) handleDevices(ctx *orpheus.Context) error {
	return m.withHub(ctx, func(h *aether.Hub) error {
		descs, err := h.DataDescs()
		if err != nil {
			return err
		}
		seen := make(map[aether.DeviceID]bool)
		fmt.Printf("%-8s %s\n", "DEVICE", "NAME")
		for _, desc := range descs {
			if seen[desc.DeviceID] {
				continue
			}
			seen[desc.DeviceID] = true
			name, err := h.DeviceName(desc.ID)
			if err != nil {
				return err
			}
			if name == "" {
				name = "(unnamed)"
			}
			fmt.Printf("%-8d %s\n", int(desc.DeviceID), name)
		}
		return nil
	})
}

// handleRun streams records from the requested data IDs to the terminal.
func (m *Manager) handleRun(ctx *orpheus.Context) error {
	rqs, err := parseDataRequests(ctx.GetFlagString("data"))
	if err != nil {
		return err
	}
	count := ctx.GetFlagInt("count")
	queueLen := ctx.GetFlagInt("queue-len")

	return m.withHub(ctx, func(h *aether.Hub) error {
		c, err := h.NewContext(queueLen, rqs, printRecord)
		if err != nil {
			return err
		}
		if err := c.Start(); err != nil {
			return err
		}
		defer func() {
			_ = c.Stop()
			_ = c.Free()
		}()

		remaining := count
		for remaining > 0 {
			chunk := remaining
			if chunk > queueLen {
				chunk = queueLen
			}
			n, err := c.Read(chunk)
			if err != nil {
				return err
			}
			remaining -= n
		}
		return nil
	})
}

// handleEventStats prints statistics from an event log backend.
func (m *Manager) handleEventStats(ctx *orpheus.Context) error {
	cfg := aether.DefaultEventLogConfig()
	cfg.OutputFile = ctx.GetFlagString("db")
	cfg.FlushInterval = 0 // one-shot, no background flusher

	logger, err := aether.NewEventLogger(cfg)
	if err != nil {
		return errors.Wrap(err, aether.ErrCodeEventLogError, "failed to open event log")
	}
	defer func() {
		_ = logger.Close()
	}()

	stats, err := logger.Stats()
	if err != nil {
		return errors.Wrap(err, aether.ErrCodeEventLogError, "failed to read event log statistics")
	}

	fmt.Printf("Total events:   %d\n", stats.TotalEvents)
	fmt.Printf("Schema version: %d\n", stats.SchemaVersion)
	fmt.Printf("Storage size:   %d bytes\n", stats.DatabaseSize)
	for level, count := range stats.EventsByLevel {
		fmt.Printf("  %-8s %d\n", level, count)
	}
	if stats.OldestEvent != nil {
		fmt.Printf("Oldest event:   %s\n", stats.OldestEvent.Format("2006-01-02 15:04:05"))
	}
	if stats.NewestEvent != nil {
		fmt.Printf("Newest event:   %s\n", stats.NewestEvent.Format("2006-01-02 15:04:05"))
	}
	return nil
}

// handleInfo displays system information and diagnostics.
func (m *Manager) handleInfo(ctx *orpheus.Context) error {
	verbose := ctx.GetFlagBool("verbose")

	fmt.Printf("Aether Data Acquisition\n")
	fmt.Printf("Version: 1.0.0\n")

	if verbose {
		fmt.Printf("\nCompiled-in drivers: %d\n", len(aether.RegisteredDrivers()))
		for _, name := range aether.RegisteredDrivers() {
			fmt.Printf("  %s\n", name)
		}
		fmt.Printf("Event log attached: %v\n", m.events != nil)
	}
	return nil
}

// handleCompletion generates shell completion scripts.
func (m *Manager) handleCompletion(ctx *orpheus.Context) error {
	shell := ctx.GetArg(0)

	switch shell {
	case "bash":
		fmt.Printf("# Bash completion for aether\n")
		fmt.Printf("# Add to ~/.bashrc: source <(aether completion bash)\n")
		fmt.Printf("_aether_completion() {\n")
		fmt.Printf("  COMPREPLY=($(compgen -W 'config schema drivers data devices run events info completion' -- \"${COMP_WORDS[COMP_CWORD]}\"))\n")
		fmt.Printf("}\n")
		fmt.Printf("complete -F _aether_completion aether\n")
	case "zsh":
		fmt.Printf("# Zsh completion for aether\n")
		fmt.Printf("# Add to ~/.zshrc: source <(aether completion zsh)\n")
		fmt.Printf("#compdef aether\n")
		fmt.Printf("_aether() {\n")
		fmt.Printf("  _arguments '1: :(config schema drivers data devices run events info completion)'\n")
		fmt.Printf("}\n")
	case "fish":
		fmt.Printf("# Fish completion for aether\n")
		fmt.Printf("complete -c aether -f -a 'config schema drivers data devices run events info completion'\n")
	default:
		return errors.New(aether.ErrCodeInvalidValue, fmt.Sprintf("unsupported shell: %s", shell))
	}
	return nil
}
