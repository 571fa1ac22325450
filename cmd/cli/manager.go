// Package cli provides the command-line interface for aether data
// acquisition.
//
// The CLI is built on the Orpheus framework with git-style subcommands. It
// covers the operator workflow around a running deployment: validating
// driver config and schema files, inspecting which drivers and data IDs a
// configuration exposes, streaming records to the terminal, and querying
// the operational event log.
//
// Architecture:
// - Manager: CLI orchestration and command routing
// - Handlers: individual command implementations
// - Utils: shared parsing and formatting helpers
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"github.com/agilira/aether"
	"github.com/agilira/orpheus/pkg/orpheus"
)

// Manager provides the CLI operations for aether.
type Manager struct {
	app    *orpheus.App
	events *aether.EventLogger // Optional event log integration
}

// NewManager creates a CLI manager with the full command tree registered.
func NewManager() *Manager {
	app := orpheus.New("aether").
		SetDescription("Sensor data-acquisition middleware").
		SetVersion("1.0.0")

	manager := &Manager{
		app: app,
	}

	manager.setupConfigCommands()
	manager.setupSchemaCommands()
	manager.setupRuntimeCommands()
	manager.setupEventCommands()
	manager.setupUtilityCommands()

	return manager
}

// WithEventLog attaches an event logger so CLI operations leave a trail.
func (m *Manager) WithEventLog(events *aether.EventLogger) *Manager {
	m.events = events
	return m
}

// Run executes the CLI application with the provided arguments.
func (m *Manager) Run(args []string) error {
	return m.app.Run(args)
}

// setupConfigCommands configures the 'config' command group.
func (m *Manager) setupConfigCommands() {
	configCmd := orpheus.NewCommand("config", "Driver configuration file operations")

	// config validate <file>
	configCmd.Subcommand("validate", "Validate a driver configuration file", m.handleConfigValidate)

	// config show <file>
	configCmd.Subcommand("show", "Show the drivers a configuration file opens", m.handleConfigShow)

	m.app.AddCommand(configCmd)
}

// setupSchemaCommands configures the 'schema' command group.
func (m *Manager) setupSchemaCommands() {
	schemaCmd := orpheus.NewCommand("schema", "Data format schema operations")

	// schema validate <file>
	schemaCmd.Subcommand("validate", "Validate a schema file", m.handleSchemaValidate)

	// schema show <file>
	schemaCmd.Subcommand("show", "Show descriptors and field layouts", m.handleSchemaShow)

	m.app.AddCommand(schemaCmd)
}

// setupRuntimeCommands configures commands that spin up a Hub from a config
// file: listing data, listing devices, and streaming records.
func (m *Manager) setupRuntimeCommands() {
	// drivers command
	driversCmd := orpheus.NewCommand("drivers", "List compiled-in drivers")
	driversCmd.SetHandler(m.handleDrivers)
	m.app.AddCommand(driversCmd)

	// data list --config <file>
	dataCmd := orpheus.NewCommand("data", "Data ID operations")
	listCmd := dataCmd.Subcommand("list", "List available data IDs", m.handleDataList)
	listCmd.AddFlag("config", "c", "", "Driver configuration file")
	m.app.AddCommand(dataCmd)

	// devices --config <file>
	devicesCmd := orpheus.NewCommand("devices", "List devices behind a configuration")
	devicesCmd.SetHandler(m.handleDevices)
	devicesCmd.AddFlag("config", "c", "", "Driver configuration file")
	m.app.AddCommand(devicesCmd)

	// run --config <file> --data <id@period,...> [--count=10] [--queue-len=64]
	runCmd := orpheus.NewCommand("run", "Stream records to the terminal")
	runCmd.SetHandler(m.handleRun)
	runCmd.AddFlag("config", "c", "", "Driver configuration file")
	runCmd.AddFlag("data", "d", "", "Requests as id@period pairs (e.g. 1@100ms,2@0)")
	runCmd.AddIntFlag("count", "n", 10, "Number of records to read")
	runCmd.AddIntFlag("queue-len", "q", 64, "Context queue capacity")
	m.app.AddCommand(runCmd)
}

// setupEventCommands configures the 'events' command group.
func (m *Manager) setupEventCommands() {
	eventsCmd := orpheus.NewCommand("events", "Event log management")

	// events stats [--db=<path>]
	statsCmd := eventsCmd.Subcommand("stats", "Show event log statistics", m.handleEventStats)
	statsCmd.AddFlag("db", "", "", "Event log file (.db or .jsonl); default is the shared database")

	m.app.AddCommand(eventsCmd)
}

// setupUtilityCommands configures diagnostics commands.
func (m *Manager) setupUtilityCommands() {
	// info command
	infoCmd := orpheus.NewCommand("info", "System information and diagnostics")
	infoCmd.SetHandler(m.handleInfo)
	infoCmd.AddBoolFlag("verbose", "v", false, "Verbose system information")
	m.app.AddCommand(infoCmd)

	// completion command
	completionCmd := orpheus.NewCommand("completion", "Generate shell completion scripts")
	completionCmd.SetHandler(m.handleCompletion)
	m.app.AddCommand(completionCmd)
}
