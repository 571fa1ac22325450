// integration.go: Application settings layer on FlashFlags
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

// Settings combines command-line flags, environment variables, and defaults
// for applications embedding an aether Hub. It pre-registers the flags every
// such application needs (driver config file, event log destination, queue
// sizing) and can build a configured Hub directly.

package aether

import (
	"fmt"
	"os"
	"strings"
	"time"

	flashflags "github.com/agilira/flash-flags"
)

// Settings is a unified settings manager for Hub-embedding applications.
type Settings struct {
	flags *flashflags.FlagSet

	appName        string
	appDescription string
	appVersion     string

	// Explicit overrides, highest precedence.
	values map[string]interface{}
}

// NewSettings creates a settings manager with the standard Hub flags
// pre-registered. Environment variables use the uppercased app name as
// prefix, so "event-log" becomes APPNAME_EVENT_LOG.
func NewSettings(appName string) *Settings {
	s := &Settings{
		flags:   flashflags.New(appName),
		appName: appName,
		values:  make(map[string]interface{}),
	}
	s.flags.String("config", "", "Driver configuration file (YAML)")
	s.flags.String("event-log", "", "Event log destination (.db, .jsonl, or empty for the shared database)")
	s.flags.Bool("event-log-disable", false, "Disable the operational event log")
	s.flags.Duration("event-log-flush", 5*time.Second, "Event log flush interval")
	s.flags.Int("queue-len", 64, "Default per-context queue capacity")
	return s
}

// SetDescription sets the application description for help text.
func (s *Settings) SetDescription(description string) *Settings {
	s.appDescription = description
	s.flags.SetDescription(description)
	return s
}

// SetVersion sets the application version for help text.
func (s *Settings) SetVersion(version string) *Settings {
	s.appVersion = version
	s.flags.SetVersion(version)
	return s
}

// Flag registration, fluent interface. Applications add their own flags on
// top of the pre-registered Hub set.

// StringFlag adds a string flag.
func (s *Settings) StringFlag(name, defaultValue, usage string) *Settings {
	s.flags.String(name, defaultValue, usage)
	return s
}

// IntFlag adds an integer flag.
func (s *Settings) IntFlag(name string, defaultValue int, usage string) *Settings {
	s.flags.Int(name, defaultValue, usage)
	return s
}

// BoolFlag adds a boolean flag.
func (s *Settings) BoolFlag(name string, defaultValue bool, usage string) *Settings {
	s.flags.Bool(name, defaultValue, usage)
	return s
}

// DurationFlag adds a duration flag.
func (s *Settings) DurationFlag(name string, defaultValue time.Duration, usage string) *Settings {
	s.flags.Duration(name, defaultValue, usage)
	return s
}

// Float64Flag adds a float64 flag.
func (s *Settings) Float64Flag(name string, defaultValue float64, usage string) *Settings {
	s.flags.Float64(name, defaultValue, usage)
	return s
}

// StringSliceFlag adds a string slice flag.
func (s *Settings) StringSliceFlag(name string, defaultValue []string, usage string) *Settings {
	s.flags.StringSlice(name, defaultValue, usage)
	return s
}

// Parse parses command-line arguments and binds environment variables.
func (s *Settings) Parse(args []string) error {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return fmt.Errorf("help requested")
		}
	}

	if err := s.flags.Parse(args); err != nil {
		return fmt.Errorf("failed to parse command-line flags: %w", err)
	}

	s.flags.SetEnvPrefix(strings.ToUpper(s.appName))
	return nil
}

// ParseArgs parses os.Args[1:].
func (s *Settings) ParseArgs() error {
	return s.Parse(os.Args[1:])
}

// ParseArgsOrExit parses and exits cleanly on help or error.
func (s *Settings) ParseArgsOrExit() {
	if err := s.ParseArgs(); err != nil {
		if err.Error() == "help requested" {
			s.PrintUsage()
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		s.PrintUsage()
		os.Exit(1)
	}
}

// GetString retrieves a string value, override first, then flag/env.
func (s *Settings) GetString(key string) string {
	if val, exists := s.values[key]; exists {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return s.flags.GetString(key)
}

// GetInt retrieves an integer value.
func (s *Settings) GetInt(key string) int {
	if val, exists := s.values[key]; exists {
		if intVal, ok := val.(int); ok {
			return intVal
		}
	}
	return s.flags.GetInt(key)
}

// GetBool retrieves a boolean value.
func (s *Settings) GetBool(key string) bool {
	if val, exists := s.values[key]; exists {
		if boolVal, ok := val.(bool); ok {
			return boolVal
		}
	}
	return s.flags.GetBool(key)
}

// GetDuration retrieves a duration value.
func (s *Settings) GetDuration(key string) time.Duration {
	if val, exists := s.values[key]; exists {
		if durVal, ok := val.(time.Duration); ok {
			return durVal
		}
	}
	return s.flags.GetDuration(key)
}

// GetStringSlice retrieves a string slice value.
func (s *Settings) GetStringSlice(key string) []string {
	if val, exists := s.values[key]; exists {
		if sliceVal, ok := val.([]string); ok {
			return sliceVal
		}
	}
	return s.flags.GetStringSlice(key)
}

// Set explicitly overrides a value (highest precedence).
func (s *Settings) Set(key string, value interface{}) {
	s.values[key] = value
}

// HubConfig assembles a Config from the parsed settings.
func (s *Settings) HubConfig() Config {
	return Config{
		EventLog: EventLogConfig{
			Enabled:       !s.GetBool("event-log-disable"),
			OutputFile:    s.GetString("event-log"),
			FlushInterval: s.GetDuration("event-log-flush"),
		},
		DefaultQueueLen: s.GetInt("queue-len"),
	}
}

// BuildHub creates a Hub from the parsed settings and, if a config file was
// given, opens the drivers it lists. On a config failure the Hub is shut
// down again so the caller never sees a half-built one.
func (s *Settings) BuildHub() (*Hub, error) {
	h, err := New(s.HubConfig())
	if err != nil {
		return nil, err
	}
	if cfg := s.GetString("config"); cfg != "" {
		if err := h.LoadConfigFile(cfg); err != nil {
			_ = h.Shutdown()
			return nil, err
		}
	}
	return h, nil
}

// PrintUsage prints help for all registered flags.
func (s *Settings) PrintUsage() {
	s.flags.PrintHelp()
}

// BoundFlags returns every registered flag name mapped to its environment
// variable key. Useful for diagnostics.
func (s *Settings) BoundFlags() map[string]string {
	result := make(map[string]string)
	s.flags.VisitAll(func(flag *flashflags.Flag) {
		name := flag.Name()
		result[name] = s.flagToEnvKey(name)
	})
	return result
}

// flagToEnvKey converts "queue-len" to "APPNAME_QUEUE_LEN".
func (s *Settings) flagToEnvKey(flagName string) string {
	return strings.ToUpper(s.appName + "_" + strings.ReplaceAll(flagName, "-", "_"))
}
