// config.go: Hub configuration
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package aether

import "time"

// Config configures a Hub.
type Config struct {
	// EventLog configures the operational event trail.
	EventLog EventLogConfig `json:"event_log" yaml:"event_log"`

	// DefaultQueueLen is the queue capacity applied to config-file driver
	// sections that omit one. It does not affect NewContext, which always
	// takes an explicit capacity.
	DefaultQueueLen int `json:"default_queue_len" yaml:"default_queue_len"`
}

// WithDefaults applies sensible defaults to the configuration.
func (c *Config) WithDefaults() *Config {
	config := *c

	if config.DefaultQueueLen <= 0 {
		config.DefaultQueueLen = 64
	}

	if config.EventLog.BufferSize <= 0 {
		config.EventLog.BufferSize = 1000
	}
	if config.EventLog.FlushInterval <= 0 {
		config.EventLog.FlushInterval = 5 * time.Second
	}

	return &config
}
