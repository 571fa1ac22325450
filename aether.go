// aether.go: The Hub, the top-level handle over the data plane
//
// A Hub bundles the three long-lived subsystems: the event log, the I/O
// scheduler goroutine, and the driver registry. Applications create one Hub,
// open drivers on it, and hand out contexts to consumers. Shutdown tears
// the pieces down in dependency order.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package aether

import (
	"sync"
	"time"

	"github.com/agilira/go-errors"
)

// Hub is the entry point to the data-acquisition core. Safe for concurrent
// use.
type Hub struct {
	mu       sync.Mutex
	config   Config
	events   *EventLogger
	sched    *ioScheduler
	registry *Registry
	down     bool
}

// New creates a Hub and starts its scheduler goroutine. A disabled event
// log is not an error; the Hub simply runs without a trail.
func New(config Config) (*Hub, error) {
	cfg := config.WithDefaults()

	var events *EventLogger
	if cfg.EventLog.Enabled {
		var err error
		events, err = NewEventLogger(cfg.EventLog)
		if err != nil {
			return nil, errors.Wrap(err, ErrCodeEventLogError, "failed to initialize event log")
		}
	}

	sched := newIOScheduler(events)
	h := &Hub{
		config:   *cfg,
		events:   events,
		sched:    sched,
		registry: newRegistry(sched, events),
	}
	h.events.Log(EventInfo, "hub_started", nil)
	return h, nil
}

// guard rejects operations on a shut-down Hub.
func (h *Hub) guard() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.down {
		return errors.New(ErrCodeHubShutdown, "hub has been shut down")
	}
	return nil
}

// Open initializes the named driver on a device path. See Registry.Open.
func (h *Hub) Open(driverName, path, schemaPath string, args []InitArg) error {
	if err := h.guard(); err != nil {
		return err
	}
	return h.registry.Open(driverName, path, schemaPath, args)
}

// Close tears down the driver instance on the given device path. Fails
// while contexts still reference it.
func (h *Hub) Close(path string) error {
	if err := h.guard(); err != nil {
		return err
	}
	return h.registry.Close(path)
}

// DataDescs returns descriptors for every currently available data ID.
func (h *Hub) DataDescs() ([]DataDesc, error) {
	if err := h.guard(); err != nil {
		return nil, err
	}
	return h.registry.DataDescs(), nil
}

// DeviceName returns the device name behind a data ID.
func (h *Hub) DeviceName(id DataID) (string, error) {
	if err := h.guard(); err != nil {
		return "", err
	}
	return h.registry.DeviceName(id)
}

// PeriodsSupported reports the valid sample periods for a data ID. Empty
// means any period.
func (h *Hub) PeriodsSupported(id DataID) ([]time.Duration, error) {
	if err := h.guard(); err != nil {
		return nil, err
	}
	return h.registry.PeriodsSupported(id)
}

// EventLogStats returns statistics from the event log backend.
func (h *Hub) EventLogStats() (*EventLogStats, error) {
	if err := h.guard(); err != nil {
		return nil, err
	}
	return h.events.Stats()
}

// Shutdown closes every driver, stops the scheduler, and flushes the event
// log. It fails if any context is still started; stop those first. The Hub
// is unusable afterwards.
func (h *Hub) Shutdown() error {
	h.mu.Lock()
	if h.down {
		h.mu.Unlock()
		return nil
	}
	h.down = true
	h.mu.Unlock()

	closeErr := h.registry.CloseAll()
	h.sched.stop()

	h.events.Log(EventInfo, "hub_shutdown", nil)
	if err := h.events.Close(); err != nil && closeErr == nil {
		closeErr = errors.Wrap(err, ErrCodeEventLogError, "failed to close event log")
	}
	return closeErr
}
