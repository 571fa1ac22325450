// driver.go: The driver contract and the compile-time driver name table
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package aether

import (
	"fmt"
	"sync"
	"time"
)

// SchedMode selects how the I/O scheduler drives a driver.
type SchedMode int

const (
	// SchedModePull means the driver produces a sample only when asked via
	// Next. The scheduler maintains one timer per requested (data ID,
	// period) pair and ticks the driver when each expires.
	SchedModePull SchedMode = iota

	// SchedModePush means data arrives on the driver's own initiative; the
	// scheduler just drains the source channel and parses whatever shows
	// up. Push-mode data allows at most one period per data ID.
	SchedModePush
)

// String returns the config-file spelling of the mode.
func (m SchedMode) String() string {
	if m == SchedModePush {
		return "push"
	}
	return "pull"
}

// DataRq is one consumer request: a data ID at a sample period. Period 0
// means on-demand: the data is produced only when the consumer calls
// Context.Next or Context.Read.
type DataRq struct {
	ID     DataID
	Period time.Duration
}

// InitArg is one typed argument passed to a driver's Init, usually sourced
// from the YAML config file.
type InitArg struct {
	Type  FieldType
	Value any
}

// DrvDataDesc is a driver's answer for one schema descriptor: whether the
// backing hardware actually supports it and, if so, at which periods. An
// empty period list means any period is accepted.
type DrvDataDesc struct {
	Enabled bool
	Periods []time.Duration
}

// DataDesc is the public descriptor for one available data ID, assembled by
// the registry from the schema file and the driver's DrvDataDesc answers.
type DataDesc struct {
	ID       DataID
	DeviceID DeviceID
	Name     string
	Periods  []time.Duration
	Schema   SchemaDesc
}

// Driver is the contract every hardware driver implements. The core calls
// Init, DeviceName and DataDescs synchronously from Open; everything else
// runs with the instance's op lock held, so implementations need no internal
// locking against the core (they may still need it against their own
// goroutines).
//
// Start hands the core a channel of raw byte chunks; the scheduler reads
// chunks and feeds them to Parse, which turns them into records. Push-mode
// drivers send on the channel whenever their device produces data. Pull-mode
// drivers send in response to Next. After Stop returns the driver must not
// send again; closing the channel is allowed. Sends must never block: the
// scheduler goroutine is the channel's sole reader and is also the caller of
// Next and Parse, so a blocking send from inside a callback would deadlock
// the loop. Buffer the channel or drop the sample instead.
type Driver interface {
	// Init prepares the driver for the device at path. Called once per
	// instance, before any other callback.
	Init(path string, args []InitArg) error

	// Destroy releases everything Init allocated. The instance is
	// guaranteed stopped and unreferenced.
	Destroy() error

	// DeviceName reports a stable identifier for the backing device, at
	// most DeviceNameMax-1 bytes. Empty is allowed when the hardware has
	// no usable ID.
	DeviceName() (string, error)

	// DataDescs declares which of the schema descriptors the hardware
	// supports. The returned slice must be parallel to schemas.
	DataDescs(schemas []SchemaDesc) ([]DrvDataDesc, SchedMode, error)

	// SetData tells the driver the full set of (ID, period) pairs it
	// should be prepared to produce. Called whenever the aggregate active
	// set changes while consumers remain, including just before the
	// Start that the first consumer triggers.
	SetData(rqs []DataRq) error

	// Parse consumes raw bytes from the source channel and produces zero
	// or more records. It returns how many bytes it consumed; unconsumed
	// bytes are retained and prepended to the next chunk, so drivers can
	// wait for a complete frame. Returned records must be covered by the
	// consumed count: reporting records with zero bytes consumed is a
	// contract violation and the buffered bytes are dropped.
	Parse(buf []byte) (consumed int, recs []Record, err error)

	// Start opens the device and returns the source channel.
	Start() (<-chan []byte, error)

	// Next asks for one sample of the given data ID. Pull mode only. Next
	// runs on the scheduler goroutine, so the resulting channel send must
	// not block (see above).
	Next(id DataID) error

	// Stop halts production and releases the source channel's resources.
	Stop() error
}

// opsWrapper serializes every callback into one driver instance. The
// bookkeeping lock of the instance is deliberately separate: a slow driver
// call must not block registry lookups or another instance's traffic.
type opsWrapper struct {
	mu  sync.Mutex
	drv Driver
}

func (w *opsWrapper) init(path string, args []InitArg) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.drv.Init(path, args)
}

func (w *opsWrapper) destroy() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.drv.Destroy()
}

func (w *opsWrapper) deviceName() (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.drv.DeviceName()
}

func (w *opsWrapper) dataDescs(schemas []SchemaDesc) ([]DrvDataDesc, SchedMode, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.drv.DataDescs(schemas)
}

func (w *opsWrapper) setData(rqs []DataRq) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.drv.SetData(rqs)
}

func (w *opsWrapper) parse(buf []byte) (int, []Record, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.drv.Parse(buf)
}

func (w *opsWrapper) start() (<-chan []byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.drv.Start()
}

func (w *opsWrapper) next(id DataID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.drv.Next(id)
}

func (w *opsWrapper) stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.drv.Stop()
}

// The driver name table. Drivers register a factory under a stable name in
// their package init, so the set of available drivers is fixed at compile
// time by what the application imports.
var (
	driversMu       sync.RWMutex
	driverFactories = make(map[string]func() Driver)
)

// RegisterDriver installs a driver factory under the given name. It panics
// on an empty name or a duplicate registration: the driver set is a
// compile-time property and a collision is a programming error, not a
// runtime condition.
func RegisterDriver(name string, factory func() Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if name == "" {
		panic("aether: empty driver name")
	}
	if factory == nil {
		panic(fmt.Sprintf("aether: nil factory for driver %q", name))
	}
	if _, exists := driverFactories[name]; exists {
		panic(fmt.Sprintf("aether: driver %q registered twice", name))
	}
	driverFactories[name] = factory
}

// lookupDriverFactory fetches a registered factory by name.
func lookupDriverFactory(name string) (func() Driver, bool) {
	driversMu.RLock()
	defer driversMu.RUnlock()
	f, ok := driverFactories[name]
	return f, ok
}

// RegisteredDrivers returns the sorted-by-nothing list of driver names
// currently registered. Mostly useful for diagnostics and the CLI.
func RegisteredDrivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(driverFactories))
	for name := range driverFactories {
		names = append(names, name)
	}
	return names
}
