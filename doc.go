// Package aether provides a process-wide sensor data-acquisition core for Go
// applications: pluggable hardware drivers on one side, independent consumer
// contexts on the other, with a single multiplexing I/O scheduler in between.
//
// # Philosophy: One Driver, Many Consumers
//
// Aether is built on the principle that a hardware data source should be
// opened and polled exactly once, no matter how many parts of an application
// want its data. Consumers declare what they want (data IDs and sample
// periods); the core reference-counts those requests, drives each driver from
// a single scheduler goroutine, and fans records out into per-consumer
// bounded queues.
//
// # Architecture Overview
//
// Aether consists of six integrated subsystems:
//  1. **Record Queue**: Bounded, thread-safe ring of reference-counted
//     records with overwrite-oldest semantics and live resize
//  2. **Driver Registry**: Compile-time driver name table plus per-path
//     driver instances, with conflict detection across data IDs
//  3. **Instance Multiplexer**: Active-data reference counting that turns N
//     overlapping requests into one setdata/start/stop sequence
//  4. **I/O Scheduler**: A single goroutine multiplexing every open driver
//     source, with adaptive per-source timers for pull-mode sampling
//  5. **Consumer Contexts**: Start/stop lifecycle, blocking and non-blocking
//     reads, live subscription changes with full rollback
//  6. **Event Log**: Driver and context lifecycle logging with SQLite backend
//
// # Quick Start
//
// Register a driver, open it, and read records:
//
//	hub, err := aether.New(aether.Config{})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer hub.Shutdown()
//
//	err = hub.Open("counter", "/dev/counter0", "schemas/counter.yaml", nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	rqs := []aether.DataRq{{ID: 1, Period: 20 * time.Millisecond}}
//	ctx, err := hub.NewContext(64, rqs, func(rec *aether.Record, seqno aether.Seqno) {
//		fmt.Printf("seq=%d payload=%x\n", seqno, rec.Data)
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	ctx.Start()
//	defer ctx.Stop()
//	ctx.Read(100) // block until 100 records have been delivered
//
// # Drivers
//
// A driver implements the Driver interface: Init, DeviceName, DataDescs,
// SetData, Parse, Start, Next, Stop, Destroy. Start hands the core a raw
// chunk channel; the scheduler reads it, feeds the bytes back into Parse,
// and delivers the resulting records to every subscribed context. Pull-mode
// drivers are additionally ticked through Next at whatever periods consumers
// requested. Reference drivers live under drivers/ and register themselves
// in their package init, so a blank import is enough:
//
//	import _ "github.com/agilira/aether/drivers/counter"
//
// # Configuration
//
// A YAML config file can list drivers to open at startup, each with a name,
// an instance path, a schema file, and typed init arguments. Schema files
// describe the wire format of each data ID (field name, unit, type) and are
// handed to the driver when it declares its descriptors.
//
// # Thread Safety and Concurrency
//
// All public entry points are safe for concurrent use:
//   - Record reference counts are atomic; records cross the scheduler and
//     consumer goroutines without shared locks
//   - Registry maps are guarded by a single read-write lock
//   - Each driver instance separates bookkeeping state from callback
//     serialization, so slow driver calls never block registry lookups
//   - Structural scheduler changes use a control-channel handshake with the
//     running loop, the channel-native equivalent of a self-pipe pause
//
// # Error Handling and Observability
//
// Every public operation returns a coded error (github.com/agilira/go-errors)
// and multi-step operations unwind all partial side effects before
// returning. The event log records driver and context lifecycle with a
// SQLite backend (JSONL fallback) for queryable post-mortem trails.
//
// Repository: https://github.com/agilira/aether
package aether
