// counter.go: Pull-mode test and diagnostics driver
//
// The counter driver backs every schema descriptor it is given with a
// monotonically increasing 64-bit counter, one counter per data ID. It is
// the reference pull-mode driver: each Next produces exactly one sample, so
// period handling and sample accounting can be verified end to end without
// hardware.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package counter

import (
	"encoding/binary"
	"sync"

	"github.com/agilira/aether"
	"github.com/agilira/go-errors"
)

// DriverName is the name the driver registers under.
const DriverName = "counter"

func init() {
	aether.RegisterDriver(DriverName, func() aether.Driver { return &Driver{} })
}

// frameSize is the wire size of one counter sample: 8 bytes of data ID
// followed by 8 bytes of count, both big endian.
const frameSize = 16

// chanDepth bounds how many samples can sit between Next and the consuming
// loop. Next drops samples rather than block when the buffer is full.
const chanDepth = 64

// Driver implements aether.Driver with synthetic counters.
type Driver struct {
	mu      sync.Mutex
	start   uint64
	counts  map[aether.DataID]uint64
	enabled map[aether.DataID]bool
	ch      chan []byte
	started bool
}

// Init accepts one optional uint64 argument, the starting count applied to
// every data ID.
func (d *Driver) Init(path string, args []aether.InitArg) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.counts = make(map[aether.DataID]uint64)
	d.enabled = make(map[aether.DataID]bool)

	if len(args) > 1 {
		return errors.New(aether.ErrCodeInvalidValue, "counter takes at most one init argument")
	}
	if len(args) == 1 {
		start, ok := args[0].Value.(uint64)
		if !ok {
			return errors.New(aether.ErrCodeInvalidValue, "counter start value must be uint64")
		}
		d.start = start
	}
	return nil
}

// Destroy releases nothing; counters are plain memory.
func (d *Driver) Destroy() error {
	return nil
}

// DeviceName reports a fixed name; there is no hardware behind this driver.
func (d *Driver) DeviceName() (string, error) {
	return "counter", nil
}

// DataDescs enables every descriptor at any period, pull mode.
func (d *Driver) DataDescs(schemas []aether.SchemaDesc) ([]aether.DrvDataDesc, aether.SchedMode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	descs := make([]aether.DrvDataDesc, len(schemas))
	for i := range schemas {
		descs[i] = aether.DrvDataDesc{Enabled: true}
		d.enabled[schemas[i].DataID] = true
		d.counts[schemas[i].DataID] = d.start
	}
	return descs, aether.SchedModePull, nil
}

// SetData validates that every requested ID was enabled. The counter has no
// per-period state to prepare.
func (d *Driver) SetData(rqs []aether.DataRq) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, rq := range rqs {
		if !d.enabled[rq.ID] {
			return errors.New(aether.ErrCodeDataIDDoesNotExist, "data ID not enabled").
				WithContext("data_id", uint64(rq.ID))
		}
	}
	return nil
}

// Parse decodes complete 16-byte frames, leaving any partial frame for the
// next chunk.
func (d *Driver) Parse(buf []byte) (int, []aether.Record, error) {
	var recs []aether.Record
	consumed := 0
	for len(buf)-consumed >= frameSize {
		frame := buf[consumed : consumed+frameSize]
		id := aether.DataID(binary.BigEndian.Uint64(frame[:8]))
		recs = append(recs, aether.Record{
			DataID: id,
			Data:   append([]byte(nil), frame[8:]...),
		})
		consumed += frameSize
	}
	return consumed, recs, nil
}

// Start opens the sample channel.
func (d *Driver) Start() (<-chan []byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return nil, errors.New(aether.ErrCodeInvalidValue, "counter already started")
	}
	d.ch = make(chan []byte, chanDepth)
	d.started = true
	return d.ch, nil
}

// Next emits one sample for the ID. Samples are dropped rather than block
// when the consumer is behind; Next runs on the consuming goroutine, so
// blocking here would deadlock.
func (d *Driver) Next(id aether.DataID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return errors.New(aether.ErrCodeDriverFail, "counter not started")
	}
	if !d.enabled[id] {
		return errors.New(aether.ErrCodeDataIDDoesNotExist, "data ID not enabled").
			WithContext("data_id", uint64(id))
	}

	frame := make([]byte, frameSize)
	binary.BigEndian.PutUint64(frame[:8], uint64(id))
	binary.BigEndian.PutUint64(frame[8:], d.counts[id])
	d.counts[id]++

	select {
	case d.ch <- frame:
	default:
	}
	return nil
}

// Stop closes the sample channel. Counts persist across stop/start so a
// restarted consumer sees the sequence continue.
func (d *Driver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return errors.New(aether.ErrCodeDriverFail, "counter not started")
	}
	close(d.ch)
	d.ch = nil
	d.started = false
	return nil
}
