// record.go: Reference-counted sensor records
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package aether

import (
	"sync/atomic"
	"time"
)

// DataID identifies one kind of data a driver can produce (a CAN frame
// stream, a GPS fix, one IIO channel). Data IDs are process-global: at most
// one registered driver instance may own a given ID.
type DataID uint64

// DeviceID identifies one open driver instance. Assigned by the registry at
// open time and stable until the instance is closed.
type DeviceID uint8

// Seqno is a per-queue sequence number. The first record pushed into a queue
// gets seqno 0; eviction of the oldest record advances the queue's front
// seqno, which is how consumers detect overwrite gaps.
type Seqno uint64

// DeviceNameMax is the maximum length of a device name reported by a driver,
// in bytes.
const DeviceNameMax = 32

// Record is one timestamped, typed payload produced by a driver. The payload
// is opaque to the core; its layout is described by the schema registered
// for the data ID. A Record delivered to a callback is shared with every
// other subscribed consumer and must not be modified.
type Record struct {
	DataID    DataID
	DeviceID  DeviceID
	Timestamp time.Time
	Data      []byte
}

// recordInfo wraps a Record with an atomic reference count: one reference
// per queue holding the record. The scheduler takes the references at push
// time; consumers drop theirs as records are popped and processed. The count
// is atomic because push and pop run on different goroutines with no shared
// lock.
type recordInfo struct {
	refs atomic.Int32
	rec  Record
}

// newRecordInfo creates a record holder with refs initial references. A
// record with zero subscribers is never created; the scheduler drops such
// records before allocation.
func newRecordInfo(rec Record, refs int32) *recordInfo {
	ri := &recordInfo{rec: rec}
	ri.refs.Store(refs)
	return ri
}

// unref drops one reference. When the last reference is dropped the payload
// is released so large buffers do not outlive their consumers.
func (ri *recordInfo) unref() {
	if ri.refs.Add(-1) == 0 {
		ri.rec.Data = nil
	}
}
