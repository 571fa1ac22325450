// instance.go: Refcounted driver instances
//
// An instance is one opened driver on one device path. Consumers reference
// it through their contexts; the instance starts the driver when the first
// reference arrives and stops it when the last one leaves. It also owns the
// aggregate active data set, the union of every referencing context's
// requests, and keeps the driver informed whenever that union changes.
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

// activeEntry counts how many contexts currently request one exact
// (data ID, period) pair.
type activeEntry struct {
	rq   DataRq
	refs int
}

// driverInstance pairs a Driver with its bookkeeping. The state lock guards
// refcount and the active set; driver callbacks go through ops, which has
// its own lock, so a slow driver never blocks registry lookups.
type driverInstance struct {
	mu         sync.Mutex
	ops        opsWrapper
	name       string
	path       string
	devID      DeviceID
	devName    string
	mode       SchedMode
	descs      []DataDesc
	sched      *ioScheduler
	events     *EventLogger
	refcount   int
	activeData []activeEntry
}

// dataDesc looks up the descriptor for one of this instance's data IDs.
func (d *driverInstance) dataDesc(id DataID) (DataDesc, bool) {
	for i := range d.descs {
		if d.descs[i].ID == id {
			return d.descs[i], true
		}
	}
	return DataDesc{}, false
}

// periodSupported reports whether the driver accepts the given period for
// the given ID. An empty period list in the descriptor means any period; an
// explicit list must contain the exact value. Period 0 (on-demand) is valid
// only on pull-mode instances.
func (d *driverInstance) periodSupported(id DataID, period time.Duration) bool {
	desc, ok := d.dataDesc(id)
	if !ok {
		return false
	}
	if period == 0 {
		return d.mode == SchedModePull
	}
	if len(desc.Periods) == 0 {
		return true
	}
	for _, p := range desc.Periods {
		if p == period {
			return true
		}
	}
	return false
}

// bumpActive adds one reference to the (ID, period) pair, reporting whether
// the aggregate set changed.
func (d *driverInstance) bumpActive(rq DataRq) bool {
	for i := range d.activeData {
		if d.activeData[i].rq == rq {
			d.activeData[i].refs++
			return false
		}
	}
	d.activeData = append(d.activeData, activeEntry{rq: rq, refs: 1})
	return true
}

// dropActive removes one reference, reporting whether the aggregate set
// changed (the pair's last reference left).
func (d *driverInstance) dropActive(rq DataRq) bool {
	for i := range d.activeData {
		if d.activeData[i].rq == rq {
			d.activeData[i].refs--
			if d.activeData[i].refs == 0 {
				d.activeData[i] = d.activeData[len(d.activeData)-1]
				d.activeData = d.activeData[:len(d.activeData)-1]
				return true
			}
			return false
		}
	}
	return false
}

// currentRqs snapshots the aggregate active set for SetData.
func (d *driverInstance) currentRqs() []DataRq {
	rqs := make([]DataRq, len(d.activeData))
	for i := range d.activeData {
		rqs[i] = d.activeData[i].rq
	}
	return rqs
}

// ref attaches one consumer queue with its requests. The first reference
// starts the driver and registers its source with the scheduler. On any
// failure the instance is left exactly as it was.
func (d *driverInstance) ref(rqs []DataRq, q *queue) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	// A push-mode stream is driver paced: one data ID cannot flow at two
	// rates, even when the requests come from different contexts.
	if d.mode == SchedModePush {
		for _, rq := range rqs {
			for i := range d.activeData {
				if d.activeData[i].rq.ID == rq.ID && d.activeData[i].rq.Period != rq.Period {
					return errors.New(ErrCodePeriodUnsupported, "push-mode data already active at a different period").
						WithContext("data_id", uint64(rq.ID)).
						WithContext("period", rq.Period.String()).
						WithContext("active_period", d.activeData[i].rq.Period.String())
				}
			}
		}
	}

	saved := make([]activeEntry, len(d.activeData))
	copy(saved, d.activeData)

	changed := false
	for _, rq := range rqs {
		if d.bumpActive(rq) {
			changed = true
		}
	}

	if changed {
		if err := d.ops.setData(d.currentRqs()); err != nil {
			d.activeData = saved
			return errors.Wrap(err, ErrCodeDriverFail, "driver rejected data set").
				WithContext("driver", d.name).
				WithContext("path", d.path)
		}
	}

	if d.refcount == 0 {
		ch, err := d.ops.start()
		if err != nil {
			d.activeData = saved
			if changed {
				// Best effort: put the driver's notion of the set back.
				if derr := d.ops.setData(d.currentRqs()); derr != nil {
					d.events.Log(EventWarn, "driver_setdata_rollback_failed", map[string]any{
						"driver": d.name, "path": d.path, "error": derr.Error(),
					})
				}
			}
			return errors.Wrap(err, ErrCodeDriverFail, "driver failed to start").
				WithContext("driver", d.name).
				WithContext("path", d.path)
		}
		d.sched.addSource(d, ch, d.mode)
	}

	d.sched.addQueue(d, rqs, q)
	d.refcount++
	return nil
}

// unref detaches one consumer queue. The queue stops receiving pushes before
// unref returns; the last reference stops the driver. Stop failures are
// logged, not propagated, since the consumer is leaving either way.
func (d *driverInstance) unref(rqs []DataRq, q *queue) {
	d.sched.removeQueue(d, rqs, q)

	d.mu.Lock()
	defer d.mu.Unlock()

	changed := false
	for _, rq := range rqs {
		if d.dropActive(rq) {
			changed = true
		}
	}

	d.refcount--
	if d.refcount == 0 {
		d.sched.removeSource(d)
		if err := d.ops.stop(); err != nil {
			d.events.Log(EventWarn, "driver_stop_failed", map[string]any{
				"driver": d.name, "path": d.path, "error": err.Error(),
			})
		}
		return
	}

	if changed {
		if err := d.ops.setData(d.currentRqs()); err != nil {
			d.events.Log(EventWarn, "driver_setdata_failed", map[string]any{
				"driver": d.name, "path": d.path, "error": err.Error(),
			})
		}
	}
}

// next forwards an on-demand sample request to the driver.
func (d *driverInstance) next(id DataID) error {
	if err := d.ops.next(id); err != nil {
		return errors.Wrap(err, ErrCodeDriverFail, "driver next failed").
			WithContext("driver", d.name).
			WithContext("data_id", uint64(id))
	}
	return nil
}

// inUse reports whether any context still references the instance.
func (d *driverInstance) inUse() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.refcount > 0
}

// destroy tears the driver down. The registry guarantees refcount is zero.
func (d *driverInstance) destroy() error {
	if err := d.ops.destroy(); err != nil {
		return errors.Wrap(err, ErrCodeDriverFail, "driver destroy failed").
			WithContext("driver", d.name).
			WithContext("path", d.path)
	}
	return nil
}
