// registry.go: Driver instance registry
//
// The registry owns the mapping from device paths to open driver instances
// and from data IDs to the single instance allowed to produce each. Opening
// a driver is a multi-step handshake with the driver code (init, device
// name, data declaration); every step that can fail unwinds the ones before
// it, so a failed Open leaves no trace.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package aether

import (
	"sort"
	"sync"
	"time"

	"github.com/agilira/go-errors"
)

// Registry tracks every open driver instance. One per Hub.
type Registry struct {
	mu        sync.RWMutex
	instances map[string]*driverInstance // keyed by device path
	dataMap   map[DataID]*driverInstance
	nextDevID DeviceID
	sched     *ioScheduler
	events    *EventLogger
}

// newRegistry creates an empty registry bound to a scheduler.
func newRegistry(sched *ioScheduler, events *EventLogger) *Registry {
	return &Registry{
		instances: make(map[string]*driverInstance),
		dataMap:   make(map[DataID]*driverInstance),
		sched:     sched,
		events:    events,
	}
}

// maxInstances is bounded by the DeviceID width.
const maxInstances = 256

// Open initializes the named driver on the given device path, using the
// schema file to describe the payload formats the driver may declare. The
// args are handed verbatim to the driver's Init.
//
// Open fails, with full rollback, if the driver name is unknown, the path is
// already claimed, the schema file is invalid, any driver callback errors,
// the reported device name is too long, or any declared data ID is already
// owned by another instance.
func (r *Registry) Open(driverName, path, schemaPath string, args []InitArg) error {
	factory, ok := lookupDriverFactory(driverName)
	if !ok {
		return errors.New(ErrCodeUnknownDriver, "no such driver").
			WithContext("driver", driverName)
	}

	r.mu.RLock()
	_, claimed := r.instances[path]
	r.mu.RUnlock()
	if claimed {
		return errors.New(ErrCodeDriverAlreadyRegistered, "device path already claimed").
			WithContext("path", path)
	}

	schemas, err := ParseSchemaFile(schemaPath)
	if err != nil {
		return err
	}

	inst := &driverInstance{
		ops:    opsWrapper{drv: factory()},
		name:   driverName,
		path:   path,
		sched:  r.sched,
		events: r.events,
	}

	if err := inst.ops.init(path, args); err != nil {
		return errors.Wrap(err, ErrCodeDriverFail, "driver init failed").
			WithContext("driver", driverName).
			WithContext("path", path)
	}

	devName, err := inst.ops.deviceName()
	if err != nil {
		r.rollbackInit(inst)
		return errors.Wrap(err, ErrCodeDriverFail, "driver device name failed").
			WithContext("driver", driverName).
			WithContext("path", path)
	}
	if len(devName) >= DeviceNameMax {
		r.rollbackInit(inst)
		return errors.New(ErrCodeInvalidString, "device name too long").
			WithContext("driver", driverName).
			WithContext("device", devName)
	}
	inst.devName = devName

	drvDescs, mode, err := inst.ops.dataDescs(schemas)
	if err != nil {
		r.rollbackInit(inst)
		return errors.Wrap(err, ErrCodeDriverFail, "driver data declaration failed").
			WithContext("driver", driverName).
			WithContext("path", path)
	}
	if len(drvDescs) != len(schemas) {
		r.rollbackInit(inst)
		return errors.New(ErrCodeDriverFail, "driver data declaration not parallel to schema").
			WithContext("driver", driverName).
			WithContext("declared", len(drvDescs)).
			WithContext("schemas", len(schemas))
	}
	inst.mode = mode
	for i, dd := range drvDescs {
		if !dd.Enabled {
			continue
		}
		inst.descs = append(inst.descs, DataDesc{
			ID:      schemas[i].DataID,
			Name:    schemas[i].Name,
			Periods: dd.Periods,
			Schema:  schemas[i],
		})
	}
	if len(inst.descs) == 0 {
		r.rollbackInit(inst)
		return errors.New(ErrCodeDriverFail, "driver enabled no data IDs").
			WithContext("driver", driverName).
			WithContext("path", path)
	}

	r.mu.Lock()
	if _, claimed := r.instances[path]; claimed {
		r.mu.Unlock()
		r.rollbackInit(inst)
		return errors.New(ErrCodeDriverAlreadyRegistered, "device path already claimed").
			WithContext("path", path)
	}
	if len(r.instances) >= maxInstances {
		r.mu.Unlock()
		r.rollbackInit(inst)
		return errors.New(ErrCodeInvalidValue, "too many open driver instances").
			WithContext("max", maxInstances)
	}
	for i := range inst.descs {
		if owner, taken := r.dataMap[inst.descs[i].ID]; taken {
			r.mu.Unlock()
			r.rollbackInit(inst)
			return errors.New(ErrCodeConflictingDrivers, "data ID already owned by another driver").
				WithContext("data_id", uint64(inst.descs[i].ID)).
				WithContext("owner", owner.name).
				WithContext("driver", driverName)
		}
	}

	inst.devID = r.assignDevIDLocked()
	for i := range inst.descs {
		inst.descs[i].DeviceID = inst.devID
		r.dataMap[inst.descs[i].ID] = inst
	}
	r.instances[path] = inst
	r.mu.Unlock()

	r.events.Log(EventInfo, "driver_opened", map[string]any{
		"driver": driverName,
		"path":   path,
		"device": devName,
		"dev_id": int(inst.devID),
		"mode":   mode.String(),
	})
	return nil
}

// rollbackInit destroys a half-opened instance, logging rather than
// propagating the failure since the caller already has the real error.
func (r *Registry) rollbackInit(inst *driverInstance) {
	if err := inst.ops.destroy(); err != nil {
		r.events.Log(EventWarn, "driver_destroy_failed", map[string]any{
			"driver": inst.name, "path": inst.path, "error": err.Error(),
		})
	}
}

// assignDevIDLocked picks the next free device ID. Caller holds mu and has
// verified a free slot exists.
func (r *Registry) assignDevIDLocked() DeviceID {
	used := make(map[DeviceID]bool, len(r.instances))
	for _, inst := range r.instances {
		used[inst.devID] = true
	}
	for {
		id := r.nextDevID
		r.nextDevID++
		if !used[id] {
			return id
		}
	}
}

// Close tears down the instance on the given device path. Fails if any
// context still references it.
func (r *Registry) Close(path string) error {
	r.mu.Lock()
	inst, ok := r.instances[path]
	if !ok {
		r.mu.Unlock()
		return errors.New(ErrCodeDriverNotRegistered, "no driver on path").
			WithContext("path", path)
	}
	if inst.inUse() {
		r.mu.Unlock()
		return errors.New(ErrCodeDriverInUse, "driver still referenced by contexts").
			WithContext("path", path).
			WithContext("driver", inst.name)
	}
	delete(r.instances, path)
	for i := range inst.descs {
		delete(r.dataMap, inst.descs[i].ID)
	}
	r.mu.Unlock()

	err := inst.destroy()
	r.events.Log(EventInfo, "driver_closed", map[string]any{
		"driver": inst.name,
		"path":   path,
	})
	return err
}

// CloseAll closes every instance with no remaining references. The first
// error is returned; the sweep continues regardless.
func (r *Registry) CloseAll() error {
	r.mu.RLock()
	paths := make([]string, 0, len(r.instances))
	for path := range r.instances {
		paths = append(paths, path)
	}
	r.mu.RUnlock()

	var first error
	for _, path := range paths {
		if err := r.Close(path); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// instanceForData resolves the instance owning a data ID.
func (r *Registry) instanceForData(id DataID) (*driverInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.dataMap[id]
	if !ok {
		return nil, errors.New(ErrCodeDataIDDoesNotExist, "data ID not provided by any open driver").
			WithContext("data_id", uint64(id))
	}
	return inst, nil
}

// DataDescs returns descriptors for every data ID currently available,
// sorted by ID.
func (r *Registry) DataDescs() []DataDesc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]DataDesc, 0, len(r.dataMap))
	for _, inst := range r.instances {
		out = append(out, inst.descs...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DeviceName returns the device name of the instance owning the data ID.
func (r *Registry) DeviceName(id DataID) (string, error) {
	inst, err := r.instanceForData(id)
	if err != nil {
		return "", err
	}
	return inst.devName, nil
}

// PeriodsSupported reports the valid periods for a data ID. An empty slice
// means any period is accepted.
func (r *Registry) PeriodsSupported(id DataID) ([]time.Duration, error) {
	inst, err := r.instanceForData(id)
	if err != nil {
		return nil, err
	}
	desc, _ := inst.dataDesc(id)
	return desc.Periods, nil
}
