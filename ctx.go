// ctx.go: Consumer contexts
//
// A context is one consumer's view of the data plane: a set of (data ID,
// period) requests, a bounded queue the scheduler fills, and a callback that
// turns popped records into whatever the application wants. Contexts move
// through a strict alloc / start / stop / free lifecycle; references on the
// underlying driver instances are held only while started.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package aether

import (
	"sync"

	"github.com/agilira/go-errors"
)

// RecordCallback processes one record popped from a context's queue. The
// record is shared with other consumers and must not be modified. seqno is
// the record's position in this context's stream; gaps reveal records lost
// to queue overwrite.
type RecordCallback func(rec *Record, seqno Seqno)

// ctxGroup is the per-instance slice of a context's requests, resolved at
// start time.
type ctxGroup struct {
	inst *driverInstance
	rqs  []DataRq
}

// Context is a single consumer. All methods are safe for concurrent use,
// but blocking reads from multiple goroutines on one context will compete
// for the same records.
type Context struct {
	mu      sync.Mutex
	reg     *Registry
	events  *EventLogger
	q       *queue
	cb      RecordCallback
	rqs     []DataRq
	groups  []ctxGroup
	active  bool
	freed   bool
	readers int
}

// NewContext allocates a context. The request set is validated against the
// currently open drivers: every ID must exist, every period must be
// supported, the exact (ID, period) pairs must be unique, and push-mode IDs
// may appear only once. maxQueueLen bounds how many records can buffer
// between production and consumption.
//
// The context is allocated stopped; no driver is touched until Start.
func (h *Hub) NewContext(maxQueueLen int, rqs []DataRq, cb RecordCallback) (*Context, error) {
	if err := h.guard(); err != nil {
		return nil, err
	}
	if maxQueueLen <= 0 {
		return nil, errors.New(ErrCodeEmptyQueue, "queue length must be positive").
			WithContext("max_queue_len", maxQueueLen)
	}
	if len(rqs) == 0 {
		return nil, errors.New(ErrCodeNoDataRequested, "context requests no data")
	}
	if cb == nil {
		return nil, errors.New(ErrCodeMissingCallback, "context has no record callback")
	}

	c := &Context{
		reg:    h.registry,
		events: h.events,
		q:      newQueue(maxQueueLen),
		cb:     cb,
		rqs:    append([]DataRq(nil), rqs...),
	}
	if err := c.validateRqs(c.rqs); err != nil {
		return nil, err
	}
	return c, nil
}

// validateRqs checks a request set against the open drivers.
func (c *Context) validateRqs(rqs []DataRq) error {
	seen := make(map[DataRq]bool, len(rqs))
	pushIDs := make(map[DataID]bool)
	for _, rq := range rqs {
		if seen[rq] {
			return errors.New(ErrCodeDuplicateDataRequested, "duplicate data request").
				WithContext("data_id", uint64(rq.ID)).
				WithContext("period", rq.Period.String())
		}
		seen[rq] = true

		inst, err := c.reg.instanceForData(rq.ID)
		if err != nil {
			return err
		}
		if inst.mode == SchedModePush && pushIDs[rq.ID] {
			return errors.New(ErrCodePeriodUnsupported, "push-mode data accepts a single period").
				WithContext("data_id", uint64(rq.ID))
		}
		if inst.mode == SchedModePush {
			pushIDs[rq.ID] = true
		}
		if !inst.periodSupported(rq.ID, rq.Period) {
			return errors.New(ErrCodePeriodUnsupported, "period not supported for data ID").
				WithContext("data_id", uint64(rq.ID)).
				WithContext("period", rq.Period.String())
		}
	}
	return nil
}

// groupRqs resolves a request set into per-instance groups. Resolution
// happens at start rather than alloc so a driver closed in between surfaces
// as a clean error instead of a stale pointer.
func (c *Context) groupRqs(rqs []DataRq) ([]ctxGroup, error) {
	var groups []ctxGroup
	for _, rq := range rqs {
		inst, err := c.reg.instanceForData(rq.ID)
		if err != nil {
			return nil, err
		}
		found := false
		for i := range groups {
			if groups[i].inst == inst {
				groups[i].rqs = append(groups[i].rqs, rq)
				found = true
				break
			}
		}
		if !found {
			groups = append(groups, ctxGroup{inst: inst, rqs: []DataRq{rq}})
		}
	}
	return groups, nil
}

// Start references every requested driver instance and begins data flow.
// If any instance rejects the reference, the ones already taken are released
// and the context stays stopped.
func (c *Context) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.usableLocked(); err != nil {
		return err
	}
	if c.active {
		return errors.New(ErrCodeContextActive, "context already started")
	}

	groups, err := c.groupRqs(c.rqs)
	if err != nil {
		return err
	}

	c.q.clearInterrupt()
	for i, g := range groups {
		if err := g.inst.ref(g.rqs, c.q); err != nil {
			for j := 0; j < i; j++ {
				groups[j].inst.unref(groups[j].rqs, c.q)
			}
			return err
		}
	}

	c.groups = groups
	c.active = true
	c.events.Log(EventInfo, "context_started", map[string]any{
		"requests":  len(c.rqs),
		"queue_max": c.q.maxLen(),
	})
	return nil
}

// Stop releases the context's driver references and interrupts any blocked
// read. Buffered records stay in the queue and remain readable with the
// nowait calls.
func (c *Context) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.usableLocked(); err != nil {
		return err
	}
	if !c.active {
		return errors.New(ErrCodeContextNotActive, "context not started")
	}

	c.q.interrupt()
	for _, g := range c.groups {
		g.inst.unref(g.rqs, c.q)
	}
	c.groups = nil
	c.active = false
	c.events.Log(EventInfo, "context_stopped", nil)
	return nil
}

// Read blocks until n records are available, delivering each to the
// callback in order. It returns the number delivered, which is less than n
// only when the context is stopped mid-wait; that case also returns an
// interrupt error.
func (c *Context) Read(n int) (int, error) {
	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return 0, err
	}
	if !c.active {
		c.mu.Unlock()
		return 0, errors.New(ErrCodeContextNotActive, "context not started")
	}
	if n <= 0 {
		c.mu.Unlock()
		return 0, errors.New(ErrCodeInvalidValue, "read count must be positive").
			WithContext("count", n)
	}
	if n > c.q.maxLen() {
		c.mu.Unlock()
		return 0, errors.New(ErrCodeTooMuchDataRequested, "read count exceeds queue capacity").
			WithContext("count", n).
			WithContext("max_queue_len", c.q.maxLen())
	}
	groups := c.groups
	c.readers++
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.readers--
		c.mu.Unlock()
	}()

	// On-demand data is produced only on request; ask for one sample per
	// record wanted before settling in to wait.
	triggerOnDemand(groups, n)

	ris, first, interrupted := c.q.popBlocking(n)
	c.deliver(ris, first)
	if interrupted && len(ris) < n {
		return len(ris), errors.New(ErrCodeInterrupted, "read interrupted").
			WithContext("delivered", len(ris)).
			WithContext("requested", n)
	}
	return len(ris), nil
}

// ReadNowait delivers up to n buffered records without blocking.
func (c *Context) ReadNowait(n int) (int, error) {
	if err := c.readableNowait(n); err != nil {
		return 0, err
	}
	ris, first := c.q.popNowait(n)
	c.deliver(ris, first)
	return len(ris), nil
}

// ReadAllNowait delivers every buffered record without blocking.
func (c *Context) ReadAllNowait() (int, error) {
	if err := c.readableNowait(1); err != nil {
		return 0, err
	}
	ris, first := c.q.popNowait(c.q.maxLen())
	c.deliver(ris, first)
	return len(ris), nil
}

// ReadBytesNowait delivers as many whole buffered records as fit in the
// byte budget. Returns records and payload bytes delivered.
func (c *Context) ReadBytesNowait(budget int) (int, int, error) {
	if err := c.readableNowait(budget); err != nil {
		return 0, 0, err
	}
	ris, first, total := c.q.popBytesNowait(budget)
	c.deliver(ris, first)
	return len(ris), total, nil
}

// readableNowait is the shared guard for the nonblocking reads. Unlike
// Read, these work on a stopped context so buffered data can be drained
// after Stop.
func (c *Context) readableNowait(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.usableLocked(); err != nil {
		return err
	}
	if n <= 0 {
		return errors.New(ErrCodeInvalidValue, "read amount must be positive").
			WithContext("amount", n)
	}
	return nil
}

// Next requests n fresh samples of every on-demand (period 0) data ID in
// the context, without reading anything.
func (c *Context) Next(n int) error {
	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if !c.active {
		c.mu.Unlock()
		return errors.New(ErrCodeContextNotActive, "context not started")
	}
	if n <= 0 {
		c.mu.Unlock()
		return errors.New(ErrCodeInvalidValue, "sample count must be positive").
			WithContext("count", n)
	}
	groups := c.groups
	c.mu.Unlock()

	if !hasOnDemand(groups) {
		return errors.New(ErrCodeInvalidValue, "context has no on-demand data")
	}
	triggerOnDemand(groups, n)
	return nil
}

// Modify atomically replaces the context's request set and optionally
// resizes its queue (newMaxLen 0 keeps the current capacity). On an active
// context the new references are taken before the old ones are dropped, so
// failure leaves the original set fully intact and flowing.
func (c *Context) Modify(rqs []DataRq, newMaxLen int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.usableLocked(); err != nil {
		return err
	}
	if len(rqs) == 0 {
		return errors.New(ErrCodeNoDataRequested, "context requests no data")
	}
	if newMaxLen < 0 {
		return errors.New(ErrCodeInvalidValue, "queue length must be positive").
			WithContext("max_queue_len", newMaxLen)
	}
	if err := c.validateRqs(rqs); err != nil {
		return err
	}

	newRqs := append([]DataRq(nil), rqs...)
	if c.active {
		groups, err := c.groupRqs(newRqs)
		if err != nil {
			return err
		}
		for i, g := range groups {
			if err := g.inst.ref(g.rqs, c.q); err != nil {
				for j := 0; j < i; j++ {
					groups[j].inst.unref(groups[j].rqs, c.q)
				}
				return err
			}
		}
		for _, g := range c.groups {
			g.inst.unref(g.rqs, c.q)
		}
		c.groups = groups
	}
	c.rqs = newRqs

	if newMaxLen > 0 && newMaxLen != c.q.maxLen() {
		c.q.resize(newMaxLen, false)
	}
	return nil
}

// SetQueueLen resizes the context's queue. With flush set, buffered records
// are dropped; otherwise the most recent ones that fit survive in order.
func (c *Context) SetQueueLen(maxLen int, flush bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.usableLocked(); err != nil {
		return err
	}
	if maxLen <= 0 {
		return errors.New(ErrCodeEmptyQueue, "queue length must be positive").
			WithContext("max_queue_len", maxLen)
	}
	c.q.resize(maxLen, flush)
	return nil
}

// QueueLen returns the number of records currently buffered.
func (c *Context) QueueLen() int {
	return c.q.len()
}

// MaxQueueLen returns the queue capacity.
func (c *Context) MaxQueueLen() int {
	return c.q.maxLen()
}

// Free releases the context's buffered records. It fails while the context
// is started or a blocking read is in flight. Using a freed context is an
// error.
func (c *Context) Free() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.freed {
		return nil
	}
	if c.active {
		return errors.New(ErrCodeContextActive, "cannot free a started context")
	}
	if c.readers > 0 {
		return errors.New(ErrCodeContextActive, "cannot free a context with reads in flight")
	}
	c.q.drain()
	c.freed = true
	return nil
}

// usableLocked rejects operations on freed contexts. Caller holds mu.
func (c *Context) usableLocked() error {
	if c.freed {
		return errors.New(ErrCodeInvalidValue, "context has been freed")
	}
	return nil
}

// deliver runs the callback over popped records and drops the context's
// references. Runs outside ctx.mu so callbacks may call back into the
// context.
func (c *Context) deliver(ris []*recordInfo, first Seqno) {
	for i, ri := range ris {
		c.cb(&ri.rec, first+Seqno(i))
		ri.unref()
	}
}

// triggerOnDemand asks each instance for n samples of every period-0 ID.
func triggerOnDemand(groups []ctxGroup, n int) {
	for _, g := range groups {
		for _, rq := range g.rqs {
			if rq.Period != 0 {
				continue
			}
			for i := 0; i < n; i++ {
				if err := g.inst.next(rq.ID); err != nil {
					g.inst.events.Log(EventWarn, "on_demand_next_failed", map[string]any{
						"driver":  g.inst.name,
						"data_id": uint64(rq.ID),
						"error":   err.Error(),
					})
					break
				}
			}
		}
	}
}

// hasOnDemand reports whether any request in the groups is period 0.
func hasOnDemand(groups []ctxGroup) bool {
	for _, g := range groups {
		for _, rq := range g.rqs {
			if rq.Period == 0 {
				return true
			}
		}
	}
	return false
}
