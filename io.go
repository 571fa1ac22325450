// io.go: Single-goroutine I/O scheduler
//
// One goroutine owns all driver source channels. It multiplexes them with
// reflect.Select, feeds raw chunks to the owning driver's Parse, fans the
// resulting records out to subscribed queues, and drives pull-mode sample
// timers. Structural changes (sources and subscriptions coming and going)
// arrive over a control channel and are applied between select iterations,
// so the scheduler state needs no locking at all.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package aether

import (
	"reflect"
	"time"

	"github.com/agilira/go-timecache"
)

// ioOp enumerates the structural changes the scheduler accepts.
type ioOp int

const (
	ioAddSource ioOp = iota
	ioRemoveSource
	ioAddQueue
	ioRemoveQueue
)

// ioRequest is one structural change. The scheduler replies on done once the
// change is fully applied; after removeQueue's reply the queue is guaranteed
// to receive no further pushes.
type ioRequest struct {
	op   ioOp
	inst *driverInstance
	ch   <-chan []byte
	mode SchedMode
	rqs  []DataRq
	q    *queue
	done chan struct{}
}

// subscription routes records of one data ID into one consumer queue.
type subscription struct {
	id DataID
	q  *queue
}

// pullTimer drives periodic sampling of one (data ID, period) pair on a
// pull-mode driver. count tracks how many subscriptions want this exact
// pair; the timer disappears when the last one leaves.
type pullTimer struct {
	id       DataID
	period   time.Duration
	deadline time.Time
	count    int
}

// sourceState is everything the scheduler tracks per started driver
// instance. pending holds bytes the driver's Parse has not consumed yet.
type sourceState struct {
	inst    *driverInstance
	ch      <-chan []byte
	mode    SchedMode
	pending []byte
	subs    []subscription
	timers  []pullTimer
}

// ioScheduler runs the I/O loop. Created once per Hub.
type ioScheduler struct {
	ctrl   chan ioRequest
	quit   chan struct{}
	done   chan struct{}
	events *EventLogger
}

// newIOScheduler starts the scheduler goroutine.
func newIOScheduler(events *EventLogger) *ioScheduler {
	s := &ioScheduler{
		ctrl:   make(chan ioRequest),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		events: events,
	}
	go s.run()
	return s
}

// stop terminates the loop and waits for it to exit. Callers must have
// removed every source first.
func (s *ioScheduler) stop() {
	close(s.quit)
	<-s.done
}

// submit sends one structural request and waits until it is applied.
func (s *ioScheduler) submit(req ioRequest) {
	req.done = make(chan struct{})
	select {
	case s.ctrl <- req:
		<-req.done
	case <-s.quit:
	}
}

// addSource registers a started driver instance's channel with the loop.
func (s *ioScheduler) addSource(inst *driverInstance, ch <-chan []byte, mode SchedMode) {
	s.submit(ioRequest{op: ioAddSource, inst: inst, ch: ch, mode: mode})
}

// removeSource detaches a stopped instance. Any unparsed bytes are dropped.
func (s *ioScheduler) removeSource(inst *driverInstance) {
	s.submit(ioRequest{op: ioRemoveSource, inst: inst})
}

// addQueue subscribes a queue to the given (ID, period) requests on an
// instance. Pull-mode requests with a nonzero period also arm sample timers.
func (s *ioScheduler) addQueue(inst *driverInstance, rqs []DataRq, q *queue) {
	s.submit(ioRequest{op: ioAddQueue, inst: inst, rqs: rqs, q: q})
}

// removeQueue undoes addQueue. Once it returns, no further records will be
// pushed into q on behalf of inst.
func (s *ioScheduler) removeQueue(inst *driverInstance, rqs []DataRq, q *queue) {
	s.submit(ioRequest{op: ioRemoveQueue, inst: inst, rqs: rqs, q: q})
}

// Fixed case indexes in the select set. Source channels follow.
const (
	caseCtrl = iota
	caseQuit
	caseTimer
	caseSourceBase
)

// run is the scheduler loop. All sourceState mutation happens here.
func (s *ioScheduler) run() {
	defer close(s.done)

	var sources []*sourceState

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	timerArmed := false

	for {
		// Re-arm the single timer to the nearest pull deadline.
		if timerArmed {
			if !timer.Stop() {
				<-timer.C
			}
			timerArmed = false
		}
		next, ok := nearestDeadline(sources)
		if ok {
			d := next.Sub(timecache.CachedTime())
			if d < 0 {
				d = 0
			}
			timer.Reset(d)
			timerArmed = true
		}

		cases := make([]reflect.SelectCase, caseSourceBase, caseSourceBase+len(sources))
		cases[caseCtrl] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(s.ctrl)}
		cases[caseQuit] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(s.quit)}
		if timerArmed {
			cases[caseTimer] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(timer.C)}
		} else {
			cases[caseTimer] = reflect.SelectCase{Dir: reflect.SelectRecv}
		}
		for _, src := range sources {
			cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(src.ch)})
		}

		chosen, val, recvOK := reflect.Select(cases)
		switch chosen {
		case caseCtrl:
			req := val.Interface().(ioRequest)
			sources = s.apply(sources, req)
			close(req.done)
		case caseQuit:
			return
		case caseTimer:
			timerArmed = false
			s.fireTimers(sources)
		default:
			src := sources[chosen-caseSourceBase]
			if !recvOK {
				// Driver closed its channel. Detach now; the eventual
				// removeSource from the instance's stop is a no-op.
				sources = removeSourceAt(sources, chosen-caseSourceBase)
				continue
			}
			s.ingest(src, val.Interface().([]byte))
		}
	}
}

// apply executes one structural request against the source list.
func (s *ioScheduler) apply(sources []*sourceState, req ioRequest) []*sourceState {
	switch req.op {
	case ioAddSource:
		return append(sources, &sourceState{inst: req.inst, ch: req.ch, mode: req.mode})

	case ioRemoveSource:
		for i, src := range sources {
			if src.inst == req.inst {
				return removeSourceAt(sources, i)
			}
		}
		return sources

	case ioAddQueue:
		src := findSource(sources, req.inst)
		if src == nil {
			return sources
		}
		for _, rq := range req.rqs {
			src.subs = append(src.subs, subscription{id: rq.ID, q: req.q})
			if src.mode == SchedModePull && rq.Period > 0 {
				src.armTimer(rq)
			}
		}
		return sources

	case ioRemoveQueue:
		src := findSource(sources, req.inst)
		if src == nil {
			return sources
		}
		for _, rq := range req.rqs {
			src.dropSub(rq.ID, req.q)
			if src.mode == SchedModePull && rq.Period > 0 {
				src.disarmTimer(rq)
			}
		}
		return sources
	}
	return sources
}

func findSource(sources []*sourceState, inst *driverInstance) *sourceState {
	for _, src := range sources {
		if src.inst == inst {
			return src
		}
	}
	return nil
}

func removeSourceAt(sources []*sourceState, i int) []*sourceState {
	sources[i] = sources[len(sources)-1]
	sources[len(sources)-1] = nil
	return sources[:len(sources)-1]
}

// armTimer adds a reference to the (ID, period) timer, creating it with a
// deadline one period out if it does not exist yet.
func (src *sourceState) armTimer(rq DataRq) {
	for i := range src.timers {
		if src.timers[i].id == rq.ID && src.timers[i].period == rq.Period {
			src.timers[i].count++
			return
		}
	}
	src.timers = append(src.timers, pullTimer{
		id:       rq.ID,
		period:   rq.Period,
		deadline: timecache.CachedTime().Add(rq.Period),
		count:    1,
	})
}

// disarmTimer drops a reference, deleting the timer at zero.
func (src *sourceState) disarmTimer(rq DataRq) {
	for i := range src.timers {
		if src.timers[i].id == rq.ID && src.timers[i].period == rq.Period {
			src.timers[i].count--
			if src.timers[i].count == 0 {
				src.timers[i] = src.timers[len(src.timers)-1]
				src.timers = src.timers[:len(src.timers)-1]
			}
			return
		}
	}
}

// dropSub removes one (id, q) subscription.
func (src *sourceState) dropSub(id DataID, q *queue) {
	for i := range src.subs {
		if src.subs[i].id == id && src.subs[i].q == q {
			src.subs[i] = src.subs[len(src.subs)-1]
			src.subs = src.subs[:len(src.subs)-1]
			return
		}
	}
}

// nearestDeadline finds the earliest pull deadline across all sources.
func nearestDeadline(sources []*sourceState) (time.Time, bool) {
	var min time.Time
	found := false
	for _, src := range sources {
		for i := range src.timers {
			d := src.timers[i].deadline
			if !found || d.Before(min) {
				min = d
				found = true
			}
		}
	}
	return min, found
}

// fireTimers ticks every expired pull timer: one Next call per (ID, period)
// pair, then re-arm. Lateness is absorbed by shortening the next interval
// down to a floor of zero, so a slow driver degrades to back-to-back
// sampling rather than drifting.
func (s *ioScheduler) fireTimers(sources []*sourceState) {
	now := timecache.CachedTime()
	for _, src := range sources {
		for i := range src.timers {
			t := &src.timers[i]
			if t.deadline.After(now) {
				continue
			}
			if err := src.inst.ops.next(t.id); err != nil {
				s.events.Log(EventWarn, "driver_next_failed", map[string]any{
					"driver":  src.inst.name,
					"data_id": uint64(t.id),
					"error":   err.Error(),
				})
			}
			t.deadline = t.deadline.Add(t.period)
			if t.deadline.Before(now) {
				t.deadline = now
			}
		}
	}
}

// ingest appends a raw chunk to the source's pending buffer and parses as
// many records out of it as the driver will give.
func (s *ioScheduler) ingest(src *sourceState, chunk []byte) {
	src.pending = append(src.pending, chunk...)
	for len(src.pending) > 0 {
		consumed, recs, err := src.inst.ops.parse(src.pending)
		if err != nil {
			// A parse error poisons the buffered bytes; drop them and
			// resynchronize on the next chunk.
			s.events.Log(EventWarn, "driver_parse_failed", map[string]any{
				"driver":  src.inst.name,
				"dropped": len(src.pending),
				"error":   err.Error(),
			})
			src.pending = nil
			return
		}
		if consumed == 0 && len(recs) > 0 {
			// Records must be covered by consumed bytes; otherwise the
			// same bytes would re-parse into duplicates on the next chunk.
			s.events.Log(EventWarn, "driver_parse_contract_violation", map[string]any{
				"driver":  src.inst.name,
				"records": len(recs),
				"dropped": len(src.pending),
			})
			src.pending = nil
			return
		}
		for i := range recs {
			s.deliver(src, &recs[i])
		}
		if consumed == 0 {
			// Driver needs more bytes to complete a frame.
			return
		}
		src.pending = src.pending[consumed:]
	}
	// Reset the slice once fully drained so a long-lived source does not
	// pin its largest-ever chunk.
	src.pending = nil
}

// deliver fans one record out to every subscribed queue. The reference count
// is fixed up front at the number of receiving queues; a record nobody wants
// is dropped without allocation of the holder.
func (s *ioScheduler) deliver(src *sourceState, rec *Record) {
	n := 0
	for i := range src.subs {
		if src.subs[i].id == rec.DataID {
			n++
		}
	}
	if n == 0 {
		return
	}

	rec.DeviceID = src.inst.devID
	if rec.Timestamp.IsZero() {
		rec.Timestamp = timecache.CachedTime()
	}

	ri := newRecordInfo(*rec, int32(n))
	for i := range src.subs {
		if src.subs[i].id == rec.DataID {
			src.subs[i].q.push(ri)
		}
	}
}
