// queue.go: Bounded record queue with overwrite-oldest semantics
//
// Each consumer context owns one queue. The scheduler pushes records in and
// never blocks: when the queue is full the oldest record is evicted and its
// reference dropped. Consumers pop in strict FIFO order, blocking or not,
// and can detect eviction gaps through the queue's front sequence number.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package aether

import (
	"sync"
)

// queue is a fixed-capacity circular array of record references. All fields
// are guarded by mu; the condition variable wakes blocked poppers when data
// arrives or the queue is interrupted.
//
// Invariants: length <= len(data); frontSeqno+length equals the seqno the
// next pushed record will receive.
type queue struct {
	mu          sync.Mutex
	cond        *sync.Cond
	data        []*recordInfo
	front       int
	length      int
	frontSeqno  Seqno
	interrupted bool
}

// newQueue creates a queue holding at most maxLen records. maxLen must be
// positive; callers validate user input before getting here.
func newQueue(maxLen int) *queue {
	if maxLen <= 0 {
		panic("aether: queue capacity must be positive")
	}
	q := &queue{data: make([]*recordInfo, maxLen)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push appends a record, evicting the oldest entry first if the queue is
// full. Producers never block.
func (q *queue) push(ri *recordInfo) {
	q.mu.Lock()
	if q.length == len(q.data) {
		old := q.data[q.front]
		q.data[q.front] = nil
		q.front = (q.front + 1) % len(q.data)
		q.frontSeqno++
		q.length--
		old.unref()
	}
	q.data[(q.front+q.length)%len(q.data)] = ri
	q.length++
	q.cond.Signal()
	q.mu.Unlock()
}

// popNolock removes up to n records from the front. Caller holds mu.
// Returns the records and the seqno of the first one.
func (q *queue) popNolock(n int) ([]*recordInfo, Seqno) {
	if n > q.length {
		n = q.length
	}
	first := q.frontSeqno
	if n == 0 {
		return nil, first
	}
	out := make([]*recordInfo, n)
	for i := 0; i < n; i++ {
		idx := (q.front + i) % len(q.data)
		out[i] = q.data[idx]
		q.data[idx] = nil
	}
	q.front = (q.front + n) % len(q.data)
	q.frontSeqno += Seqno(n)
	q.length -= n
	return out, first
}

// popBlocking waits until n records are buffered or the queue is
// interrupted, then pops whatever is available. The returned bool reports
// whether the wait ended because of an interrupt rather than data arrival.
func (q *queue) popBlocking(n int) ([]*recordInfo, Seqno, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.length < n && !q.interrupted {
		q.cond.Wait()
	}
	out, first := q.popNolock(n)
	return out, first, q.interrupted
}

// popNowait pops up to n records without blocking. Fewer than n available is
// not an error.
func (q *queue) popNowait(n int) ([]*recordInfo, Seqno) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popNolock(n)
}

// popBytesNowait pops as many whole records as fit in the byte budget.
// Records are never split: a record larger than the remaining budget stays
// queued for a later call. Returns the records, the first seqno, and the
// total payload bytes popped.
func (q *queue) popBytesNowait(budget int) ([]*recordInfo, Seqno, int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	total := 0
	for n < q.length {
		size := len(q.data[(q.front+n)%len(q.data)].rec.Data)
		if total+size > budget {
			break
		}
		total += size
		n++
	}
	out, first := q.popNolock(n)
	return out, first, total
}

// interrupt wakes every blocked popper. The flag stays set until
// clearInterrupt so that reads attempted after a stop return immediately
// instead of hanging on a queue with no producer.
func (q *queue) interrupt() {
	q.mu.Lock()
	q.interrupted = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// clearInterrupt re-arms blocking pops after the owning context restarts.
func (q *queue) clearInterrupt() {
	q.mu.Lock()
	q.interrupted = false
	q.mu.Unlock()
}

// resize changes the queue capacity in place. With flush set, all buffered
// records are dropped first. Otherwise the min(length, newMax) most recent
// records survive, in order; shrinking evicts from the oldest end exactly
// like overflow does. The swap to a fresh backing array keeps the survivors
// contiguous, which is the simple equivalent of the minimal-move ring
// contraction.
func (q *queue) resize(newMax int, flush bool) {
	if newMax <= 0 {
		panic("aether: queue capacity must be positive")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if flush {
		q.dropNolock(q.length)
	} else if q.length > newMax {
		q.dropNolock(q.length - newMax)
	}

	fresh := make([]*recordInfo, newMax)
	for i := 0; i < q.length; i++ {
		fresh[i] = q.data[(q.front+i)%len(q.data)]
	}
	q.data = fresh
	q.front = 0
}

// dropNolock evicts the n oldest records. Caller holds mu.
func (q *queue) dropNolock(n int) {
	for i := 0; i < n; i++ {
		idx := (q.front + i) % len(q.data)
		q.data[idx].unref()
		q.data[idx] = nil
	}
	q.front = (q.front + n) % len(q.data)
	q.frontSeqno += Seqno(n)
	q.length -= n
}

// drain drops every buffered record. Used when the owning context is freed.
func (q *queue) drain() {
	q.mu.Lock()
	q.dropNolock(q.length)
	q.mu.Unlock()
}

// len returns the current number of buffered records.
func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.length
}

// maxLen returns the queue capacity.
func (q *queue) maxLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data)
}
