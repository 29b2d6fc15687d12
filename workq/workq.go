// Package workq implements the bounded FIFO used throughout sandesh: a
// byte-weighted queue with high/low watermark callbacks, an optional cap,
// and a demand-started runner goroutine gated by a pluggable predicate.
/*
 * Copyright (c) 2024-2026, NVIDIA CORPORATION. All rights reserved.
 */
package workq

import (
	"runtime"
	"sort"
	"sync"

	"github.com/NVIDIA/sandesh/cmn/debug"
)

// MaxWorkLoad bounds the items a runner processes between yields.
const MaxWorkLoad = 16

// Watermark pairs a byte threshold with the callback invoked when the
// queue size crosses it. Callbacks run synchronously on the goroutine that
// performed the enqueue/dequeue and must not block.
type Watermark struct {
	Bytes int64
	Cb    func(bytes int64)
}

// Queue is a FIFO of T. The zero value is not usable; see New.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	head   int
	bytes  int64
	sizeOf func(T) int64
	worker func(T)

	bounded  bool
	maxBytes int64

	high, low            []Watermark
	hwmCursor, lwmCursor int

	startRunner func() bool // nil means always ready
	running     bool
	stopped     bool
	wg          sync.WaitGroup
}

// New creates a queue delivering items to worker via the runner. sizeOf
// yields the byte weight of an item (nil weighs every item at 1).
func New[T any](worker func(T), sizeOf func(T) int64) *Queue[T] {
	if sizeOf == nil {
		sizeOf = func(T) int64 { return 1 }
	}
	return &Queue[T]{
		worker:    worker,
		sizeOf:    sizeOf,
		hwmCursor: -1,
	}
}

// SetStartRunner installs the predicate consulted before the runner is
// (re)started and before each dequeue batch.
func (q *Queue[T]) SetStartRunner(pred func() bool) {
	q.mu.Lock()
	q.startRunner = pred
	q.mu.Unlock()
}

// SetBounded caps the queue at maxBytes; enqueue over the cap fails.
// maxBytes <= 0 removes the bound.
func (q *Queue[T]) SetBounded(maxBytes int64) {
	q.mu.Lock()
	q.bounded, q.maxBytes = maxBytes > 0, maxBytes
	q.mu.Unlock()
}

// SetWatermarks installs the high and low lists. Duplicate thresholds are
// removed, lists are sorted ascending, and both cursors reset. Lows start
// un-armed (nothing crossed at size 0); a high crossing arms them, so a
// dequeue that never saw a high crossing fires no low callback.
func (q *Queue[T]) SetWatermarks(high, low []Watermark) {
	q.mu.Lock()
	q.high = dedupSort(high)
	q.low = dedupSort(low)
	q.hwmCursor = -1
	q.lwmCursor = 0
	q.mu.Unlock()
}

func dedupSort(wms []Watermark) []Watermark {
	out := make([]Watermark, 0, len(wms))
	seen := make(map[int64]bool, len(wms))
	for _, wm := range wms {
		if !seen[wm.Bytes] {
			seen[wm.Bytes] = true
			out = append(out, wm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bytes < out[j].Bytes })
	return out
}

// Enqueue appends item and reports acceptance. Rejections happen only when
// the queue is stopped or bounded-and-full; the caller accounts the drop.
// Never blocks.
func (q *Queue[T]) Enqueue(item T) bool {
	sz := q.sizeOf(item)
	q.mu.Lock()
	if q.stopped || (q.bounded && q.bytes+sz > q.maxBytes) {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, item)
	q.bytes += sz
	q.processHighWatermarks()
	start := q.readyLocked()
	q.mu.Unlock()
	if start {
		q.MayBeStartRunner()
	}
	return true
}

// Dequeue removes the oldest item. Exposed for drains and direct pulls;
// the runner uses the same path.
func (q *Queue[T]) Dequeue() (item T, ok bool) {
	q.mu.Lock()
	item, ok = q.dequeueLocked()
	q.mu.Unlock()
	return item, ok
}

func (q *Queue[T]) dequeueLocked() (item T, ok bool) {
	if q.head >= len(q.items) {
		return item, false
	}
	item = q.items[q.head]
	var zero T
	q.items[q.head] = zero
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	q.bytes -= q.sizeOf(item)
	// bytes enqueued == bytes dequeued + current queue byte size
	debug.Assertf(q.bytes >= 0, "queue byte accounting went negative: %d", q.bytes)
	q.processLowWatermarks()
	return item, true
}

// watermark crossing; under q.mu
//
// Firing every threshold inside the crossed interval (not just the nearest)
// covers a single enqueue that jumps multiple thresholds. Crossing in one
// direction re-arms the other side relative to the current size, so a
// sawtooth around one threshold fires it once per full cycle.

func (q *Queue[T]) processHighWatermarks() {
	fired := false
	for i := q.hwmCursor + 1; i < len(q.high) && q.bytes >= q.high[i].Bytes; i++ {
		q.high[i].Cb(q.bytes)
		q.hwmCursor = i
		fired = true
	}
	if fired {
		q.lwmCursor = sort.Search(len(q.low), func(i int) bool {
			return q.low[i].Bytes >= q.bytes
		})
	}
}

func (q *Queue[T]) processLowWatermarks() {
	fired := false
	for i := q.lwmCursor - 1; i >= 0 && q.bytes <= q.low[i].Bytes; i-- {
		q.low[i].Cb(q.bytes)
		q.lwmCursor = i
		fired = true
	}
	if fired {
		q.hwmCursor = -1
		for i := len(q.high) - 1; i >= 0; i-- {
			if q.high[i].Bytes <= q.bytes {
				q.hwmCursor = i
				break
			}
		}
	}
}

// Length returns the number of queued items.
func (q *Queue[T]) Length() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Bytes returns the queued byte weight.
func (q *Queue[T]) Bytes() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.bytes
}

func (q *Queue[T]) IsEmpty() bool { return q.Length() == 0 }

func (q *Queue[T]) readyLocked() bool {
	if q.stopped || q.running || len(q.items) == q.head {
		return false
	}
	return q.startRunner == nil || q.startRunner()
}

// MayBeStartRunner starts the runner goroutine unless it is running, the
// queue is empty, or the start predicate says no. Called after enqueue and
// whenever the predicate may have turned true (e.g. send re-enabled).
func (q *Queue[T]) MayBeStartRunner() {
	q.mu.Lock()
	if !q.readyLocked() {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.wg.Add(1)
	q.mu.Unlock()
	go q.run()
}

func (q *Queue[T]) run() {
	defer q.wg.Done()
	for {
		for n := 0; n < MaxWorkLoad; n++ {
			q.mu.Lock()
			if q.stopped || (q.startRunner != nil && !q.startRunner()) {
				q.running = false
				q.mu.Unlock()
				return
			}
			item, ok := q.dequeueLocked()
			if !ok {
				q.running = false
				q.mu.Unlock()
				return
			}
			q.mu.Unlock()
			q.worker(item)
		}
		runtime.Gosched()
	}
}

// Stop rejects further enqueues, discards queued items, and waits for the
// runner to finish its in-flight item.
func (q *Queue[T]) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	q.items, q.head, q.bytes = nil, 0, 0
	q.mu.Unlock()
	q.wg.Wait()
}
