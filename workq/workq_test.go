// Package workq implements the bounded watermark work queue.
/*
 * Copyright (c) 2024-2026, NVIDIA CORPORATION. All rights reserved.
 */
package workq_test

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/NVIDIA/sandesh/workq"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

type item struct {
	size int64
}

func newQueue(worker func(item)) *workq.Queue[item] {
	if worker == nil {
		worker = func(item) {}
	}
	return workq.New(worker, func(it item) int64 { return it.size })
}

var _ = Describe("Queue", func() {
	It("tracks items and bytes through enqueue and dequeue", func() {
		q := newQueue(nil)
		q.SetStartRunner(func() bool { return false }) // manual dequeue
		var enqueued int64
		for _, sz := range []int64{3, 5, 7} {
			Expect(q.Enqueue(item{size: sz})).To(BeTrue())
			enqueued += sz
		}
		Expect(q.Length()).To(Equal(3))
		Expect(q.Bytes()).To(Equal(enqueued))

		var dequeued int64
		it, ok := q.Dequeue()
		Expect(ok).To(BeTrue())
		dequeued += it.size
		// bytes enqueued == bytes dequeued + current queue byte size
		Expect(q.Bytes()).To(Equal(enqueued - dequeued))
	})

	It("rejects enqueues over the bound", func() {
		q := newQueue(nil)
		q.SetStartRunner(func() bool { return false })
		q.SetBounded(10)
		Expect(q.Enqueue(item{size: 6})).To(BeTrue())
		Expect(q.Enqueue(item{size: 4})).To(BeTrue())
		Expect(q.Enqueue(item{size: 1})).To(BeFalse())
		// dequeue frees room
		_, ok := q.Dequeue()
		Expect(ok).To(BeTrue())
		Expect(q.Enqueue(item{size: 5})).To(BeTrue())
	})

	It("fires every high threshold crossed by a single enqueue", func() {
		q := newQueue(nil)
		q.SetStartRunner(func() bool { return false })
		var fired []string
		mark := func(name string) func(int64) {
			return func(int64) { fired = append(fired, name) }
		}
		q.SetWatermarks(
			[]workq.Watermark{
				{Bytes: 5, Cb: mark("H1")},
				{Bytes: 11, Cb: mark("H2")},
				{Bytes: 17, Cb: mark("H3")},
			},
			nil,
		)
		q.Enqueue(item{size: 4})
		Expect(fired).To(BeEmpty())
		q.Enqueue(item{size: 1}) // 5 -> H1
		Expect(fired).To(Equal([]string{"H1"}))
		q.Enqueue(item{size: 12}) // 17 -> H2 then H3
		Expect(fired).To(Equal([]string{"H1", "H2", "H3"}))
		// already above every threshold: nothing refires
		q.Enqueue(item{size: 10})
		Expect(fired).To(HaveLen(3))
	})

	It("replays the literal watermark fire-order scenario", func() {
		q := newQueue(nil)
		q.SetStartRunner(func() bool { return false })
		var fired []string
		mark := func(name string) func(int64) {
			return func(int64) { fired = append(fired, name) }
		}
		q.SetWatermarks(
			[]workq.Watermark{
				{Bytes: 5, Cb: mark("H1")},
				{Bytes: 11, Cb: mark("H2")},
				{Bytes: 17, Cb: mark("H3")},
			},
			[]workq.Watermark{
				{Bytes: 14, Cb: mark("L1")},
				{Bytes: 8, Cb: mark("L2")},
				{Bytes: 2, Cb: mark("L3")},
			},
		)
		// item sizes shaped so the dequeues below drain 3, 6, 6 bytes
		q.Enqueue(item{size: 3}) // 3
		q.Enqueue(item{size: 6}) // 9  -> H1
		q.Enqueue(item{size: 6}) // 15 -> H2
		q.Enqueue(item{size: 2}) // 17 -> H3
		Expect(q.Bytes()).To(Equal(int64(17)))
		_, _ = q.Dequeue() // 14 -> L1
		_, _ = q.Dequeue() // 8  -> L2
		_, _ = q.Dequeue() // 2  -> L3
		Expect(fired).To(Equal([]string{"H1", "H2", "H3", "L1", "L2", "L3"}))
		Expect(q.Bytes()).To(Equal(int64(2)))
	})

	It("fires no low watermark before a high crossing armed it", func() {
		q := newQueue(nil)
		q.SetStartRunner(func() bool { return false })
		var fired []string
		mark := func(name string) func(int64) {
			return func(int64) { fired = append(fired, name) }
		}
		q.SetWatermarks(
			[]workq.Watermark{{Bytes: 5, Cb: mark("H1")}},
			[]workq.Watermark{
				{Bytes: 14, Cb: mark("L1")},
				{Bytes: 8, Cb: mark("L2")},
				{Bytes: 2, Cb: mark("L3")},
			},
		)
		// stays below H1 the whole time: draining back to empty must not
		// invoke any low callback
		q.Enqueue(item{size: 3})
		_, _ = q.Dequeue()
		Expect(fired).To(BeEmpty())

		// a high crossing arms the lows
		q.Enqueue(item{size: 6})
		Expect(fired).To(Equal([]string{"H1"}))
		_, _ = q.Dequeue()
		Expect(fired).To(Equal([]string{"H1", "L3"}))
	})

	It("deduplicates and sorts watermark thresholds", func() {
		q := newQueue(nil)
		q.SetStartRunner(func() bool { return false })
		var count int32
		cb := func(int64) { atomic.AddInt32(&count, 1) }
		q.SetWatermarks(
			[]workq.Watermark{{Bytes: 5, Cb: cb}, {Bytes: 5, Cb: cb}, {Bytes: 3, Cb: cb}},
			nil,
		)
		q.Enqueue(item{size: 10})
		// thresholds {3, 5}: two distinct crossings
		Expect(atomic.LoadInt32(&count)).To(Equal(int32(2)))
	})

	It("runs the worker only when the start predicate allows", func() {
		var processed int32
		ready := int32(0)
		q := newQueue(func(item) { atomic.AddInt32(&processed, 1) })
		q.SetStartRunner(func() bool { return atomic.LoadInt32(&ready) == 1 })
		for i := 0; i < 5; i++ {
			Expect(q.Enqueue(item{size: 1})).To(BeTrue())
		}
		Consistently(func() int32 { return atomic.LoadInt32(&processed) },
			50*time.Millisecond).Should(Equal(int32(0)))

		atomic.StoreInt32(&ready, 1)
		q.MayBeStartRunner()
		Eventually(func() int32 { return atomic.LoadInt32(&processed) }).
			Should(Equal(int32(5)))
		Expect(q.Length()).To(Equal(0))
	})

	It("preserves FIFO order through the runner", func() {
		var (
			mu  sync.Mutex
			got []int64
		)
		q := workq.New(func(it item) {
			mu.Lock()
			got = append(got, it.size)
			mu.Unlock()
		}, func(it item) int64 { return it.size })
		for i := 1; i <= 64; i++ {
			Expect(q.Enqueue(item{size: int64(i)})).To(BeTrue())
		}
		Eventually(func() int {
			mu.Lock()
			defer mu.Unlock()
			return len(got)
		}).Should(Equal(64))
		mu.Lock()
		defer mu.Unlock()
		for i := 1; i <= 64; i++ {
			Expect(got[i-1]).To(Equal(int64(i)))
		}
	})

	It("drops everything after Stop", func() {
		q := newQueue(nil)
		q.SetStartRunner(func() bool { return false })
		q.Enqueue(item{size: 1})
		q.Stop()
		Expect(q.Enqueue(item{size: 1})).To(BeFalse())
		Expect(q.Length()).To(Equal(0))
	})
})
