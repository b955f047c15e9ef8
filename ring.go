// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xdptx

import (
	"sync/atomic"
	"unsafe"
)

// ringNeedWakeup is XDP_RING_NEED_WAKEUP from linux/if_xdp.h.
const ringNeedWakeup = 1

// ring mirrors the layout the kernel shares for an AF_XDP ring: producer,
// consumer and flags words plus a power-of-two descriptor array. The words
// may live in mmap'd memory, so they are accessed through pointers.
type ring struct {
	producer *uint32
	consumer *uint32
	flags    *uint32
	descs    []Descriptor
	mask     uint32
	size     uint32

	cachedProducer uint32
	cachedConsumer uint32
}

func (r *ring) init(producer, consumer, flags *uint32, descs []Descriptor) {
	size := uint32(len(descs))
	if size < 2 || size&(size-1) != 0 {
		panic("xdptx: ring size must be a power of 2 >= 2")
	}
	r.producer = producer
	r.consumer = consumer
	r.flags = flags
	r.descs = descs
	r.mask = size - 1
	r.size = size
}

// TxRing is the producer handle of a transmit ring. Userspace fills
// descriptors; the kernel consumes them.
//
// TxRing is not safe for concurrent use.
type TxRing struct {
	ring
	acquired uint32
}

// Cap returns the number of descriptor slots.
func (t *TxRing) Cap() uint32 {
	return t.size
}

// Acquire requests up to n free slots and returns how many were granted.
// The cached consumer index is refreshed only when the cached view cannot
// satisfy the request.
func (t *TxRing) Acquire(n uint32) uint32 {
	free := t.size - (t.cachedProducer - t.cachedConsumer)
	if free < n {
		t.cachedConsumer = atomic.LoadUint32(t.consumer)
		free = t.size - (t.cachedProducer - t.cachedConsumer)
	}
	t.acquired = min(free, n)
	return t.acquired
}

// Data returns the granted slots as two segments: up to the end of the
// descriptor array, then wrapped around to its start.
func (t *TxRing) Data() (front, wrap []Descriptor) {
	return segments(t.descs, t.cachedProducer&t.mask, t.acquired)
}

// Release publishes the first n granted slots to the consumer.
// Panics if n exceeds the granted count.
func (t *TxRing) Release(n uint32) {
	if n == 0 {
		return
	}
	if n > t.acquired {
		panic("xdptx: release exceeds acquired capacity")
	}
	t.acquired -= n
	t.cachedProducer += n
	// Descriptors are written; now publish producer index.
	atomic.StoreUint32(t.producer, t.cachedProducer)
}

// NeedsWakeup reports whether the consumer has asked for an explicit wakeup.
func (t *TxRing) NeedsWakeup() bool {
	return atomic.LoadUint32(t.flags)&ringNeedWakeup != 0
}

// RxRing is the consumer handle of a ring. For a TX ring this is the
// kernel's side; the package exposes it for loopback rings and tests.
//
// RxRing is not safe for concurrent use.
type RxRing struct {
	ring
	available uint32
}

// Cap returns the number of descriptor slots.
func (r *RxRing) Cap() uint32 {
	return r.size
}

// Acquire returns the number of filled slots. The cached producer index is
// refreshed when fewer than watermark slots are known to be filled.
func (r *RxRing) Acquire(watermark uint32) uint32 {
	avail := r.cachedProducer - r.cachedConsumer
	if avail < watermark {
		r.cachedProducer = atomic.LoadUint32(r.producer)
		avail = r.cachedProducer - r.cachedConsumer
	}
	r.available = avail
	return avail
}

// Data returns the acquired slots as two segments.
func (r *RxRing) Data() (front, wrap []Descriptor) {
	return segments(r.descs, r.cachedConsumer&r.mask, r.available)
}

// Release returns the first n acquired slots to the producer.
// Panics if n exceeds the acquired count.
func (r *RxRing) Release(n uint32) {
	if n == 0 {
		return
	}
	if n > r.available {
		panic("xdptx: release exceeds acquired entries")
	}
	r.available -= n
	r.cachedConsumer += n
	atomic.StoreUint32(r.consumer, r.cachedConsumer)
}

// SetNeedsWakeup sets or clears the need-wakeup flag the producer observes
// through [TxRing.NeedsWakeup]. On a kernel ring this flag is owned by the
// kernel.
func (r *RxRing) SetNeedsWakeup(on bool) {
	if on {
		atomic.OrUint32(r.flags, ringNeedWakeup)
	} else {
		atomic.AndUint32(r.flags, ^uint32(ringNeedWakeup))
	}
}

// ringWords keeps the shared indices of a heap-backed ring on separate cache
// lines, as the kernel does for mmap'd rings.
type ringWords struct {
	_        pad
	producer uint32
	_        padWord
	consumer uint32
	_        padWord
	flags    uint32
	_        padWord
}

// NewRingPair creates a heap-backed ring with size slots and returns its
// consumer and producer handles. Size must be a power of 2.
//
// It stands in for a kernel ring in tests and benchmarks: the RxRing side
// plays the kernel, draining descriptors and toggling the need-wakeup flag.
func NewRingPair(size uint32) (*RxRing, *TxRing) {
	words := &ringWords{}
	descs := make([]Descriptor, size)

	rx := &RxRing{}
	rx.init(&words.producer, &words.consumer, &words.flags, descs)
	tx := &TxRing{}
	tx.init(&words.producer, &words.consumer, &words.flags, descs)
	return rx, tx
}

// newTxRingAt builds a TX ring over mmap'd memory at the given offsets.
func newTxRingAt(region []byte, producer, consumer, flags, desc uint64, size uint32) *TxRing {
	base := unsafe.Pointer(unsafe.SliceData(region))
	tx := &TxRing{}
	tx.init(
		(*uint32)(unsafe.Add(base, producer)),
		(*uint32)(unsafe.Add(base, consumer)),
		(*uint32)(unsafe.Add(base, flags)),
		unsafe.Slice((*Descriptor)(unsafe.Add(base, desc)), size),
	)
	// The kernel may have consumed entries before we attached.
	tx.cachedProducer = atomic.LoadUint32(tx.producer)
	tx.cachedConsumer = atomic.LoadUint32(tx.consumer)
	return tx
}
