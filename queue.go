// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xdptx

import (
	"context"

	"code.hybscloud.com/atomix"
)

// queue is a closable single-producer single-consumer ring buffer.
//
// Based on Lamport's ring buffer with cached index optimization, extended
// with batch access: the consumer peeks a contiguous run as two segments
// and releases a prefix of it.
type queue[T any] struct {
	_          pad
	head       atomix.Uint64 // Consumer reads from here
	_          pad
	cachedTail uint64 // Consumer's cached view of tail
	_          pad
	tail       atomix.Uint64 // Producer writes here
	_          pad
	cachedHead uint64 // Producer's cached view of head
	_          pad
	sendClosed atomix.Bool
	recvClosed atomix.Bool
	recvWaker  wakerSlot
	sendWaker  wakerSlot
	buffer     []T
	mask       uint64
}

// Sender is the producing half of a queue created by [NewQueue].
// It must be used by a single goroutine at a time.
type Sender[T any] struct {
	q *queue[T]
}

// Receiver is the consuming half of a queue created by [NewQueue].
// It must be used by a single goroutine at a time.
type Receiver[T any] struct {
	q *queue[T]
}

// NewQueue creates a closable SPSC queue and returns its two halves.
// Capacity rounds up to the next power of 2.
func NewQueue[T any](capacity int) (*Sender[T], *Receiver[T]) {
	if capacity < 2 {
		panic("xdptx: capacity must be >= 2")
	}

	n := uint64(roundToPow2(capacity))
	q := &queue[T]{
		buffer: make([]T, n),
		mask:   n - 1,
	}
	return &Sender[T]{q: q}, &Receiver[T]{q: q}
}

// Cap returns the queue capacity.
func (s *Sender[T]) Cap() int {
	return int(s.q.mask + 1)
}

// Enqueue adds an element to the queue.
// Returns ErrWouldBlock if the queue is full, ErrClosed if either side
// has been closed.
func (s *Sender[T]) Enqueue(elem *T) error {
	q := s.q
	if s.closed() {
		return ErrClosed
	}

	tail := q.tail.LoadRelaxed()
	if tail-q.cachedHead > q.mask {
		q.cachedHead = q.head.LoadAcquire()
		if tail-q.cachedHead > q.mask {
			return ErrWouldBlock
		}
	}

	q.buffer[tail&q.mask] = *elem
	q.tail.StoreRelease(tail + 1)
	q.recvWaker.wake()
	return nil
}

// Extend enqueues as many leading elements of elems as fit and wakes the
// receiver once. Returns the number enqueued; ErrWouldBlock if none fit.
func (s *Sender[T]) Extend(elems []T) (int, error) {
	q := s.q
	if s.closed() {
		return 0, ErrClosed
	}
	if len(elems) == 0 {
		return 0, nil
	}

	tail := q.tail.LoadRelaxed()
	size := q.mask + 1
	free := size - (tail - q.cachedHead)
	if free < uint64(len(elems)) {
		q.cachedHead = q.head.LoadAcquire()
		free = size - (tail - q.cachedHead)
	}
	if free == 0 {
		return 0, ErrWouldBlock
	}

	n := min(free, uint64(len(elems)))
	idx := tail & q.mask
	copied := copy(q.buffer[idx:], elems[:n])
	copy(q.buffer, elems[copied:n])

	q.tail.StoreRelease(tail + n)
	q.recvWaker.wake()
	return int(n), nil
}

// PollAcquire returns the number of free slots.
// If there are none, w is registered and woken once the receiver releases
// items; the result is then ErrWouldBlock.
func (s *Sender[T]) PollAcquire(w Waker) (int, error) {
	q := s.q
	if s.closed() {
		return 0, ErrClosed
	}
	if n := s.free(); n > 0 {
		return n, nil
	}
	q.sendWaker.register(w)
	if q.recvClosed.Load() {
		return 0, ErrClosed
	}
	if n := s.free(); n > 0 {
		return n, nil
	}
	return 0, ErrWouldBlock
}

// Send enqueues elem, waiting for space until ctx is done.
func (s *Sender[T]) Send(ctx context.Context, elem *T) error {
	return block(ctx, func(w Waker) error {
		err := s.Enqueue(elem)
		if !IsWouldBlock(err) {
			return err
		}
		s.q.sendWaker.register(w)
		return s.Enqueue(elem)
	})
}

// Close marks the queue closed. Items already enqueued remain readable;
// further sends return ErrClosed.
func (s *Sender[T]) Close() {
	s.q.sendClosed.Store(true)
	s.q.recvWaker.wake()
}

func (s *Sender[T]) closed() bool {
	return s.q.sendClosed.Load() || s.q.recvClosed.Load()
}

func (s *Sender[T]) free() int {
	q := s.q
	q.cachedHead = q.head.LoadAcquire()
	return int(q.mask + 1 - (q.tail.LoadRelaxed() - q.cachedHead))
}

// PollSlice reports how many items are ready to be peeked.
//
// Returns ErrWouldBlock after registering w when the queue is empty, and
// ErrClosed once the sender has closed and every item has been released.
func (r *Receiver[T]) PollSlice(w Waker) (int, error) {
	q := r.q
	if n := r.readable(); n > 0 {
		return n, nil
	}

	q.recvWaker.register(w)
	// Closed must be observed before the final re-check so items enqueued
	// ahead of Close are never reported as closed.
	closed := q.sendClosed.Load()
	if n := r.readable(); n > 0 {
		return n, nil
	}
	if closed {
		return 0, ErrClosed
	}
	return 0, ErrWouldBlock
}

// Slice returns a cursor over the items reported by the last PollSlice.
func (r *Receiver[T]) Slice() RecvSlice[T] {
	return RecvSlice[T]{q: r.q}
}

// Close marks the receiver gone. Further sends return ErrClosed.
func (r *Receiver[T]) Close() {
	r.q.recvClosed.Store(true)
	r.q.sendWaker.wake()
}

func (r *Receiver[T]) readable() int {
	q := r.q
	q.cachedTail = q.tail.LoadAcquire()
	return int(q.cachedTail - q.head.LoadRelaxed())
}

// RecvSlice is a consumer cursor over the readable run of a queue.
type RecvSlice[T any] struct {
	q *queue[T]
}

// Len returns the number of readable items.
func (s RecvSlice[T]) Len() int {
	return int(s.q.cachedTail - s.q.head.LoadRelaxed())
}

// Peek returns the readable items as two segments: the run up to the end of
// the buffer, then the run wrapped around to its start. Either may be empty.
func (s RecvSlice[T]) Peek() (front, wrap []T) {
	q := s.q
	head := q.head.LoadRelaxed()
	return segments(q.buffer, head&q.mask, q.cachedTail-head)
}

// Release drops the first n peeked items and wakes a waiting sender.
// Panics if n exceeds Len.
func (s RecvSlice[T]) Release(n int) {
	if n == 0 {
		return
	}
	q := s.q
	head := q.head.LoadRelaxed()
	if uint64(n) > q.cachedTail-head {
		panic("xdptx: release exceeds readable length")
	}

	front, wrap := segments(q.buffer, head&q.mask, uint64(n))
	clear(front)
	clear(wrap)
	q.head.StoreRelease(head + uint64(n))
	q.sendWaker.wake()
}

// segments splits n elements of a circular buffer starting at idx.
func segments[T any, I uint32 | uint64](buf []T, idx, n I) (front, wrap []T) {
	size := I(len(buf))
	end := idx + n
	if end <= size {
		return buf[idx:end], buf[:0]
	}
	return buf[idx:], buf[:end-size]
}
