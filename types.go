// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xdptx

import (
	"context"
	"sync"
	"unsafe"
)

// Descriptor names a region of UMEM packet-buffer memory queued for
// transmission.
//
// The layout matches the kernel's struct xdp_desc, so a TX ring's descriptor
// array is a []Descriptor over the mmap'd region. Descriptors are passed by
// value; the queue and ring never own the memory they reference.
type Descriptor struct {
	Address uint64 // Offset into UMEM
	Len     uint32 // Frame length in bytes
	Options uint32 // XDP_PKT_* option bits
}

// DescriptorSize is the size of a Descriptor in bytes.
const DescriptorSize = int(unsafe.Sizeof(Descriptor{}))

// WithLen returns a copy of d with Len replaced.
func (d Descriptor) WithLen(n uint32) Descriptor {
	d.Len = n
	return d
}

// Waker resumes a suspended task.
//
// Wake may be called from any goroutine, any number of times. Waking a task
// that is already scheduled is a no-op; waking a task while it is being
// polled schedules it again after the poll returns.
type Waker interface {
	Wake()
}

// Task is a resumable operation driven by an [Executor].
//
// Poll advances the task as far as possible without blocking:
//   - nil: completed, Poll is never called again
//   - ErrWouldBlock: suspended, resumed after w.Wake()
//   - any other error: failed, the executor reports it from Run
//
// A task returning ErrWouldBlock must have arranged for w to be woken,
// either by registering it with a collaborator or by calling w.Wake itself.
type Task interface {
	Poll(w Waker) error
}

// TaskFunc adapts a function to the [Task] interface.
type TaskFunc func(w Waker) error

// Poll calls f(w).
func (f TaskFunc) Poll(w Waker) error {
	return f(w)
}

// ChanWaker is a [Waker] that signals a buffered channel.
//
// It lets a goroutine drive Poll-style methods directly:
//
//	w := xdptx.NewChanWaker()
//	for {
//	    n, err := recv.PollSlice(w)
//	    if xdptx.IsWouldBlock(err) {
//	        <-w
//	        continue
//	    }
//	    ...
//	}
type ChanWaker chan struct{}

// NewChanWaker creates a ChanWaker with a single pending slot.
func NewChanWaker() ChanWaker {
	return make(ChanWaker, 1)
}

// Wake signals the channel without blocking. Wakes coalesce.
func (w ChanWaker) Wake() {
	select {
	case w <- struct{}{}:
	default:
	}
}

// block calls poll until it stops returning ErrWouldBlock or ctx is done.
func block(ctx context.Context, poll func(w Waker) error) error {
	w := NewChanWaker()
	for {
		err := poll(w)
		if !IsWouldBlock(err) {
			return err
		}
		select {
		case <-w:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// wakerSlot holds at most one registered waker.
//
// Registration must happen before the caller re-checks the condition it
// waits on; the waking side changes the condition before calling wake.
// The mutex orders the two so no wakeup is lost.
type wakerSlot struct {
	mu sync.Mutex
	w  Waker
}

func (s *wakerSlot) register(w Waker) {
	s.mu.Lock()
	s.w = w
	s.mu.Unlock()
}

func (s *wakerSlot) wake() {
	s.mu.Lock()
	w := s.w
	s.w = nil
	s.mu.Unlock()
	if w != nil {
		w.Wake()
	}
}
