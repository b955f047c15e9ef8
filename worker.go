// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xdptx

import (
	"context"

	"code.hybscloud.com/atomix"
)

// worker is a credit counter shared by a WorkerSender and a WorkerReceiver.
//
// The sender submits units of completed work; the receiver acquires the
// outstanding units, processes them, and finishes them. There is no
// feedback path from receiver to sender.
type worker struct {
	_         pad
	submitted atomix.Uint64 // Sender adds here
	_         pad
	finished  uint64 // Receiver only
	closed    atomix.Bool
	waker     wakerSlot
}

// WorkerSender submits work units to a WorkerReceiver.
//
// WorkerSender implements [Notifier]: each Notify submits the transmitted
// count, fire-and-forget.
type WorkerSender struct {
	w *worker
}

// WorkerReceiver acquires work units submitted by a WorkerSender.
// It must be used by a single goroutine at a time.
type WorkerReceiver struct {
	w *worker
}

// NewWorker creates a worker channel and returns its two halves.
func NewWorker() (*WorkerSender, *WorkerReceiver) {
	w := &worker{}
	return &WorkerSender{w: w}, &WorkerReceiver{w: w}
}

// Submit adds n work units and wakes the receiver.
func (s *WorkerSender) Submit(n uint64) {
	if n == 0 {
		return
	}
	s.w.submitted.Add(n)
	s.w.waker.wake()
}

// Close marks the channel closed. Outstanding units remain acquirable.
// Close always returns nil; it implements io.Closer.
func (s *WorkerSender) Close() error {
	s.w.closed.Store(true)
	s.w.waker.wake()
	return nil
}

// Notify submits count work units.
func (s *WorkerSender) Notify(tx *TxRing, w Waker, count uint32) {
	s.Submit(uint64(count))
}

// NotifyEmpty always reports ready: a worker has no way to signal that
// ring capacity will come back.
func (s *WorkerSender) NotifyEmpty(tx *TxRing, w Waker) error {
	return nil
}

// PollAcquire returns the number of outstanding work units.
//
// Returns ErrWouldBlock after registering w when there are none, and
// ErrClosed when the sender has closed and nothing is outstanding.
func (r *WorkerReceiver) PollAcquire(w Waker) (uint64, error) {
	if n := r.outstanding(); n > 0 {
		return n, nil
	}

	r.w.waker.register(w)
	closed := r.w.closed.Load()
	if n := r.outstanding(); n > 0 {
		return n, nil
	}
	if closed {
		return 0, ErrClosed
	}
	return 0, ErrWouldBlock
}

// Acquire waits for outstanding work units until ctx is done.
func (r *WorkerReceiver) Acquire(ctx context.Context) (n uint64, err error) {
	err = block(ctx, func(w Waker) error {
		n, err = r.PollAcquire(w)
		return err
	})
	return n, err
}

// Finish marks n acquired units as processed.
// Panics if n exceeds the outstanding count.
func (r *WorkerReceiver) Finish(n uint64) {
	if n > r.outstanding() {
		panic("xdptx: finish exceeds outstanding work")
	}
	r.w.finished += n
}

func (r *WorkerReceiver) outstanding() uint64 {
	return r.w.submitted.Load() - r.w.finished
}
