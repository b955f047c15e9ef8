// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xdptx

import (
	"context"
	"io"
	"math"

	"code.hybscloud.com/atomix"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultMaxIterations bounds the batches one Poll moves before yielding.
const DefaultMaxIterations = 10

// Tx moves descriptors from an outgoing queue into a TX ring.
//
// Tx is a [Task]: each Poll drains as much of the queue into the ring as
// currently possible, notifies its [Notifier] of every batch, and suspends.
// Create one with [New].
type Tx struct {
	outgoing      *Receiver[Descriptor]
	ring          *TxRing
	notifier      Notifier
	maxIterations int
	logger        *zap.Logger
	done          bool

	iterations  atomix.Uint64
	transmitted atomix.Uint64
	starved     atomix.Uint64
	yields      atomix.Uint64
}

var _ Task = (*Tx)(nil)

// TxStats is a snapshot of driver counters.
type TxStats struct {
	Iterations  uint64 // loop passes across all polls
	Transmitted uint64 // descriptors released to the ring
	Starved     uint64 // passes where the ring granted no capacity
	Yields      uint64 // polls ended by the iteration cap
}

// Stats returns a snapshot of the driver counters.
// Safe to call from any goroutine.
func (t *Tx) Stats() TxStats {
	return TxStats{
		Iterations:  t.iterations.Load(),
		Transmitted: t.transmitted.Load(),
		Starved:     t.starved.Load(),
		Yields:      t.yields.Load(),
	}
}

// Poll runs one transmit cycle.
//
// Returns ErrWouldBlock when suspended: the queue is empty, the ring is full
// and the notifier is pending, or the iteration cap was reached (in which
// case w has already been woken). Returns nil once the queue is closed and
// drained; the notifier is then closed if it implements io.Closer.
//
// Panics if the queue and ring both report capacity but no descriptor
// could be copied, which means a collaborator broke its contract.
func (t *Tx) Poll(w Waker) error {
	if t.done {
		return nil
	}
	t.trace("polling tx")

	for iteration := 0; iteration < t.maxIterations; iteration++ {
		t.iterations.Add(1)

		available, err := t.outgoing.PollSlice(w)
		switch {
		case IsClosed(err):
			t.trace("tx queue is closed; shutting down")
			t.finish()
			return nil
		case err != nil:
			t.trace("tx queue out of items; sleeping")
			return err
		}

		granted := t.ring.Acquire(uint32(min(uint64(available), math.MaxUint32)))
		if ce := t.logger.Check(zapcore.DebugLevel, "acquired"); ce != nil {
			ce.Write(zap.Int("iteration", iteration), zap.Int("queue", available), zap.Uint32("ring", granted))
		}

		if granted == 0 {
			t.starved.Add(1)
			if err := t.notifier.NotifyEmpty(t.ring, w); err != nil {
				t.trace("tx ring full; waiting for notifier")
				return err
			}
			continue
		}

		slice := t.outgoing.Slice()
		rxFront, rxWrap := slice.Peek()
		txFront, txWrap := t.ring.Data()
		count := transfer([][]Descriptor{rxFront, rxWrap}, [][]Descriptor{txFront, txWrap})

		t.ring.Release(uint32(count))
		slice.Release(count)
		t.transmitted.Add(uint64(count))
		t.notifier.Notify(t.ring, w, uint32(count))
	}

	// Yield so a saturated queue does not monopolize the executor.
	t.trace("iteration cap reached; waking self")
	t.yields.Add(1)
	w.Wake()
	return ErrWouldBlock
}

// transfer copies queue segments into ring segments.
// Both sides were granted capacity, so a copy that moves nothing means the
// queue or ring reported capacity it did not expose; that panics. The
// built-in Receiver and TxRing cannot get there.
func transfer(from, to [][]Descriptor) int {
	count := VectoredCopy(from, to)
	if count == 0 {
		panic("xdptx: vectored copy moved no descriptors with queue and ring capacity available")
	}
	return count
}

func (t *Tx) finish() {
	t.done = true
	if c, ok := t.notifier.(io.Closer); ok {
		if err := c.Close(); err != nil {
			t.logger.Warn("notifier close failed", zap.Error(err))
		}
	}
}

func (t *Tx) trace(msg string) {
	if ce := t.logger.Check(zapcore.DebugLevel, msg); ce != nil {
		ce.Write()
	}
}

// Transmit moves descriptors from outgoing into ring until outgoing is
// closed and drained, or ctx is done.
//
// It runs the driver on a private [Executor] on the calling goroutine. To
// share a goroutine with other tasks, build a [Tx] with [New] and
// [Executor.Spawn] it instead.
func Transmit(ctx context.Context, outgoing *Receiver[Descriptor], ring *TxRing, notifier Notifier) error {
	ex := NewExecutor()
	ex.Spawn(New(outgoing, ring).Notifier(notifier).Build())
	return ex.Run(ctx)
}
