// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xdptx_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"code.hybscloud.com/iox"

	"code.hybscloud.com/xdptx"
)

// =============================================================================
// End-to-end: producer goroutine → queue → Tx → ring → consumer task
// =============================================================================

const testItems = 1000

// runTransmit sends testItems descriptors with addresses 0..testItems-1 in
// random batches of 1..7 with random delays, and checks that the ring's
// consuming side observes exactly that sequence.
func runTransmit(t *testing.T, capacity int) {
	if xdptx.RaceEnabled {
		t.Skip("skip: queue and ring use cross-variable memory ordering")
	}

	send, recv := xdptx.NewQueue[xdptx.Descriptor](capacity)
	rx, ring := xdptx.NewRingPair(uint32(capacity))
	workSend, workRecv := xdptx.NewWorker()
	tx := xdptx.New(recv, ring).Notifier(workSend).Build()

	go func() {
		defer send.Close()
		rng := rand.New(rand.NewPCG(uint64(capacity), 1))
		backoff := iox.Backoff{}
		batch := make([]xdptx.Descriptor, 0, 7)
		next := uint64(0)
		for next < testItems {
			batch = batch[:0]
			size := 1 + rng.IntN(7)
			for i := 0; i < size && next < testItems; i++ {
				batch = append(batch, xdptx.Descriptor{Address: next}.WithLen(0))
				next++
			}

			pending := batch
			for len(pending) > 0 {
				n, err := send.Extend(pending)
				if err != nil {
					if xdptx.IsWouldBlock(err) {
						backoff.Wait()
						continue
					}
					return
				}
				backoff.Reset()
				pending = pending[n:]
			}
			randomDelay(rng)
		}
	}()

	var total uint64
	consumer := xdptx.TaskFunc(func(w xdptx.Waker) error {
		for {
			credits, err := workRecv.PollAcquire(w)
			if xdptx.IsClosed(err) {
				return nil
			}
			if err != nil {
				return err
			}

			n := rx.Acquire(1)
			front, wrap := rx.Data()
			for _, seg := range [][]xdptx.Descriptor{front, wrap} {
				for _, d := range seg {
					if d.Address != total {
						return fmt.Errorf("address: got %d, want %d", d.Address, total)
					}
					total++
				}
			}
			rx.Release(n)
			workRecv.Finish(credits)
		}
	})

	ex := xdptx.NewExecutor()
	ex.Spawn(tx)
	ex.Spawn(consumer)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := ex.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if total != testItems {
		t.Fatalf("consumed: got %d, want %d", total, testItems)
	}
	if got := tx.Stats().Transmitted; got != testItems {
		t.Fatalf("Transmitted: got %d, want %d", got, testItems)
	}
	if n, err := recv.PollSlice(&countingWaker{}); n != 0 || !xdptx.IsClosed(err) {
		t.Fatalf("PollSlice after completion: got (%d, %v), want (0, ErrClosed)", n, err)
	}
}

// TestTransmitSmallQueue sends through a queue and ring of 8 slots.
func TestTransmitSmallQueue(t *testing.T) {
	runTransmit(t, 8)
}

// TestTransmitLargeQueue sends through a queue and ring of 4096 slots.
func TestTransmitLargeQueue(t *testing.T) {
	runTransmit(t, 4096)
}

// TestTransmit runs the package-level entry point over a pre-filled, closed queue.
func TestTransmit(t *testing.T) {
	send, recv := xdptx.NewQueue[xdptx.Descriptor](64)
	rx, ring := xdptx.NewRingPair(64)

	for i := range 50 {
		d := xdptx.Descriptor{Address: uint64(i), Len: 64}
		if err := send.Enqueue(&d); err != nil {
			t.Fatalf("Enqueue(%d): %v", i, err)
		}
	}
	send.Close()

	if err := xdptx.Transmit(context.Background(), recv, ring, xdptx.NoopNotifier{}); err != nil {
		t.Fatalf("Transmit: %v", err)
	}

	addrs := drainRing(rx)
	if len(addrs) != 50 {
		t.Fatalf("ring entries: got %d, want 50", len(addrs))
	}
	for i, a := range addrs {
		if a != uint64(i) {
			t.Fatalf("entry %d: got %d, want %d", i, a, i)
		}
	}
}

// =============================================================================
// Single Poll behavior
// =============================================================================

// TestTxRetriesWhileNotifierReady checks that zero ring grants with a ready
// notifier are retried within the same Poll instead of suspending.
func TestTxRetriesWhileNotifierReady(t *testing.T) {
	send, recv := xdptx.NewQueue[xdptx.Descriptor](4)
	rx, ring := xdptx.NewRingPair(4)
	fillRing(ring, 4)

	for i := range 2 {
		d := xdptx.Descriptor{Address: uint64(100 + i)}
		if err := send.Enqueue(&d); err != nil {
			t.Fatalf("Enqueue(%d): %v", i, err)
		}
	}

	n := &recordingNotifier{}
	n.onEmpty = func() error {
		if n.empties == 3 {
			drainRing(rx)
		}
		return nil
	}
	tx := xdptx.New(recv, ring).Notifier(n).Build()

	w := &countingWaker{}
	if err := tx.Poll(w); !errors.Is(err, xdptx.ErrWouldBlock) {
		t.Fatalf("Poll: got %v, want ErrWouldBlock", err)
	}
	if n.empties != 3 {
		t.Fatalf("NotifyEmpty calls: got %d, want 3", n.empties)
	}
	if w.n != 0 {
		t.Fatalf("self wakes: got %d, want 0", w.n)
	}

	st := tx.Stats()
	if st.Starved != 3 || st.Transmitted != 2 || st.Yields != 0 {
		t.Fatalf("Stats: got %+v, want Starved=3 Transmitted=2 Yields=0", st)
	}

	addrs := drainRing(rx)
	if len(addrs) != 2 || addrs[0] != 100 || addrs[1] != 101 {
		t.Fatalf("ring entries: got %v, want [100 101]", addrs)
	}
}

// TestTxSuspendsWhileNotifierPending checks that a full ring with a pending
// notifier suspends immediately and leaves the queue untouched.
func TestTxSuspendsWhileNotifierPending(t *testing.T) {
	send, recv := xdptx.NewQueue[xdptx.Descriptor](8)
	_, ring := xdptx.NewRingPair(4)

	for i := range 8 {
		d := xdptx.Descriptor{Address: uint64(i)}
		if err := send.Enqueue(&d); err != nil {
			t.Fatalf("Enqueue(%d): %v", i, err)
		}
	}

	n := &recordingNotifier{onEmpty: func() error { return xdptx.ErrWouldBlock }}
	tx := xdptx.New(recv, ring).Notifier(n).Build()

	w := &countingWaker{}
	if err := tx.Poll(w); !errors.Is(err, xdptx.ErrWouldBlock) {
		t.Fatalf("Poll: got %v, want ErrWouldBlock", err)
	}
	// The first pass fills the ring with 4, the second finds it full.
	if n.empties != 1 {
		t.Fatalf("NotifyEmpty calls: got %d, want 1", n.empties)
	}
	if len(n.notified) != 1 || n.notified[0] != 4 {
		t.Fatalf("Notify counts: got %v, want [4]", n.notified)
	}
	if w.n != 0 {
		t.Fatalf("self wakes: got %d, want 0", w.n)
	}
	if avail, err := recv.PollSlice(w); err != nil || avail != 4 {
		t.Fatalf("PollSlice: got (%d, %v), want (4, nil)", avail, err)
	}
}

// TestTxYieldsAtIterationCap checks the fairness yield under sustained backlog.
func TestTxYieldsAtIterationCap(t *testing.T) {
	send, recv := xdptx.NewQueue[xdptx.Descriptor](64)
	rx, ring := xdptx.NewRingPair(4)

	for i := range 64 {
		d := xdptx.Descriptor{Address: uint64(i)}
		if err := send.Enqueue(&d); err != nil {
			t.Fatalf("Enqueue(%d): %v", i, err)
		}
	}

	var seen []uint64
	n := &recordingNotifier{}
	n.onNotify = func(uint32) { seen = append(seen, drainRing(rx)...) }
	tx := xdptx.New(recv, ring).Notifier(n).Build()

	w := &countingWaker{}
	if err := tx.Poll(w); !errors.Is(err, xdptx.ErrWouldBlock) {
		t.Fatalf("Poll 1: got %v, want ErrWouldBlock", err)
	}
	if w.n != 1 {
		t.Fatalf("self wakes after cap: got %d, want 1", w.n)
	}
	st := tx.Stats()
	if st.Transmitted != 40 || st.Yields != 1 || st.Iterations != xdptx.DefaultMaxIterations {
		t.Fatalf("Stats after Poll 1: got %+v, want Transmitted=40 Yields=1 Iterations=10", st)
	}

	if err := tx.Poll(w); !errors.Is(err, xdptx.ErrWouldBlock) {
		t.Fatalf("Poll 2: got %v, want ErrWouldBlock", err)
	}
	if w.n != 1 {
		t.Fatalf("self wakes after drain: got %d, want 1", w.n)
	}
	if st := tx.Stats(); st.Transmitted != 64 || st.Yields != 1 {
		t.Fatalf("Stats after Poll 2: got %+v, want Transmitted=64 Yields=1", st)
	}

	send.Close()
	if err := tx.Poll(w); err != nil {
		t.Fatalf("Poll after Close: got %v, want nil", err)
	}
	if n.closed != 1 {
		t.Fatalf("notifier closes: got %d, want 1", n.closed)
	}
	if err := tx.Poll(w); err != nil {
		t.Fatalf("Poll after completion: got %v, want nil", err)
	}
	if n.closed != 1 {
		t.Fatalf("notifier closes after completion: got %d, want 1", n.closed)
	}

	if len(seen) != 64 {
		t.Fatalf("ring entries: got %d, want 64", len(seen))
	}
	for i, a := range seen {
		if a != uint64(i) {
			t.Fatalf("entry %d: got %d, want %d", i, a, i)
		}
	}
	if got := n.total(); got != 64 {
		t.Fatalf("notified total: got %d, want 64", got)
	}
}

// TestTxStarvedRingYields checks that a ring that never frees capacity with
// an always-ready notifier ends in a fairness yield, not a spin.
func TestTxStarvedRingYields(t *testing.T) {
	send, recv := xdptx.NewQueue[xdptx.Descriptor](4)
	_, ring := xdptx.NewRingPair(4)
	fillRing(ring, 4)

	d := xdptx.Descriptor{Address: 1}
	if err := send.Enqueue(&d); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	tx := xdptx.New(recv, ring).MaxIterations(5).Build()
	w := &countingWaker{}
	if err := tx.Poll(w); !errors.Is(err, xdptx.ErrWouldBlock) {
		t.Fatalf("Poll: got %v, want ErrWouldBlock", err)
	}
	if w.n != 1 {
		t.Fatalf("self wakes: got %d, want 1", w.n)
	}
	if st := tx.Stats(); st.Starved != 5 || st.Yields != 1 || st.Transmitted != 0 {
		t.Fatalf("Stats: got %+v, want Starved=5 Yields=1 Transmitted=0", st)
	}
}

// TestTxTakesMinimumOfQueueAndRing checks grants never exceed what the queue
// offers, and copies never exceed what the ring grants.
func TestTxTakesMinimumOfQueueAndRing(t *testing.T) {
	t.Run("QueueShorter", func(t *testing.T) {
		send, recv := xdptx.NewQueue[xdptx.Descriptor](8)
		rx, ring := xdptx.NewRingPair(16)
		for i := range 3 {
			d := xdptx.Descriptor{Address: uint64(i)}
			_ = send.Enqueue(&d)
		}

		n := &recordingNotifier{}
		tx := xdptx.New(recv, ring).Notifier(n).Build()
		if err := tx.Poll(&countingWaker{}); !errors.Is(err, xdptx.ErrWouldBlock) {
			t.Fatalf("Poll: got %v, want ErrWouldBlock", err)
		}
		if len(n.notified) != 1 || n.notified[0] != 3 {
			t.Fatalf("Notify counts: got %v, want [3]", n.notified)
		}
		if got := len(drainRing(rx)); got != 3 {
			t.Fatalf("ring entries: got %d, want 3", got)
		}
		// Nothing beyond the three copied descriptors was handed to the ring.
		if got := ring.Acquire(16); got != 16 {
			t.Fatalf("free after drain: got %d, want 16", got)
		}
	})

	t.Run("RingShorter", func(t *testing.T) {
		send, recv := xdptx.NewQueue[xdptx.Descriptor](8)
		_, ring := xdptx.NewRingPair(2)
		for i := range 8 {
			d := xdptx.Descriptor{Address: uint64(i)}
			_ = send.Enqueue(&d)
		}

		n := &recordingNotifier{onEmpty: func() error { return xdptx.ErrWouldBlock }}
		tx := xdptx.New(recv, ring).Notifier(n).Build()
		if err := tx.Poll(&countingWaker{}); !errors.Is(err, xdptx.ErrWouldBlock) {
			t.Fatalf("Poll: got %v, want ErrWouldBlock", err)
		}
		if len(n.notified) != 1 || n.notified[0] != 2 {
			t.Fatalf("Notify counts: got %v, want [2]", n.notified)
		}
	})
}

// TestTxWrapsBothSides drives the queue and ring past their ends so both
// copies span two segments.
func TestTxWrapsBothSides(t *testing.T) {
	send, recv := xdptx.NewQueue[xdptx.Descriptor](4)
	rx, ring := xdptx.NewRingPair(4)
	tx := xdptx.New(recv, ring).Build()
	w := &countingWaker{}

	var seen []uint64
	next := uint64(0)
	for round := range 5 {
		batch := []xdptx.Descriptor{{Address: next}, {Address: next + 1}, {Address: next + 2}}
		if n, err := send.Extend(batch); err != nil || n != 3 {
			t.Fatalf("round %d: Extend: got (%d, %v), want (3, nil)", round, n, err)
		}
		next += 3
		if err := tx.Poll(w); !errors.Is(err, xdptx.ErrWouldBlock) {
			t.Fatalf("round %d: Poll: got %v, want ErrWouldBlock", round, err)
		}
		seen = append(seen, drainRing(rx)...)
	}

	if len(seen) != 15 {
		t.Fatalf("ring entries: got %d, want 15", len(seen))
	}
	for i, a := range seen {
		if a != uint64(i) {
			t.Fatalf("entry %d: got %d, want %d", i, a, i)
		}
	}
}

// TestTxCompletesOnClosedEmptyQueue checks that closing an empty queue
// completes the driver on the next Poll.
func TestTxCompletesOnClosedEmptyQueue(t *testing.T) {
	send, recv := xdptx.NewQueue[xdptx.Descriptor](4)
	_, ring := xdptx.NewRingPair(4)
	workSend, workRecv := xdptx.NewWorker()
	tx := xdptx.New(recv, ring).Notifier(xdptx.Pair(workSend, xdptx.NoopNotifier{})).Build()

	w := &countingWaker{}
	if err := tx.Poll(w); !errors.Is(err, xdptx.ErrWouldBlock) {
		t.Fatalf("Poll on empty: got %v, want ErrWouldBlock", err)
	}

	send.Close()
	if w.n != 1 {
		t.Fatalf("wakes from Close: got %d, want 1", w.n)
	}
	if err := tx.Poll(w); err != nil {
		t.Fatalf("Poll after Close: got %v, want nil", err)
	}
	if _, err := workRecv.PollAcquire(w); !xdptx.IsClosed(err) {
		t.Fatalf("worker after completion: got %v, want ErrClosed", err)
	}
}

func TestBuilderPanics(t *testing.T) {
	_, recv := xdptx.NewQueue[xdptx.Descriptor](4)
	_, ring := xdptx.NewRingPair(4)

	for name, f := range map[string]func(){
		"NilQueue":      func() { xdptx.New(nil, ring) },
		"NilRing":       func() { xdptx.New(recv, nil) },
		"ZeroIteration": func() { xdptx.New(recv, ring).MaxIterations(0) },
	} {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatal("expected panic")
				}
			}()
			f()
		})
	}
}
