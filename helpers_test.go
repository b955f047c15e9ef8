// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xdptx_test

import (
	"math/rand/v2"
	"runtime"
	"time"

	"code.hybscloud.com/xdptx"
)

// countingWaker records wakes from a single goroutine.
type countingWaker struct {
	n int
}

func (w *countingWaker) Wake() {
	w.n++
}

// drainRing consumes everything currently in rx and returns the addresses.
func drainRing(rx *xdptx.RxRing) []uint64 {
	n := rx.Acquire(rx.Cap())
	front, wrap := rx.Data()
	addrs := make([]uint64, 0, n)
	for _, d := range front {
		addrs = append(addrs, d.Address)
	}
	for _, d := range wrap {
		addrs = append(addrs, d.Address)
	}
	rx.Release(n)
	return addrs
}

// fillRing publishes n filler descriptors so the producer side sees a full ring.
func fillRing(tx *xdptx.TxRing, n uint32) {
	if got := tx.Acquire(n); got != n {
		panic("fillRing: short acquire")
	}
	tx.Release(n)
}

// randomDelay yields or sleeps briefly to shake up producer/consumer interleaving.
func randomDelay(rng *rand.Rand) {
	switch rng.IntN(4) {
	case 0:
		time.Sleep(time.Duration(rng.IntN(50)) * time.Microsecond)
	case 1:
		runtime.Gosched()
	}
}

// recordingNotifier counts calls and runs optional hooks.
type recordingNotifier struct {
	notified []uint32
	empties  int
	closed   int
	onNotify func(count uint32)
	onEmpty  func() error
}

func (n *recordingNotifier) Notify(tx *xdptx.TxRing, w xdptx.Waker, count uint32) {
	n.notified = append(n.notified, count)
	if n.onNotify != nil {
		n.onNotify(count)
	}
}

func (n *recordingNotifier) NotifyEmpty(tx *xdptx.TxRing, w xdptx.Waker) error {
	n.empties++
	if n.onEmpty != nil {
		return n.onEmpty()
	}
	return nil
}

func (n *recordingNotifier) Close() error {
	n.closed++
	return nil
}

func (n *recordingNotifier) total() (sum uint64) {
	for _, c := range n.notified {
		sum += uint64(c)
	}
	return sum
}
