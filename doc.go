// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package xdptx moves packet descriptors from an in-process queue into an
// AF_XDP transmit ring.
//
// The package is built around a resumable driver, [Tx], polled by a
// cooperative [Executor]. Each poll drains as much of the outgoing queue into
// the ring as currently possible, tells a [Notifier] about every batch, and
// suspends. The driver never blocks and spawns no goroutines.
//
//   - Descriptor: UMEM address + length, laid out like struct xdp_desc
//   - Queue: closable SPSC ring of descriptors ([NewQueue])
//   - TxRing: producer handle of the ring shared with the kernel
//   - Notifier: what happens after a batch, or when the ring is full
//
// # Quick Start
//
//	send, recv := xdptx.NewQueue[xdptx.Descriptor](1024)
//	sock, _ := xdptx.NewSocket()
//	// ... register UMEM and bind sock ...
//	ring, _ := sock.MapTxRing(2048)
//
//	go func() {
//	    err := xdptx.Transmit(ctx, recv, ring, xdptx.NewSocketNotifier(sock))
//	    ...
//	}()
//
//	// Producer
//	d := xdptx.Descriptor{Address: frameAddr, Len: frameLen}
//	if err := send.Send(ctx, &d); err != nil { ... }
//	send.Close() // driver completes once the queue is drained
//
// # Poll Protocol
//
// Every Poll-style method follows the same protocol:
//
//   - nil: progress made (or, for a Task, completed)
//   - ErrWouldBlock: nothing to do now; the Waker passed in will be woken
//   - ErrClosed: the other side is gone and nothing is left
//
// Wakers are registered before the final re-check of the condition, so a
// wake that races with suspension is never lost.
//
// # Transmit Cycle
//
// One [Tx.Poll] repeats, at most MaxIterations times (default 10):
//
//  1. Poll the queue; empty suspends, closed completes.
//  2. Acquire ring capacity up to the queue length.
//  3. No capacity: ask the notifier. Pending suspends; ready retries now.
//  4. Copy min(queue, ring) descriptors with [VectoredCopy] across the
//     wrapped segments of both sides.
//  5. Release the ring, release the queue, then notify.
//
// Reaching the cap wakes the task and suspends, so a saturated queue cannot
// starve other tasks on the same executor.
//
// # Notifiers
//
//	NoopNotifier     nothing; always ready when the ring is full
//	Pair(a, b)       both; ready only if both are ready
//	*WorkerSender    submits the batch size as work credits; always ready
//	*SocketNotifier  sendto wakeup when the kernel set NEED_WAKEUP; always ready
//
// # Race Detection
//
// The queue and ring hand data between goroutines through acquire/release
// index updates. Go's race detector does not track that ordering across
// separate variables, so concurrent tests are skipped when [RaceEnabled].
package xdptx

import "code.hybscloud.com/xdptx/internal/logging"

var logger = logging.New("xdptx")
