// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xdptx

import (
	"errors"

	"code.hybscloud.com/iox"
)

// ErrWouldBlock indicates the operation cannot make progress right now.
//
// Returned by Poll-style methods when the caller must suspend:
//   - [Receiver.PollSlice]: the queue is empty
//   - [Sender.Enqueue]: the queue is full
//   - [WorkerReceiver.PollAcquire]: no outstanding credits
//   - [Tx.Poll] and [Notifier.NotifyEmpty]: pending, a wake is registered
//
// ErrWouldBlock is a control flow signal, not a failure. A task returning it
// will be resumed by the [Waker] it registered.
//
// This is an alias for [iox.ErrWouldBlock] for ecosystem consistency.
var ErrWouldBlock = iox.ErrWouldBlock

// ErrClosed indicates the other side of a queue or worker channel is gone.
//
// For a receiver, ErrClosed is only reported after every item sent before
// closing has been released. It is terminal, not a failure.
var ErrClosed = errors.New("xdptx: closed")

// ErrUnsupported is returned by socket constructors on platforms without AF_XDP.
var ErrUnsupported = errors.New("xdptx: AF_XDP is not supported on this platform")

// IsWouldBlock reports whether err indicates the operation would block.
// Delegates to [iox.IsWouldBlock] for wrapped error support.
func IsWouldBlock(err error) bool {
	return iox.IsWouldBlock(err)
}

// IsClosed reports whether err indicates a closed queue or worker channel.
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}

// IsNonFailure reports whether err represents a non-failure condition.
// Returns true for nil, ErrWouldBlock, or ErrMore.
// Delegates to [iox.IsNonFailure].
func IsNonFailure(err error) bool {
	return iox.IsNonFailure(err)
}
