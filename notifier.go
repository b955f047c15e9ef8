// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xdptx

import (
	"io"

	"code.hybscloud.com/atomix"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Notifier reacts to progress on a TX ring.
//
// Variants: [NoopNotifier], [Pair], [*WorkerSender], [*SocketNotifier].
type Notifier interface {
	// Notify reports that count descriptors became visible in the ring.
	// It is called after the ring release, never fails, and may be called
	// several times per resumption.
	Notify(tx *TxRing, w Waker, count uint32)

	// NotifyEmpty reports that the ring granted no capacity.
	// Returns nil if capacity may come back without outside help, so the
	// driver retries immediately; ErrWouldBlock if only an external event
	// can free capacity, in which case the notifier arranges for w to be
	// woken.
	NotifyEmpty(tx *TxRing, w Waker) error
}

var (
	_ Notifier = NoopNotifier{}
	_ Notifier = (*pair)(nil)
	_ Notifier = (*WorkerSender)(nil)
	_ Notifier = (*SocketNotifier)(nil)
)

// NoopNotifier ignores notifications and always reports ready.
type NoopNotifier struct{}

// Notify does nothing.
func (NoopNotifier) Notify(tx *TxRing, w Waker, count uint32) {}

// NotifyEmpty returns nil.
func (NoopNotifier) NotifyEmpty(tx *TxRing, w Waker) error {
	return nil
}

type pair struct {
	a, b Notifier
}

// Pair composes two notifiers.
//
// Notify is broadcast to a then b. NotifyEmpty queries both every time and
// is ready only if both are ready.
func Pair(a, b Notifier) Notifier {
	return &pair{a: a, b: b}
}

func (p *pair) Notify(tx *TxRing, w Waker, count uint32) {
	p.a.Notify(tx, w, count)
	p.b.Notify(tx, w, count)
}

func (p *pair) NotifyEmpty(tx *TxRing, w Waker) error {
	ea := p.a.NotifyEmpty(tx, w)
	eb := p.b.NotifyEmpty(tx, w)
	if ea == nil && eb == nil {
		return nil
	}
	return ErrWouldBlock
}

// Close closes whichever constituents implement io.Closer.
func (p *pair) Close() (err error) {
	if c, ok := p.a.(io.Closer); ok {
		err = multierr.Append(err, c.Close())
	}
	if c, ok := p.b.(io.Closer); ok {
		err = multierr.Append(err, c.Close())
	}
	return err
}

// TxWaker issues the kernel wakeup for a TX ring.
// *Socket implements it with a zero-length sendto.
type TxWaker interface {
	WakeTx() error
}

// SocketNotifier kicks the kernel when it has asked to be woken.
//
// The kernel sets the ring's need-wakeup flag when it stops polling the TX
// ring. SocketNotifier checks the flag and only then issues the syscall.
// Wakeup failures are logged and counted but never reported: the driver's
// correctness does not depend on the wakeup succeeding.
type SocketNotifier struct {
	sock     TxWaker
	logger   *zap.Logger
	wakeups  atomix.Uint64
	failures atomix.Uint64
}

// NewSocketNotifier creates a SocketNotifier for sock.
func NewSocketNotifier(sock TxWaker) *SocketNotifier {
	return &SocketNotifier{sock: sock, logger: logger}
}

// WithLogger replaces the logger used for wakeup failures.
func (n *SocketNotifier) WithLogger(l *zap.Logger) *SocketNotifier {
	n.logger = l
	return n
}

// Notify runs the wakeup path regardless of count: kernel-side progress is
// not observable here, so the flag decides.
func (n *SocketNotifier) Notify(tx *TxRing, w Waker, count uint32) {
	n.wake(tx)
}

// NotifyEmpty wakes the kernel if needed and reports ready.
func (n *SocketNotifier) NotifyEmpty(tx *TxRing, w Waker) error {
	n.wake(tx)
	return nil
}

// Wakeups returns the number of wakeup syscalls issued.
func (n *SocketNotifier) Wakeups() uint64 {
	return n.wakeups.Load()
}

// Failures returns the number of wakeup syscalls that failed.
func (n *SocketNotifier) Failures() uint64 {
	return n.failures.Load()
}

func (n *SocketNotifier) wake(tx *TxRing) {
	if !tx.NeedsWakeup() {
		return
	}

	n.wakeups.Add(1)
	err := n.sock.WakeTx()
	if err == nil {
		if ce := n.logger.Check(zapcore.DebugLevel, "TX ring woken"); ce != nil {
			ce.Write()
		}
		return
	}

	n.failures.Add(1)
	n.logger.Warn("TX wakeup failed", zap.Error(err))
}
