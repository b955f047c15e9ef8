// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xdptx

import "go.uber.org/zap"

// Options configures a TX driver.
type Options struct {
	notifier      Notifier
	maxIterations int
	logger        *zap.Logger
}

// Builder creates TX drivers with fluent configuration.
//
// Example:
//
//	// Driver feeding a worker, with the default iteration cap
//	send, recv := xdptx.NewWorker()
//	tx := xdptx.New(outgoing, ring).Notifier(send).Build()
//
//	// Driver kicking an AF_XDP socket and feeding a worker
//	tx := xdptx.New(outgoing, ring).
//	    Notifier(xdptx.Pair(xdptx.NewSocketNotifier(sock), send)).
//	    MaxIterations(32).
//	    Build()
type Builder struct {
	outgoing *Receiver[Descriptor]
	ring     *TxRing
	opts     Options
}

// New creates a driver builder over an outgoing queue and a TX ring.
//
// The driver becomes the sole consumer of outgoing and sole producer of
// ring. Without further configuration it uses [NoopNotifier] and
// [DefaultMaxIterations].
//
// Panics if outgoing or ring is nil.
func New(outgoing *Receiver[Descriptor], ring *TxRing) *Builder {
	if outgoing == nil || ring == nil {
		panic("xdptx: outgoing queue and ring are required")
	}
	return &Builder{
		outgoing: outgoing,
		ring:     ring,
		opts: Options{
			notifier:      NoopNotifier{},
			maxIterations: DefaultMaxIterations,
			logger:        logger,
		},
	}
}

// Notifier sets the notifier told about every transmitted batch and asked
// what to do when the ring is full. Nil selects [NoopNotifier].
func (b *Builder) Notifier(n Notifier) *Builder {
	if n == nil {
		n = NoopNotifier{}
	}
	b.opts.notifier = n
	return b
}

// MaxIterations sets how many batches one Poll may move before yielding
// back to the executor.
//
// Panics if n < 1.
func (b *Builder) MaxIterations(n int) *Builder {
	if n < 1 {
		panic("xdptx: max iterations must be >= 1")
	}
	b.opts.maxIterations = n
	return b
}

// Logger sets the driver logger. Traces are emitted at debug level.
func (b *Builder) Logger(l *zap.Logger) *Builder {
	if l == nil {
		l = zap.NewNop()
	}
	b.opts.logger = l
	return b
}

// Build creates the driver.
func (b *Builder) Build() *Tx {
	return &Tx{
		outgoing:      b.outgoing,
		ring:          b.ring,
		notifier:      b.opts.notifier,
		maxIterations: b.opts.maxIterations,
		logger:        b.opts.logger,
	}
}

// roundToPow2 rounds n up to the next power of 2.
func roundToPow2(n int) int {
	if n < 2 {
		return 2
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

// pad is cache line padding to prevent false sharing.
type pad [64]byte

// padWord is padding to fill cache line after a 4-byte field.
type padWord [64 - 4]byte
