// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xdptx

import (
	"context"
	"sync"

	"code.hybscloud.com/spin"
	eaqueue "github.com/eapache/queue"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// idleSpins is how many times Run spins on an empty ready set before
// parking on the signal channel.
const idleSpins = 64

type taskState uint8

const (
	taskIdle taskState = iota
	taskScheduled
	taskRunning
	taskNotified // woken while running
	taskDone
)

// Executor is a single-goroutine cooperative scheduler.
//
// Tasks run one at a time on the goroutine calling Run. A task is polled
// when it is spawned and after each Wake; tasks woken while being polled go
// to the back of the ready set, which is how a task yields.
type Executor struct {
	mu     sync.Mutex
	ready  *eaqueue.Queue // *taskCell, FIFO
	live   int
	signal chan struct{}
	logger *zap.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(ex *Executor)

// WithExecutorLogger replaces the executor logger.
func WithExecutorLogger(l *zap.Logger) ExecutorOption {
	return func(ex *Executor) {
		ex.logger = l
	}
}

// NewExecutor creates an Executor with no tasks.
func NewExecutor(opts ...ExecutorOption) *Executor {
	ex := &Executor{
		ready:  eaqueue.New(),
		signal: make(chan struct{}, 1),
		logger: logger,
	}
	for _, o := range opts {
		o(ex)
	}
	return ex
}

// Spawn adds a task and schedules its first poll.
// It may be called from any goroutine, including from within a task.
func (ex *Executor) Spawn(t Task) {
	cell := &taskCell{ex: ex, task: t}
	ex.mu.Lock()
	ex.live++
	ex.mu.Unlock()
	cell.Wake()
}

// Len returns the number of tasks that have not completed.
func (ex *Executor) Len() int {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.live
}

// Run polls ready tasks until every task has completed or ctx is done.
//
// Tasks returning an error other than ErrWouldBlock are finished; their
// errors are combined into the result. Cancelling ctx returns ctx.Err()
// and leaves unfinished tasks in place; Run may be called again.
func (ex *Executor) Run(ctx context.Context) (err error) {
	sw := spin.Wait{}
	spins := 0
	for {
		ex.mu.Lock()
		if ex.live == 0 {
			ex.mu.Unlock()
			return err
		}
		if ex.ready.Length() == 0 {
			ex.mu.Unlock()
			if spins < idleSpins {
				spins++
				sw.Once()
				continue
			}
			select {
			case <-ex.signal:
			case <-ctx.Done():
				return multierr.Append(err, ctx.Err())
			}
			continue
		}
		cell := ex.ready.Remove().(*taskCell)
		cell.state = taskRunning
		ex.mu.Unlock()
		spins = 0

		e := cell.task.Poll(cell)
		if !IsNonFailure(e) {
			ex.logger.Debug("task failed", zap.Error(e))
			err = multierr.Append(err, e)
		}

		ex.mu.Lock()
		switch {
		case !IsWouldBlock(e):
			cell.state = taskDone
			ex.live--
		case cell.state == taskNotified:
			cell.state = taskScheduled
			ex.ready.Add(cell)
		default:
			cell.state = taskIdle
		}
		ex.mu.Unlock()

		select {
		case <-ctx.Done():
			return multierr.Append(err, ctx.Err())
		default:
		}
	}
}

// taskCell is a spawned task and its Waker.
type taskCell struct {
	ex    *Executor
	task  Task
	state taskState // guarded by ex.mu
}

// Wake schedules the task.
func (c *taskCell) Wake() {
	ex := c.ex
	ex.mu.Lock()
	switch c.state {
	case taskIdle:
		c.state = taskScheduled
		ex.ready.Add(c)
	case taskRunning:
		c.state = taskNotified
	default:
		ex.mu.Unlock()
		return
	}
	ex.mu.Unlock()

	select {
	case ex.signal <- struct{}{}:
	default:
	}
}
