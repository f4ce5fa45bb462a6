// Package mainloop runs whitelist mutations one at a time on a single goroutine.
//
// The bridge, the HTTP API and the log watcher all submit work here, so store
// calls never interleave regardless of which transport triggered them.
package mainloop

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/TheMich157/whitelisthub/internal/logging"
)

// ErrStopped is returned when work is submitted after Stop.
var ErrStopped = errors.New("main loop stopped")

// DefaultQueueSize bounds pending tasks.
const DefaultQueueSize = 256

// Task is a unit of work run on the loop goroutine.
type Task func(ctx context.Context)

// Loop is a single-goroutine task runner.
type Loop struct {
	queue  chan Task
	logger *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates a loop with room for queueSize pending tasks.
func New(queueSize int, logger *logging.Logger) *Loop {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = logging.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Loop{
		queue:  make(chan Task, queueSize),
		logger: logger.WithComponent("mainloop"),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start launches the loop goroutine.
func (l *Loop) Start() {
	l.startOnce.Do(func() {
		go l.run()
	})
}

// Stop drains nothing further and waits for the running task to finish.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		l.cancel()
		l.startOnce.Do(func() { close(l.done) })
	})
	<-l.done
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			return
		case task := <-l.queue:
			l.runTask(task)
		}
	}
}

func (l *Loop) runTask(task Task) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("task panicked", "panic", fmt.Sprint(r))
		}
	}()
	task(l.ctx)
}

// Dispatch queues task without blocking. It returns false when the queue is
// full or the loop has stopped; the task is then dropped.
func (l *Loop) Dispatch(task Task) bool {
	if l.ctx.Err() != nil {
		return false
	}
	select {
	case l.queue <- task:
		return true
	default:
		l.logger.Warn("main loop queue full, dropping task")
		return false
	}
}

// Call runs fn on the loop and waits for it to return.
// If ctx ends first, Call returns ctx.Err(); fn may still run later.
func (l *Loop) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if l.ctx.Err() != nil {
		return ErrStopped
	}
	result := make(chan error, 1)
	task := func(_ context.Context) {
		if ctx.Err() != nil {
			result <- ctx.Err()
			return
		}
		result <- fn(ctx)
	}

	select {
	case l.queue <- task:
	case <-ctx.Done():
		return ctx.Err()
	case <-l.ctx.Done():
		return ErrStopped
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrStopped
	}
}

// Pending returns the number of queued tasks.
func (l *Loop) Pending() int {
	return len(l.queue)
}
