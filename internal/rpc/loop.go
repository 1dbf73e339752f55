// Package rpc carries JSON calls and events over websockets.
//
// All inbound traffic is handled on a single Loop goroutine: the read pump of
// every connection decodes messages and posts them to the loop, and reply
// continuations and close notifications run there too. Code running on the
// loop therefore needs no locks for state that only the loop touches.
package rpc

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrLoopClosed is returned when work is posted to a stopped loop
var ErrLoopClosed = errors.New("event loop closed")

// Loop runs posted functions one at a time in FIFO order
type Loop struct {
	logger *zap.Logger

	mu     sync.Mutex
	queue  []func()
	closed bool

	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
}

// NewLoop creates a loop. Call Run to start processing.
func NewLoop(logger *zap.Logger) *Loop {
	return &Loop{
		logger:  logger.With(zap.String("component", "loop")),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Run processes posted functions until Close is called
func (l *Loop) Run() {
	defer close(l.stopped)
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, fn := range batch {
			l.exec(fn)
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-l.wake:
		case <-l.done:
			return
		}
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("panic in event loop task", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	fn()
}

// Post queues fn. It reports false when the loop is closed.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Do runs fn on the loop and waits for it. It must not be called from the
// loop itself.
func (l *Loop) Do(fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrLoopClosed
	}
	select {
	case <-finished:
		return nil
	case <-l.stopped:
		return ErrLoopClosed
	}
}

// Close stops the loop. Functions still queued are dropped.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.done)
}

// Done is closed once Run has returned
func (l *Loop) Done() <-chan struct{} {
	return l.stopped
}
