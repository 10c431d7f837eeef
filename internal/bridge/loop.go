package bridge

import (
	"context"
	"sync"
)

// UILoop owns the single goroutine allowed to talk to the browser
// Every browser call is posted to it and the caller blocks on a one-shot signal
type UILoop struct {
	work      chan func()
	done      chan struct{}
	closeOnce sync.Once
}

// NewUILoop starts the loop goroutine
func NewUILoop() *UILoop {
	l := &UILoop{
		work: make(chan func()),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *UILoop) run() {
	for {
		select {
		case fn := <-l.work:
			fn()
		case <-l.done:
			return
		}
	}
}

// Do runs fn on the loop and waits for it to finish
func (l *UILoop) Do(ctx context.Context, fn func() error) error {
	signal := make(chan error, 1)
	select {
	case l.work <- func() { signal <- fn() }:
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-signal:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Call runs fn on the loop and returns its result
func Call[T any](ctx context.Context, l *UILoop, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	err := l.Do(ctx, func() error {
		v, err := fn()
		ch <- result{v, err}
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return (<-ch).v, nil
}

// Close stops the loop; pending and later calls fail with ErrClosed
func (l *UILoop) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}
