// Package worker runs the single consumer of a queue.
//
// Every item is handled on the worker goroutine, one at a time, so state
// touched only by the handler needs no further locking.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/okian/awards/pkg/logger"
)

// Source is where a worker reads items from.
type Source[T any] interface {
	Dequeue() <-chan T
}

// Handler processes one item. Returning ErrStop ends the loop; any other
// error is logged and the loop continues.
type Handler[T any] func(ctx context.Context, item T) error

// Worker consumes a Source until its channel closes, its context ends,
// Shutdown is called, or the handler returns ErrStop.
type Worker[T any] struct {
	source Source[T]
	handle Handler[T]
	name   string

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// New creates a worker over source.
func New[T any](source Source[T], handle Handler[T], opts ...Option) *Worker[T] {
	s := settings{name: "worker"}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = logger.Nop()
	}

	return &Worker[T]{
		source:   source,
		handle:   handle,
		name:     s.name,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   s.logger.Named(s.name),
	}
}

// Run starts the worker loop and returns when it ends.
func (w *Worker[T]) Run(ctx context.Context) {
	defer close(w.done)

	items := w.source.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case item, ok := <-items:
			if !ok {
				return
			}
			if err := w.handle(ctx, item); err != nil {
				if errors.Is(err, ErrStop) {
					return
				}
				w.logger.Error(ctx, "error handling item", logger.Error(err))
			}
		}
	}
}

// Done is closed once Run has returned.
func (w *Worker[T]) Done() <-chan struct{} {
	return w.done
}

// Shutdown stops the worker and waits for Run to return.
func (w *Worker[T]) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}
