// Package stream turns live backend listeners into typed, cancelable
// sequences of complete snapshots and composes them.
//
// A Stream has exactly one producer goroutine. Each emission is a full
// value, never a diff. Emission blocks until the consumer takes it, so a
// slow consumer slows its producer and, through it, the listener, which
// keeps only the latest pending snapshot. Cancel stops the producer and
// everything it opened before returning.
package stream

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/okian/awards/pkg/logger"
	"github.com/okian/awards/pkg/metrics"
)

// Stream is a cancelable sequence of values of T.
type Stream[T any] struct {
	id   string
	name string
	log  logger.Logger

	out    chan T
	parent context.Context
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	err    error

	cancelOnce sync.Once
}

// producer runs on the stream goroutine and returns the terminal error.
type producer[T any] func(ctx context.Context, emit func(T) error) error

func start[T any](parent context.Context, s settings, run producer[T]) *Stream[T] {
	ctx, cancel := context.WithCancel(parent)
	st := &Stream[T]{
		id:     uuid.NewString(),
		name:   s.name,
		out:    make(chan T),
		parent: parent,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	st.log = s.logger.With(logger.String("stream", s.name), logger.String("stream_id", st.id))

	metrics.RecordStreamOpened(st.name)
	go st.produce(run)
	return st
}

func (s *Stream[T]) produce(run producer[T]) {
	err := run(s.ctx, s.emit)
	switch {
	case err == nil:
		err = ErrEnded
	case s.ctx.Err() != nil && !errors.Is(err, ErrEnded):
		err = ErrCanceled
	}
	if !errors.Is(err, ErrCanceled) && !errors.Is(err, ErrEnded) {
		s.log.Warn(s.ctx, "stream failed", logger.Error(err))
	}

	// err and done are published before out closes, so a reader woken by
	// the closed channel always sees the terminal error.
	s.err = err
	s.cancel()
	metrics.RecordStreamClosed(s.name)
	close(s.done)
	close(s.out)
}

func (s *Stream[T]) emit(v T) error {
	select {
	case s.out <- v:
		metrics.RecordSnapshotEmitted(s.name)
		return nil
	case <-s.ctx.Done():
		return ErrCanceled
	}
}

// ID uniquely identifies the stream for logs.
func (s *Stream[T]) ID() string { return s.id }

// Name returns the stream label.
func (s *Stream[T]) Name() string { return s.name }

// Updates returns the emission channel. It is closed after the stream
// terminates, so Err is already set when a range over it finishes.
func (s *Stream[T]) Updates() <-chan T { return s.out }

// Next waits for the next emission. After termination it returns the
// terminal error.
func (s *Stream[T]) Next(ctx context.Context) (T, error) {
	select {
	case v, ok := <-s.out:
		if !ok {
			<-s.done
			var zero T
			return zero, s.err
		}
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Err returns the terminal error once the stream has terminated, nil before.
// It is ErrCanceled after Cancel, ErrEnded for finished finite streams,
// and the backend error otherwise.
func (s *Stream[T]) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Done is closed once the producer has exited.
func (s *Stream[T]) Done() <-chan struct{} { return s.done }

// Cancel stops the stream and waits until its producer, and every listener
// and child stream it opened, has been released. It is idempotent.
func (s *Stream[T]) Cancel() {
	s.cancelOnce.Do(s.cancel)
	<-s.done
}

// Ended returns a stream that emits v once and then ends with ErrEnded.
func Ended[T any](ctx context.Context, v T, opts ...Option) *Stream[T] {
	return start(ctx, newSettings("ended", opts), func(_ context.Context, emit func(T) error) error {
		if err := emit(v); err != nil {
			return err
		}
		return ErrEnded
	})
}

// Failed returns a stream that terminates with err without emitting.
func Failed[T any](ctx context.Context, err error, opts ...Option) *Stream[T] {
	return start(ctx, newSettings("failed", opts), func(context.Context, func(T) error) error {
		return err
	})
}
