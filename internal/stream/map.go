package stream

import (
	"context"
	"reflect"
)

// Map derives a stream by applying f to every emission of src. The new
// stream owns src: cancelling it cancels src, and src's termination
// terminates it with the same error.
//
// With Distinct, results deep-equal to the previous emission are skipped.
func Map[A, B any](src *Stream[A], f func(A) B, opts ...Option) *Stream[B] {
	s := newSettings(src.name, opts)
	return start(src.parent, s, func(ctx context.Context, emit func(B) error) error {
		defer src.Cancel()

		var (
			last    B
			emitted bool
		)
		for {
			a, err := src.Next(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ErrCanceled
				}
				return err
			}
			b := f(a)
			if s.distinct && emitted && reflect.DeepEqual(last, b) {
				continue
			}
			if err := emit(b); err != nil {
				return err
			}
			last, emitted = b, true
		}
	})
}

// Filter keeps the elements of each emitted slice for which keep is true.
func Filter[T any](src *Stream[[]T], keep func(T) bool, opts ...Option) *Stream[[]T] {
	return Map(src, func(in []T) []T {
		out := make([]T, 0, len(in))
		for _, v := range in {
			if keep(v) {
				out = append(out, v)
			}
		}
		return out
	}, opts...)
}
