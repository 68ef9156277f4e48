package stream

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/awards/internal/adapters/store"
	"github.com/okian/awards/pkg/logger"
	"github.com/okian/awards/pkg/metrics"
)

// Decoder turns a backend document into a typed record.
type Decoder[T any] func(store.Document) (T, error)

// Decode returns a Decoder that decodes into T and stamps the document id
// with setID.
func Decode[T any](setID func(*T, string)) Decoder[T] {
	return func(d store.Document) (T, error) {
		var v T
		if err := d.DataTo(&v); err != nil {
			return v, err
		}
		if setID != nil {
			setID(&v, d.ID)
		}
		return v, nil
	}
}

// Subscribe opens a live query and emits the decoded result set on every
// change. Documents that fail to decode are dropped from the snapshot and
// counted; they never fail the stream. The listener opens when the stream
// starts and closes before the stream terminates.
func Subscribe[T any](ctx context.Context, b store.Backend, q store.Query, decode Decoder[T], opts ...Option) *Stream[[]T] {
	s := newSettings(q.Collection, opts)
	return start(ctx, s, func(ctx context.Context, emit func([]T) error) error {
		l, err := b.Listen(ctx, q)
		if err != nil {
			return fmt.Errorf("listen %s: %w", q, err)
		}
		defer l.Stop()

		for {
			snap, err := l.Next()
			if err != nil {
				return listenerErr(ctx, err)
			}
			items := make([]T, 0, len(snap.Documents))
			for _, d := range snap.Documents {
				v, err := decode(d)
				if err != nil {
					metrics.RecordDecodeDrop(q.Collection)
					s.logger.Warn(ctx, "dropping undecodable document",
						logger.String("path", d.Path), logger.Error(err))
					continue
				}
				items = append(items, v)
			}
			if err := emit(items); err != nil {
				return err
			}
		}
	})
}

// SubscribeDocument follows one document, emitting nil while it does not
// exist or cannot be decoded.
func SubscribeDocument[T any](ctx context.Context, b store.Backend, path string, decode Decoder[T], opts ...Option) *Stream[*T] {
	s := newSettings(path, opts)
	return start(ctx, s, func(ctx context.Context, emit func(*T) error) error {
		l, err := b.ListenDocument(ctx, path)
		if err != nil {
			return fmt.Errorf("listen %s: %w", path, err)
		}
		defer l.Stop()

		for {
			snap, err := l.Next()
			if err != nil {
				return listenerErr(ctx, err)
			}
			var out *T
			if snap.Exists && len(snap.Documents) > 0 {
				v, err := decode(snap.Documents[0])
				if err != nil {
					metrics.RecordDecodeDrop(collectionOf(path))
					s.logger.Warn(ctx, "dropping undecodable document",
						logger.String("path", path), logger.Error(err))
				} else {
					out = &v
				}
			}
			if err := emit(out); err != nil {
				return err
			}
		}
	})
}

func listenerErr(ctx context.Context, err error) error {
	if errors.Is(err, store.ErrStopped) && ctx.Err() != nil {
		return ErrCanceled
	}
	return err
}

func collectionOf(path string) string {
	coll, _, err := store.SplitDocumentPath(path)
	if err != nil {
		return path
	}
	return coll
}
