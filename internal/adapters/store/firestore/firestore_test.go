package firestore

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/okian/awards/internal/adapters/store"
	"github.com/okian/awards/pkg/logger"
)

func TestRelativePath(t *testing.T) {
	Convey("Given document names", t, func() {
		cases := []struct{ full, want string }{
			{"projects/p/databases/(default)/documents/competitions/c1/votes/v1", "competitions/c1/votes/v1"},
			{"projects/p/databases/(default)/documents/documents/d1", "documents/d1"},
			{"projects/p/databases/other/documents/users/u1", "users/u1"},
			{"competitions/c1", "competitions/c1"},
		}
		for _, c := range cases {
			So(relativePath(c.full), ShouldEqual, c.want)
		}
	})
}

// freeCounter counts how many times an iterator was released.
type freeCounter struct{ n int }

func (f *freeCounter) free() { f.n++ }

func TestListenerFailure(t *testing.T) {
	Convey("Given an open listener", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		b := newBase(ctx, cancel, "query", logger.Nop())
		it := &freeCounter{}

		Convey("End of iteration is a clean stop", func() {
			err := b.fail(iterator.Done, it.free)
			So(errors.Is(err, store.ErrStopped), ShouldBeTrue)
			So(b.ctx.Err(), ShouldNotBeNil)
		})

		Convey("A canceled RPC is a clean stop", func() {
			err := b.fail(status.Error(codes.Canceled, "context canceled"), it.free)
			So(errors.Is(err, store.ErrStopped), ShouldBeTrue)
		})

		Convey("Any error after Stop is a clean stop", func() {
			b.Stop()
			err := b.fail(status.Error(codes.Unavailable, "connection reset"), it.free)
			So(errors.Is(err, store.ErrStopped), ShouldBeTrue)
		})

		Convey("A backend error is reported and stops the listener", func() {
			denied := status.Error(codes.PermissionDenied, "missing permissions")
			err := b.fail(denied, it.free)
			So(errors.Is(err, store.ErrStopped), ShouldBeFalse)
			So(status.Code(errors.Unwrap(err)), ShouldEqual, codes.PermissionDenied)
			So(err.Error(), ShouldContainSubstring, "firestore query listener")
			So(b.ctx.Err(), ShouldNotBeNil)
		})

		Convey("The iterator is released once however often it fails", func() {
			_ = b.fail(errors.New("first"), it.free)
			_ = b.fail(errors.New("second"), it.free)
			b.Stop()
			So(it.n, ShouldEqual, 1)
		})
	})
}

func TestInvalidPaths(t *testing.T) {
	Convey("Given a backend", t, func() {
		b := New(nil, nil)
		ctx := context.Background()

		Convey("Malformed queries are rejected before reaching the client", func() {
			for _, q := range []store.Query{
				store.CollectionGroup("competitions/c1/votes"),
				store.CollectionGroup(""),
				store.Collection("competitions/c1"),
				store.Collection(""),
			} {
				_, err := b.Listen(ctx, q)
				So(errors.Is(err, store.ErrInvalidPath), ShouldBeTrue)
			}
		})

		Convey("Collection paths are rejected as documents", func() {
			for _, p := range []string{"competitions", "competitions/c1/votes", "a//b"} {
				_, err := b.ListenDocument(ctx, p)
				So(errors.Is(err, store.ErrInvalidPath), ShouldBeTrue)
			}
		})
	})
}
