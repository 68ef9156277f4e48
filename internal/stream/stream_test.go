package stream

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/awards/internal/adapters/store"
	"github.com/okian/awards/internal/adapters/store/memory"
)

type item struct {
	ID    string `firestore:"-"`
	Name  string `firestore:"name"`
	Order int    `firestore:"order"`
}

var decodeItem = Decode(func(i *item, id string) { i.ID = id })

const wait = time.Second

// take returns the next emission or fails the assertion after wait.
func take[T any](s *Stream[T]) (T, error) {
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	return s.Next(ctx)
}

// quiet reports whether s emits nothing for a short while.
func quiet[T any](s *Stream[T]) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := s.Next(ctx)
	return errors.Is(err, context.DeadlineExceeded)
}

func names(items []item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Name
	}
	return out
}

// faultyBackend fails listeners on demand.
type faultyBackend struct {
	*memory.Store

	mu        sync.Mutex
	refuse    map[string]error
	breakDocs map[string]error
}

func newFaultyBackend(s *memory.Store) *faultyBackend {
	return &faultyBackend{Store: s, refuse: map[string]error{}, breakDocs: map[string]error{}}
}

func (b *faultyBackend) Listen(ctx context.Context, q store.Query) (store.Listener, error) {
	b.mu.Lock()
	err := b.refuse[q.Collection]
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return b.Store.Listen(ctx, q)
}

func (b *faultyBackend) ListenDocument(ctx context.Context, path string) (store.Listener, error) {
	b.mu.Lock()
	err := b.refuse[path]
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	l, err := b.Store.ListenDocument(ctx, path)
	if err != nil {
		return nil, err
	}
	return &faultyListener{Listener: l, b: b, path: path}, nil
}

// breakDoc makes the listener on path fail at its next snapshot.
func (b *faultyBackend) breakDoc(path string, err error) {
	b.mu.Lock()
	b.breakDocs[path] = err
	b.mu.Unlock()
}

type faultyListener struct {
	store.Listener
	b    *faultyBackend
	path string
}

func (l *faultyListener) Next() (store.Snapshot, error) {
	snap, err := l.Listener.Next()
	if err != nil {
		return snap, err
	}
	l.b.mu.Lock()
	broken := l.b.breakDocs[l.path]
	l.b.mu.Unlock()
	if broken != nil {
		return store.Snapshot{}, broken
	}
	return snap, nil
}

func TestSubscribe(t *testing.T) {
	Convey("Given a collection with items", t, func() {
		ctx := context.Background()
		s := memory.New()
		_ = s.Set("items/a", map[string]any{"name": "alpha", "order": 2})
		_ = s.Set("items/b", map[string]any{"name": "beta", "order": 1})
		_ = s.Set("items/bad", map[string]any{"name": "broken", "order": "first"})

		sub := Subscribe(ctx, s, store.Collection("items").OrderBy("name", false), decodeItem, WithName("items"))

		Convey("The first emission is the decoded result without bad documents", func() {
			got, err := take(sub)
			So(err, ShouldBeNil)
			So(names(got), ShouldResemble, []string{"alpha", "beta"})
			So(got[0].ID, ShouldEqual, "a")

			Convey("A write produces the next full snapshot", func() {
				_ = s.Set("items/c", map[string]any{"name": "gamma", "order": 3})
				got, err := take(sub)
				So(err, ShouldBeNil)
				So(names(got), ShouldResemble, []string{"alpha", "beta", "gamma"})
				sub.Cancel()
			})

			Convey("Cancel releases the listener and is idempotent", func() {
				sub.Cancel()
				So(s.OpenListeners(), ShouldEqual, 0)
				sub.Cancel()
				So(errors.Is(sub.Err(), ErrCanceled), ShouldBeTrue)

				_, err := take(sub)
				So(errors.Is(err, ErrCanceled), ShouldBeTrue)
				_, open := <-sub.Updates()
				So(open, ShouldBeFalse)
			})
		})

		Convey("Cancelling the parent context cancels the stream", func() {
			pctx, cancel := context.WithCancel(ctx)
			other := Subscribe(pctx, s, store.Collection("items"), decodeItem)
			_, err := take(other)
			So(err, ShouldBeNil)
			cancel()
			<-other.Done()
			So(errors.Is(other.Err(), ErrCanceled), ShouldBeTrue)
			sub.Cancel()
			So(s.OpenListeners(), ShouldEqual, 0)
		})

		Reset(func() { sub.Cancel() })
	})

	Convey("Given a backend that refuses the query", t, func() {
		b := newFaultyBackend(memory.New())
		boom := errors.New("permission denied")
		b.refuse["items"] = boom

		sub := Subscribe(context.Background(), b, store.Collection("items"), decodeItem)

		Convey("The stream terminates with the backend error", func() {
			_, err := take(sub)
			So(errors.Is(err, boom), ShouldBeTrue)
			So(errors.Is(sub.Err(), boom), ShouldBeTrue)
		})
	})
}

func TestSubscribeDocument(t *testing.T) {
	Convey("Given a document stream", t, func() {
		s := memory.New()
		doc := SubscribeDocument(context.Background(), s, "items/a", decodeItem)
		defer doc.Cancel()

		Convey("A missing document emits nil, then the value once written", func() {
			got, err := take(doc)
			So(err, ShouldBeNil)
			So(got, ShouldBeNil)

			_ = s.Set("items/a", map[string]any{"name": "alpha"})
			got, err = take(doc)
			So(err, ShouldBeNil)
			So(got, ShouldNotBeNil)
			So(got.ID, ShouldEqual, "a")
			So(got.Name, ShouldEqual, "alpha")
		})
	})
}

func TestMapAndEnded(t *testing.T) {
	Convey("Given a mapped stream with Distinct", t, func() {
		s := memory.New()
		_ = s.Set("items/a", map[string]any{"name": "alpha", "order": 1})
		src := Subscribe(context.Background(), s, store.Collection("items"), decodeItem)
		count := Map(src, func(items []item) int { return len(items) }, Distinct())

		n, err := take(count)
		So(err, ShouldBeNil)
		So(n, ShouldEqual, 1)

		Convey("Changes that keep the result equal are suppressed", func() {
			_ = s.Update("items/a", map[string]any{"order": 5})
			So(quiet(count), ShouldBeTrue)

			_ = s.Set("items/b", map[string]any{"name": "beta"})
			n, err := take(count)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 2)
		})

		Convey("Cancelling the mapped stream releases the source", func() {
			count.Cancel()
			So(s.OpenListeners(), ShouldEqual, 0)
			So(errors.Is(src.Err(), ErrCanceled), ShouldBeTrue)
		})

		Reset(func() { count.Cancel() })
	})

	Convey("Given an ended stream", t, func() {
		e := Ended(context.Background(), []string{})
		v, err := take(e)
		So(err, ShouldBeNil)
		So(v, ShouldBeEmpty)
		_, err = take(e)
		So(errors.Is(err, ErrEnded), ShouldBeTrue)
		e.Cancel()
		So(errors.Is(e.Err(), ErrEnded), ShouldBeTrue)
	})
}

func TestTerminationIsObservable(t *testing.T) {
	Convey("Given streams terminating while readers race them", t, func() {
		prev := runtime.GOMAXPROCS(8)
		defer runtime.GOMAXPROCS(prev)

		ctx := context.Background()
		boom := errors.New("boom")
		var wrong atomic.Int64
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 2000; j++ {
					if _, err := Failed[[]int](ctx, boom).Next(ctx); !errors.Is(err, boom) {
						wrong.Add(1)
					}

					e := Ended(ctx, 7)
					if v, err := e.Next(ctx); err != nil || v != 7 {
						wrong.Add(1)
					}
					if _, err := e.Next(ctx); !errors.Is(err, ErrEnded) {
						wrong.Add(1)
					}

					m := Map(Failed[[]int](ctx, boom), func(in []int) int { return len(in) })
					if _, err := m.Next(ctx); !errors.Is(err, boom) {
						wrong.Add(1)
					}
				}
			}()
		}
		wg.Wait()

		Convey("Next never reports a zero value without the terminal error", func() {
			So(wrong.Load(), ShouldEqual, 0)
		})
	})
}
