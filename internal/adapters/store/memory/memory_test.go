package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/awards/internal/adapters/store"
)

type ceremony struct {
	ID     string     `firestore:"-"`
	Name   string     `firestore:"name"`
	Year   string     `firestore:"year"`
	Date   *time.Time `firestore:"date"`
	Hidden bool       `firestore:"hidden"`
}

type nominee struct {
	ID    string `firestore:"id"`
	Title string `firestore:"title"`
}

type category struct {
	Name         string    `firestore:"name"`
	DisplayOrder int       `firestore:"displayOrder"`
	Nominees     []nominee `firestore:"nominees"`
}

// nextWithin returns the next snapshot or false if none arrives in d.
func nextWithin(l store.Listener, d time.Duration) (store.Snapshot, error, bool) {
	type res struct {
		snap store.Snapshot
		err  error
	}
	ch := make(chan res, 1)
	go func() {
		s, err := l.Next()
		ch <- res{s, err}
	}()
	select {
	case r := <-ch:
		return r.snap, r.err, true
	case <-time.After(d):
		return store.Snapshot{}, nil, false
	}
}

func ids(s store.Snapshot) []string {
	out := make([]string, len(s.Documents))
	for i, d := range s.Documents {
		out[i] = d.ID
	}
	return out
}

func TestQueryListener(t *testing.T) {
	Convey("Given a store with ceremonies", t, func() {
		ctx := context.Background()
		s := New()
		t0 := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
		So(s.Set("ceremonies/2024", map[string]any{"name": "96th", "year": "2024", "date": t0.AddDate(-1, 0, 0), "hidden": false}), ShouldBeNil)
		So(s.Set("ceremonies/2025", map[string]any{"name": "97th", "year": "2025", "date": t0, "hidden": false}), ShouldBeNil)

		q := store.Collection("ceremonies").Where("hidden", store.Equal, false).OrderBy("date", true)
		l, err := s.Listen(ctx, q)
		So(err, ShouldBeNil)
		defer l.Stop()

		Convey("The first Next returns the initial ordered result", func() {
			snap, err := l.Next()
			So(err, ShouldBeNil)
			So(ids(snap), ShouldResemble, []string{"2025", "2024"})

			var c ceremony
			So(snap.Documents[0].DataTo(&c), ShouldBeNil)
			So(c.Name, ShouldEqual, "97th")
			So(c.Date.Equal(t0), ShouldBeTrue)

			Convey("A matching write produces a new full snapshot", func() {
				So(s.Set("ceremonies/2026", map[string]any{"name": "98th", "year": "2026", "date": t0.AddDate(1, 0, 0), "hidden": false}), ShouldBeNil)
				snap, err := l.Next()
				So(err, ShouldBeNil)
				So(ids(snap), ShouldResemble, []string{"2026", "2025", "2024"})
			})

			Convey("Hiding a document removes it", func() {
				So(s.Update("ceremonies/2024", map[string]any{"hidden": true}), ShouldBeNil)
				snap, err := l.Next()
				So(err, ShouldBeNil)
				So(ids(snap), ShouldResemble, []string{"2025"})
			})

			Convey("Writes outside the result do not notify", func() {
				So(s.Set("categories/x", map[string]any{"name": "x"}), ShouldBeNil)
				So(s.Set("ceremonies/2025", map[string]any{"name": "97th", "year": "2025", "date": t0, "hidden": false}), ShouldBeNil)
				_, _, got := nextWithin(l, 50*time.Millisecond)
				So(got, ShouldBeFalse)
			})

			Convey("Pending snapshots are conflated to the latest", func() {
				So(s.Update("ceremonies/2024", map[string]any{"name": "a"}), ShouldBeNil)
				So(s.Update("ceremonies/2024", map[string]any{"name": "b"}), ShouldBeNil)
				snap, err := l.Next()
				So(err, ShouldBeNil)
				var c ceremony
				So(snap.Documents[1].DataTo(&c), ShouldBeNil)
				So(c.Name, ShouldEqual, "b")
				_, _, got := nextWithin(l, 50*time.Millisecond)
				So(got, ShouldBeFalse)
			})
		})

		Convey("Stop unblocks Next and releases the listener", func() {
			_, _ = l.Next()
			done := make(chan error, 1)
			go func() {
				_, err := l.Next()
				done <- err
			}()
			l.Stop()
			l.Stop()
			So(errors.Is(<-done, store.ErrStopped), ShouldBeTrue)
			So(s.OpenListeners(), ShouldEqual, 0)
		})
	})
}

func TestListenerContext(t *testing.T) {
	Convey("Given a listener bound to a cancellable context", t, func() {
		s := New()
		ctx, cancel := context.WithCancel(context.Background())
		l, err := s.Listen(ctx, store.Collection("ceremonies"))
		So(err, ShouldBeNil)
		So(s.OpenListeners(), ShouldEqual, 1)

		Convey("Cancelling the context stops it", func() {
			cancel()
			So(func() bool {
				deadline := time.Now().Add(time.Second)
				for time.Now().Before(deadline) {
					if s.OpenListeners() == 0 {
						return true
					}
					time.Sleep(5 * time.Millisecond)
				}
				return false
			}(), ShouldBeTrue)
			_, err := l.Next()
			So(errors.Is(err, store.ErrStopped), ShouldBeTrue)
		})
	})
}

func TestCollectionGroup(t *testing.T) {
	Convey("Given participants under two competitions", t, func() {
		ctx := context.Background()
		s := New()
		So(s.Set("competitions/c1/participants/u1", map[string]any{"odUserId": "u1", "score": 3}), ShouldBeNil)
		So(s.Set("competitions/c2/participants/u1", map[string]any{"odUserId": "u1", "score": 1}), ShouldBeNil)
		So(s.Set("competitions/c2/participants/u2", map[string]any{"odUserId": "u2", "score": 9}), ShouldBeNil)

		Convey("A group query finds the user's rows with their parents", func() {
			l, err := s.Listen(ctx, store.CollectionGroup("participants").Where("odUserId", store.Equal, "u1"))
			So(err, ShouldBeNil)
			defer l.Stop()
			snap, err := l.Next()
			So(err, ShouldBeNil)
			So(snap.Documents, ShouldHaveLength, 2)
			parents := []string{snap.Documents[0].ParentID, snap.Documents[1].ParentID}
			So(parents, ShouldResemble, []string{"c1", "c2"})
		})

		Convey("A plain collection query stays inside one parent", func() {
			l, err := s.Listen(ctx, store.Collection("competitions/c2/participants").OrderBy("score", true).Limit(1))
			So(err, ShouldBeNil)
			defer l.Stop()
			snap, err := l.Next()
			So(err, ShouldBeNil)
			So(ids(snap), ShouldResemble, []string{"u2"})
		})

		Convey("Invalid collection paths are rejected", func() {
			_, err := s.Listen(ctx, store.Collection("competitions/c2"))
			So(errors.Is(err, store.ErrInvalidPath), ShouldBeTrue)
		})
	})
}

func TestFilters(t *testing.T) {
	Convey("Given numeric, string and missing fields", t, func() {
		s := New()
		_ = s.Set("items/a", map[string]any{"n": 1, "s": "a"})
		_ = s.Set("items/b", map[string]any{"n": 2.5, "s": "b"})
		_ = s.Set("items/c", map[string]any{"s": "c"})

		run := func(q store.Query) []string {
			r := s.runQuery(q)
			out := make([]string, len(r.entries))
			for i, e := range r.entries {
				out[i] = e.path
			}
			return out
		}

		So(run(store.Collection("items").Where("n", store.GreaterEqual, 2)), ShouldResemble, []string{"items/b"})
		So(run(store.Collection("items").Where("n", store.Less, 3)), ShouldResemble, []string{"items/a", "items/b"})
		So(run(store.Collection("items").Where("n", store.NotEqual, 1)), ShouldResemble, []string{"items/b"})
		So(run(store.Collection("items").Where("s", store.Greater, "a")), ShouldResemble, []string{"items/b", "items/c"})
		So(run(store.Collection("items").OrderBy("n", true)), ShouldResemble, []string{"items/b", "items/a"})
	})
}

func TestDocumentListener(t *testing.T) {
	Convey("Given a document listener", t, func() {
		ctx := context.Background()
		s := New()
		l, err := s.ListenDocument(ctx, "competitions/c1")
		So(err, ShouldBeNil)
		defer l.Stop()

		Convey("A missing document reports not existing", func() {
			snap, err := l.Next()
			So(err, ShouldBeNil)
			So(snap.Exists, ShouldBeFalse)

			Convey("Creating then deleting it is observed", func() {
				So(s.Set("competitions/c1", map[string]any{"name": "Office pool"}), ShouldBeNil)
				snap, err := l.Next()
				So(err, ShouldBeNil)
				So(snap.Exists, ShouldBeTrue)
				So(snap.Documents[0].ID, ShouldEqual, "c1")

				So(s.Delete("competitions/c1"), ShouldBeNil)
				snap, err = l.Next()
				So(err, ShouldBeNil)
				So(snap.Exists, ShouldBeFalse)
			})
		})

		Convey("Odd paths are rejected", func() {
			_, err := s.ListenDocument(ctx, "competitions")
			So(errors.Is(err, store.ErrInvalidPath), ShouldBeTrue)
		})
	})
}

func TestWrites(t *testing.T) {
	Convey("Given an empty store", t, func() {
		s := New()

		Convey("Update of a missing document fails", func() {
			err := s.Update("users/u1", map[string]any{"displayName": "x"})
			So(errors.Is(err, store.ErrNotFound), ShouldBeTrue)
		})

		Convey("Stored maps are copies", func() {
			data := map[string]any{"displayName": "x"}
			So(s.Set("users/u1", data), ShouldBeNil)
			data["displayName"] = "y"
			got, ok := s.Get("users/u1")
			So(ok, ShouldBeTrue)
			So(got["displayName"], ShouldEqual, "x")
		})
	})
}

func TestFixtures(t *testing.T) {
	Convey("Given a fixtures file", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "fixtures.yaml")
		So(os.WriteFile(path, []byte(`
documents:
  categories/best-picture:
    name: Best Picture
    displayOrder: 1
    nominees:
      - id: n1
        title: Anora
      - id: n2
        title: Conclave
  ceremonies/2025:
    name: 97th Academy Awards
    year: "2025"
    date: "2025-03-02T00:00:00Z"
`), 0o600), ShouldBeNil)

		s := New()
		n, err := s.LoadFixtures(path)
		So(err, ShouldBeNil)
		So(n, ShouldEqual, 2)

		Convey("Nested records decode", func() {
			l, err := s.ListenDocument(context.Background(), "categories/best-picture")
			So(err, ShouldBeNil)
			defer l.Stop()
			snap, err := l.Next()
			So(err, ShouldBeNil)
			var c category
			So(snap.Documents[0].DataTo(&c), ShouldBeNil)
			So(c.DisplayOrder, ShouldEqual, 1)
			So(c.Nominees, ShouldHaveLength, 2)
			So(c.Nominees[1].Title, ShouldEqual, "Conclave")
		})

		Convey("Timestamps are stored as times", func() {
			got, _ := s.Get("ceremonies/2025")
			_, isTime := got["date"].(time.Time)
			So(isTime, ShouldBeTrue)
			So(got["year"], ShouldEqual, "2025")
		})

		Convey("A file without documents is rejected", func() {
			_, err := s.LoadFixturesBytes([]byte("other: 1\n"))
			So(err, ShouldNotBeNil)
		})
	})
}

func TestDecodeFailure(t *testing.T) {
	Convey("A field of the wrong type fails to decode", t, func() {
		var c category
		err := decode(map[string]any{"displayOrder": "first"}, &c)
		So(err, ShouldNotBeNil)
	})
}
