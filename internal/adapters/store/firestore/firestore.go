// Package firestore implements store.Backend over Cloud Firestore snapshot listeners.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/okian/awards/internal/adapters/store"
	"github.com/okian/awards/pkg/logger"
	"github.com/okian/awards/pkg/metrics"
)

// NewApp initialises a Firebase app for projectID. credentialsFile may be
// empty, in which case application default credentials are used.
func NewApp(ctx context.Context, projectID, credentialsFile string) (*firebase.App, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	return app, nil
}

// Backend adapts a Firestore client to store.Backend.
type Backend struct {
	client *firestore.Client
	log    logger.Logger
}

var _ store.Backend = (*Backend)(nil)

// Open creates a Backend from a Firebase app.
func Open(ctx context.Context, app *firebase.App, l logger.Logger) (*Backend, error) {
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return New(client, l), nil
}

// New wraps an existing client.
func New(client *firestore.Client, l logger.Logger) *Backend {
	if l == nil {
		l = logger.Nop()
	}
	return &Backend{client: client, log: l}
}

// Close releases the underlying client.
func (b *Backend) Close() error {
	return b.client.Close()
}

func (b *Backend) query(q store.Query) (firestore.Query, error) {
	var fq firestore.Query
	if q.Group {
		if q.Collection == "" || strings.Contains(q.Collection, "/") {
			return fq, fmt.Errorf("%w: collection group %q", store.ErrInvalidPath, q.Collection)
		}
		fq = b.client.CollectionGroup(q.Collection).Query
	} else {
		if !store.ValidCollectionPath(q.Collection) {
			return fq, fmt.Errorf("%w: collection %q", store.ErrInvalidPath, q.Collection)
		}
		fq = b.client.Collection(q.Collection).Query
	}
	for _, f := range q.Filters {
		fq = fq.Where(f.Field, string(f.Op), f.Value)
	}
	for _, o := range q.Orders {
		dir := firestore.Asc
		if o.Desc {
			dir = firestore.Desc
		}
		fq = fq.OrderBy(o.Field, dir)
	}
	if q.Max > 0 {
		fq = fq.Limit(q.Max)
	}
	return fq, nil
}

// Listen implements store.Backend.
func (b *Backend) Listen(ctx context.Context, q store.Query) (store.Listener, error) {
	fq, err := b.query(q)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	it := fq.Snapshots(ctx)
	l := &queryListener{base: newBase(ctx, cancel, "query", b.log.With(logger.String("query", q.String()))), it: it}
	return l, nil
}

// ListenDocument implements store.Backend.
func (b *Backend) ListenDocument(ctx context.Context, path string) (store.Listener, error) {
	if _, _, err := store.SplitDocumentPath(path); err != nil {
		return nil, err
	}
	ref := b.client.Doc(path)
	if ref == nil {
		return nil, fmt.Errorf("%w: %q", store.ErrInvalidPath, path)
	}
	ctx, cancel := context.WithCancel(ctx)
	it := ref.Snapshots(ctx)
	l := &docListener{base: newBase(ctx, cancel, "document", b.log.With(logger.String("path", path))), it: it}
	return l, nil
}

// base carries the shutdown plumbing shared by both listener kinds.
//
// The iterators' Stop must not run concurrently with Next, so Stop only
// cancels the listener context; the goroutine that observes the resulting
// error from Next releases the iterator.
type base struct {
	ctx      context.Context
	cancel   context.CancelFunc
	kind     string
	log      logger.Logger
	stopOnce sync.Once
	freeOnce sync.Once
}

func newBase(ctx context.Context, cancel context.CancelFunc, kind string, l logger.Logger) *base {
	metrics.RecordListenerOpened(kind)
	return &base{ctx: ctx, cancel: cancel, kind: kind, log: l}
}

func (b *base) Stop() {
	b.stopOnce.Do(func() {
		b.cancel()
		metrics.RecordListenerClosed(b.kind)
	})
}

// fail maps an iterator error and releases the iterator via free.
func (b *base) fail(err error, free func()) error {
	b.freeOnce.Do(free)
	if b.ctx.Err() != nil || errors.Is(err, iterator.Done) || status.Code(err) == codes.Canceled {
		b.Stop()
		return store.ErrStopped
	}
	metrics.RecordListenerError(b.kind)
	b.log.Warn(b.ctx, "listener failed", logger.Error(err))
	b.Stop()
	return fmt.Errorf("firestore %s listener: %w", b.kind, err)
}

type queryListener struct {
	*base
	it *firestore.QuerySnapshotIterator
}

func (l *queryListener) Next() (store.Snapshot, error) {
	if l.ctx.Err() != nil {
		return store.Snapshot{}, l.fail(l.ctx.Err(), l.it.Stop)
	}
	qs, err := l.it.Next()
	if err != nil {
		return store.Snapshot{}, l.fail(err, l.it.Stop)
	}
	docs, err := qs.Documents.GetAll()
	if err != nil {
		return store.Snapshot{}, l.fail(err, l.it.Stop)
	}
	out := make([]store.Document, 0, len(docs))
	for _, ds := range docs {
		out = append(out, document(ds))
	}
	return store.Snapshot{Documents: out, Exists: true}, nil
}

type docListener struct {
	*base
	it *firestore.DocumentSnapshotIterator
}

func (l *docListener) Next() (store.Snapshot, error) {
	if l.ctx.Err() != nil {
		return store.Snapshot{}, l.fail(l.ctx.Err(), l.it.Stop)
	}
	ds, err := l.it.Next()
	if status.Code(err) == codes.NotFound {
		return store.Snapshot{}, nil
	}
	if err != nil {
		return store.Snapshot{}, l.fail(err, l.it.Stop)
	}
	if !ds.Exists() {
		return store.Snapshot{}, nil
	}
	return store.Snapshot{Documents: []store.Document{document(ds)}, Exists: true}, nil
}

func document(ds *firestore.DocumentSnapshot) store.Document {
	return store.NewDocument(relativePath(ds.Ref.Path), ds.DataTo)
}

// relativePath strips the "projects/{p}/databases/{d}/documents/" prefix.
func relativePath(full string) string {
	const marker = "/documents/"
	if i := strings.Index(full, marker); i >= 0 {
		return full[i+len(marker):]
	}
	return full
}
