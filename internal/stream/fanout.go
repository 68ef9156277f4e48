package stream

import (
	"context"
	"errors"
	"maps"
	"reflect"
	"sync"

	"github.com/okian/awards/internal/adapters/mq/queue"
	"github.com/okian/awards/internal/adapters/mq/worker"
	"github.com/okian/awards/pkg/logger"
	"github.com/okian/awards/pkg/metrics"
)

// FanOutConfig wires a dynamic fan-out aggregator.
type FanOutConfig[K comparable, V, R any] struct {
	// Keys emits the current key set. The aggregator owns it.
	Keys *Stream[[]K]

	// Open starts the child stream for one key. It is called on the
	// aggregator goroutine; ctx ends when the key is removed.
	Open func(ctx context.Context, key K) *Stream[V]

	// Present reports whether a child value contributes to the output.
	// A child emitting a value that is not present (e.g. its document was
	// deleted) has its key dropped from the map passed to Merge. Nil means
	// every value is present.
	Present func(V) bool

	// Merge builds the output from the latest value of every reporting
	// child. It receives a copy it may keep.
	Merge func(map[K]V) R
}

type msgKind int

const (
	msgKeys msgKind = iota
	msgKeysErr
	msgValue
	msgChildErr
)

// message is one mailbox entry. Child messages carry the generation of the
// child that sent them so late messages from a removed child are ignored.
type message[K comparable, V any] struct {
	kind  msgKind
	keys  []K
	key   K
	gen   uint64
	value V
	err   error
}

type child[V any] struct {
	gen    uint64
	stream *Stream[V]
	cancel context.CancelFunc
}

// FanOut maintains one child stream per key of cfg.Keys and emits
// cfg.Merge over their latest values.
//
// Every state change runs on a single goroutine fed by a bounded mailbox:
// key set changes, child emissions and child failures are applied in the
// order they arrive and each emission reflects all earlier messages.
//
//   - A new key set opens children for added keys and cancels children of
//     removed keys. Removal emits when it changes the output. An empty set
//     emits an empty result at once. A set equal to the current one is
//     ignored.
//   - Every child emission produces exactly one output emission.
//   - A failing child is logged, counted and removed from the output; its
//     siblings keep running. It is not reopened until its key leaves and
//     re-enters the key set.
//   - A failing key stream terminates the aggregate with that error.
//
// Cancel tears down every child and the key stream before returning.
func FanOut[K comparable, V, R any](ctx context.Context, cfg FanOutConfig[K, V, R], opts ...Option) *Stream[R] {
	s := newSettings("fanout", opts)
	return start(ctx, s, func(ctx context.Context, emit func(R) error) error {
		f := &fanOut[K, V, R]{
			cfg:      cfg,
			name:     s.name,
			log:      s.logger.Named("fanout").With(logger.String("stream", s.name)),
			emitOut:  emit,
			children: make(map[K]*child[V]),
			values:   make(map[K]V),
			keys:     make(map[K]struct{}),
			mailbox:  queue.NewInMemoryQueue[message[K, V]](queue.WithCapacity(s.mailboxSize), queue.WithName(s.name)),
		}
		return f.run(ctx)
	})
}

type fanOut[K comparable, V, R any] struct {
	cfg     FanOutConfig[K, V, R]
	name    string
	log     logger.Logger
	emitOut func(R) error
	mailbox *queue.InMemoryQueue[message[K, V]]

	// Owned by the aggregator goroutine.
	gen      uint64
	children map[K]*child[V]
	values   map[K]V
	keys     map[K]struct{}
	seenKeys bool
	emitted  bool
	last     R
	err      error

	wg sync.WaitGroup
}

func (f *fanOut[K, V, R]) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer f.teardown(cancel)

	f.wg.Add(1)
	go f.forwardKeys(ctx)

	w := worker.New[message[K, V]](f.mailbox, f.handle, worker.WithName(f.name), worker.WithLogger(f.log))
	w.Run(ctx)

	if f.err != nil {
		return f.err
	}
	return ErrCanceled
}

func (f *fanOut[K, V, R]) teardown(cancel context.CancelFunc) {
	cancel()
	for k := range f.children {
		f.closeChild(k)
	}
	f.cfg.Keys.Cancel()
	_ = f.mailbox.Close()
	f.wg.Wait()
}

func (f *fanOut[K, V, R]) forwardKeys(ctx context.Context) {
	defer f.wg.Done()
	for {
		keys, err := f.cfg.Keys.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				_ = f.mailbox.Put(ctx, message[K, V]{kind: msgKeysErr, err: err})
			}
			return
		}
		if err := f.mailbox.Put(ctx, message[K, V]{kind: msgKeys, keys: keys}); err != nil {
			return
		}
	}
}

func (f *fanOut[K, V, R]) forwardChild(ctx context.Context, key K, c *child[V]) {
	defer f.wg.Done()
	for {
		v, err := c.stream.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				_ = f.mailbox.Put(ctx, message[K, V]{kind: msgChildErr, key: key, gen: c.gen, err: err})
			}
			return
		}
		if err := f.mailbox.Put(ctx, message[K, V]{kind: msgValue, key: key, gen: c.gen, value: v}); err != nil {
			return
		}
	}
}

func (f *fanOut[K, V, R]) handle(ctx context.Context, m message[K, V]) error {
	var err error
	switch m.kind {
	case msgKeys:
		err = f.onKeys(ctx, m.keys)
	case msgKeysErr:
		f.err = m.err
		return worker.ErrStop
	case msgValue:
		err = f.onValue(m)
	case msgChildErr:
		err = f.onChildErr(ctx, m)
	}
	if err != nil {
		f.err = err
		return worker.ErrStop
	}
	return nil
}

func (f *fanOut[K, V, R]) onKeys(ctx context.Context, list []K) error {
	next := make(map[K]struct{}, len(list))
	for _, k := range list {
		next[k] = struct{}{}
	}
	if f.seenKeys && maps.Equal(next, f.keys) {
		return nil
	}
	f.seenKeys = true

	removed := 0
	for k := range f.keys {
		if _, ok := next[k]; ok {
			continue
		}
		f.closeChild(k)
		delete(f.values, k)
		removed++
	}
	for k := range next {
		if _, ok := f.keys[k]; !ok {
			f.openChild(ctx, k)
		}
	}
	f.keys = next

	switch {
	case len(next) == 0:
		return f.emit()
	case removed > 0:
		return f.emitIfChanged()
	}
	return nil
}

func (f *fanOut[K, V, R]) onValue(m message[K, V]) error {
	if !f.current(m.key, m.gen) {
		return nil
	}
	if f.cfg.Present != nil && !f.cfg.Present(m.value) {
		delete(f.values, m.key)
	} else {
		f.values[m.key] = m.value
	}
	return f.emit()
}

func (f *fanOut[K, V, R]) onChildErr(ctx context.Context, m message[K, V]) error {
	if !f.current(m.key, m.gen) {
		return nil
	}
	f.closeChild(m.key)
	if errors.Is(m.err, ErrEnded) {
		return nil
	}
	delete(f.values, m.key)
	metrics.RecordFanOutChildError(f.name)
	f.log.Error(ctx, "child stream failed", logger.Any("key", m.key), logger.Error(m.err))
	return f.emitIfChanged()
}

func (f *fanOut[K, V, R]) current(key K, gen uint64) bool {
	c, ok := f.children[key]
	return ok && c.gen == gen
}

func (f *fanOut[K, V, R]) openChild(ctx context.Context, key K) {
	f.gen++
	cctx, cancel := context.WithCancel(ctx)
	c := &child[V]{gen: f.gen, stream: f.cfg.Open(cctx, key), cancel: cancel}
	f.children[key] = c
	metrics.UpdateFanOutChildren(f.name, 1)

	f.wg.Add(1)
	go f.forwardChild(cctx, key, c)
}

func (f *fanOut[K, V, R]) closeChild(key K) {
	c, ok := f.children[key]
	if !ok {
		return
	}
	delete(f.children, key)
	c.cancel()
	c.stream.Cancel()
	metrics.UpdateFanOutChildren(f.name, -1)
}

func (f *fanOut[K, V, R]) emit() error {
	r := f.cfg.Merge(maps.Clone(f.values))
	f.last, f.emitted = r, true
	return f.emitOut(r)
}

func (f *fanOut[K, V, R]) emitIfChanged() error {
	if !f.emitted {
		return nil
	}
	if reflect.DeepEqual(f.cfg.Merge(maps.Clone(f.values)), f.last) {
		return nil
	}
	return f.emit()
}
