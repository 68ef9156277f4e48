package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/okian/awards/internal/adapters/mq/queue"
	"github.com/okian/awards/internal/adapters/mq/worker"
	"github.com/okian/awards/internal/identity"
	"github.com/okian/awards/internal/stream"
	"github.com/okian/awards/pkg/logger"
	"github.com/okian/awards/pkg/metrics"
)

const maxMessageSize = 4096

// Client ops.
const (
	opSubscribe   = "subscribe"
	opUnsubscribe = "unsubscribe"
)

// Server frame types.
const (
	frameSnapshot = "snapshot"
	frameError    = "error"
	frameEnd      = "end"
)

// clientMessage is what a websocket client sends.
type clientMessage struct {
	Op     string            `json:"op"`
	ID     string            `json:"id"`
	Stream string            `json:"stream,omitempty"`
	Params map[string]string `json:"params,omitempty"`
}

// frame is what the gateway pushes. A snapshot always carries the full
// current value of the subscription.
type frame struct {
	Type   string `json:"type"`
	ID     string `json:"id,omitempty"`
	Stream string `json:"stream,omitempty"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Gateway serves live streams over websocket sessions. Each session owns
// its subscriptions; closing the socket cancels all of them.
type Gateway struct {
	deps     Queries
	verifier identity.Verifier
	upgrader websocket.Upgrader
	settings settings
	log      logger.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// NewGateway creates a websocket gateway over deps.
func NewGateway(deps Queries, verifier identity.Verifier, opts ...Option) *Gateway {
	s := newSettings(opts)
	return &Gateway{
		deps:     deps,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		settings: s,
		log:      s.logger.Named("gateway"),
		sessions: make(map[string]*session),
	}
}

// Sessions returns the number of open sessions.
func (g *Gateway) Sessions() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

// GetStats reports open sessions and their subscriptions.
func (g *Gateway) GetStats() map[string]any {
	g.mu.Lock()
	open := make([]*session, 0, len(g.sessions))
	for _, s := range g.sessions {
		open = append(open, s)
	}
	g.mu.Unlock()

	subs := 0
	for _, s := range open {
		s.mu.Lock()
		subs += len(s.subs)
		s.mu.Unlock()
	}
	return map[string]any{
		"wsSessions":      len(open),
		"wsSubscriptions": subs,
	}
}

// Close drops every open session.
func (g *Gateway) Close() {
	g.mu.Lock()
	open := make([]*session, 0, len(g.sessions))
	for _, s := range g.sessions {
		open = append(open, s)
	}
	g.mu.Unlock()

	for _, s := range open {
		s.abort()
	}
}

// HandleWS handles GET /ws. The caller authenticates before the upgrade.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	user, err := verify(r, g.verifier)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated", err)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}

	s := g.newSession(identity.WithUser(r.Context(), user), user, conn)
	g.mu.Lock()
	g.sessions[s.id] = s
	g.mu.Unlock()

	s.serve()

	g.mu.Lock()
	delete(g.sessions, s.id)
	g.mu.Unlock()
}

type subscription struct {
	id     string
	stream string
	cancel func()
}

type session struct {
	id   string
	user identity.User
	gw   *Gateway
	conn *websocket.Conn
	log  logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	outbox *queue.InMemoryQueue[frame]
	writer *worker.Worker[frame]

	mu   sync.Mutex
	subs map[string]*subscription
	wg   sync.WaitGroup

	closeOnce sync.Once
}

func (g *Gateway) newSession(ctx context.Context, user identity.User, conn *websocket.Conn) *session {
	ctx, cancel := context.WithCancel(ctx)
	s := &session{
		id:     uuid.NewString(),
		user:   user,
		gw:     g,
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		outbox: queue.NewInMemoryQueue[frame](queue.WithCapacity(g.settings.outboxSize), queue.WithName("ws-outbox")),
		subs:   make(map[string]*subscription),
	}
	s.log = g.log.With(logger.String("session", s.id), logger.String("user", user.ID))
	s.writer = worker.New[frame](s.outbox, s.write, worker.WithName("ws-writer"), worker.WithLogger(s.log))
	return s
}

// serve runs the read loop until the peer goes away or the session is
// aborted, then tears the session down.
func (s *session) serve() {
	metrics.UpdateWSSessions(1)
	defer metrics.UpdateWSSessions(-1)
	defer s.close()

	s.log.Info(s.ctx, "websocket session opened")
	go s.writer.Run(s.ctx)
	go s.ping()

	pongWait := s.gw.settings.pongWait
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && s.ctx.Err() == nil {
				s.log.Warn(s.ctx, "websocket read failed", logger.Error(err))
			}
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.send(frame{Type: frameError, Error: fmt.Errorf("%w: %w", ErrBadRequest, err).Error()})
			continue
		}
		s.handle(msg)
	}
}

func (s *session) handle(msg clientMessage) {
	switch msg.Op {
	case opSubscribe:
		if err := s.subscribe(msg); err != nil {
			s.send(frame{Type: frameError, ID: msg.ID, Stream: msg.Stream, Error: err.Error()})
		}
	case opUnsubscribe:
		s.unsubscribe(msg.ID)
	default:
		s.send(frame{Type: frameError, ID: msg.ID, Error: fmt.Sprintf("%s: %q", ErrUnknownOp, msg.Op)})
	}
}

func (s *session) subscribe(msg clientMessage) error {
	if msg.ID == "" {
		return fmt.Errorf("%w: missing id", ErrBadRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs == nil {
		return context.Canceled
	}
	if _, ok := s.subs[msg.ID]; ok {
		return fmt.Errorf("%w: %s", ErrSubscriptionExists, msg.ID)
	}
	sub, err := s.open(msg)
	if err != nil {
		return err
	}
	s.subs[msg.ID] = sub
	metrics.UpdateWSSubscriptions(1)
	s.log.Debug(s.ctx, "subscribed", logger.String("id", msg.ID), logger.String("stream", msg.Stream))
	return nil
}

func (s *session) unsubscribe(id string) {
	s.mu.Lock()
	sub, ok := s.subs[id]
	delete(s.subs, id)
	s.mu.Unlock()

	if ok {
		sub.cancel()
	}
}

// follow pumps st into the session outbox until it terminates. Only a
// stream that ends or fails on its own is reported to the client.
func follow[T any](s *session, id, name string, st *stream.Stream[T]) *subscription {
	sub := &subscription{id: id, stream: name, cancel: st.Cancel}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer metrics.UpdateWSSubscriptions(-1)

		for v := range st.Updates() {
			if !s.send(frame{Type: frameSnapshot, ID: id, Stream: name, Data: v}) {
				go st.Cancel()
			}
		}

		s.mu.Lock()
		if s.subs[id] == sub {
			delete(s.subs, id)
		}
		s.mu.Unlock()

		err := st.Err()
		switch {
		case errors.Is(err, stream.ErrCanceled):
		case errors.Is(err, stream.ErrEnded):
			s.send(frame{Type: frameEnd, ID: id, Stream: name})
		default:
			s.send(frame{Type: frameError, ID: id, Stream: name, Error: err.Error()})
		}
	}()
	return sub
}

// send queues f for the writer. A full outbox means the client is not
// keeping up; the session is dropped rather than letting frames pile up.
func (s *session) send(f frame) bool {
	if s.ctx.Err() != nil {
		return false
	}
	if s.outbox.Enqueue(f) {
		return true
	}
	if s.ctx.Err() == nil {
		metrics.RecordWSSlowConsumer()
		s.log.Warn(s.ctx, "dropping slow websocket consumer", logger.Int("outbox", s.outbox.Capacity()))
		s.abort()
	}
	return false
}

func (s *session) write(_ context.Context, f frame) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.gw.settings.writeTimeout))
	if err := s.conn.WriteJSON(f); err != nil {
		s.log.Warn(s.ctx, "websocket write failed", logger.Error(err))
		s.abort()
		return worker.ErrStop
	}
	return nil
}

func (s *session) ping() {
	interval := s.gw.settings.pongWait * 9 / 10
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.gw.settings.writeTimeout)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.abort()
				return
			}
		}
	}
}

// abort stops the session without waiting. The read loop then fails and
// serve finishes the teardown.
func (s *session) abort() {
	s.cancel()
	_ = s.conn.Close()
}

// close cancels every subscription, waits for their pumps and closes the
// socket.
func (s *session) close() {
	s.closeOnce.Do(func() {
		s.cancel()

		s.mu.Lock()
		subs := s.subs
		s.subs = nil
		s.mu.Unlock()

		for _, sub := range subs {
			sub.cancel()
		}
		s.wg.Wait()
		s.outbox.Close()

		ctx, cancel := context.WithTimeout(context.Background(), s.gw.settings.writeTimeout)
		defer cancel()
		_ = s.writer.Shutdown(ctx)
		_ = s.conn.Close()
		s.log.Info(ctx, "websocket session closed", logger.Int("subscriptions", len(subs)))
	})
}
