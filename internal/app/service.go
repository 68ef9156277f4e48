// Package service provides the reactive query service the gateway exposes:
// live, already sorted and filtered views of ceremonies, categories,
// competitions, participants and votes, plus the write procedures.
package service

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/awards/internal/adapters/rpc"
	"github.com/okian/awards/internal/adapters/store"
	"github.com/okian/awards/internal/domain/model"
	"github.com/okian/awards/internal/identity"
	"github.com/okian/awards/internal/stream"
	"github.com/okian/awards/pkg/logger"
)

const (
	defaultMailboxSize    = 256
	defaultConfirmTimeout = 5 * time.Second
)

// Procedures are the remote write operations. rpc.Client implements it.
type Procedures interface {
	CreateCompetition(ctx context.Context, name, ceremonyYear, event string) (rpc.CreateCompetitionResult, error)
	JoinCompetition(ctx context.Context, code string) (rpc.JoinCompetitionResult, error)
	LeaveCompetition(ctx context.Context, competitionID string) error
	SetCompetitionInactive(ctx context.Context, competitionID string, inactive bool) (rpc.SetInactiveResult, error)
	CastVote(ctx context.Context, competitionID, categoryID, nomineeID string) (rpc.CastVoteResult, error)
	CastCeremonyVote(ctx context.Context, ceremonyYear, event, categoryID, nomineeID string) (rpc.CastCeremonyVoteResult, error)
	UpdateFCMToken(ctx context.Context, token string) error
	DeleteAccount(ctx context.Context) error
}

var _ Procedures = (*rpc.Client)(nil)

// Service is the process-scoped reactive query service.
type Service struct {
	mu sync.RWMutex

	// Dependencies
	backend store.Backend
	ids     identity.Source
	procs   Procedures

	// Configuration
	eventPartition   bool
	mailboxSize      int
	confirmTimeout   time.Duration
	competitionOrder func(a, b model.Competition) bool

	// State
	started    bool
	eventTypes *EventTypeCache
	opened     atomic.Int64
	confirmed  atomic.Int64
	unseen     atomic.Int64

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithProcedures sets the remote procedure client.
func WithProcedures(p Procedures) Option {
	return func(s *Service) {
		if p != nil {
			s.procs = p
		}
	}
}

// WithEventPartition toggles the optional event field. When off, every
// record belongs to every event.
func WithEventPartition(enabled bool) Option {
	return func(s *Service) {
		s.eventPartition = enabled
	}
}

// WithMailboxSize bounds each aggregate stream's pending messages.
func WithMailboxSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.mailboxSize = size
		}
	}
}

// WithVoteConfirmTimeout caps how long CastCeremonyVote waits to observe its
// vote. Zero disables the wait.
func WithVoteConfirmTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.confirmTimeout = d
		}
	}
}

// WithCompetitionOrder sets the order MyCompetitions emits in.
func WithCompetitionOrder(less func(a, b model.Competition) bool) Option {
	return func(s *Service) {
		if less != nil {
			s.competitionOrder = less
		}
	}
}

// New constructs a Service reading from backend, resolving the caller with ids.
func New(backend store.Backend, ids identity.Source, opts ...Option) *Service {
	s := &Service{
		backend:          backend,
		ids:              ids,
		procs:            unavailable{},
		eventPartition:   true,
		mailboxSize:      defaultMailboxSize,
		confirmTimeout:   defaultConfirmTimeout,
		competitionOrder: model.ByCreatedDesc,
		logger:           logger.Nop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.eventTypes = NewEventTypeCache(backend, s.logger)
	return s
}

// Start starts the process-scoped event type cache.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting query service...")
	s.eventTypes.Start(ctx)
	s.started = true
	s.logger.Info(ctx, "query service started",
		logger.Bool("eventPartition", s.eventPartition),
		logger.Int("mailboxSize", s.mailboxSize),
		logger.Duration("voteConfirmTimeout", s.confirmTimeout),
	)
	return nil
}

// Stop releases process-scoped resources. Streams handed to consumers are
// owned by them and must be cancelled by them.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(context.Background(), "stopping query service...")
	s.eventTypes.Stop()
	s.started = false
	s.logger.Info(context.Background(), "query service stopped")
}

// EventTypes returns the process-scoped event type cache.
func (s *Service) EventTypes() *EventTypeCache {
	return s.eventTypes
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":            s.started,
		"eventPartition":     s.eventPartition,
		"mailboxSize":        s.mailboxSize,
		"voteConfirmTimeout": s.confirmTimeout.String(),
		"streamsOpened":      s.opened.Load(),
		"votesConfirmed":     s.confirmed.Load(),
		"votesUnconfirmed":   s.unseen.Load(),
		"eventTypesLoaded":   s.eventTypes.Loaded(),
		"eventTypeCount":     len(s.eventTypes.List()),
	}
	if c, ok := s.backend.(interface{ OpenListeners() int }); ok {
		stats["openListeners"] = c.OpenListeners()
	}
	return stats
}

// event applies the partition setting to a requested event.
func (s *Service) event(event string) string {
	if !s.eventPartition {
		return ""
	}
	return event
}

func (s *Service) streamOpts(name string) []stream.Option {
	s.opened.Add(1)
	return []stream.Option{
		stream.WithName(name),
		stream.WithLogger(s.logger),
		stream.WithMailboxSize(s.mailboxSize),
	}
}

func (s *Service) sortCompetitions(comps []model.Competition) {
	sort.SliceStable(comps, func(i, j int) bool { return s.competitionOrder(comps[i], comps[j]) })
}

// unavailable rejects every procedure when no client is configured.
type unavailable struct{}

func (unavailable) CreateCompetition(context.Context, string, string, string) (rpc.CreateCompetitionResult, error) {
	return rpc.CreateCompetitionResult{}, ErrNoProcedures
}

func (unavailable) JoinCompetition(context.Context, string) (rpc.JoinCompetitionResult, error) {
	return rpc.JoinCompetitionResult{}, ErrNoProcedures
}

func (unavailable) LeaveCompetition(context.Context, string) error { return ErrNoProcedures }

func (unavailable) SetCompetitionInactive(context.Context, string, bool) (rpc.SetInactiveResult, error) {
	return rpc.SetInactiveResult{}, ErrNoProcedures
}

func (unavailable) CastVote(context.Context, string, string, string) (rpc.CastVoteResult, error) {
	return rpc.CastVoteResult{}, ErrNoProcedures
}

func (unavailable) CastCeremonyVote(context.Context, string, string, string, string) (rpc.CastCeremonyVoteResult, error) {
	return rpc.CastCeremonyVoteResult{}, ErrNoProcedures
}

func (unavailable) UpdateFCMToken(context.Context, string) error { return ErrNoProcedures }

func (unavailable) DeleteAccount(context.Context) error { return ErrNoProcedures }
