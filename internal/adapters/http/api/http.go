// Package api exposes the query service over HTTP: health and stats
// endpoints, the procedure endpoints and the websocket stream gateway.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/awards/internal/adapters/rpc"
	service "github.com/okian/awards/internal/app"
	"github.com/okian/awards/internal/domain/model"
	"github.com/okian/awards/internal/identity"
	"github.com/okian/awards/internal/stream"
)

// Queries are the live streams the gateway can subscribe to.
type Queries interface {
	Ceremonies(ctx context.Context) *stream.Stream[[]model.Ceremony]
	Categories(ctx context.Context, year, event string) *stream.Stream[[]model.Category]
	MyCompetitions(ctx context.Context) *stream.Stream[[]model.Competition]
	Participants(ctx context.Context, competitionID string) *stream.Stream[[]model.Participant]
	MyVotes(ctx context.Context, competitionID string) *stream.Stream[[]model.Vote]
	MyCeremonyVotes(ctx context.Context, year, event string) *stream.Stream[map[string]model.Vote]
	MyCategoryVote(ctx context.Context, year, event, categoryID string) *stream.Stream[*model.Vote]
	Profile(ctx context.Context) *stream.Stream[*model.AppUser]
}

// Commands are the write operations exposed as POST endpoints.
type Commands interface {
	CreateCompetition(ctx context.Context, name, year, event string) (rpc.CreateCompetitionResult, error)
	JoinCompetition(ctx context.Context, code string) (rpc.JoinCompetitionResult, error)
	LeaveCompetition(ctx context.Context, competitionID string) error
	SetCompetitionInactive(ctx context.Context, competitionID string, inactive bool) (rpc.SetInactiveResult, error)
	CastVote(ctx context.Context, competitionID, categoryID, nomineeID string) (rpc.CastVoteResult, error)
	CastCeremonyVote(ctx context.Context, year, event, categoryID, nomineeID string) (service.CeremonyVoteResult, error)
}

// Dependencies required by HTTP handlers. *service.Service implements it.
type Dependencies interface {
	Queries
	Commands
	StatsProvider
}

var _ Dependencies = (*service.Service)(nil)

// Server wires HTTP routes for the gateway.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	procedureHandler *ProcedureHandler
	gateway          *Gateway
	verifier         identity.Verifier
}

// NewServer creates a new API server with all handlers. Callers are
// authenticated with verifier.
func NewServer(deps Dependencies, verifier identity.Verifier, opts ...Option) *Server {
	s := newSettings(opts)
	gw := NewGateway(deps, verifier, opts...)
	return &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(deps, gw),
		procedureHandler: NewProcedureHandler(deps, s.logger),
		gateway:          gw,
		verifier:         verifier,
	}
}

// Gateway returns the websocket gateway.
func (s *Server) Gateway() *Gateway { return s.gateway }

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/ws", s.gateway.HandleWS)

	p := s.procedureHandler
	mux.HandleFunc("/votes/ceremony", MetricsMiddleware(s.authenticate(p.HandleCastCeremonyVote), "votes_ceremony"))
	mux.HandleFunc("/votes", MetricsMiddleware(s.authenticate(p.HandleCastVote), "votes"))
	mux.HandleFunc("/competitions", MetricsMiddleware(s.authenticate(p.HandleCreateCompetition), "competitions"))
	mux.HandleFunc("/competitions/join", MetricsMiddleware(s.authenticate(p.HandleJoinCompetition), "competitions_join"))
	mux.HandleFunc("/competitions/leave", MetricsMiddleware(s.authenticate(p.HandleLeaveCompetition), "competitions_leave"))
	mux.HandleFunc("/competitions/inactive", MetricsMiddleware(s.authenticate(p.HandleSetInactive), "competitions_inactive"))
}

// authenticate resolves the caller and stores it in the request context.
func (s *Server) authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := verify(r, s.verifier)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthenticated", err)
			return
		}
		next(w, r.WithContext(identity.WithUser(r.Context(), user)))
	}
}

// verify checks the bearer token, falling back to the token query parameter
// browsers use for websocket upgrades.
func verify(r *http.Request, v identity.Verifier) (identity.User, error) {
	token := identity.BearerToken(r.Header.Get("Authorization"))
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return identity.User{}, ErrUnauthorized
	}
	user, err := v.Verify(r.Context(), token)
	if err != nil {
		return identity.User{}, errors.Join(ErrUnauthorized, err)
	}
	return user, nil
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// classify maps service and procedure errors to a status and error code.
func classify(err error) (int, string) {
	var opErr *rpc.OperationError
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrUnauthenticated),
		errors.Is(err, rpc.ErrUnauthenticated),
		errors.Is(err, identity.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.As(err, &opErr):
		return http.StatusUnprocessableEntity, "operation_failed"
	case errors.Is(err, rpc.ErrInvalidResponse):
		return http.StatusBadGateway, "invalid_response"
	case errors.Is(err, service.ErrNoProcedures):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
