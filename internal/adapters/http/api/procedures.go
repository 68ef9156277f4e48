package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/okian/awards/pkg/logger"
)

// ProcedureHandler exposes the write operations as JSON POST endpoints.
type ProcedureHandler struct {
	deps Commands
	log  logger.Logger
}

// NewProcedureHandler creates a new procedure handler.
func NewProcedureHandler(deps Commands, log logger.Logger) *ProcedureHandler {
	return &ProcedureHandler{deps: deps, log: log}
}

type ceremonyVoteRequest struct {
	CeremonyYear string `json:"ceremonyYear"`
	Event        string `json:"event"`
	CategoryID   string `json:"categoryId"`
	NomineeID    string `json:"nomineeId"`
}

type voteRequest struct {
	CompetitionID string `json:"competitionId"`
	CategoryID    string `json:"categoryId"`
	NomineeID     string `json:"nomineeId"`
}

type createCompetitionRequest struct {
	Name         string `json:"name"`
	CeremonyYear string `json:"ceremonyYear"`
	Event        string `json:"event"`
}

type joinRequest struct {
	Code string `json:"code"`
}

type competitionRequest struct {
	CompetitionID string `json:"competitionId"`
	Inactive      bool   `json:"inactive"`
}

type ackResponse struct {
	Status string `json:"status"`
}

// validator is implemented by every request body.
type validator interface {
	validate() error
}

func (r ceremonyVoteRequest) validate() error {
	return present("ceremonyYear", r.CeremonyYear, "categoryId", r.CategoryID, "nomineeId", r.NomineeID)
}

func (r voteRequest) validate() error {
	return present("competitionId", r.CompetitionID, "categoryId", r.CategoryID, "nomineeId", r.NomineeID)
}

func (r createCompetitionRequest) validate() error {
	return present("name", r.Name, "ceremonyYear", r.CeremonyYear)
}

func (r joinRequest) validate() error {
	return present("code", r.Code)
}

func (r competitionRequest) validate() error {
	return present("competitionId", r.CompetitionID)
}

// present takes name/value pairs and reports the first blank value.
func present(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return fmt.Errorf("%w: missing %s", ErrBadRequest, pairs[i])
		}
	}
	return nil
}

// HandleCastCeremonyVote handles POST /votes/ceremony. The response carries
// whether the vote was observed on the read side before the timeout.
func (h *ProcedureHandler) HandleCastCeremonyVote(w http.ResponseWriter, r *http.Request) {
	var req ceremonyVoteRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.deps.CastCeremonyVote(r.Context(), req.CeremonyYear, req.Event, req.CategoryID, req.NomineeID)
	h.respond(w, r, "castCeremonyVote", res, err)
}

// HandleCastVote handles POST /votes.
func (h *ProcedureHandler) HandleCastVote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.deps.CastVote(r.Context(), req.CompetitionID, req.CategoryID, req.NomineeID)
	h.respond(w, r, "castVote", res, err)
}

// HandleCreateCompetition handles POST /competitions.
func (h *ProcedureHandler) HandleCreateCompetition(w http.ResponseWriter, r *http.Request) {
	var req createCompetitionRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.deps.CreateCompetition(r.Context(), req.Name, req.CeremonyYear, req.Event)
	h.respond(w, r, "createCompetition", res, err)
}

// HandleJoinCompetition handles POST /competitions/join.
func (h *ProcedureHandler) HandleJoinCompetition(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.deps.JoinCompetition(r.Context(), req.Code)
	h.respond(w, r, "joinCompetition", res, err)
}

// HandleLeaveCompetition handles POST /competitions/leave.
func (h *ProcedureHandler) HandleLeaveCompetition(w http.ResponseWriter, r *http.Request) {
	var req competitionRequest
	if !h.decode(w, r, &req) {
		return
	}
	err := h.deps.LeaveCompetition(r.Context(), req.CompetitionID)
	h.respond(w, r, "leaveCompetition", ackResponse{Status: "left"}, err)
}

// HandleSetInactive handles POST /competitions/inactive.
func (h *ProcedureHandler) HandleSetInactive(w http.ResponseWriter, r *http.Request) {
	var req competitionRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.deps.SetCompetitionInactive(r.Context(), req.CompetitionID, req.Inactive)
	h.respond(w, r, "setCompetitionInactive", res, err)
}

func (h *ProcedureHandler) decode(w http.ResponseWriter, r *http.Request, req validator) bool {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return false
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return false
	}
	return true
}

func (h *ProcedureHandler) respond(w http.ResponseWriter, r *http.Request, procedure string, res any, err error) {
	if err != nil {
		status, code := classify(err)
		if status >= http.StatusInternalServerError {
			h.log.Error(r.Context(), "procedure failed", logger.String("procedure", procedure), logger.Error(err))
		}
		writeError(w, status, code, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
