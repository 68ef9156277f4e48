// Package rpc calls the backend's named remote procedures.
//
// Requests use the callable function wire format: a POST of {"data": ...}
// answered by {"result": ...} or {"error": {"status", "message"}}. The
// caller's ID token is sent as a bearer credential. Calls are never retried
// here; the caller decides.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okian/awards/internal/domain/model"
	"github.com/okian/awards/internal/identity"
	"github.com/okian/awards/pkg/logger"
	"github.com/okian/awards/pkg/metrics"
)

const (
	defaultTimeout  = 15 * time.Second
	maxResponseSize = 1 << 20
)

// Client invokes remote procedures for the user in the call context.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	log     logger.Logger
}

// New creates a client posting to baseURL/{procedure}.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
		timeout: defaultTimeout,
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

type outcome struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
}

// call posts payload to procedure and decodes the result object into out.
// requireSuccess makes a result without "success": true a failure with
// fallback as its message.
func (c *Client) call(ctx context.Context, procedure string, payload, out any, requireSuccess bool, fallback string) (err error) {
	start := time.Now()
	defer func() {
		metrics.RecordRPC(procedure, outcomeLabel(err), float64(time.Since(start).Milliseconds()))
	}()

	user, ok := identity.FromContext(ctx)
	if !ok || user.Token == "" {
		return ErrUnauthenticated
	}

	if payload == nil {
		payload = struct{}{}
	}
	body, err := json.Marshal(map[string]any{"data": payload})
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", procedure, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+procedure, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: %w", procedure, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+user.Token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", procedure, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%s: read response: %w", procedure, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%s: %w", procedure, ErrInvalidResponse)
	}
	if env.Error != nil {
		if env.Error.Status == "UNAUTHENTICATED" || resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%s: %w: %s", procedure, ErrUnauthenticated, env.Error.Message)
		}
		return &OperationError{Procedure: procedure, Message: env.Error.Message}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %w", procedure, ErrInvalidResponse)
	}
	if !isObject(env.Result) {
		// Fire-and-forget procedures may return nothing.
		if out == nil && !requireSuccess {
			return nil
		}
		return fmt.Errorf("%s: %w", procedure, ErrInvalidResponse)
	}

	var o outcome
	if err := json.Unmarshal(env.Result, &o); err != nil {
		return fmt.Errorf("%s: %w", procedure, ErrInvalidResponse)
	}
	if (o.Success != nil && !*o.Success) || (requireSuccess && o.Success == nil) {
		msg := o.Message
		if msg == "" {
			msg = fallback
		}
		return &OperationError{Procedure: procedure, Message: msg}
	}

	if out != nil {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("%s: %w", procedure, ErrInvalidResponse)
		}
	}
	c.log.Debug(ctx, "procedure succeeded", logger.String("procedure", procedure), logger.Duration("took", time.Since(start)))
	return nil
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func outcomeLabel(err error) string {
	var opErr *OperationError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &opErr):
		return "failed"
	case errors.Is(err, ErrInvalidResponse):
		return "invalid_response"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	default:
		return "transport"
	}
}

// CreateCompetitionResult is returned by CreateCompetition.
type CreateCompetitionResult struct {
	CompetitionID string `json:"competitionId"`
	InviteCode    string `json:"inviteCode"`
}

// CreateCompetition creates a competition owned by the caller.
func (c *Client) CreateCompetition(ctx context.Context, name, ceremonyYear, event string) (CreateCompetitionResult, error) {
	var out CreateCompetitionResult
	err := c.call(ctx, "createCompetition", map[string]any{
		"name":         name,
		"ceremonyYear": ceremonyYear,
		"event":        event,
	}, &out, false, "Failed to create competition")
	return out, err
}

// JoinCompetitionResult is returned by JoinCompetition.
type JoinCompetitionResult struct {
	CompetitionID   string `json:"competitionId"`
	CompetitionName string `json:"competitionName"`
}

// JoinCompetition joins the competition with the given invite code.
func (c *Client) JoinCompetition(ctx context.Context, code string) (JoinCompetitionResult, error) {
	var out JoinCompetitionResult
	err := c.call(ctx, "joinCompetition", map[string]any{
		"code": model.NormalizeInviteCode(code),
	}, &out, false, "Failed to join competition")
	return out, err
}

// LeaveCompetition removes the caller from a competition.
func (c *Client) LeaveCompetition(ctx context.Context, competitionID string) error {
	return c.call(ctx, "leaveCompetition", map[string]any{
		"competitionId": competitionID,
	}, nil, true, "Failed to leave competition")
}

// SetInactiveResult is returned by SetCompetitionInactive.
type SetInactiveResult struct {
	Status model.CompetitionStatus `json:"status"`
}

// SetCompetitionInactive toggles a competition the caller owns between
// open and inactive.
func (c *Client) SetCompetitionInactive(ctx context.Context, competitionID string, inactive bool) (SetInactiveResult, error) {
	var out SetInactiveResult
	err := c.call(ctx, "setCompetitionInactive", map[string]any{
		"competitionId": competitionID,
		"inactive":      inactive,
	}, &out, false, "Failed to update competition")
	return out, err
}

// CastVoteResult is returned by CastVote.
type CastVoteResult struct {
	IsUpdate     bool   `json:"isUpdate"`
	CategoryName string `json:"categoryName"`
	NomineeName  string `json:"nomineeName"`
}

// CastVote records a vote in one competition.
func (c *Client) CastVote(ctx context.Context, competitionID, categoryID, nomineeID string) (CastVoteResult, error) {
	var out CastVoteResult
	err := c.call(ctx, "castVote", map[string]any{
		"competitionId": competitionID,
		"categoryId":    categoryID,
		"nomineeId":     nomineeID,
	}, &out, false, "Failed to cast vote")
	return out, err
}

// CastCeremonyVoteResult is returned by CastCeremonyVote.
type CastCeremonyVoteResult struct {
	CategoryName        string `json:"categoryName"`
	NomineeName         string `json:"nomineeName"`
	CompetitionsUpdated int    `json:"competitionsUpdated"`
}

// CastCeremonyVote records a vote in every open competition of a ceremony
// the caller belongs to.
func (c *Client) CastCeremonyVote(ctx context.Context, ceremonyYear, event, categoryID, nomineeID string) (CastCeremonyVoteResult, error) {
	payload := map[string]any{
		"ceremonyYear": ceremonyYear,
		"categoryId":   categoryID,
		"nomineeId":    nomineeID,
	}
	if event != "" {
		payload["event"] = event
	}
	var out CastCeremonyVoteResult
	err := c.call(ctx, "castCeremonyVote", payload, &out, false, "Failed to cast vote")
	return out, err
}

// UpdateFCMToken registers a push token for the caller.
func (c *Client) UpdateFCMToken(ctx context.Context, token string) error {
	return c.call(ctx, "updateFcmToken", map[string]any{"token": token}, nil, false, "Failed to update token")
}

// DeleteAccount removes the caller's account data.
func (c *Client) DeleteAccount(ctx context.Context) error {
	return c.call(ctx, "deleteAccount", nil, nil, true, "Failed to delete account data")
}
