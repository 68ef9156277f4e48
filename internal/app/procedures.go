package service

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/awards/internal/adapters/rpc"
	"github.com/okian/awards/pkg/logger"
	"github.com/okian/awards/pkg/metrics"
)

// CeremonyVoteResult reports a ceremony vote and whether the vote was seen
// on the read side before the confirmation timeout.
type CeremonyVoteResult struct {
	rpc.CastCeremonyVoteResult
	Confirmed bool `json:"confirmed"`
}

// CastCeremonyVote casts a vote in every open competition of a ceremony and
// then waits, up to the confirmation timeout, for MyCategoryVote to report
// the chosen nominee. An unconfirmed vote is still a successful vote.
func (s *Service) CastCeremonyVote(ctx context.Context, year, event, categoryID, nomineeID string) (CeremonyVoteResult, error) {
	if _, ok := s.ids.UserID(ctx); !ok {
		return CeremonyVoteResult{}, ErrUnauthenticated
	}

	res, err := s.procs.CastCeremonyVote(ctx, year, s.event(event), categoryID, nomineeID)
	if err != nil {
		return CeremonyVoteResult{}, fmt.Errorf("cast ceremony vote: %w", err)
	}

	out := CeremonyVoteResult{CastCeremonyVoteResult: res}
	if s.confirmTimeout == 0 {
		return out, nil
	}

	start := time.Now()
	out.Confirmed = s.awaitVote(ctx, year, event, categoryID, nomineeID)
	if out.Confirmed {
		s.confirmed.Add(1)
		metrics.RecordVoteConfirmation("confirmed")
	} else {
		s.unseen.Add(1)
		metrics.RecordVoteConfirmation("timeout")
		s.logger.Warn(ctx, "ceremony vote not observed before timeout",
			logger.String("ceremonyYear", year),
			logger.String("categoryId", categoryID),
			logger.Duration("waited", time.Since(start)),
		)
	}
	return out, nil
}

func (s *Service) awaitVote(ctx context.Context, year, event, categoryID, nomineeID string) bool {
	ctx, cancel := context.WithTimeout(ctx, s.confirmTimeout)
	defer cancel()

	watch := s.MyCategoryVote(ctx, year, event, categoryID)
	defer watch.Cancel()

	for {
		v, err := watch.Next(ctx)
		if err != nil {
			return false
		}
		if v != nil && v.NomineeID == nomineeID {
			return true
		}
	}
}

// CreateCompetition creates a competition owned by the current user.
func (s *Service) CreateCompetition(ctx context.Context, name, year, event string) (rpc.CreateCompetitionResult, error) {
	return s.procs.CreateCompetition(ctx, name, year, s.event(event))
}

// JoinCompetition joins the competition behind an invite code.
func (s *Service) JoinCompetition(ctx context.Context, code string) (rpc.JoinCompetitionResult, error) {
	return s.procs.JoinCompetition(ctx, code)
}

// LeaveCompetition leaves a competition.
func (s *Service) LeaveCompetition(ctx context.Context, competitionID string) error {
	return s.procs.LeaveCompetition(ctx, competitionID)
}

// SetCompetitionInactive toggles an owned competition's inactive status.
func (s *Service) SetCompetitionInactive(ctx context.Context, competitionID string, inactive bool) (rpc.SetInactiveResult, error) {
	return s.procs.SetCompetitionInactive(ctx, competitionID, inactive)
}

// CastVote casts a vote in one competition.
func (s *Service) CastVote(ctx context.Context, competitionID, categoryID, nomineeID string) (rpc.CastVoteResult, error) {
	return s.procs.CastVote(ctx, competitionID, categoryID, nomineeID)
}

// UpdateFCMToken registers a push token.
func (s *Service) UpdateFCMToken(ctx context.Context, token string) error {
	return s.procs.UpdateFCMToken(ctx, token)
}

// DeleteAccount deletes the current user's data.
func (s *Service) DeleteAccount(ctx context.Context) error {
	return s.procs.DeleteAccount(ctx)
}
