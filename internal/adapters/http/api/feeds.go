package api

import (
	"fmt"
	"strings"
)

// Stream names clients subscribe to.
const (
	streamCeremonies      = "ceremonies"
	streamCategories      = "categories"
	streamMyCompetitions  = "myCompetitions"
	streamParticipants    = "participants"
	streamMyVotes         = "myVotes"
	streamMyCeremonyVotes = "myCeremonyVotes"
	streamMyCategoryVote  = "myCategoryVote"
	streamProfile         = "profile"
)

// open starts the stream msg asks for on the session context.
func (s *session) open(msg clientMessage) (*subscription, error) {
	q, ctx, id := s.gw.deps, s.ctx, msg.ID
	p := params(msg.Params)

	switch msg.Stream {
	case streamCeremonies:
		return follow(s, id, msg.Stream, q.Ceremonies(ctx)), nil
	case streamCategories:
		if err := p.require("year"); err != nil {
			return nil, err
		}
		return follow(s, id, msg.Stream, q.Categories(ctx, p["year"], p["event"])), nil
	case streamMyCompetitions:
		return follow(s, id, msg.Stream, q.MyCompetitions(ctx)), nil
	case streamParticipants:
		if err := p.require("competitionId"); err != nil {
			return nil, err
		}
		return follow(s, id, msg.Stream, q.Participants(ctx, p["competitionId"])), nil
	case streamMyVotes:
		if err := p.require("competitionId"); err != nil {
			return nil, err
		}
		return follow(s, id, msg.Stream, q.MyVotes(ctx, p["competitionId"])), nil
	case streamMyCeremonyVotes:
		if err := p.require("year"); err != nil {
			return nil, err
		}
		return follow(s, id, msg.Stream, q.MyCeremonyVotes(ctx, p["year"], p["event"])), nil
	case streamMyCategoryVote:
		if err := p.require("year", "categoryId"); err != nil {
			return nil, err
		}
		return follow(s, id, msg.Stream, q.MyCategoryVote(ctx, p["year"], p["event"], p["categoryId"])), nil
	case streamProfile:
		return follow(s, id, msg.Stream, q.Profile(ctx)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStream, msg.Stream)
	}
}

type params map[string]string

func (p params) require(names ...string) error {
	for _, n := range names {
		if strings.TrimSpace(p[n]) == "" {
			return fmt.Errorf("%w: missing param %s", ErrBadRequest, n)
		}
	}
	return nil
}
