package service

import (
	"context"
	"slices"

	"github.com/okian/awards/internal/adapters/store"
	"github.com/okian/awards/internal/domain/model"
	"github.com/okian/awards/internal/stream"
)

// Collection layout.
const (
	ceremoniesPath   = "ceremonies"
	categoriesPath   = "categories"
	competitionsPath = "competitions"
	participantsID   = "participants"
	votesID          = "votes"
	eventTypesPath   = "eventTypes"
	usersPath        = "users"
)

var (
	decodeCeremony    = stream.Decode(func(c *model.Ceremony, id string) { c.ID = id })
	decodeCategory    = stream.Decode(func(c *model.Category, id string) { c.ID = id })
	decodeCompetition = stream.Decode(func(c *model.Competition, id string) { c.ID = id })
	decodeParticipant = stream.Decode(func(p *model.Participant, id string) { p.ID = id })
	decodeVote        = stream.Decode(func(v *model.Vote, id string) { v.ID = id })
	decodeEventType   = stream.Decode(func(e *model.EventType, id string) { e.ID = id })
	decodeUser        = stream.Decode(func(u *model.AppUser, id string) { u.ID = id })
)

// Ceremonies follows every visible ceremony, newest first.
func (s *Service) Ceremonies(ctx context.Context) *stream.Stream[[]model.Ceremony] {
	opts := s.streamOpts("ceremonies")
	q := store.Collection(ceremoniesPath).OrderBy("date", true)
	all := stream.Subscribe(ctx, s.backend, q, decodeCeremony, opts...)
	return stream.Filter(all, func(c model.Ceremony) bool { return !c.Hidden }, append(opts, stream.Distinct())...)
}

// Categories follows the visible categories of one ceremony in display
// order. A category without an event belongs to every event, and an empty
// event selects all of them.
func (s *Service) Categories(ctx context.Context, year, event string) *stream.Stream[[]model.Category] {
	opts := s.streamOpts("categories")
	ev := s.event(event)
	q := store.Collection(categoriesPath).
		Where("ceremonyYear", store.Equal, year).
		OrderBy("displayOrder", false)
	all := stream.Subscribe(ctx, s.backend, q, decodeCategory, opts...)
	return stream.Filter(all, func(c model.Category) bool { return c.Visible(year, ev) }, append(opts, stream.Distinct())...)
}

// membership follows the ids of the competitions uid participates in,
// sorted and free of duplicates. The participant documents are the index:
// each lives under the competition it belongs to.
func (s *Service) membership(ctx context.Context, uid string) *stream.Stream[[]string] {
	opts := s.streamOpts("membership")
	q := store.CollectionGroup(participantsID).Where("odUserId", store.Equal, uid)
	parents := stream.Subscribe(ctx, s.backend, q, func(d store.Document) (string, error) {
		return d.ParentID, nil
	}, opts...)
	return stream.Map(parents, func(ids []string) []string {
		out := slices.DeleteFunc(slices.Clone(ids), func(id string) bool { return id == "" })
		slices.Sort(out)
		return slices.Compact(out)
	}, append(opts, stream.Distinct())...)
}

// MyCompetitions follows the competitions the current user participates in.
// Hidden competitions are left out; the rest are sorted with the configured
// order.
func (s *Service) MyCompetitions(ctx context.Context) *stream.Stream[[]model.Competition] {
	opts := s.streamOpts("my-competitions")
	uid, ok := s.ids.UserID(ctx)
	if !ok {
		return stream.Ended(ctx, []model.Competition{}, opts...)
	}

	return stream.FanOut(ctx, stream.FanOutConfig[string, *model.Competition, []model.Competition]{
		Keys: s.membership(ctx, uid),
		Open: func(ctx context.Context, id string) *stream.Stream[*model.Competition] {
			return stream.SubscribeDocument(ctx, s.backend, store.Doc(competitionsPath, id), decodeCompetition,
				stream.WithName("competition"), stream.WithLogger(s.logger))
		},
		Present: func(c *model.Competition) bool { return c != nil },
		Merge: func(byID map[string]*model.Competition) []model.Competition {
			out := make([]model.Competition, 0, len(byID))
			for _, c := range byID {
				if !c.Hidden {
					out = append(out, *c)
				}
			}
			s.sortCompetitions(out)
			return out
		},
	}, opts...)
}

// Participants follows a competition's leaderboard, highest score first.
func (s *Service) Participants(ctx context.Context, competitionID string) *stream.Stream[[]model.Participant] {
	q := store.Collection(store.Doc(competitionsPath, competitionID, participantsID)).OrderBy("score", true)
	return stream.Subscribe(ctx, s.backend, q, decodeParticipant, s.streamOpts("participants")...)
}

// MyVotes follows the current user's votes in one competition.
func (s *Service) MyVotes(ctx context.Context, competitionID string) *stream.Stream[[]model.Vote] {
	opts := s.streamOpts("my-votes")
	uid, ok := s.ids.UserID(ctx)
	if !ok {
		return stream.Ended(ctx, []model.Vote{}, opts...)
	}
	return s.votes(ctx, competitionID, uid, opts...)
}

func (s *Service) votes(ctx context.Context, competitionID, uid string, opts ...stream.Option) *stream.Stream[[]model.Vote] {
	q := store.Collection(store.Doc(competitionsPath, competitionID, votesID)).Where("odUserId", store.Equal, uid)
	return stream.Subscribe(ctx, s.backend, q, decodeVote, opts...)
}

// MyCeremonyVotes follows the current user's votes for one ceremony across
// every competition of that ceremony, keyed by category id. When several
// competitions hold a vote for the same category the most recently cast one
// wins.
func (s *Service) MyCeremonyVotes(ctx context.Context, year, event string) *stream.Stream[map[string]model.Vote] {
	opts := s.streamOpts("my-ceremony-votes")
	uid, ok := s.ids.UserID(ctx)
	if !ok {
		return stream.Ended(ctx, map[string]model.Vote{}, opts...)
	}

	ev := s.event(event)
	ids := stream.Map(s.MyCompetitions(ctx), func(comps []model.Competition) []string {
		out := make([]string, 0, len(comps))
		for _, c := range comps {
			if c.MatchesCeremony(year, ev) {
				out = append(out, c.ID)
			}
		}
		slices.Sort(out)
		return out
	}, append(opts, stream.Distinct())...)

	return stream.FanOut(ctx, stream.FanOutConfig[string, map[string]model.Vote, map[string]model.Vote]{
		Keys: ids,
		Open: func(ctx context.Context, id string) *stream.Stream[map[string]model.Vote] {
			vopts := []stream.Option{stream.WithName("competition-votes"), stream.WithLogger(s.logger)}
			return stream.Map(s.votes(ctx, id, uid, vopts...), model.ByCategory, vopts...)
		},
		Merge: model.MergeLatest[string],
	}, opts...)
}

// MyCategoryVote follows the current user's vote for one category of a
// ceremony, nil while there is none. It emits only when the vote changes.
func (s *Service) MyCategoryVote(ctx context.Context, year, event, categoryID string) *stream.Stream[*model.Vote] {
	opts := s.streamOpts("my-category-vote")
	return stream.Map(s.MyCeremonyVotes(ctx, year, event), func(votes map[string]model.Vote) *model.Vote {
		v, ok := votes[categoryID]
		if !ok {
			return nil
		}
		return &v
	}, append(opts, stream.Distinct())...)
}

// Profile follows the current user's profile document, nil until it exists.
func (s *Service) Profile(ctx context.Context) *stream.Stream[*model.AppUser] {
	opts := s.streamOpts("profile")
	uid, ok := s.ids.UserID(ctx)
	if !ok {
		return stream.Ended[*model.AppUser](ctx, nil, opts...)
	}
	return stream.SubscribeDocument(ctx, s.backend, store.Doc(usersPath, uid), decodeUser, opts...)
}
