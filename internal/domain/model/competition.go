package model

import (
	"strings"
	"time"
)

// CompetitionStatus is the lifecycle state of a competition.
type CompetitionStatus string

// Competition states. Only the backend moves a competition between them,
// except open <-> inactive which the owner may toggle.
const (
	CompetitionOpen     CompetitionStatus = "open"
	CompetitionLocked   CompetitionStatus = "locked"
	CompetitionComplete CompetitionStatus = "complete"
	CompetitionClosed   CompetitionStatus = "closed"
	CompetitionInactive CompetitionStatus = "inactive"
)

// InviteCodeLength is the length of a competition invite code.
const InviteCodeLength = 6

// Competition is a private prediction pool tied to one ceremony.
type Competition struct {
	ID               string            `firestore:"-" json:"id"`
	Name             string            `firestore:"name" json:"name"`
	CreatedBy        string            `firestore:"createdBy" json:"createdBy"`
	CeremonyYear     string            `firestore:"ceremonyYear" json:"ceremonyYear"`
	Event            string            `firestore:"event" json:"event,omitempty"`
	InviteCode       string            `firestore:"inviteCode" json:"inviteCode"`
	ParticipantCount int               `firestore:"participantCount" json:"participantCount"`
	Status           CompetitionStatus `firestore:"status" json:"status"`
	Hidden           bool              `firestore:"hidden" json:"hidden,omitempty"`
	InactivatedAt    *time.Time        `firestore:"inactivatedAt" json:"inactivatedAt,omitempty"`
	CreatedAt        time.Time         `firestore:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time         `firestore:"updatedAt" json:"updatedAt"`
}

// CanVote reports whether new votes are accepted.
func (c Competition) CanVote() bool {
	return c.Status == CompetitionOpen
}

// IsOpen reports whether the competition is still running.
func (c Competition) IsOpen() bool {
	return c.Status == CompetitionOpen || c.Status == CompetitionLocked
}

// OwnedBy reports whether uid created the competition.
func (c Competition) OwnedBy(uid string) bool {
	return uid != "" && c.CreatedBy == uid
}

// MatchesCeremony reports whether c belongs to the ceremony (year, event).
func (c Competition) MatchesCeremony(year, event string) bool {
	return c.CeremonyYear == year && MatchEvent(c.Event, event)
}

// NormalizeInviteCode upper-cases and trims a user-entered invite code.
func NormalizeInviteCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ByCreatedDesc orders newest competitions first.
func ByCreatedDesc(a, b Competition) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

// InactiveLast orders inactive competitions after all others, newest first within each group.
func InactiveLast(a, b Competition) bool {
	ai, bi := a.Status == CompetitionInactive, b.Status == CompetitionInactive
	if ai != bi {
		return bi
	}
	return ByCreatedDesc(a, b)
}

// Mine keeps the competitions uid created.
func Mine(comps []Competition, uid string) []Competition {
	out := make([]Competition, 0, len(comps))
	for _, c := range comps {
		if c.OwnedBy(uid) {
			out = append(out, c)
		}
	}
	return out
}

// Joined keeps the competitions uid participates in without owning.
func Joined(comps []Competition, uid string) []Competition {
	out := make([]Competition, 0, len(comps))
	for _, c := range comps {
		if !c.OwnedBy(uid) {
			out = append(out, c)
		}
	}
	return out
}
