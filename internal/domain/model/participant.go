package model

import "time"

// Participant is a user's membership and score within one competition.
// The record id is the user id.
type Participant struct {
	ID          string     `firestore:"-" json:"id"`
	UserRef     string     `firestore:"odUserId" json:"userId"`
	DisplayName string     `firestore:"displayName" json:"displayName"`
	PhotoURL    string     `firestore:"photoUrl" json:"photoUrl,omitempty"`
	Score       int        `firestore:"score" json:"score"`
	JoinedAt    time.Time  `firestore:"joinedAt" json:"joinedAt"`
	LastVotedAt *time.Time `firestore:"lastVotedAt" json:"lastVotedAt,omitempty"`
}

// UserID returns the participant's user id.
func (p Participant) UserID() string {
	if p.ID != "" {
		return p.ID
	}
	return p.UserRef
}
