package model

import "time"

// Vote is a user's prediction for one category, scoped to one competition.
type Vote struct {
	ID         string    `firestore:"-" json:"id"`
	UserID     string    `firestore:"odUserId" json:"userId"`
	CategoryID string    `firestore:"categoryId" json:"categoryId"`
	NomineeID  string    `firestore:"nomineeId" json:"nomineeId"`
	VotedAt    time.Time `firestore:"votedAt" json:"votedAt"`
	IsCorrect  *bool     `firestore:"isCorrect" json:"isCorrect,omitempty"`
}

// ByCategory indexes votes by category id. When a category repeats, the later vote wins.
func ByCategory(votes []Vote) map[string]Vote {
	out := make(map[string]Vote, len(votes))
	for _, v := range votes {
		if cur, ok := out[v.CategoryID]; !ok || v.VotedAt.After(cur.VotedAt) {
			out[v.CategoryID] = v
		}
	}
	return out
}

// MergeLatest folds per-competition vote maps into one map keyed by
// category id, keeping the vote with the latest cast time. Exact ties go to
// the lower vote id, then the lower nominee id, so the result does not
// depend on map iteration order.
func MergeLatest[K comparable](perCompetition map[K]map[string]Vote) map[string]Vote {
	out := make(map[string]Vote)
	for _, votes := range perCompetition {
		for categoryID, v := range votes {
			if cur, ok := out[categoryID]; !ok || supersedes(v, cur) {
				out[categoryID] = v
			}
		}
	}
	return out
}

func supersedes(v, cur Vote) bool {
	switch {
	case !v.VotedAt.Equal(cur.VotedAt):
		return v.VotedAt.After(cur.VotedAt)
	case v.ID != cur.ID:
		return v.ID < cur.ID
	default:
		return v.NomineeID < cur.NomineeID
	}
}
