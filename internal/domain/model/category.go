package model

import "time"

// Nominee is one candidate within a category.
type Nominee struct {
	ID       string `firestore:"id" json:"id"`
	Title    string `firestore:"title" json:"title"`
	Subtitle string `firestore:"subtitle" json:"subtitle,omitempty"`
	ImageURL string `firestore:"imageUrl" json:"imageUrl"`
	TMDBID   string `firestore:"tmdbId" json:"tmdbId,omitempty"`
}

// Category is a ranked award category within a ceremony.
type Category struct {
	ID                string     `firestore:"-" json:"id"`
	CeremonyYear      string     `firestore:"ceremonyYear" json:"ceremonyYear"`
	Event             string     `firestore:"event" json:"event,omitempty"`
	Name              string     `firestore:"name" json:"name"`
	DisplayOrder      int        `firestore:"displayOrder" json:"displayOrder"`
	Nominees          []Nominee  `firestore:"nominees" json:"nominees"`
	WinnerID          string     `firestore:"winnerId" json:"winnerId,omitempty"`
	WinnerAnnouncedAt *time.Time `firestore:"winnerAnnouncedAt" json:"winnerAnnouncedAt,omitempty"`
	VotingLocked      bool       `firestore:"votingLocked" json:"votingLocked,omitempty"`
	VotingLockedAt    *time.Time `firestore:"votingLockedAt" json:"votingLockedAt,omitempty"`
	Hidden            bool       `firestore:"hidden" json:"hidden,omitempty"`
	CreatedAt         *time.Time `firestore:"createdAt" json:"createdAt,omitempty"`
	UpdatedAt         *time.Time `firestore:"updatedAt" json:"updatedAt,omitempty"`
}

// HasWinner reports whether a winner has been announced.
func (c Category) HasWinner() bool {
	return c.WinnerID != ""
}

// IsLocked reports whether voting is closed. A winner always locks the category.
func (c Category) IsLocked() bool {
	return c.VotingLocked || c.HasWinner()
}

// Winner returns the winning nominee, if announced and present.
func (c Category) Winner() (Nominee, bool) {
	if !c.HasWinner() {
		return Nominee{}, false
	}
	for _, n := range c.Nominees {
		if n.ID == c.WinnerID {
			return n, true
		}
	}
	return Nominee{}, false
}

// Visible reports whether c belongs in a listing for year and event.
func (c Category) Visible(year, event string) bool {
	return !c.Hidden && c.CeremonyYear == year && MatchEvent(c.Event, event)
}
