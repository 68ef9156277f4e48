package model

import "time"

// CeremonyStatus is the lifecycle state of a ceremony.
type CeremonyStatus string

// Ceremony states. "completed" is a legacy spelling of "complete".
const (
	CeremonyUpcoming  CeremonyStatus = "upcoming"
	CeremonyLive      CeremonyStatus = "live"
	CeremonyComplete  CeremonyStatus = "complete"
	CeremonyCompleted CeremonyStatus = "completed"
)

// Done reports whether the ceremony is over.
func (s CeremonyStatus) Done() bool {
	return s == CeremonyComplete || s == CeremonyCompleted
}

// Ceremony is one awards event instance, e.g. the 97th Academy Awards.
type Ceremony struct {
	ID            string         `firestore:"-" json:"id"`
	Name          string         `firestore:"name" json:"name"`
	Year          string         `firestore:"year" json:"year"`
	Event         string         `firestore:"event" json:"event,omitempty"`
	Date          *time.Time     `firestore:"date" json:"date,omitempty"`
	Status        CeremonyStatus `firestore:"status" json:"status"`
	CategoryCount *int           `firestore:"categoryCount" json:"categoryCount,omitempty"`
	Hidden        bool           `firestore:"hidden" json:"hidden,omitempty"`
	CreatedAt     *time.Time     `firestore:"createdAt" json:"createdAt,omitempty"`
	UpdatedAt     *time.Time     `firestore:"updatedAt" json:"updatedAt,omitempty"`
}
