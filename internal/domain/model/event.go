// Package model contains the server-owned records the live streams materialise.
//
// Every record carries an optional event partition (e.g. "oscars",
// "golden-globes"). An empty event acts as a wildcard when matching.
package model

import "time"

// UnknownEventName is shown for events missing from the event type table.
const UnknownEventName = "Unknown Event"

// EventType is a reference row describing one kind of awards event.
type EventType struct {
	ID          string     `firestore:"-" json:"id"`
	Slug        string     `firestore:"slug" json:"slug"`
	DisplayName string     `firestore:"displayName" json:"displayName"`
	Color       string     `firestore:"color" json:"color,omitempty"`
	CreatedAt   *time.Time `firestore:"createdAt" json:"createdAt,omitempty"`
	UpdatedAt   *time.Time `firestore:"updatedAt" json:"updatedAt,omitempty"`
}

// Matches reports whether ref names this event type by slug or document id.
func (e EventType) Matches(ref string) bool {
	return ref != "" && (e.Slug == ref || e.ID == ref)
}

// MatchEvent reports whether two event partitions are compatible.
// An unset side matches anything.
func MatchEvent(a, b string) bool {
	return a == "" || b == "" || a == b
}
