package model

import "time"

// AppUser is the profile record of a signed-in user.
type AppUser struct {
	ID          string     `firestore:"-" json:"id"`
	Email       string     `firestore:"email" json:"email"`
	DisplayName string     `firestore:"displayName" json:"displayName"`
	PhotoURL    string     `firestore:"photoUrl" json:"photoUrl,omitempty"`
	FCMTokens   []string   `firestore:"fcmTokens" json:"-"`
	CreatedAt   *time.Time `firestore:"createdAt" json:"createdAt,omitempty"`
	UpdatedAt   *time.Time `firestore:"updatedAt" json:"updatedAt,omitempty"`
}
