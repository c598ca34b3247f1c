package model

import "time"

// User mirrors the identity-provider record we care about. The referral code
// is personal and stable; redeeming it by another user creates a deferred
// reward settled on that user's first purchase.
type User struct {
	ID           string
	Email        string
	ReferralCode string
	Language     string
	IsAnonymous  bool
	CreatedAt    time.Time
}
