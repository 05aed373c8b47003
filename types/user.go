package types

import "time"

// User represents a member account in the community.
// It contains identity, profile, membership, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Username is the unique login name chosen by the user.
	Username string `json:"username" db:"username"`

	// DisplayName is the optional name shown in place of the username.
	DisplayName string `json:"displayName" db:"display_name"`

	// AvatarUrl points at the user's avatar image.
	AvatarUrl string `json:"avatarUrl" db:"avatar_url"`

	// Biography is free-text profile copy written by the user.
	Biography string `json:"biography" db:"biography"`

	// ProfileAnimation selects the cosmetic animation shown on the
	// user's profile card.
	ProfileAnimation string `json:"profileAnimation" db:"profile_animation"`

	// Rank is a community status label distinct from Role. It is
	// free text by convention (e.g. "Aday", "Kurucu") and only
	// changed by admins.
	Rank string `json:"rank" db:"rank"`

	// Role indicates the user's authorization level within the
	// system ("admin" or "user").
	Role string `json:"role" db:"role"`

	// IsCore reports whether the user currently holds the elevated
	// Core membership tier.
	IsCore bool `json:"isCore" db:"is_core"`

	// CoreExpiry is the timestamp at which Core membership lapses.
	// Nil when the user has never been granted Core.
	CoreExpiry *time.Time `json:"coreExpiry" db:"core_expiry"`

	// IsDeleted marks the account as banned. Banned accounts are
	// never physically removed.
	IsDeleted bool `json:"isDeleted" db:"is_deleted"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
