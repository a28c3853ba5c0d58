package types

import "time"

// User represents a registered LinkLite account.
// It contains identity, credentials, profile and audit metadata.
type User struct {
	// ID is the unique identifier of the user, a UUID assigned by the database.
	ID string `json:"id" db:"id"`

	// Name is the user's display name.
	Name string `json:"name" db:"name"`

	// Email is the user's email address. It is unique across accounts and
	// compared exactly as stored.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// Bio is an optional free-form description shown on the profile.
	Bio *string `json:"bio" db:"bio"`

	// Avatar is an optional reference (usually a URL) to the profile image.
	Avatar *string `json:"avatar" db:"avatar"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent profile change.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Identity is the subset of a User that is safe to hand to clients and to
// request handlers as "who is calling".
type Identity struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Email  string  `json:"email"`
	Bio    *string `json:"bio"`
	Avatar *string `json:"avatar"`
}

// Identity projects the user onto its client-safe fields.
func (u User) Identity() Identity {
	return Identity{
		ID:     u.ID,
		Name:   u.Name,
		Email:  u.Email,
		Bio:    u.Bio,
		Avatar: u.Avatar,
	}
}

// Profile is the public view of an account.
type Profile struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Bio    *string `json:"bio"`
	Avatar *string `json:"avatar"`

	// Email is only filled in when the viewer owns the profile.
	Email string `json:"email,omitempty"`

	// IsSelf reports whether the authenticated viewer owns the profile.
	// Anonymous viewers always see false.
	IsSelf bool `json:"is_self"`

	CreatedAt time.Time `json:"created_at"`
}
