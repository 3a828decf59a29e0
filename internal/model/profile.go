package model

import "time"

// Profile mirrors a row of the `profiles` table.  One profile exists per
// user; it is created at sign-up and is the durable source of truth for the
// user's role when token claims are absent or stale.
//
// Fields:
//  UserID    – profiles.id, equal to the provider user ID.
//  FullName  – display name.
//  Phone     – contact phone (nullable).
//  Address   – service address (nullable).
//  Role      – profiles.role; empty when never assigned.
//  CreatedAt – creation timestamp.
//  UpdatedAt – last update timestamp.
type Profile struct {
	UserID    string    `json:"id"`
	FullName  string    `json:"full_name"`
	Phone     *string   `json:"phone,omitempty"`
	Address   *string   `json:"address,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProfileUpdate carries the optional fields of a profile patch.  Nil fields
// are left untouched.
type ProfileUpdate struct {
	FullName *string `json:"full_name,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Address  *string `json:"address,omitempty"`
	Role     *string `json:"role,omitempty"`
}

// UserRole mirrors a row of the `user_roles` assignment table.  It is kept
// alongside profiles.role and only read for diagnostics.
type UserRole struct {
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	UpdatedAt time.Time `json:"updated_at"`
}
