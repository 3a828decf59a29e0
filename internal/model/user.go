package model

import "time"

// Account represents a row of the dev provider's `users` table.  The JSON
// metadata columns are decoded into maps and embedded in issued tokens.
//
// Fields:
//  ID           – users.id (UUID).
//  Email        – unique email address.
//  PasswordHash – bcrypt hashed password.
//  AppMetadata  – users.app_metadata (JSON).
//  UserMetadata – users.user_metadata (JSON).
//  IsActive     – whether the account may sign in.
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type Account struct {
	ID           string         // users.id
	Email        string         // users.email
	PasswordHash string         // users.password_hash
	AppMetadata  map[string]any // users.app_metadata
	UserMetadata map[string]any // users.user_metadata
	IsActive     bool           // users.is_active
	CreatedAt    time.Time      // users.created_at
	UpdatedAt    time.Time      // users.updated_at
}

// RefreshToken models an entry in the `refresh_tokens` table.  Only the
// SHA‑256 hash of the token is stored.
//
// Fields:
//  ID        – primary key identifier.
//  UserID    – owner of the token.
//  TokenHash – SHA‑256 hex digest of the token value.
//  ExpiresAt – expiration timestamp of the token.
//  RevokedAt – when the token was revoked (null if still active).
//  CreatedAt – timestamp of creation.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    string     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}

// User converts the account into the provider's public user shape.
func (a Account) User() *User {
	return &User{ID: a.ID, Email: a.Email, AppMetadata: a.AppMetadata, UserMetadata: a.UserMetadata}
}
