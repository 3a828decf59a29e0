package model

import "time"

// User is the provider's view of an authenticated account.  AppMetadata is
// writable only by the provider (service role); UserMetadata is writable by
// the user at sign-up.  Both may carry a "role" key.
//
// Fields:
//  ID           – provider user ID (UUID string).
//  Email        – login email.
//  AppMetadata  – provider-controlled metadata.
//  UserMetadata – user-controlled metadata.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	AppMetadata  map[string]any `json:"app_metadata,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

// Session is the credential bundle issued by the provider on sign-in or
// token exchange.  It is replaced wholesale on refresh and dropped on
// sign-out; the application only holds a read reference.
//
// Fields:
//  AccessToken  – signed JWT presented on every request.
//  RefreshToken – opaque token exchanged for a new session.
//  TokenType    – always "bearer".
//  ExpiresIn    – access token lifetime in seconds at issue time.
//  ExpiresAt    – absolute access token expiry (UTC).
//  User         – the signed-in user (nil only for malformed responses).
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         *User     `json:"user"`
}

// UserID returns the session's user ID or "" when there is no user.
func (s *Session) UserID() string {
	if s == nil || s.User == nil {
		return ""
	}
	return s.User.ID
}

// Expired reports whether the access token is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}
