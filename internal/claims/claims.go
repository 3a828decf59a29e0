// Package claims decodes access tokens into a read-only claims bag.  The
// signature is not verified here: the app only reads claims the provider
// already accepted, and the bag is only used to pick a role.
package claims

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/lawncare-booking/internal/model"
)

// Claim keys used by the provider.
const (
	KeyRole         = "role"
	KeyAppMetadata  = "app_metadata"
	KeyUserMetadata = "user_metadata"
)

// ErrEmptyToken is returned by Decode for a blank token.
var ErrEmptyToken = errors.New("claims: empty token")

// Claims is the decoded payload of an access token.  A nil Claims behaves
// like an empty bag, so callers can treat a failed decode as "no claims".
type Claims map[string]any

// Decode parses raw without verifying its signature and returns the payload.
// Malformed input yields an error; callers in the resolver treat that as a
// soft failure.
func Decode(raw string) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrEmptyToken
	}
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, mc); err != nil {
		return nil, fmt.Errorf("claims: decode: %w", err)
	}
	return Claims(mc), nil
}

// RootRole returns the root-level "role" claim when it names an
// application role.
func (c Claims) RootRole() (model.Role, bool) {
	return roleFrom(c[KeyRole])
}

// AppMetadataRole returns app_metadata.role when present and valid.
func (c Claims) AppMetadataRole() (model.Role, bool) {
	return nestedRole(c[KeyAppMetadata])
}

// UserMetadataRole returns user_metadata.role when present and valid.
func (c Claims) UserMetadataRole() (model.Role, bool) {
	return nestedRole(c[KeyUserMetadata])
}

// Subject returns the "sub" claim.
func (c Claims) Subject() string {
	s, _ := c["sub"].(string)
	return s
}

// Email returns the "email" claim.
func (c Claims) Email() string {
	s, _ := c["email"].(string)
	return s
}

// ExpiresAt returns the "exp" claim as a UTC time; zero when absent.
func (c Claims) ExpiresAt() time.Time {
	exp, err := jwt.MapClaims(c).GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time.UTC()
}

// IssuedAt returns the "iat" claim as a UTC time; zero when absent.
func (c Claims) IssuedAt() time.Time {
	iat, err := jwt.MapClaims(c).GetIssuedAt()
	if err != nil || iat == nil {
		return time.Time{}
	}
	return iat.Time.UTC()
}

func nestedRole(v any) (model.Role, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	return roleFrom(m[KeyRole])
}

func roleFrom(v any) (model.Role, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	return model.ParseRole(s)
}
