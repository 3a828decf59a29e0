package resolver

import (
	"context"
	"errors"

	"github.com/iliyamo/lawncare-booking/internal/claims"
	"github.com/iliyamo/lawncare-booking/internal/model"
	"github.com/iliyamo/lawncare-booking/internal/provider"
)

// Source names where a resolved role came from.
type Source string

const (
	SourceJWTRoot         Source = "jwt_root"
	SourceJWTAppMetadata  Source = "jwt_app_metadata"
	SourceJWTUserMetadata Source = "jwt_user_metadata"
	SourceProfile         Source = "profile"
	SourceDefault         Source = "default"
)

// Input is what every strategy sees: the raw session plus its decoded
// claims.  Claims is nil when the token could not be decoded.
type Input struct {
	Session *model.Session
	Claims  claims.Claims
}

// UserID prefers the session's user and falls back to the token subject.
func (in Input) UserID() string {
	if id := in.Session.UserID(); id != "" {
		return id
	}
	return in.Claims.Subject()
}

// Strategy is one role source.  Lookup returns ok=false when the source
// has no opinion; an error means the source could not be consulted.
type Strategy interface {
	Source() Source
	Lookup(ctx context.Context, in Input) (role model.Role, ok bool, err error)
}

type claimStrategy struct {
	source Source
	read   func(claims.Claims) (model.Role, bool)
}

func (s claimStrategy) Source() Source { return s.source }

func (s claimStrategy) Lookup(_ context.Context, in Input) (model.Role, bool, error) {
	r, ok := s.read(in.Claims)
	return r, ok, nil
}

// JWTRootClaim reads the token's root-level role claim.
func JWTRootClaim() Strategy {
	return claimStrategy{source: SourceJWTRoot, read: claims.Claims.RootRole}
}

// JWTAppMetadata reads app_metadata.role from the token.
func JWTAppMetadata() Strategy {
	return claimStrategy{source: SourceJWTAppMetadata, read: claims.Claims.AppMetadataRole}
}

// JWTUserMetadata reads user_metadata.role from the token.
func JWTUserMetadata() Strategy {
	return claimStrategy{source: SourceJWTUserMetadata, read: claims.Claims.UserMetadataRole}
}

// ProfileGetter is the slice of provider.ProfileStore the profile strategy
// needs.
type ProfileGetter interface {
	GetProfile(ctx context.Context, userID string) (*model.Profile, error)
}

type profileStrategy struct{ store ProfileGetter }

// ProfileRow reads profiles.role for the session's user.  A missing row or
// an empty/unknown role is "no opinion"; any other failure is an error.
func ProfileRow(store ProfileGetter) Strategy { return profileStrategy{store: store} }

func (s profileStrategy) Source() Source { return SourceProfile }

func (s profileStrategy) Lookup(ctx context.Context, in Input) (model.Role, bool, error) {
	uid := in.UserID()
	if uid == "" || s.store == nil {
		return "", false, nil
	}
	p, err := s.store.GetProfile(ctx, uid)
	if err != nil {
		if errors.Is(err, provider.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	if p == nil {
		return "", false, nil
	}
	r, ok := model.ParseRole(p.Role)
	return r, ok, nil
}

// DefaultStrategies returns the four sources in priority order.
func DefaultStrategies(profiles ProfileGetter) []Strategy {
	return []Strategy{JWTRootClaim(), JWTAppMetadata(), JWTUserMetadata(), ProfileRow(profiles)}
}
