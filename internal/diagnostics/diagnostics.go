// Package diagnostics shows every role source for the signed-in user side
// by side.  It only reads; it never reconciles the sources.
package diagnostics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/lawncare-booking/internal/claims"
	"github.com/iliyamo/lawncare-booking/internal/model"
	"github.com/iliyamo/lawncare-booking/internal/provider"
	"github.com/iliyamo/lawncare-booking/internal/resolver"
)

// Report is one snapshot of the resolver's inputs.
//
// Fields:
//  UserID        – signed-in user.
//  Claims        – decoded access token payload (nil when undecodable).
//  ClaimsError   – decode failure, if any.
//  Profile       – profiles row, nil when missing or failed.
//  ProfileError  – fetch failure, if any.
//  UserRole      – user_roles row, nil when missing or failed.
//  UserRoleError – fetch failure, if any.
//  Sources       – role reported by each source that has one.
//  Resolved      – what the resolver would pick right now.
//  Disagree      – the sources name more than one role.
//  FetchedAt     – snapshot time.
type Report struct {
	UserID        string
	Claims        claims.Claims
	ClaimsError   string
	Profile       *model.Profile
	ProfileError  string
	UserRole      *model.UserRole
	UserRoleError string
	Sources       map[resolver.Source]model.Role
	Resolved      resolver.Resolution
	Disagree      bool
	FetchedAt     time.Time
}

// Auth is the part of the provider diagnostics needs.
type Auth interface {
	GetSession(ctx context.Context) (*model.Session, error)
	RefreshSession(ctx context.Context) (*model.Session, error)
}

// Service builds reports.  Its resolver must not carry a Convergence so
// that snapshots never request a refresh.
type Service struct {
	auth     Auth
	profiles provider.ProfileStore
	roles    provider.UserRoleStore
	resolver *resolver.Resolver
	now      func() time.Time
}

// NewService wires a diagnostics service.
func NewService(auth Auth, profiles provider.ProfileStore, roles provider.UserRoleStore, r *resolver.Resolver) *Service {
	return &Service{auth: auth, profiles: profiles, roles: roles, resolver: r, now: time.Now}
}

// Snapshot re-fetches and re-decodes everything.  Row fetch failures are
// reported in the Report, not returned.
func (s *Service) Snapshot(ctx context.Context) (Report, error) {
	sess, err := s.auth.GetSession(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("diagnostics: get session: %w", err)
	}
	if sess.UserID() == "" {
		return Report{}, provider.ErrNoSession
	}

	rep := Report{UserID: sess.UserID(), FetchedAt: s.now().UTC()}
	if c, err := claims.Decode(sess.AccessToken); err != nil {
		rep.ClaimsError = err.Error()
	} else {
		rep.Claims = c
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.profiles.GetProfile(gctx, rep.UserID)
		if err != nil {
			rep.ProfileError = err.Error()
			return nil
		}
		rep.Profile = p
		return nil
	})
	g.Go(func() error {
		ur, err := s.roles.GetUserRole(gctx, rep.UserID)
		if err != nil {
			rep.UserRoleError = err.Error()
			return nil
		}
		rep.UserRole = ur
		return nil
	})
	g.Go(func() error {
		rep.Sources = s.resolver.Sources(gctx, sess)
		rep.Resolved = s.resolver.Resolve(gctx, sess)
		return nil
	})
	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	rep.Disagree = disagree(rep)
	return rep, nil
}

// RefreshSession forces a provider token refresh and then snapshots.
func (s *Service) RefreshSession(ctx context.Context) (Report, error) {
	if _, err := s.auth.RefreshSession(ctx); err != nil {
		return Report{}, fmt.Errorf("diagnostics: refresh session: %w", err)
	}
	return s.Snapshot(ctx)
}

func disagree(rep Report) bool {
	seen := make(map[model.Role]bool)
	for _, r := range rep.Sources {
		seen[r] = true
	}
	if rep.UserRole != nil {
		if r, ok := model.ParseRole(rep.UserRole.Role); ok {
			seen[r] = true
		}
	}
	return len(seen) > 1
}

// String renders the report as an aligned text table.
func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "user        %s\n", r.UserID)
	fmt.Fprintf(&b, "fetched_at  %s\n", r.FetchedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "resolved    %s (from %s)\n", r.Resolved.Role, r.Resolved.Source)
	b.WriteString("sources:\n")
	for _, src := range []resolver.Source{
		resolver.SourceJWTRoot, resolver.SourceJWTAppMetadata,
		resolver.SourceJWTUserMetadata, resolver.SourceProfile,
	} {
		v := string(r.Sources[src])
		if v == "" {
			v = "-"
		}
		fmt.Fprintf(&b, "  %-18s %s\n", src, v)
	}
	ur := "-"
	switch {
	case r.UserRoleError != "":
		ur = "error: " + r.UserRoleError
	case r.UserRole != nil:
		ur = r.UserRole.Role
	}
	fmt.Fprintf(&b, "  %-18s %s\n", "user_roles", ur)
	if r.ProfileError != "" {
		fmt.Fprintf(&b, "profile error: %s\n", r.ProfileError)
	}
	if r.ClaimsError != "" {
		fmt.Fprintf(&b, "claims error: %s\n", r.ClaimsError)
	} else {
		b.WriteString("claims:\n")
		keys := make([]string, 0, len(r.Claims))
		for k := range r.Claims {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "  %-18s %v\n", k, r.Claims[k])
		}
	}
	if r.Disagree {
		b.WriteString("WARNING: role sources disagree\n")
	}
	return b.String()
}
