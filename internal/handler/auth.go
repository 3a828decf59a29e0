package handler

import (
	"context"  // provides context with cancellation for DB calls
	"errors"   // errors.Is comparisons against repository sentinels
	"net/http" // HTTP status codes and primitives
	"strings"  // string manipulation utilities
	"time"     // timeouts for DB calls

	"github.com/labstack/echo/v4" // Echo framework for HTTP routing
	"go.uber.org/zap"             // structured logging

	"github.com/iliyamo/lawncare-booking/internal/config"     // app configuration
	"github.com/iliyamo/lawncare-booking/internal/middleware" // request identity helpers
	"github.com/iliyamo/lawncare-booking/internal/model"      // domain types
	"github.com/iliyamo/lawncare-booking/internal/repository" // DB repositories and sentinels
	"github.com/iliyamo/lawncare-booking/internal/utils"      // hashing and token issuing
)

// dbTimeout bounds every request's database work.
const dbTimeout = 5 * time.Second

// Accounts is the users table as the auth endpoints see it.
type Accounts interface {
	Create(ctx context.Context, in repository.SignUp) (model.Account, error)
	GetByEmail(ctx context.Context, email string) (model.Account, error)
	GetByID(ctx context.Context, id string) (model.Account, error)
	SetAppMetadataRole(ctx context.Context, id string, role model.Role) error
}

// Tokens is the refresh_tokens table.
type Tokens interface {
	StoreRefresh(ctx context.Context, userID, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (string, error)
	Rotate(ctx context.Context, userID, oldHash, newHash string, exp time.Time) error
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID string) error
}

// ProfileReader reads profile rows.
type ProfileReader interface {
	GetProfile(ctx context.Context, userID string) (*model.Profile, error)
}

// AuthHandler bundles dependencies for the /auth/v1 endpoints.
type AuthHandler struct {
	Cfg      config.Config
	Users    Accounts
	Tokens   Tokens
	Profiles ProfileReader
	Log      *zap.Logger
}

func NewAuthHandler(cfg config.Config, u Accounts, t Tokens, p ProfileReader, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{Cfg: cfg, Users: u, Tokens: t, Profiles: p, Log: log}
}

// ----- DTOs -----

type signupReq struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	FullName string         `json:"full_name"`
	Data     map[string]any `json:"data"` // becomes user_metadata, minus "role"
}
type passwordReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

// tokenResp is the session shape returned by every token-issuing endpoint.
type tokenResp struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int64       `json:"expires_in"`
	ExpiresAt    int64       `json:"expires_at"`
	User         *model.User `json:"user"`
}

// Signup handles POST /auth/v1/signup: create user, profile and user_roles
// rows and return a session immediately (no email confirmation).
func (h *AuthHandler) Signup(c echo.Context) error {
	var req signupReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || len(req.Password) < utils.MinPasswordLength {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and a password of at least 8 characters required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	in := repository.SignUp{
		Email:        req.Email,
		Password:     req.Password,
		FullName:     strings.TrimSpace(req.FullName),
		UserMetadata: repository.WithoutRole(req.Data),
		BcryptCost:   h.Cfg.BcryptCost,
	}
	if h.Cfg.BootstrapAdmin != "" && strings.EqualFold(h.Cfg.BootstrapAdmin, req.Email) {
		in.Role = model.RoleAdmin
	}
	acct, err := h.Users.Create(ctx, in)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
		}
		h.Log.Error("signup failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}
	return h.issue(ctx, c, http.StatusCreated, acct, "")
}

// Token handles POST /auth/v1/token?grant_type=password|refresh_token.
func (h *AuthHandler) Token(c echo.Context) error {
	switch c.QueryParam("grant_type") {
	case "password":
		return h.passwordGrant(c)
	case "refresh_token":
		return h.refreshGrant(c)
	}
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "unsupported grant_type"})
}

// passwordGrant verifies credentials and returns a new session.  The token
// carries whatever app_metadata is stored; a role assigned only in the
// profile reaches the token on the next refresh.
func (h *AuthHandler) passwordGrant(c echo.Context) error {
	var req passwordReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	acct, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid credentials"})
		}
		h.Log.Error("load user failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if !acct.IsActive || !utils.VerifyPassword(acct.PasswordHash, req.Password) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid credentials"})
	}
	return h.issue(ctx, c, http.StatusOK, acct, "")
}

// refreshGrant rotates the refresh token.  Before signing the new access
// token it copies profiles.role into app_metadata.role, which is how a role
// assigned in the database lands in the JWT.
func (h *AuthHandler) refreshGrant(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	userID, err := h.Tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	acct, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load user failed"})
	}
	if !acct.IsActive {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}
	h.syncRole(ctx, &acct)
	return h.issue(ctx, c, http.StatusOK, acct, hash)
}

// syncRole mirrors the profile role into app_metadata.  Failures are logged
// and leave the token's metadata as stored.
func (h *AuthHandler) syncRole(ctx context.Context, acct *model.Account) {
	p, err := h.Profiles.GetProfile(ctx, acct.ID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			h.Log.Warn("profile read on refresh failed", zap.String("user_id", acct.ID), zap.Error(err))
		}
		return
	}
	role, ok := model.ParseRole(p.Role)
	if !ok {
		return
	}
	if current, _ := acct.AppMetadata["role"].(string); current == string(role) {
		return
	}
	if err := h.Users.SetAppMetadataRole(ctx, acct.ID, role); err != nil {
		h.Log.Warn("app_metadata role sync failed", zap.String("user_id", acct.ID), zap.Error(err))
		return
	}
	if acct.AppMetadata == nil {
		acct.AppMetadata = map[string]any{}
	}
	acct.AppMetadata["role"] = string(role)
}

// issue signs an access token, stores a new refresh token (rotating
// oldHash when set) and writes the session.
func (h *AuthHandler) issue(ctx context.Context, c echo.Context, status int, acct model.Account, oldHash string) error {
	user := acct.User()
	// rows written before signup filtered "role" may still carry one
	user.UserMetadata = repository.WithoutRole(user.UserMetadata)
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, user, h.Cfg.AccessTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue access failed"})
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue refresh failed"})
	}
	newHash := utils.HashRefreshRaw(refresh.Raw)
	if oldHash != "" {
		err = h.Tokens.Rotate(ctx, acct.ID, oldHash, newHash, refresh.Exp)
		if errors.Is(err, repository.ErrNotFound) {
			// another request already exchanged this token
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
		}
	} else {
		err = h.Tokens.StoreRefresh(ctx, acct.ID, newHash, refresh.Exp)
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "save refresh failed"})
	}

	return c.JSON(status, tokenResp{
		AccessToken:  access.Token,
		RefreshToken: refresh.Raw, // raw back to client
		TokenType:    "bearer",
		ExpiresIn:    int64(time.Duration(h.Cfg.AccessTTLMin) * time.Minute / time.Second),
		ExpiresAt:    access.Exp.Unix(),
		User:         user,
	})
}

// Logout handles POST /auth/v1/logout?scope=local|global behind JWTAuth.
// scope=global revokes every refresh token of the user; local revokes the
// refresh token in the body when one is sent.
func (h *AuthHandler) Logout(c echo.Context) error {
	uid, _ := c.Get(middleware.CtxUserID).(string)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req refreshReq
	_ = c.Bind(&req)

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	scope := c.QueryParam("scope")
	switch scope {
	case "global":
		if err := h.Tokens.RevokeAllForUser(ctx, uid); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
		}
	case "", "local":
		if raw := strings.TrimSpace(req.RefreshToken); raw != "" {
			if err := h.Tokens.RevokeByHash(ctx, utils.HashRefreshRaw(raw)); err != nil {
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
			}
		}
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "scope must be local or global"})
	}
	return c.NoContent(http.StatusNoContent)
}

// User handles GET /auth/v1/user: the stored user, not the token's copy.
func (h *AuthHandler) User(c echo.Context) error {
	uid, _ := c.Get(middleware.CtxUserID).(string)
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	acct, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load user failed"})
	}
	return c.JSON(http.StatusOK, acct.User())
}
