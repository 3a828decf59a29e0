package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/lawncare-booking/internal/middleware"
	"github.com/iliyamo/lawncare-booking/internal/model"
	"github.com/iliyamo/lawncare-booking/internal/queue"
)

// Profiles is the profile and user_roles storage used by the REST
// endpoints.  The Redis read-through cache satisfies it.
type Profiles interface {
	GetProfile(ctx context.Context, userID string) (*model.Profile, error)
	UpdateProfile(ctx context.Context, userID string, upd model.ProfileUpdate) (*model.Profile, error)
	GetUserRole(ctx context.Context, userID string) (*model.UserRole, error)
}

// ProfileHandler serves /rest/v1/profiles and /rest/v1/user_roles.  Users
// read and edit their own rows; admins read any row and are the only
// callers allowed to change a role.
type ProfileHandler struct {
	Profiles Profiles
	Events   Events
	Log      *zap.Logger
}

func NewProfileHandler(p Profiles, ev Events, log *zap.Logger) *ProfileHandler {
	if p == nil {
		panic("nil profile store passed to NewProfileHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ProfileHandler{Profiles: p, Events: ev, Log: log}
}

// target returns the :id parameter when the caller may access it.
func (h *ProfileHandler) target(c echo.Context) (string, bool) {
	uid, err := getUserID(c)
	if err != nil {
		return "", false
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return "", false
	}
	return id, id == uid || middleware.RoleFrom(c) == model.RoleAdmin
}

// GetProfile handles GET /rest/v1/profiles/:id.
func (h *ProfileHandler) GetProfile(c echo.Context) error {
	id, ok := h.target(c)
	if !ok {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	p, err := h.Profiles.GetProfile(ctx, id)
	if err != nil {
		return repoError(c, h.Log, "get profile", err)
	}
	return c.JSON(http.StatusOK, p)
}

// GetUserRole handles GET /rest/v1/user_roles/:id.
func (h *ProfileHandler) GetUserRole(c echo.Context) error {
	id, ok := h.target(c)
	if !ok {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	ur, err := h.Profiles.GetUserRole(ctx, id)
	if err != nil {
		return repoError(c, h.Log, "get user role", err)
	}
	return c.JSON(http.StatusOK, ur)
}

// UpdateProfile handles PATCH /rest/v1/profiles/:id.  A role change is
// validated, written to profiles and user_roles together and announced on
// the role.changed queue.  The user's token keeps its old role until the
// next refresh.
func (h *ProfileHandler) UpdateProfile(c echo.Context) error {
	id, ok := h.target(c)
	if !ok {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	var upd model.ProfileUpdate
	if err := c.Bind(&upd); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if upd.FullName != nil {
		name := strings.TrimSpace(*upd.FullName)
		if name == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "full_name must not be empty"})
		}
		upd.FullName = &name
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	var oldRole string
	if upd.Role != nil {
		if middleware.RoleFrom(c) != model.RoleAdmin {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "only admins may change roles"})
		}
		role, valid := model.ParseRole(*upd.Role)
		if !valid {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "role must be customer, technician or admin"})
		}
		s := string(role)
		upd.Role = &s
		cur, err := h.Profiles.GetProfile(ctx, id)
		if err != nil {
			return repoError(c, h.Log, "get profile", err)
		}
		oldRole = cur.Role
	}

	p, err := h.Profiles.UpdateProfile(ctx, id, upd)
	if err != nil {
		return repoError(c, h.Log, "update profile", err)
	}

	if upd.Role != nil && oldRole != p.Role && h.Events != nil {
		actor, _ := getUserID(c)
		ev := queue.RoleChangedEvent{
			UserID:    id,
			OldRole:   oldRole,
			NewRole:   p.Role,
			ChangedBy: actor,
			ChangedAt: time.Now().UTC().Format(time.RFC3339),
		}
		h.Log.Info("role changed", zap.String("user_id", id), zap.String("old", oldRole), zap.String("new", p.Role))
		publishAsync(h.Log, "role.changed", func(ctx context.Context) error {
			return h.Events.PublishRoleChanged(ctx, ev)
		})
	}
	return c.JSON(http.StatusOK, p)
}
