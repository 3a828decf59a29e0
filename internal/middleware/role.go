package middleware // middleware provides shared request processing for handlers

import (
	"net/http" // http package defines standard HTTP status codes

	"github.com/labstack/echo/v4" // echo provides middleware chaining and context

	"github.com/iliyamo/lawncare-booking/internal/gate"
	"github.com/iliyamo/lawncare-booking/internal/model"
	"github.com/iliyamo/lawncare-booking/internal/resolver"
	"github.com/iliyamo/lawncare-booking/internal/session"
)

// RequireRole returns a middleware that resolves the caller's role with r
// (token claims first, then the profiles table) and lets the request
// through only when the role is one of roles.  Denials answer 403 with the
// same message, redirect and recovery actions the app's gate shows.  It
// assumes JWTAuth ran first.  The resolved role is stored under "role".
func RequireRole(r *resolver.Resolver, roles ...model.Role) echo.MiddlewareFunc {
	g := gate.New(session.PathRoot, roles...)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s := SessionFrom(c)
			if s == nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}
			role := r.Resolve(c.Request().Context(), s).Role
			d := g.Evaluate(session.State{Session: s, Role: role})
			if d.Status != gate.Authorized {
				return c.JSON(http.StatusForbidden, echo.Map{
					"error":    d.Message,
					"role":     d.Role,
					"redirect": d.Redirect,
					"actions":  d.Actions,
				})
			}
			c.Set(CtxRole, role)
			return next(c)
		}
	}
}
