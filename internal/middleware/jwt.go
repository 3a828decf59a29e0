package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"net/http" // HTTP status codes for responses
	"strings"  // string utilities for prefix checking and trimming

	"github.com/golang-jwt/jwt/v5" // JWT claim types
	"github.com/labstack/echo/v4"  // Echo framework used for defining middleware and handlers

	"github.com/iliyamo/lawncare-booking/internal/model"
	"github.com/iliyamo/lawncare-booking/internal/utils"
)

// Context keys set by JWTAuth.
const (
	CtxUserID  = "user_id"
	CtxClaims  = "claims"
	CtxSession = "session"
	CtxRole    = "role"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token.
// On success it stores the subject under "user_id", the verified claims
// under "claims" and a *model.Session rebuilt from the token under
// "session", so the role resolver can run on the server exactly as it runs
// in the app.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearer(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			claims, err := utils.ParseAccessToken(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			sub, _ := claims["sub"].(string)
			if sub == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
			}

			c.Set(CtxUserID, sub)
			c.Set(CtxClaims, claims)
			c.Set(CtxSession, sessionFromClaims(raw, claims))
			return next(c)
		}
	}
}

// bearer extracts the token of an "Authorization: Bearer <token>" header.
func bearer(c echo.Context) (string, bool) {
	auth := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	return raw, raw != ""
}

func sessionFromClaims(raw string, claims jwt.MapClaims) *model.Session {
	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	appMeta, _ := claims["app_metadata"].(map[string]interface{})
	userMeta, _ := claims["user_metadata"].(map[string]interface{})
	s := &model.Session{
		AccessToken: raw,
		TokenType:   "bearer",
		User:        &model.User{ID: sub, Email: email, AppMetadata: appMeta, UserMetadata: userMeta},
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		s.ExpiresAt = exp.Time.UTC()
	}
	return s
}

// SessionFrom returns the session stored by JWTAuth, or nil.
func SessionFrom(c echo.Context) *model.Session {
	s, _ := c.Get(CtxSession).(*model.Session)
	return s
}

// RoleFrom returns the role stored by RequireRole, or "".
func RoleFrom(c echo.Context) model.Role {
	r, _ := c.Get(CtxRole).(model.Role)
	return r
}
