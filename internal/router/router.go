package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/lawncare-booking/internal/handler"    // handlers that implement each endpoint
	"github.com/iliyamo/lawncare-booking/internal/middleware" // JWT, apikey, rate limit and role enforcement
	"github.com/iliyamo/lawncare-booking/internal/model"
	"github.com/iliyamo/lawncare-booking/internal/resolver"
)

// Deps carries what the protected route groups need besides handlers.
type Deps struct {
	JWTSecret string
	AnonKey   string
	Resolver  *resolver.Resolver   // server-side resolver, built without convergence
	RateLimit echo.MiddlewareFunc // applied to token and signup; nil disables
}

// RegisterRoutes registers routes that do not require authentication:
// the health check and the Prometheus scrape endpoint.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
	e.GET("/metrics", handler.Metrics)
}

// RegisterAuth registers the /auth/v1 endpoints.  Every route requires the
// apikey header; token issuing routes are rate limited and the session
// routes additionally require a valid access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, d Deps) {
	g := e.Group("/auth/v1", middleware.RequireAPIKey(d.AnonKey))

	issuing := []echo.MiddlewareFunc{}
	if d.RateLimit != nil {
		issuing = append(issuing, d.RateLimit)
	}
	g.POST("/token", a.Token, issuing...)
	g.POST("/signup", a.Signup, issuing...)

	authed := g.Group("", middleware.JWTAuth(d.JWTSecret))
	authed.POST("/logout", a.Logout)
	authed.GET("/user", a.User)
}

// RegisterRest registers the /rest/v1 row endpoints.  Each group resolves
// the caller's role the same way the app does and denies with the gate's
// message when the role is not allowed.
func RegisterRest(e *echo.Echo, p *handler.ProfileHandler, b *handler.BookingHandler, d Deps) {
	base := e.Group("/rest/v1", middleware.RequireAPIKey(d.AnonKey), middleware.JWTAuth(d.JWTSecret))

	// any signed-in role; ownership checked in the handler
	anyRole := base.Group("", middleware.RequireRole(d.Resolver, model.Roles...))
	anyRole.GET("/profiles/:id", p.GetProfile)
	anyRole.PATCH("/profiles/:id", p.UpdateProfile)
	anyRole.GET("/user_roles/:id", p.GetUserRole)

	customer := base.Group("", middleware.RequireRole(d.Resolver, model.RoleCustomer))
	customer.POST("/bookings", b.Create)
	customer.GET("/bookings", b.ListMine)
	customer.POST("/bookings/:id/cancel", b.Cancel)

	tech := base.Group("/jobs", middleware.RequireRole(d.Resolver, model.RoleTechnician))
	tech.GET("", b.ListJobs)
	tech.PATCH("/:id", b.UpdateStatus)

	admin := base.Group("/admin", middleware.RequireRole(d.Resolver, model.RoleAdmin))
	admin.GET("/bookings", b.ListAll)
	admin.PATCH("/bookings/:id/assign", b.Assign)
	admin.PATCH("/bookings/:id/status", b.UpdateStatus)
}
