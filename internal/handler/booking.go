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
	"github.com/iliyamo/lawncare-booking/internal/repository"
)

// Bookings is the bookings table.
type Bookings interface {
	Create(ctx context.Context, customerID string, in repository.NewBooking) (*model.Booking, error)
	ListByCustomer(ctx context.Context, customerID string) ([]model.Booking, error)
	ListByTechnician(ctx context.Context, technicianID string) ([]model.Booking, error)
	ListAll(ctx context.Context, status string) ([]model.Booking, error)
	Assign(ctx context.Context, id, technicianID string) (*model.Booking, error)
	UpdateStatus(ctx context.Context, id, actorID, status string, asAdmin bool) (*model.Booking, error)
	Cancel(ctx context.Context, id, customerID string) (*model.Booking, error)
}

// BookingHandler serves the role-scoped booking endpoints.  Role checks
// happen in RequireRole; the handler only enforces ownership through the
// repository.
type BookingHandler struct {
	Bookings Bookings
	Profiles Profiles
	Events   Events
	Log      *zap.Logger
}

func NewBookingHandler(b Bookings, p Profiles, ev Events, log *zap.Logger) *BookingHandler {
	if b == nil || p == nil {
		panic("nil repository passed to NewBookingHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &BookingHandler{Bookings: b, Profiles: p, Events: ev, Log: log}
}

type statusReq struct {
	Status string `json:"status"`
}

type assignReq struct {
	TechnicianID string `json:"technician_id"`
}

// Create handles POST /rest/v1/bookings (customer).
func (h *BookingHandler) Create(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var in repository.NewBooking
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	in.Service = strings.TrimSpace(in.Service)
	in.Address = strings.TrimSpace(in.Address)
	if in.Service == "" || in.Address == "" || in.ScheduledFor.IsZero() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "service, address and scheduled_for are required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	b, err := h.Bookings.Create(ctx, uid, in)
	if err != nil {
		return repoError(c, h.Log, "create booking", err)
	}
	if h.Events != nil {
		ev := queue.BookingCreatedEvent{
			BookingID:    b.ID,
			CustomerID:   b.CustomerID,
			Service:      b.Service,
			Address:      b.Address,
			ScheduledFor: b.ScheduledFor.UTC().Format(time.RFC3339),
			CreatedAt:    b.CreatedAt.UTC().Format(time.RFC3339),
		}
		publishAsync(h.Log, "booking.created", func(ctx context.Context) error {
			return h.Events.PublishBookingCreated(ctx, ev)
		})
	}
	return c.JSON(http.StatusCreated, b)
}

// ListMine handles GET /rest/v1/bookings (customer).
func (h *BookingHandler) ListMine(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	list, err := h.Bookings.ListByCustomer(ctx, uid)
	if err != nil {
		return repoError(c, h.Log, "list bookings", err)
	}
	return c.JSON(http.StatusOK, list)
}

// Cancel handles POST /rest/v1/bookings/:id/cancel (customer).
func (h *BookingHandler) Cancel(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	b, err := h.Bookings.Cancel(ctx, c.Param("id"), uid)
	if err != nil {
		return repoError(c, h.Log, "cancel booking", err)
	}
	return c.JSON(http.StatusOK, b)
}

// ListJobs handles GET /rest/v1/jobs (technician).
func (h *BookingHandler) ListJobs(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	list, err := h.Bookings.ListByTechnician(ctx, uid)
	if err != nil {
		return repoError(c, h.Log, "list jobs", err)
	}
	return c.JSON(http.StatusOK, list)
}

// UpdateStatus handles PATCH /rest/v1/jobs/:id (technician) and
// PATCH /rest/v1/admin/bookings/:id/status (admin).
func (h *BookingHandler) UpdateStatus(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req statusReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	status := strings.ToUpper(strings.TrimSpace(req.Status))
	if !model.ValidBookingStatus(status) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown status"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	asAdmin := middleware.RoleFrom(c) == model.RoleAdmin
	b, err := h.Bookings.UpdateStatus(ctx, c.Param("id"), uid, status, asAdmin)
	if err != nil {
		return repoError(c, h.Log, "update status", err)
	}
	return c.JSON(http.StatusOK, b)
}

// ListAll handles GET /rest/v1/admin/bookings?status= (admin).
func (h *BookingHandler) ListAll(c echo.Context) error {
	status := strings.ToUpper(strings.TrimSpace(c.QueryParam("status")))
	if status != "" && !model.ValidBookingStatus(status) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown status"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	list, err := h.Bookings.ListAll(ctx, status)
	if err != nil {
		return repoError(c, h.Log, "list bookings", err)
	}
	return c.JSON(http.StatusOK, list)
}

// Assign handles PATCH /rest/v1/admin/bookings/:id/assign (admin).  The
// assignee's profile must carry the technician role.
func (h *BookingHandler) Assign(c echo.Context) error {
	var req assignReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.TechnicianID) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "technician_id required"})
	}
	techID := strings.TrimSpace(req.TechnicianID)

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	p, err := h.Profiles.GetProfile(ctx, techID)
	if err != nil {
		return repoError(c, h.Log, "get technician", err)
	}
	if r, _ := model.ParseRole(p.Role); r != model.RoleTechnician {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "assignee is not a technician"})
	}
	b, err := h.Bookings.Assign(ctx, c.Param("id"), techID)
	if err != nil {
		return repoError(c, h.Log, "assign booking", err)
	}
	return c.JSON(http.StatusOK, b)
}
