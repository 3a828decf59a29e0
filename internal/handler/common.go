package handler

import (
	"context"  // background context for event publishing
	"errors"   // sentinel comparisons
	"net/http" // status codes
	"time"     // publish timeout

	"github.com/labstack/echo/v4" // echo context
	"go.uber.org/zap"             // structured logging

	"github.com/iliyamo/lawncare-booking/internal/middleware"
	"github.com/iliyamo/lawncare-booking/internal/queue"
	"github.com/iliyamo/lawncare-booking/internal/repository"
)

// Events publishes domain events.  A nil Events disables publishing.
type Events interface {
	PublishRoleChanged(ctx context.Context, ev queue.RoleChangedEvent) error
	PublishBookingCreated(ctx context.Context, ev queue.BookingCreatedEvent) error
}

const publishTimeout = 5 * time.Second

// getUserID returns the authenticated subject set by JWTAuth.
func getUserID(c echo.Context) (string, error) {
	if v, ok := c.Get(middleware.CtxUserID).(string); ok && v != "" {
		return v, nil
	}
	return "", errors.New("invalid user_id in context")
}

// repoError maps repository sentinels onto HTTP responses.
func repoError(c echo.Context, log *zap.Logger, op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "conflict"})
	}
	log.Error(op+" failed", zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": op + " failed"})
}

// publishAsync runs fn off the request path.  Failures are logged only.
func publishAsync(log *zap.Logger, what string, fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			log.Warn("publish "+what+" failed", zap.Error(err))
		}
	}()
}
