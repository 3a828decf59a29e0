package queue

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

type evictRecorder struct{ ids []string }

func (e *evictRecorder) Evict(_ context.Context, id string) { e.ids = append(e.ids, id) }

func TestRoleChangedHandlerEvicts(t *testing.T) {
	rec := &evictRecorder{}
	h := RoleChangedHandler(rec, zap.NewNop())
	body, _ := json.Marshal(RoleChangedEvent{UserID: "u-1", OldRole: "customer", NewRole: "technician"})
	if err := h(context.Background(), body); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(rec.ids) != 1 || rec.ids[0] != "u-1" {
		t.Fatalf("evicted %v", rec.ids)
	}
	if err := h(context.Background(), []byte(`{"new_role":"admin"}`)); err == nil {
		t.Fatalf("expected error without user_id")
	}
	if err := h(context.Background(), []byte(`{`)); err == nil {
		t.Fatalf("expected unmarshal error")
	}
}

func TestBookingLogHandlerAppends(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	h := BookingLogHandler(dir)
	for _, id := range []string{"b-1", "b-2"} {
		body, _ := json.Marshal(BookingCreatedEvent{BookingID: id, CustomerID: "u-1", Service: "mowing"})
		if err := h(context.Background(), body); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}
	data, err := os.ReadFile(filepath.Join(dir, "booking.log"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 || !strings.Contains(lines[1], "booking_id=b-2") {
		t.Fatalf("log = %q", data)
	}
}

func TestConsumerRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &Consumer{URL: "amqp://127.0.0.1:1/", Queue: RoleChangedQueue}
	if err := c.Run(ctx); err == nil {
		t.Fatalf("expected context error")
	}
}
