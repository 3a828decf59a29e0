package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/lawncare-booking/internal/config"
	"github.com/iliyamo/lawncare-booking/internal/middleware"
	"github.com/iliyamo/lawncare-booking/internal/model"
	"github.com/iliyamo/lawncare-booking/internal/queue"
	"github.com/iliyamo/lawncare-booking/internal/repository"
	"github.com/iliyamo/lawncare-booking/internal/resolver"
	"github.com/iliyamo/lawncare-booking/internal/utils"
)

// ----- fakes -----

type memAccounts struct {
	mu   sync.Mutex
	byID map[string]model.Account
}

func newMemAccounts() *memAccounts { return &memAccounts{byID: map[string]model.Account{}} }

func (m *memAccounts) Create(_ context.Context, in repository.SignUp) (model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.byID {
		if a.Email == in.Email {
			return model.Account{}, repository.ErrEmailExists
		}
	}
	hash, err := utils.HashPassword(in.Password, in.BcryptCost)
	if err != nil {
		return model.Account{}, err
	}
	role := model.RoleCustomer
	if in.Role != "" {
		role = in.Role
	}
	a := model.Account{ID: "u-" + in.Email, Email: in.Email, PasswordHash: hash,
		AppMetadata: map[string]any{"role": string(role)}, UserMetadata: in.UserMetadata, IsActive: true}
	m.byID[a.ID] = a
	return a, nil
}

func (m *memAccounts) GetByEmail(_ context.Context, email string) (model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.byID {
		if a.Email == email {
			return a, nil
		}
	}
	return model.Account{}, repository.ErrNotFound
}

func (m *memAccounts) GetByID(_ context.Context, id string) (model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return model.Account{}, repository.ErrNotFound
	}
	return a, nil
}

func (m *memAccounts) SetAppMetadataRole(_ context.Context, id string, role model.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	app := map[string]any{}
	for k, v := range a.AppMetadata {
		app[k] = v
	}
	app["role"] = string(role)
	a.AppMetadata = app
	m.byID[id] = a
	return nil
}

type memTokens struct {
	mu   sync.Mutex
	live map[string]string // hash -> user
}

func newMemTokens() *memTokens { return &memTokens{live: map[string]string{}} }

func (m *memTokens) StoreRefresh(_ context.Context, userID, hash string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.live[hash] = userID
	return nil
}

func (m *memTokens) ValidateRefresh(_ context.Context, hash string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	uid, ok := m.live[hash]
	if !ok {
		return "", repository.ErrNotFound
	}
	return uid, nil
}

func (m *memTokens) Rotate(_ context.Context, userID, oldHash, newHash string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.live[oldHash]; !ok {
		return repository.ErrNotFound
	}
	delete(m.live, oldHash)
	m.live[newHash] = userID
	return nil
}

func (m *memTokens) RevokeByHash(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.live, hash)
	return nil
}

func (m *memTokens) RevokeAllForUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for h, u := range m.live {
		if u == userID {
			delete(m.live, h)
		}
	}
	return nil
}

func (m *memTokens) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

type memProfiles struct {
	mu   sync.Mutex
	rows map[string]*model.Profile
}

func newMemProfiles(rows ...*model.Profile) *memProfiles {
	m := &memProfiles{rows: map[string]*model.Profile{}}
	for _, p := range rows {
		m.rows[p.UserID] = p
	}
	return m
}

func (m *memProfiles) GetProfile(_ context.Context, id string) (*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memProfiles) UpdateProfile(_ context.Context, id string, upd model.ProfileUpdate) (*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if upd.FullName != nil {
		p.FullName = *upd.FullName
	}
	if upd.Phone != nil {
		p.Phone = upd.Phone
	}
	if upd.Address != nil {
		p.Address = upd.Address
	}
	if upd.Role != nil {
		p.Role = *upd.Role
	}
	cp := *p
	return &cp, nil
}

func (m *memProfiles) GetUserRole(_ context.Context, id string) (*model.UserRole, error) {
	p, err := m.GetProfile(context.Background(), id)
	if err != nil {
		return nil, err
	}
	return &model.UserRole{UserID: id, Role: p.Role}, nil
}

type chanEvents struct {
	roles    chan queue.RoleChangedEvent
	bookings chan queue.BookingCreatedEvent
}

func newChanEvents() *chanEvents {
	return &chanEvents{roles: make(chan queue.RoleChangedEvent, 4), bookings: make(chan queue.BookingCreatedEvent, 4)}
}

func (e *chanEvents) PublishRoleChanged(_ context.Context, ev queue.RoleChangedEvent) error {
	e.roles <- ev
	return nil
}

func (e *chanEvents) PublishBookingCreated(_ context.Context, ev queue.BookingCreatedEvent) error {
	e.bookings <- ev
	return nil
}

// ----- helpers -----

var testCfg = config.Config{JWTSecret: "test-secret", AccessTTLMin: 15, RefreshTTLDays: 7, BcryptCost: 4, BootstrapAdmin: "boss@example.com"}

func newCtx(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func as(c echo.Context, uid string, role model.Role) {
	c.Set(middleware.CtxUserID, uid)
	c.Set(middleware.CtxRole, role)
}

func withID(c echo.Context, id string) {
	c.SetParamNames("id")
	c.SetParamValues(id)
}

func decodeToken(t *testing.T, rec *httptest.ResponseRecorder) tokenResp {
	t.Helper()
	var tr tokenResp
	if err := json.Unmarshal(rec.Body.Bytes(), &tr); err != nil {
		t.Fatalf("decode: %v (%s)", err, rec.Body.String())
	}
	return tr
}

func appRole(t *testing.T, access string) string {
	t.Helper()
	claims, err := utils.ParseAccessToken(testCfg.JWTSecret, access)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	app, _ := claims["app_metadata"].(map[string]interface{})
	r, _ := app["role"].(string)
	return r
}

func newAuth() (*AuthHandler, *memAccounts, *memTokens, *memProfiles) {
	accts, toks, profs := newMemAccounts(), newMemTokens(), newMemProfiles()
	return NewAuthHandler(testCfg, accts, toks, profs, nil), accts, toks, profs
}

// ----- auth -----

func TestSignupIssuesSession(t *testing.T) {
	h, _, toks, _ := newAuth()
	c, rec := newCtx(http.MethodPost, "/auth/v1/signup", `{"email":"Ann@Example.com","password":"longenough","data":{"full_name":"Ann"}}`)
	if err := h.Signup(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	tr := decodeToken(t, rec)
	if tr.TokenType != "bearer" || tr.AccessToken == "" || tr.RefreshToken == "" {
		t.Fatalf("incomplete session: %+v", tr)
	}
	if tr.User == nil || tr.User.Email != "ann@example.com" {
		t.Fatalf("user = %+v", tr.User)
	}
	if tr.ExpiresAt <= time.Now().Unix() || tr.ExpiresIn != 15*60 {
		t.Fatalf("expiry = %d / %d", tr.ExpiresAt, tr.ExpiresIn)
	}
	if got := appRole(t, tr.AccessToken); got != "customer" {
		t.Fatalf("role claim = %q, want customer", got)
	}
	if toks.count() != 1 {
		t.Fatalf("refresh tokens stored = %d", toks.count())
	}
}

func TestSignupIgnoresRoleInUserData(t *testing.T) {
	h, accts, _, _ := newAuth()
	c, rec := newCtx(http.MethodPost, "/auth/v1/signup",
		`{"email":"mallory@b.c","password":"longenough","data":{"role":"admin","full_name":"M"}}`)
	if err := h.Signup(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	tr := decodeToken(t, rec)
	claims, err := utils.ParseAccessToken(testCfg.JWTSecret, tr.AccessToken)
	if err != nil {
		t.Fatal(err)
	}
	if um, _ := claims["user_metadata"].(map[string]any); um["role"] != nil || um["full_name"] != "M" {
		t.Fatalf("user_metadata claim = %v", claims["user_metadata"])
	}
	if got := appRole(t, tr.AccessToken); got != "customer" {
		t.Fatalf("role claim = %q, want customer", got)
	}
	stored, _ := accts.GetByID(context.Background(), tr.User.ID)
	if _, ok := stored.UserMetadata["role"]; ok {
		t.Fatalf("stored user_metadata = %v", stored.UserMetadata)
	}

	// the token is resolved the same way the admin routes resolve it
	s := &model.Session{AccessToken: tr.AccessToken, User: &model.User{ID: tr.User.ID}}
	res := resolver.New(resolver.DefaultStrategies(nil)).Resolve(context.Background(), s)
	if res.Role != model.RoleCustomer {
		t.Fatalf("resolved role = %q", res.Role)
	}
}

func TestSignupBootstrapAdmin(t *testing.T) {
	h, _, _, _ := newAuth()
	c, rec := newCtx(http.MethodPost, "/auth/v1/signup", `{"email":"boss@example.com","password":"longenough"}`)
	_ = h.Signup(c)
	if got := appRole(t, decodeToken(t, rec).AccessToken); got != "admin" {
		t.Fatalf("role claim = %q", got)
	}
}

func TestSignupRejects(t *testing.T) {
	h, _, _, _ := newAuth()
	c, rec := newCtx(http.MethodPost, "/auth/v1/signup", `{"email":"a@b.c","password":"short"}`)
	_ = h.Signup(c)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("short password status = %d", rec.Code)
	}

	c, _ = newCtx(http.MethodPost, "/auth/v1/signup", `{"email":"a@b.c","password":"longenough"}`)
	_ = h.Signup(c)
	c, rec = newCtx(http.MethodPost, "/auth/v1/signup", `{"email":"a@b.c","password":"longenough"}`)
	_ = h.Signup(c)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate status = %d", rec.Code)
	}
}

func TestTokensNeverCarryUserMetadataRole(t *testing.T) {
	h, accts, _, _ := newAuth()
	c, rec := newCtx(http.MethodPost, "/auth/v1/signup", `{"email":"old@b.c","password":"longenough"}`)
	_ = h.Signup(c)
	id := decodeToken(t, rec).User.ID

	// a row written before role filtering existed
	accts.mu.Lock()
	a := accts.byID[id]
	a.UserMetadata = map[string]any{"role": "admin"}
	accts.byID[id] = a
	accts.mu.Unlock()

	c, rec = newCtx(http.MethodPost, "/auth/v1/token?grant_type=password", `{"email":"old@b.c","password":"longenough"}`)
	_ = h.Token(c)
	claims, err := utils.ParseAccessToken(testCfg.JWTSecret, decodeToken(t, rec).AccessToken)
	if err != nil {
		t.Fatal(err)
	}
	if um, _ := claims["user_metadata"].(map[string]any); um["role"] != nil {
		t.Fatalf("user_metadata claim = %v", um)
	}
}

func TestPasswordGrant(t *testing.T) {
	h, _, _, _ := newAuth()
	c, _ := newCtx(http.MethodPost, "/auth/v1/signup", `{"email":"a@b.c","password":"longenough"}`)
	_ = h.Signup(c)

	c, rec := newCtx(http.MethodPost, "/auth/v1/token?grant_type=password", `{"email":"a@b.c","password":"longenough"}`)
	_ = h.Token(c)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}

	c, rec = newCtx(http.MethodPost, "/auth/v1/token?grant_type=password", `{"email":"a@b.c","password":"wrongpass"}`)
	_ = h.Token(c)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad password status = %d", rec.Code)
	}

	c, rec = newCtx(http.MethodPost, "/auth/v1/token?grant_type=magic", `{}`)
	_ = h.Token(c)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown grant status = %d", rec.Code)
	}
}

func TestRefreshGrantCopiesProfileRole(t *testing.T) {
	h, accts, _, profs := newAuth()
	c, rec := newCtx(http.MethodPost, "/auth/v1/signup", `{"email":"tech@b.c","password":"longenough"}`)
	_ = h.Signup(c)
	first := decodeToken(t, rec)
	profs.rows[first.User.ID] = &model.Profile{UserID: first.User.ID, Role: "technician"}

	c, rec = newCtx(http.MethodPost, "/auth/v1/token?grant_type=refresh_token", `{"refresh_token":"`+first.RefreshToken+`"}`)
	_ = h.Token(c)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	second := decodeToken(t, rec)
	if got := appRole(t, second.AccessToken); got != "technician" {
		t.Fatalf("refreshed role claim = %q", got)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("refresh token not rotated")
	}
	stored, _ := accts.GetByID(context.Background(), first.User.ID)
	if stored.AppMetadata["role"] != "technician" {
		t.Fatalf("stored app_metadata = %v", stored.AppMetadata)
	}

	// the old token was consumed by the rotation
	c, rec = newCtx(http.MethodPost, "/auth/v1/token?grant_type=refresh_token", `{"refresh_token":"`+first.RefreshToken+`"}`)
	_ = h.Token(c)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("reused refresh status = %d", rec.Code)
	}
}

func TestLogoutScopes(t *testing.T) {
	h, _, toks, _ := newAuth()
	var sessions []tokenResp
	for i := 0; i < 2; i++ {
		body := `{"email":"a@b.c","password":"longenough"}`
		c, rec := newCtx(http.MethodPost, "/auth/v1/token?grant_type=password", body)
		if i == 0 {
			c, rec = newCtx(http.MethodPost, "/auth/v1/signup", body)
			_ = h.Signup(c)
		} else {
			_ = h.Token(c)
		}
		sessions = append(sessions, decodeToken(t, rec))
	}
	uid := sessions[0].User.ID

	c, rec := newCtx(http.MethodPost, "/auth/v1/logout?scope=local", `{"refresh_token":"`+sessions[0].RefreshToken+`"}`)
	c.Set(middleware.CtxUserID, uid)
	_ = h.Logout(c)
	if rec.Code != http.StatusNoContent || toks.count() != 1 {
		t.Fatalf("local logout: status=%d live=%d", rec.Code, toks.count())
	}

	c, rec = newCtx(http.MethodPost, "/auth/v1/logout?scope=global", `{}`)
	c.Set(middleware.CtxUserID, uid)
	_ = h.Logout(c)
	if rec.Code != http.StatusNoContent || toks.count() != 0 {
		t.Fatalf("global logout: status=%d live=%d", rec.Code, toks.count())
	}

	c, rec = newCtx(http.MethodPost, "/auth/v1/logout?scope=everywhere", `{}`)
	c.Set(middleware.CtxUserID, uid)
	_ = h.Logout(c)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad scope status = %d", rec.Code)
	}
}

// ----- profiles -----

func newProfileHandler() (*ProfileHandler, *memProfiles, *chanEvents) {
	profs := newMemProfiles(
		&model.Profile{UserID: "u1", FullName: "Ann", Role: "customer"},
		&model.Profile{UserID: "u2", FullName: "Bob", Role: "customer"},
	)
	ev := newChanEvents()
	return NewProfileHandler(profs, ev, nil), profs, ev
}

func TestProfileReadAccess(t *testing.T) {
	h, _, _ := newProfileHandler()
	cases := []struct {
		caller string
		role   model.Role
		target string
		want   int
	}{
		{"u1", model.RoleCustomer, "u1", http.StatusOK},
		{"u1", model.RoleCustomer, "u2", http.StatusForbidden},
		{"u1", model.RoleTechnician, "u2", http.StatusForbidden},
		{"admin", model.RoleAdmin, "u2", http.StatusOK},
		{"admin", model.RoleAdmin, "missing", http.StatusNotFound},
	}
	for _, tc := range cases {
		c, rec := newCtx(http.MethodGet, "/rest/v1/profiles/"+tc.target, "")
		as(c, tc.caller, tc.role)
		withID(c, tc.target)
		_ = h.GetProfile(c)
		if rec.Code != tc.want {
			t.Fatalf("%s(%s) -> %s: status %d, want %d", tc.caller, tc.role, tc.target, rec.Code, tc.want)
		}
	}
}

func TestProfileSelfUpdate(t *testing.T) {
	h, profs, _ := newProfileHandler()
	c, rec := newCtx(http.MethodPatch, "/rest/v1/profiles/u1", `{"full_name":"  Ann B  ","phone":"555"}`)
	as(c, "u1", model.RoleCustomer)
	withID(c, "u1")
	_ = h.UpdateProfile(c)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if p := profs.rows["u1"]; p.FullName != "Ann B" || p.Phone == nil || *p.Phone != "555" {
		t.Fatalf("row = %+v", p)
	}
}

func TestRoleChangeRequiresAdmin(t *testing.T) {
	h, profs, _ := newProfileHandler()
	c, rec := newCtx(http.MethodPatch, "/rest/v1/profiles/u1", `{"role":"admin"}`)
	as(c, "u1", model.RoleCustomer)
	withID(c, "u1")
	_ = h.UpdateProfile(c)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("self-promotion status = %d", rec.Code)
	}
	if profs.rows["u1"].Role != "customer" {
		t.Fatal("role changed without admin")
	}
}

func TestAdminRoleChangePublishes(t *testing.T) {
	h, profs, ev := newProfileHandler()
	c, rec := newCtx(http.MethodPatch, "/rest/v1/profiles/u2", `{"role":" Technician "}`)
	as(c, "boss", model.RoleAdmin)
	withID(c, "u2")
	_ = h.UpdateProfile(c)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if profs.rows["u2"].Role != "technician" {
		t.Fatalf("role = %q", profs.rows["u2"].Role)
	}
	select {
	case got := <-ev.roles:
		if got.UserID != "u2" || got.OldRole != "customer" || got.NewRole != "technician" || got.ChangedBy != "boss" {
			t.Fatalf("event = %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("role.changed not published")
	}
}

func TestAdminRoleChangeValidates(t *testing.T) {
	h, _, _ := newProfileHandler()
	c, rec := newCtx(http.MethodPatch, "/rest/v1/profiles/u2", `{"role":"authenticated"}`)
	as(c, "boss", model.RoleAdmin)
	withID(c, "u2")
	_ = h.UpdateProfile(c)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGetUserRole(t *testing.T) {
	h, _, _ := newProfileHandler()
	c, rec := newCtx(http.MethodGet, "/rest/v1/user_roles/u1", "")
	as(c, "u1", model.RoleCustomer)
	withID(c, "u1")
	_ = h.GetUserRole(c)
	var ur model.UserRole
	if err := json.Unmarshal(rec.Body.Bytes(), &ur); err != nil || ur.Role != "customer" {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
}

// ----- bookings -----

type memBookings struct {
	mu      sync.Mutex
	rows    map[string]*model.Booking
	nextErr error
}

func (m *memBookings) Create(_ context.Context, customerID string, in repository.NewBooking) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := &model.Booking{ID: "b1", CustomerID: customerID, Service: in.Service, Address: in.Address,
		ScheduledFor: in.ScheduledFor, Status: model.BookingRequested, CreatedAt: time.Now()}
	m.rows[b.ID] = b
	return b, nil
}

func (m *memBookings) ListByCustomer(_ context.Context, id string) ([]model.Booking, error) {
	return m.filter(func(b *model.Booking) bool { return b.CustomerID == id }), nil
}

func (m *memBookings) ListByTechnician(_ context.Context, id string) ([]model.Booking, error) {
	return m.filter(func(b *model.Booking) bool { return b.TechnicianID != nil && *b.TechnicianID == id }), nil
}

func (m *memBookings) ListAll(_ context.Context, status string) ([]model.Booking, error) {
	return m.filter(func(b *model.Booking) bool { return status == "" || b.Status == status }), nil
}

func (m *memBookings) Assign(_ context.Context, id, techID string) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	b.TechnicianID = &techID
	b.Status = model.BookingScheduled
	return b, nil
}

func (m *memBookings) UpdateStatus(_ context.Context, id, _, status string, _ bool) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nextErr != nil {
		return nil, m.nextErr
	}
	b, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	b.Status = status
	return b, nil
}

func (m *memBookings) Cancel(_ context.Context, id, customerID string) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if b.CustomerID != customerID {
		return nil, repository.ErrForbidden
	}
	b.Status = model.BookingCancelled
	return b, nil
}

func (m *memBookings) filter(keep func(*model.Booking) bool) []model.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Booking{}
	for _, b := range m.rows {
		if keep(b) {
			out = append(out, *b)
		}
	}
	return out
}

func newBookingHandler() (*BookingHandler, *memBookings, *chanEvents) {
	bk := &memBookings{rows: map[string]*model.Booking{}}
	profs := newMemProfiles(
		&model.Profile{UserID: "tech", Role: "technician"},
		&model.Profile{UserID: "cust", Role: "customer"},
	)
	ev := newChanEvents()
	return NewBookingHandler(bk, profs, ev, nil), bk, ev
}

func TestBookingCreate(t *testing.T) {
	h, _, ev := newBookingHandler()

	c, rec := newCtx(http.MethodPost, "/rest/v1/bookings", `{"service":"mowing"}`)
	as(c, "cust", model.RoleCustomer)
	_ = h.Create(c)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing fields status = %d", rec.Code)
	}

	c, rec = newCtx(http.MethodPost, "/rest/v1/bookings",
		`{"service":"mowing","address":"1 Elm St","scheduled_for":"2026-05-01T09:00:00Z"}`)
	as(c, "cust", model.RoleCustomer)
	_ = h.Create(c)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	select {
	case got := <-ev.bookings:
		if got.CustomerID != "cust" || got.ScheduledFor != "2026-05-01T09:00:00Z" {
			t.Fatalf("event = %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("booking.created not published")
	}
}

func TestBookingCancelOwnership(t *testing.T) {
	h, bk, _ := newBookingHandler()
	bk.rows["b1"] = &model.Booking{ID: "b1", CustomerID: "cust", Status: model.BookingRequested}

	c, rec := newCtx(http.MethodPost, "/rest/v1/bookings/b1/cancel", "")
	as(c, "someone-else", model.RoleCustomer)
	withID(c, "b1")
	_ = h.Cancel(c)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAssignRequiresTechnician(t *testing.T) {
	h, bk, _ := newBookingHandler()
	bk.rows["b1"] = &model.Booking{ID: "b1", CustomerID: "cust", Status: model.BookingRequested}

	c, rec := newCtx(http.MethodPatch, "/rest/v1/admin/bookings/b1/assign", `{"technician_id":"cust"}`)
	as(c, "boss", model.RoleAdmin)
	withID(c, "b1")
	_ = h.Assign(c)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("non-technician status = %d", rec.Code)
	}

	c, rec = newCtx(http.MethodPatch, "/rest/v1/admin/bookings/b1/assign", `{"technician_id":"tech"}`)
	as(c, "boss", model.RoleAdmin)
	withID(c, "b1")
	_ = h.Assign(c)
	if rec.Code != http.StatusOK || bk.rows["b1"].Status != model.BookingScheduled {
		t.Fatalf("status = %d row=%+v", rec.Code, bk.rows["b1"])
	}

	c, rec = newCtx(http.MethodGet, "/rest/v1/jobs", "")
	as(c, "tech", model.RoleTechnician)
	_ = h.ListJobs(c)
	var jobs []model.Booking
	if err := json.Unmarshal(rec.Body.Bytes(), &jobs); err != nil || len(jobs) != 1 {
		t.Fatalf("jobs = %s", rec.Body.String())
	}
}

func TestUpdateStatusErrors(t *testing.T) {
	h, bk, _ := newBookingHandler()
	bk.rows["b1"] = &model.Booking{ID: "b1", Status: model.BookingRequested}

	c, rec := newCtx(http.MethodPatch, "/rest/v1/jobs/b1", `{"status":"done"}`)
	as(c, "tech", model.RoleTechnician)
	withID(c, "b1")
	_ = h.UpdateStatus(c)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown status code = %d", rec.Code)
	}

	bk.nextErr = repository.ErrConflict
	c, rec = newCtx(http.MethodPatch, "/rest/v1/jobs/b1", `{"status":"completed"}`)
	as(c, "tech", model.RoleTechnician)
	withID(c, "b1")
	_ = h.UpdateStatus(c)
	if rec.Code != http.StatusConflict {
		t.Fatalf("conflict code = %d", rec.Code)
	}
}

func TestListAllFiltersStatus(t *testing.T) {
	h, bk, _ := newBookingHandler()
	bk.rows["b1"] = &model.Booking{ID: "b1", Status: model.BookingRequested}
	bk.rows["b2"] = &model.Booking{ID: "b2", Status: model.BookingCompleted}

	c, rec := newCtx(http.MethodGet, "/rest/v1/admin/bookings?status=requested", "")
	as(c, "boss", model.RoleAdmin)
	_ = h.ListAll(c)
	var list []model.Booking
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || len(list) != 1 || list[0].ID != "b1" {
		t.Fatalf("list = %s", rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	c, rec := newCtx(http.MethodGet, "/healthz", "")
	_ = Health(c)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("health = %d %q", rec.Code, rec.Body.String())
	}
}
