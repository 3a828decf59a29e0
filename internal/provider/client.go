package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/lawncare-booking/internal/model"
)

const maxResponseBytes = 2 * 1024 * 1024

// Options configures a Client.
type Options struct {
	BaseURL string
	AnonKey string
	Timeout time.Duration
	// Store persists the session; nil keeps it in memory only.
	Store SessionStore
	// AutoRefresh renews the access token RefreshMargin before it expires.
	AutoRefresh   bool
	RefreshMargin time.Duration
	Logger        *zap.Logger
}

// Client talks to the provider's REST API: GoTrue-style /auth/v1 endpoints
// and PostgREST-style /rest/v1 row access.  It caches the current session,
// emits auth events and optionally refreshes tokens in the background.
type Client struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	store      SessionStore
	log        *zap.Logger
	now        func() time.Time

	autoRefresh bool
	margin      time.Duration

	mu      sync.Mutex
	session *model.Session
	seq     uint64
	timer   *time.Timer
	closed  bool

	refreshMu sync.Mutex // serialises token rotation
	hub       *hub
}

// NewClient validates opts and restores any stored session.
func NewClient(opts Options) (*Client, error) {
	base := strings.TrimSpace(opts.BaseURL)
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, &RequestError{Op: "validate provider url", Err: fmt.Errorf("invalid provider url: %q", base)}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RefreshMargin <= 0 {
		opts.RefreshMargin = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	c := &Client{
		baseURL:     strings.TrimRight(base, "/"),
		anonKey:     opts.AnonKey,
		httpClient:  &http.Client{Timeout: opts.Timeout},
		store:       opts.Store,
		log:         opts.Logger,
		now:         time.Now,
		autoRefresh: opts.AutoRefresh,
		margin:      opts.RefreshMargin,
		hub:         newHub(),
	}
	if c.store != nil {
		s, err := c.store.Load()
		if err != nil {
			c.log.Warn("stored session unreadable, starting signed out", zap.Error(err))
		} else if s != nil {
			c.mu.Lock()
			c.session = s
			c.scheduleLocked()
			c.mu.Unlock()
		}
	}
	return c, nil
}

// Close stops the background refresh timer.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()
}

func (c *Client) GetSession(_ context.Context) (*model.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session, nil
}

// Seq returns the sequence number of the latest session change.  A
// listener that has handled an event with this Seq has seen every change
// made so far.
func (c *Client) Seq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

func (c *Client) OnAuthStateChange(l Listener) Subscription {
	// subscribing under mu keeps INITIAL_SESSION ordered with commits
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hub.subscribe(l, Event{Type: EventInitialSession, Session: c.session, Seq: c.seq})
}

type passwordGrant struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshGrant struct {
	RefreshToken string `json:"refresh_token"`
}

// tokenResponse is the wire shape of a session.
type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int64       `json:"expires_in"`
	ExpiresAt    int64       `json:"expires_at"`
	User         *model.User `json:"user"`
}

func (t tokenResponse) session() *model.Session {
	return &model.Session{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		ExpiresIn:    t.ExpiresIn,
		ExpiresAt:    time.Unix(t.ExpiresAt, 0).UTC(),
		User:         t.User,
	}
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	var tr tokenResponse
	err := c.doJSON(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "",
		passwordGrant{Email: strings.TrimSpace(email), Password: password}, &tr)
	if err != nil {
		return nil, err
	}
	s := tr.session()
	c.commit(nil, false, s, EventSignedIn)
	return s, nil
}

func (c *Client) RefreshSession(ctx context.Context) (*model.Session, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	c.mu.Lock()
	current := c.session
	c.mu.Unlock()
	if current == nil || current.RefreshToken == "" {
		return nil, ErrNoSession
	}

	var tr tokenResponse
	err := c.doJSON(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "",
		refreshGrant{RefreshToken: current.RefreshToken}, &tr)
	if err != nil {
		if IsUnauthorized(err) {
			// The refresh token is dead; the session cannot be recovered.
			c.commit(current, true, nil, EventSignedOut)
		}
		return nil, err
	}
	s := tr.session()
	if !c.commit(current, true, s, EventTokenRefreshed) {
		// signed out or signed in again while the request was in flight
		return nil, ErrNoSession
	}
	return s, nil
}

func (c *Client) SignOut(ctx context.Context, scope SignOutScope) error {
	if scope != ScopeGlobal {
		scope = ScopeLocal
	}
	c.mu.Lock()
	current := c.session
	c.mu.Unlock()

	var err error
	if current != nil {
		err = c.doJSON(ctx, http.MethodPost, "/auth/v1/logout?scope="+string(scope), current.AccessToken,
			refreshGrant{RefreshToken: current.RefreshToken}, nil)
	}
	// The local session is dropped even when the server call fails so the
	// user is never stuck signed in on this device.
	c.commit(nil, false, nil, EventSignedOut)
	return err
}

func (c *Client) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	var p model.Profile
	if err := c.authedJSON(ctx, http.MethodGet, "/rest/v1/profiles/"+url.PathEscape(userID), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) UpdateProfile(ctx context.Context, userID string, upd model.ProfileUpdate) (*model.Profile, error) {
	var p model.Profile
	if err := c.authedJSON(ctx, http.MethodPatch, "/rest/v1/profiles/"+url.PathEscape(userID), upd, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) GetUserRole(ctx context.Context, userID string) (*model.UserRole, error) {
	var ur model.UserRole
	if err := c.authedJSON(ctx, http.MethodGet, "/rest/v1/user_roles/"+url.PathEscape(userID), nil, &ur); err != nil {
		return nil, err
	}
	return &ur, nil
}

// Call performs an authenticated JSON request against any REST path.  The
// app's CRUD screens use it for tables the core does not model.
func (c *Client) Call(ctx context.Context, method, path string, body, out any) error {
	return c.authedJSON(ctx, method, path, body, out)
}

func (c *Client) authedJSON(ctx context.Context, method, path string, body, out any) error {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil {
		return ErrNoSession
	}
	err := c.doJSON(ctx, method, path, s.AccessToken, body, out)
	var reqErr *RequestError
	if errors.As(err, &reqErr) && reqErr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	}
	return err
}

// commit installs s, persists it and emits typ, all under mu so that the
// cached session, the stored copy and event order never disagree.  With
// ifCurrent set the swap only happens while the session is still old; it
// reports whether it happened.
func (c *Client) commit(old *model.Session, ifCurrent bool, s *model.Session, typ EventType) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ifCurrent && c.session != old {
		return false
	}
	c.session = s
	c.seq++
	c.scheduleLocked()
	c.persistLocked(s)
	c.hub.emit(Event{Type: typ, Session: s, Seq: c.seq})
	return true
}

func (c *Client) persistLocked(s *model.Session) {
	if c.store == nil {
		return
	}
	var err error
	if s == nil {
		err = c.store.Clear()
	} else {
		err = c.store.Save(s)
	}
	if err != nil {
		c.log.Warn("persist session failed", zap.Error(err))
	}
}

// scheduleLocked (re)arms the auto-refresh timer for the current session.
func (c *Client) scheduleLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if !c.autoRefresh || c.closed || c.session == nil || c.session.ExpiresAt.IsZero() {
		return
	}
	wait := c.session.ExpiresAt.Sub(c.now()) - c.margin
	if wait < 0 {
		wait = 0
	}
	c.timer = time.AfterFunc(wait, c.autoRefreshTick)
}

func (c *Client) autoRefreshTick() {
	ctx, cancel := context.WithTimeout(context.Background(), c.httpClient.Timeout)
	defer cancel()
	if _, err := c.RefreshSession(ctx); err != nil && !errors.Is(err, ErrNoSession) {
		c.log.Warn("background token refresh failed", zap.Error(err))
	}
}

func (c *Client) doJSON(ctx context.Context, method, path, bearer string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &RequestError{Op: "marshal request body", Err: err}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &RequestError{Op: "create http request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.anonKey != "" {
		req.Header.Set("apikey", c.anonKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RequestError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &RequestError{Op: "read http response", StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RequestError{Op: method + " " + path, StatusCode: resp.StatusCode, Err: errors.New(errorMessage(raw, resp.StatusCode))}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &RequestError{Op: "decode http response", StatusCode: resp.StatusCode, Err: err}
	}
	return nil
}

func errorMessage(raw []byte, status int) string {
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		return body.Error
	}
	if msg := strings.TrimSpace(string(raw)); msg != "" {
		return msg
	}
	return http.StatusText(status)
}
