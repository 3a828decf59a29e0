// Command app runs the lawn-care application core as a line-oriented shell:
// sign in, inspect the resolved role, open role-gated screens and use the
// diagnostics surface.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/lawncare-booking/internal/app"
	"github.com/iliyamo/lawncare-booking/internal/config"
	"github.com/iliyamo/lawncare-booking/internal/gate"
	"github.com/iliyamo/lawncare-booking/internal/logger"
	"github.com/iliyamo/lawncare-booking/internal/provider"
	"github.com/iliyamo/lawncare-booking/internal/session"
)

const usage = `commands:
  login <email> <password>   sign in
  logout [global]            sign out (global revokes every device)
  whoami                     show the session and resolved role
  refresh-role               force a token refresh and re-resolve
  open <screen>              open a gated screen (%s)
  diag                       show every role source side by side
  diag-refresh               refresh the session, then diag
  recover <action>           home | refresh_session | reauthenticate | sign_out
  help                       this text
  quit
`

func main() {
	config.LoadDotEnv("")
	cfg := config.LoadClient()

	zl, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := os.Stdout
	nav := session.NavigatorFunc(func(path string) { fmt.Fprintf(out, "-> %s\n", path) })
	a, err := app.New(cfg, zl, nav)
	if err != nil {
		zl.Fatal("start app", zap.Error(err))
	}
	defer a.Close()
	a.Start(ctx)

	sh := &shell{app: a, out: out, timeout: cfg.HTTPTimeout + cfg.RefreshTimeout}
	if err := sh.run(ctx, os.Stdin); err != nil && !errors.Is(err, context.Canceled) {
		zl.Error("shell", zap.Error(err))
	}
}

type shell struct {
	app     *app.App
	out     io.Writer
	timeout time.Duration
}

func (s *shell) printf(format string, args ...any) { fmt.Fprintf(s.out, format, args...) }

func (s *shell) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
		errc <- sc.Err()
		close(lines)
	}()

	s.printf(usage, strings.Join(app.ScreenNames(), ", "))
	for {
		s.printf("> ")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return <-errc
			}
			if quit := s.exec(ctx, strings.Fields(line)); quit {
				return nil
			}
		}
	}
}

// exec runs one command and reports whether the shell should exit.
func (s *shell) exec(parent context.Context, args []string) bool {
	if len(args) == 0 {
		return false
	}
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	switch args[0] {
	case "quit", "exit":
		return true
	case "help":
		s.printf(usage, strings.Join(app.ScreenNames(), ", "))
	case "login":
		if len(args) != 3 {
			s.printf("usage: login <email> <password>\n")
			return false
		}
		if err := s.app.SignIn(ctx, args[1], args[2]); err != nil {
			s.printf("login failed: %v\n", err)
		}
	case "logout":
		scope := provider.ScopeLocal
		if len(args) > 1 && args[1] == "global" {
			scope = provider.ScopeGlobal
		}
		if err := s.app.SignOut(ctx, scope); err != nil {
			s.printf("server sign-out failed (local session cleared): %v\n", err)
		}
	case "whoami":
		s.whoami(ctx)
	case "refresh-role":
		role, err := s.app.Recover(ctx, gate.ActionRefreshSession)
		if err != nil {
			s.printf("refresh failed: %v\n", err)
			return false
		}
		s.printf("role: %s\n", role)
	case "open":
		if len(args) != 2 {
			s.printf("usage: open <screen>\n")
			return false
		}
		s.open(ctx, args[1])
	case "diag":
		rep, err := s.app.Diagnostics.Snapshot(ctx)
		s.report(rep.String(), err)
	case "diag-refresh":
		rep, err := s.app.Diagnostics.RefreshSession(ctx)
		s.report(rep.String(), err)
	case "recover":
		if len(args) != 2 {
			s.printf("usage: recover <action>\n")
			return false
		}
		s.recover(ctx, gate.RecoveryAction(args[1]))
	default:
		s.printf("unknown command %q (try help)\n", args[0])
	}
	return false
}

func (s *shell) whoami(ctx context.Context) {
	g := gate.Guard{Gate: gate.New("")}
	if _, err := g.Wait(ctx, s.app.Observer); err != nil {
		s.printf("still resolving: %v\n", err)
		return
	}
	st := s.app.Observer.State()
	if !st.SignedIn() {
		s.printf("signed out\n")
		return
	}
	s.printf("user:  %s (%s)\nrole:  %s\nflags: admin=%t technician=%t customer=%t\nexpires: %s\n",
		st.Session.User.Email, st.Session.UserID(), st.Role,
		st.IsAdmin, st.IsTechnician, st.IsCustomer,
		st.Session.ExpiresAt.Local().Format(time.RFC1123))
}

func (s *shell) open(ctx context.Context, name string) {
	d, err := s.app.Open(ctx, name)
	if err != nil {
		s.printf("open %s: %v\n", name, err)
		return
	}
	switch d.Status {
	case gate.Authorized:
		s.printf("[%s] welcome, %s\n", name, d.Role)
	case gate.Denied:
		role := string(d.Role)
		if role == "" {
			role = "signed out"
		}
		s.printf("%s (%s). Redirecting to %s\n", d.Message, role, d.Redirect)
		actions := make([]string, len(d.Actions))
		for i, a := range d.Actions {
			actions[i] = string(a)
		}
		s.printf("recover with: %s\n", strings.Join(actions, " | "))
	}
}

func (s *shell) recover(ctx context.Context, action gate.RecoveryAction) {
	role, err := s.app.Recover(ctx, action)
	switch {
	case err != nil:
		s.printf("%s failed: %v\n", action, err)
	case action == gate.ActionRefreshSession:
		s.printf("role after refresh: %s\n", role)
	case action == gate.ActionReauthenticate:
		s.printf("signed out, login again\n")
	}
}

func (s *shell) report(text string, err error) {
	if errors.Is(err, provider.ErrNoSession) {
		s.printf("signed out\n")
		return
	}
	if err != nil {
		s.printf("diagnostics failed: %v\n", err)
		return
	}
	s.printf("%s\n", text)
}
