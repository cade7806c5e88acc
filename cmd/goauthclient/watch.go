package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	goAuthClient "github.com/MrEthical07/goAuthClient"
	"github.com/MrEthical07/goAuthClient/events"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep the session alive and print lifecycle events",
		Long: `Restore the stored session, run the refresh engine and print every
lifecycle event until interrupted.

Each line read from stdin is reported as user activity; the line names the
activity kind (click, keydown, focus, ...) and an empty line means keydown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, closeFn, err := opts.openManager(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			out := &lockedWriter{w: cmd.OutOrStdout()}
			for _, unsub := range subscribePrinter(m.Bus(), out) {
				defer unsub()
			}
			out.printf("watching (state %s)\n", m.State())

			go readActivity(cmd.InOrStdin(), m)
			<-cmd.Context().Done()
			return nil
		},
	}
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, format, args...)
}

func (l *lockedWriter) event(name, detail string) {
	l.printf("%s %-26s %s\n", time.Now().Format(time.TimeOnly), name, detail)
}

func subscribePrinter(bus *events.Bus, out *lockedWriter) []func() {
	return []func(){
		events.On(bus, events.AuthLoginSuccess, func(e events.LoginSuccess) {
			out.event(events.AuthLoginSuccess.Name(), e.User.Email)
		}),
		events.On(bus, events.AuthRegisterSuccess, func(e events.RegisterSuccess) {
			out.event(events.AuthRegisterSuccess.Name(), e.User.Email)
		}),
		events.On(bus, events.AuthLogout, func(e events.Logout) {
			out.event(events.AuthLogout.Name(), fmt.Sprintf("reason=%s silent=%t", e.Reason, e.Silent))
		}),
		events.On(bus, events.AuthSessionExpired, func(e events.SessionExpired) {
			out.event(events.AuthSessionExpired.Name(), "reason="+e.Reason)
		}),
		events.On(bus, events.AuthTokenRefreshed, func(e events.TokenRefreshed) {
			out.event(events.AuthTokenRefreshed.Name(), "expires="+e.ExpiresAt.Format(time.RFC3339))
		}),
		events.On(bus, events.AuthServiceUnavailable, func(e events.ServiceUnavailable) {
			out.event(events.AuthServiceUnavailable.Name(), fmt.Sprint(e.Err))
		}),
		events.On(bus, events.AuthzPermissionsReady, func(e events.Permissions) {
			out.event(events.AuthzPermissionsReady.Name(), strings.Join(e.Permissions, ","))
		}),
		events.On(bus, events.AuthzPermissionsUpdated, func(e events.Permissions) {
			out.event(events.AuthzPermissionsUpdated.Name(), strings.Join(e.Permissions, ","))
		}),
		events.On(bus, events.AuthzPermissionDenied, func(e events.PermissionDenied) {
			out.event(events.AuthzPermissionDenied.Name(), strings.Join(e.Permissions, ",")+e.Route)
		}),
		events.On(bus, events.SyncDataUpdated, func(e events.DataUpdated) {
			out.event(events.SyncDataUpdated.Name(), fmt.Sprintf("topic=%s remote=%t", e.Topic, e.Remote))
		}),
	}
}

func readActivity(r io.Reader, m *goAuthClient.Manager) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name == "" {
			name = "keydown"
		}
		m.NotifyActivity(goAuthClient.ParseActivity(name))
	}
}
