package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	goAuthClient "github.com/MrEthical07/goAuthClient"
)

type statusReport struct {
	State              string             `json:"state" yaml:"state"`
	User               *goAuthClient.User `json:"user,omitempty" yaml:"user,omitempty"`
	ExpiresAt          string             `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	RefreshState       string             `json:"refresh_state,omitempty" yaml:"refresh_state,omitempty"`
	PermissionsReady   bool               `json:"permissions_ready" yaml:"permissions_ready"`
	Permissions        []string           `json:"permissions,omitempty" yaml:"permissions,omitempty"`
	ServiceUnavailable bool               `json:"service_unavailable" yaml:"service_unavailable"`
}

func newStatusReport(s goAuthClient.Status) statusReport {
	r := statusReport{
		State:              s.State.String(),
		User:               s.User,
		RefreshState:       s.RefreshState,
		PermissionsReady:   s.PermissionsReady,
		Permissions:        s.Permissions,
		ServiceUnavailable: s.ServiceUnavailable,
	}
	if s.ExpiresAt > 0 {
		r.ExpiresAt = time.Unix(s.ExpiresAt, 0).UTC().Format(time.RFC3339)
	}
	return r
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var (
		format string
		wait   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the stored session and permissions",
		Long: `Restore the stored session and print the resulting state.

Examples:
  goauthclient status
  goauthclient status --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, closeFn, err := opts.openManager(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			waitForPermissions(m, wait)
			return writeStatus(cmd.OutOrStdout(), format, newStatusReport(m.Status()))
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text, json or yaml")
	cmd.Flags().DurationVar(&wait, "wait", 2*time.Second, "how long to wait for the permission snapshot")
	return cmd
}

// waitForPermissions polls until the permission snapshot settles, the
// session disappears or d elapses.
func waitForPermissions(m *goAuthClient.Manager, d time.Duration) {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if !m.IsAuthenticated() || m.Gate().IsReady() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func writeStatus(w io.Writer, format string, r statusReport) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(r)
	case "text", "":
		fmt.Fprintf(w, "State:        %s\n", r.State)
		if r.User != nil {
			fmt.Fprintf(w, "User:         %s (%s)\n", r.User.Email, r.User.Role)
		}
		if r.ExpiresAt != "" {
			fmt.Fprintf(w, "Expires:      %s\n", r.ExpiresAt)
		}
		if r.RefreshState != "" {
			fmt.Fprintf(w, "Refresh:      %s\n", r.RefreshState)
		}
		if r.PermissionsReady {
			fmt.Fprintf(w, "Permissions:  %s\n", strings.Join(r.Permissions, ", "))
		}
		if r.ServiceUnavailable {
			fmt.Fprintln(w, "Service:      unavailable")
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
