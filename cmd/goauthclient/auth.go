package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	goAuthClient "github.com/MrEthical07/goAuthClient"
)

// readPassword returns flagValue or the first line of stdin.
func readPassword(cmd *cobra.Command, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return "", errors.New("password is required")
	}
	return line, nil
}

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <email>",
		Short: "Sign in and persist the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := readPassword(cmd, password)
			if err != nil {
				return err
			}
			m, closeFn, err := opts.openManager(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			user, err := m.Login(cmd.Context(), args[0], pw, goAuthClient.LoginOptions{SkipSettleDelay: true})
			if err != nil {
				return describeAuthError("login", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", user.Email, user.Role)
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (read from stdin when empty)")
	return cmd
}

func newRegisterCmd(opts *rootOptions) *cobra.Command {
	var (
		password   string
		inviteCode string
		invitation bool
	)
	cmd := &cobra.Command{
		Use:   "register <email>",
		Short: "Create an account and sign in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := readPassword(cmd, password)
			if err != nil {
				return err
			}
			m, closeFn, err := opts.openManager(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			user, err := m.Register(cmd.Context(), goAuthClient.RegisterRequest{
				Email:             args[0],
				Password:          pw,
				InviteCode:        inviteCode,
				WithNewInvitation: invitation,
			})
			if err != nil {
				return describeAuthError("register", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s (%s)\n", user.Email, user.Role)
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (read from stdin when empty)")
	cmd.Flags().StringVar(&inviteCode, "invite", "", "invitation code to join an existing tenant")
	cmd.Flags().BoolVar(&invitation, "with-invitation", false, "mint an invitation for the new tenant")
	return cmd
}

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	var silent bool
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, closeFn, err := opts.openManager(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			if !m.IsAuthenticated() {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
				return nil
			}
			if err := m.Logout(cmd.Context(), goAuthClient.LogoutOptions{Silent: silent}); err != nil {
				// Local state is already cleared.
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
	cmd.Flags().BoolVar(&silent, "local", false, "clear local state without contacting the backend")
	return cmd
}

func newRevokeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke",
		Short: "Revoke every session of the current user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, closeFn, err := opts.openManager(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			if !m.IsAuthenticated() {
				return goAuthClient.ErrNotAuthenticated
			}
			if err := m.Revoke(cmd.Context()); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All sessions revoked")
			return nil
		},
	}
}

func describeAuthError(op string, err error) error {
	switch {
	case errors.Is(err, goAuthClient.ErrInvalidCredentials):
		return fmt.Errorf("%s: invalid email or password", op)
	case errors.Is(err, goAuthClient.ErrAuthServiceUnavailable):
		return fmt.Errorf("%s: auth service unavailable, try again later", op)
	case errors.Is(err, goAuthClient.ErrInvalidInput):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s failed: %w", op, err)
	}
}
