package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/goAuthClient/internal/devserver"
)

func newDevserverCmd(opts *rootOptions) *cobra.Command {
	var (
		addr        string
		secret      string
		accessTTL   time.Duration
		seeds       []string
		maxAttempts int
	)
	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run a local auth backend for development",
		Long: `Run an in-memory auth backend serving the endpoints the client consumes.

Examples:
  goauthclient devserver --seed alice@example.com:correct-horse:member
  goauthclient devserver --addr :9000 --access-ttl 2m --redis-addr localhost:6379`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = uuid.NewString()
			}
			cfg := devserver.Config{
				Secret:            []byte(secret),
				AccessTTL:         accessTTL,
				Logger:            opts.logger(cmd),
				MaxSignInAttempts: maxAttempts,
			}
			if opts.redisAddr != "" {
				rdb := redis.NewClient(&redis.Options{Addr: opts.redisAddr})
				defer rdb.Close()
				cfg.Redis = rdb
			}

			srv, err := devserver.New(cfg)
			if err != nil {
				return err
			}
			for _, seed := range seeds {
				email, password, role, err := parseSeed(seed)
				if err != nil {
					return err
				}
				if _, err := srv.AddUser(email, password, role); err != nil {
					return fmt.Errorf("seed %s: %w", email, err)
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "devserver listening on %s\n", addr)
			return srv.ListenAndServe(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&secret, "secret", "", "HS256 signing secret (random when empty)")
	cmd.Flags().DurationVar(&accessTTL, "access-ttl", 15*time.Minute, "access token lifetime")
	cmd.Flags().StringArrayVar(&seeds, "seed", nil, "account to create, as email:password:role (repeatable)")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 5, "failed sign-ins per email before throttling (needs --redis-addr)")
	return cmd
}

// parseSeed splits email:password:role. The role defaults to member.
func parseSeed(v string) (email, password, role string, err error) {
	parts := strings.SplitN(v, ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", fmt.Errorf("invalid --seed %q, want email:password[:role]", v)
	}
	role = "member"
	if len(parts) == 3 && parts[2] != "" {
		role = parts[2]
	}
	return parts[0], parts[1], role, nil
}
