package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	goAuthClient "github.com/MrEthical07/goAuthClient"
)

type rootOptions struct {
	home      string
	config    string
	redisAddr string
	verbose   bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "goauthclient",
		Short: "Client-side auth session manager",
		Long: `goauthclient signs in against an auth backend, keeps the session fresh and
reports authorization state.

Sessions are persisted under --home so consecutive invocations share them.`,
		SilenceUsage: true,
	}

	defaultHome := ".goauthclient"
	if dir, err := os.UserHomeDir(); err == nil {
		defaultHome = filepath.Join(dir, ".goauthclient")
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.home, "home", defaultHome, "state directory")
	flags.StringVar(&opts.config, "config", "", "config file (default <home>/config.yaml)")
	flags.StringVar(&opts.redisAddr, "redis-addr", "", "redis address for redis storage and broadcast sync")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(
		newLoginCmd(opts),
		newRegisterCmd(opts),
		newLogoutCmd(opts),
		newRevokeCmd(opts),
		newStatusCmd(opts),
		newWatchCmd(opts),
		newConfigCmd(opts),
		newDevserverCmd(opts),
	)
	return cmd
}

func (o *rootOptions) configPath() string {
	if o.config != "" {
		return o.config
	}
	return filepath.Join(o.home, "config.yaml")
}

func (o *rootOptions) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// loadConfig reads the config file and environment. Memory storage is
// switched to file storage under home so sessions survive the process.
func (o *rootOptions) loadConfig() (goAuthClient.Config, error) {
	cfg, err := goAuthClient.LoadConfigFile(o.configPath())
	if err != nil {
		return goAuthClient.Config{}, err
	}
	if cfg.Session.Storage == goAuthClient.StorageMemory {
		cfg.Session.Storage = goAuthClient.StorageFile
		cfg.Session.FileDir = filepath.Join(o.home, "sessions")
	}
	if cfg.Backend.BaseURL == "" && !cfg.Auth.SpeedMode {
		return goAuthClient.Config{}, fmt.Errorf("no backend configured: set backend.base_url in %s or GOAUTHCLIENT_BACKEND_BASE_URL", o.configPath())
	}
	return cfg, nil
}

// openManager builds and starts a manager. The returned func closes it.
func (o *rootOptions) openManager(cmd *cobra.Command) (*goAuthClient.Manager, func(), error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Session.Storage == goAuthClient.StorageFile {
		if err := os.MkdirAll(cfg.Session.FileDir, 0o700); err != nil {
			return nil, nil, fmt.Errorf("create session dir: %w", err)
		}
	}

	b := goAuthClient.New().WithConfig(cfg).WithLogger(o.logger(cmd))
	var rdb redis.UniversalClient
	if o.redisAddr != "" {
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{o.redisAddr}})
		b = b.WithRedis(rdb)
	}
	closeRedis := func() {
		if rdb != nil {
			_ = rdb.Close()
		}
	}

	m, err := b.Build()
	if err != nil {
		closeRedis()
		return nil, nil, err
	}
	if err := m.Start(cmd.Context()); err != nil {
		_ = m.Close()
		closeRedis()
		return nil, nil, err
	}
	return m, func() {
		_ = m.Close()
		closeRedis()
	}, nil
}
