package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/eventure-server/internal/app"
	"github.com/vovakirdan/eventure-server/internal/auth"
	"github.com/vovakirdan/eventure-server/internal/config"
	"github.com/vovakirdan/eventure-server/internal/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var overrides config.Config

	serve := func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(configPath, overrides)
		if err != nil {
			return err
		}
		logger := log.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		application, err := app.New(ctx, &cfg, logger)
		if err != nil {
			logger.Error().Err(err).Msg("failed to initialize application")
			return err
		}

		logger.Info().Str("addr", cfg.Addr).Msg("starting eventure server")
		if err := application.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("server exited with error")
			return err
		}
		logger.Info().Msg("server stopped")
		return nil
	}

	root := &cobra.Command{
		Use:          "eventure-server",
		Short:        "Messaging and notification server for event participants",
		SilenceUsage: true,
		RunE:         serve,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default ./config.yaml)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE:  serve,
	}
	for _, cmd := range []*cobra.Command{root, serveCmd} {
		flags := cmd.Flags()
		flags.StringVar(&overrides.Addr, "addr", "", "HTTP listen address")
		flags.DurationVar(&overrides.ReadHeaderTimeout, "read-header-timeout", 0, "HTTP read header timeout")
		flags.DurationVar(&overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")
		flags.StringVar(&overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
		flags.StringVar(&overrides.LogFormat, "log-format", "", "log format (console, json)")
		flags.StringVar(&overrides.DatabaseDriver, "database-driver", "", "database driver (sqlite, postgres)")
		flags.StringVar(&overrides.DatabasePath, "database-path", "", "sqlite database file")
		flags.StringVar(&overrides.DatabaseURL, "database-url", "", "postgres connection url")
		flags.StringVar(&overrides.RedisURL, "redis-url", "", "redis url for cross-instance broadcast")
	}

	root.AddCommand(serveCmd, newTokenCmd(&configPath))
	return root
}

func newTokenCmd(configPath *string) *cobra.Command {
	var userID, name string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development token for a user id",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath, config.Config{})
			if err != nil {
				return err
			}
			token, err := auth.GenerateToken(&auth.JWTConfig{
				Secret:   []byte(cfg.JWTSecret),
				Issuer:   cfg.JWTIssuer,
				Audience: cfg.JWTAudience,
				TTL:      cfg.JWTTTL,
			}, userID, name)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (token subject)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func loadConfig(path string, overrides config.Config) (config.Config, error) {
	bootstrap := log.New(os.Stderr, "info", log.FormatConsole)

	cfg, resolved, err := config.Load(bootstrap, path)
	if err != nil {
		return cfg, fmt.Errorf("load config %s: %w", resolved, err)
	}
	cfg.UpdateFrom(overrides)
	return cfg, nil
}
