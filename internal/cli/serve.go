package cli

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/konvergen/voicegate/internal/config"
	"github.com/konvergen/voicegate/internal/emotion"
	"github.com/konvergen/voicegate/internal/events"
	"github.com/konvergen/voicegate/internal/gateway"
	"github.com/konvergen/voicegate/internal/logging"
	"github.com/konvergen/voicegate/internal/provider"
	"github.com/konvergen/voicegate/internal/session"
	"github.com/konvergen/voicegate/internal/store"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the voicegate server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			if port != 0 {
				cfg.Server.Port = port
			}
			if bind != "" {
				cfg.Server.Bind = bind
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			if err := paths.EnsureDirs(); err != nil {
				return fmt.Errorf("creating data directories: %w", err)
			}

			// Rebuild the logger now that the config's logging section is known
			log = logging.NewWithOptions(nil, logging.Options{
				Level: resolveLevel(cfg.Logging.Level),
				Style: cfg.Logging.ConsoleStyle,
				File:  cfg.Logging.File,
			})

			bus := events.NewBus(log)
			events.InstallLogging(bus, log)

			var recorder session.Recorder
			var gwOpts []gateway.ServerOption
			if cfg.Session.Store == "sqlite" {
				dbPath := filepath.Join(paths.Data, "voicegate.db")
				db, err := store.Open(dbPath, log)
				if err != nil {
					return fmt.Errorf("opening conversation log: %w", err)
				}
				defer db.Close()
				recorder = db
				gwOpts = append(gwOpts, gateway.WithConversationLog(db))
			} else {
				log.Info().Msg("conversation log disabled (memory store)")
			}

			providerClient := provider.NewElevenLabsClient(
				cfg.Provider.BaseURL,
				cfg.Provider.APIKey,
				time.Duration(cfg.Provider.TimeoutSeconds)*time.Second,
				log,
			)

			classifier := emotion.NewClassifier(cfg.Emotion.BackendURL, log,
				emotion.WithTimeout(time.Duration(cfg.Emotion.TimeoutSeconds)*time.Second),
				emotion.WithCacheTTL(time.Duration(cfg.Emotion.CacheTTLMinutes)*time.Minute),
			)

			sessions := session.NewManager(providerClient, recorder, bus, log,
				session.WithIdleTimeout(time.Duration(cfg.Session.IdleMinutes)*time.Minute),
				session.WithSweepInterval(time.Duration(cfg.Session.SweepMinutes)*time.Minute),
			)

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			go sessions.RunReaper(ctx)

			srv := gateway.New(cfg, sessions, classifier, bus, log, gwOpts...)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override server port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (loopback, lan, custom)")

	return cmd
}

// resolveLevel prefers the --log-level flag over the config file.
func resolveLevel(configured string) string {
	if logLevel != "" {
		return logLevel
	}
	if configured != "" {
		return configured
	}
	return "info"
}
