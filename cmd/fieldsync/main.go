package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/reliefops/fieldsync/internal/api"
	"github.com/reliefops/fieldsync/internal/config"
	"github.com/reliefops/fieldsync/internal/connectivity"
	"github.com/reliefops/fieldsync/internal/database"
	"github.com/reliefops/fieldsync/internal/logging"
	"github.com/reliefops/fieldsync/internal/outbox"
	"github.com/reliefops/fieldsync/internal/refdata"
	"github.com/reliefops/fieldsync/internal/session"
	"github.com/reliefops/fieldsync/internal/surveys"
	fieldsync "github.com/reliefops/fieldsync/internal/sync"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fieldsync",
		Short: "Offline-first field survey client",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newRunCommand(), newSyncCommand(), newListCommand(), newStatusCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("api-base-url", defaults.GetString("api.base_url"), "Survey server base URL")
	cmd.PersistentFlags().String("auth-token", "", "Bearer token (overrides the token file)")
	cmd.PersistentFlags().String("token-path", defaults.GetString("api.token_path"), "Path to the persisted bearer token")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().Duration("sync-interval", defaults.GetDuration("sync.interval"), "Periodic sync cadence while online")
	cmd.PersistentFlags().String("probe-url", defaults.GetString("connectivity.probe_url"), "Connectivity probe endpoint")
	cmd.PersistentFlags().Duration("probe-interval", defaults.GetDuration("connectivity.probe_interval"), "Connectivity probe cadence")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "api.base_url", "api-base-url")
	bindFlag(cmd, "api.auth_token", "auth-token")
	bindFlag(cmd, "api.token_path", "token-path")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "sync.interval", "sync-interval")
	bindFlag(cmd, "connectivity.probe_url", "probe-url")
	bindFlag(cmd, "connectivity.probe_interval", "probe-interval")
	bindFlag(cmd, "log.level", "log-level")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

// app bundles the wired collaborators behind every subcommand.
type app struct {
	cfg      config.AppConfig
	logger   *zap.Logger
	db       *gorm.DB
	session  *session.Session
	client   *api.Client
	surveys  *surveys.Service
	loader   *refdata.Loader
	outbox   *outbox.Service
	engine   *fieldsync.Engine
	monitor  *connectivity.Monitor
	shutdown []func()
}

func newApp() (*app, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return nil, err
	}

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return nil, err
	}

	userSession := session.New()
	if appConfig.TokenPath != "" {
		if err := userSession.LoadFile(appConfig.TokenPath); err != nil {
			return nil, err
		}
	}
	if appConfig.AuthToken != "" {
		userSession.SetToken(appConfig.AuthToken)
	}

	client, err := api.NewClient(api.ClientConfig{
		BaseURL: appConfig.APIBaseURL,
		Session: userSession,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	surveyStore, err := surveys.NewService(surveys.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: surveys.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	refStore, err := refdata.NewService(refdata.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return nil, err
	}
	loader, err := refdata.NewLoader(refdata.LoaderConfig{Store: refStore, Remote: client, Logger: logger})
	if err != nil {
		return nil, err
	}

	queue, err := outbox.NewService(outbox.ServiceConfig{Database: db, Clock: time.Now, Logger: logger})
	if err != nil {
		return nil, err
	}
	processor, err := outbox.NewProcessor(outbox.ProcessorConfig{Store: queue, Requester: client, Logger: logger})
	if err != nil {
		return nil, err
	}

	engine, err := fieldsync.NewEngine(fieldsync.EngineConfig{
		Surveys: surveyStore,
		Remote:  client,
		Outbox:  processor,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	application := &app{
		cfg:     appConfig,
		logger:  logger,
		db:      db,
		session: userSession,
		client:  client,
		surveys: surveyStore,
		loader:  loader,
		outbox:  queue,
		engine:  engine,
	}
	application.shutdown = append(application.shutdown, func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close() //nolint:errcheck
		}
		logger.Sync() //nolint:errcheck
	})
	return application, nil
}

func (a *app) close() {
	for i := len(a.shutdown) - 1; i >= 0; i-- {
		a.shutdown[i]()
	}
}

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Watch connectivity and sync continuously",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApp()
			if err != nil {
				return err
			}
			defer application.close()
			return runDaemon(cmd.Context(), application)
		},
	}
}

func runDaemon(ctx context.Context, application *app) error {
	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application.loader.EnsureAddresses(signalCtx)

	connectivitySignal, err := connectivitySignal(signalCtx, application)
	if err != nil {
		return err
	}

	monitor, err := connectivity.NewMonitor(connectivity.MonitorConfig{
		Syncer:   application.engine,
		Surveys:  application.surveys,
		Outbox:   application.outbox,
		Signal:   connectivitySignal,
		Interval: application.cfg.SyncInterval,
		Logger:   application.logger,
	})
	if err != nil {
		return err
	}
	application.monitor = monitor

	monitor.Start(signalCtx)
	application.logger.Info("field client running",
		zap.String("server", application.cfg.APIBaseURL),
		zap.Duration("sync_interval", application.cfg.SyncInterval))

	<-signalCtx.Done()
	monitor.Stop()
	application.logger.Info("field client stopped")
	return nil
}

// connectivitySignal prefers the HTTP probe when one is configured and falls
// back to a permanently-online signal otherwise, leaving the periodic cadence
// in charge.
func connectivitySignal(ctx context.Context, application *app) (<-chan bool, error) {
	if application.cfg.ProbeURL != "" {
		probe, err := connectivity.NewProbeSignal(connectivity.ProbeSignalConfig{
			URL:      application.cfg.ProbeURL,
			Interval: application.cfg.ProbeInterval,
			Logger:   application.logger,
		})
		if err != nil {
			return nil, err
		}
		return probe.Watch(ctx), nil
	}

	static := make(chan bool, 1)
	static <- true
	return static, nil
}

func newSyncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApp()
			if err != nil {
				return err
			}
			defer application.close()

			ctx := cmd.Context()
			application.loader.EnsureAddresses(ctx)

			summary, err := application.engine.Run(ctx)
			if err != nil {
				return err
			}
			pending, err := application.surveys.CountUnsynced(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "synced %d, failed %d, %d still pending\n",
				summary.Synced, summary.Failed, pending)
			return nil
		},
	}
}

func newListCommand() *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List locally stored surveys",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApp()
			if err != nil {
				return err
			}
			defer application.close()

			var records []surveys.Survey
			if statusFilter != "" {
				status, err := surveys.ParseStatus(statusFilter)
				if err != nil {
					return err
				}
				records, err = application.surveys.ListByStatus(cmd.Context(), status)
				if err != nil {
					return err
				}
			} else {
				records, err = application.surveys.ListAll(cmd.Context())
				if err != nil {
					return err
				}
			}

			writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(writer, "CLIENT ID\tSTATUS\tSERVER ID\tUPDATED")
			for _, record := range records {
				serverID := "-"
				if record.ServerID != nil {
					serverID = fmt.Sprintf("%d", *record.ServerID)
				}
				updated := time.Unix(record.UpdatedAtSeconds, 0).UTC().Format(time.RFC3339)
				fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", record.ClientID, record.Status, serverID, updated)
			}
			return writer.Flush()
		},
	}
	cmd.Flags().StringVar(&statusFilter, "status", "", "Only show surveys in this status (draft, pending, synced, error)")
	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync backlog and session state",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApp()
			if err != nil {
				return err
			}
			defer application.close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			for _, status := range []surveys.Status{
				surveys.StatusDraft, surveys.StatusPending, surveys.StatusSynced, surveys.StatusError,
			} {
				count, err := application.surveys.CountByStatus(ctx, status)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%-8s %d\n", status, count)
			}

			queued, err := application.outbox.Count(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "queued requests: %d\n", queued)

			if !application.session.Authenticated(time.Now()) {
				fmt.Fprintln(out, "session: not authenticated")
				return nil
			}
			if expiry, err := application.session.ExpiresAt(); err == nil {
				fmt.Fprintf(out, "session: valid until %s\n", expiry.UTC().Format(time.RFC3339))
			} else {
				fmt.Fprintln(out, "session: authenticated")
			}
			return nil
		},
	}
}
