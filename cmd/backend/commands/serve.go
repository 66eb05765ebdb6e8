package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jinzhu/copier"
	"github.com/spf13/cobra"

	"github.com/caiquemiranda/backend-base/internal/api"
	"github.com/caiquemiranda/backend-base/internal/config"
	"github.com/caiquemiranda/backend-base/internal/fcache"
	"github.com/caiquemiranda/backend-base/internal/filedb"
	"github.com/caiquemiranda/backend-base/internal/httpd"
	"github.com/caiquemiranda/backend-base/internal/logger"
)

const shutdownGrace = 10 * time.Second

func serveCmd() *cobra.Command {
	var (
		configPath string
		overrides  config.Config
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			// flags beat the config file, empty flags leave it alone
			if err := copier.CopyWithOption(&cfg, &overrides, copier.Option{IgnoreEmpty: true}); err != nil {
				return err
			}
			if overrides.Debug {
				cfg.Debug = true
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			logger.Setup(logger.Config{Debug: cfg.Debug})

			return runServer(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	cmd.Flags().StringVar(&overrides.Host, "host", "", "listen host")
	cmd.Flags().IntVarP(&overrides.Port, "port", "p", 0, "listen port")
	cmd.Flags().StringVar(&overrides.DataFile, "data", "", "database file path")
	cmd.Flags().StringVar(&overrides.StaticDir, "static", "", "directory of static files to serve under /static/")
	cmd.Flags().BoolVar(&overrides.Debug, "debug", false, "enable debug logging")

	return cmd
}

func runServer(ctx context.Context, cfg config.Config) error {
	db, err := filedb.Open(cfg.DataFile, &filedb.Config{
		PersistenceStrategy: filedb.PersistenceStrategy(cfg.Persistence),
		AsyncFlushInterval:  cfg.FlushInterval,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cErr := db.Close(); cErr != nil {
			logger.L().Error("database close failed", "error", cErr.Error())
		}
	}()

	svc, err := api.New(db, api.WithCORSOrigin(cfg.CORSOrigin))
	if err != nil {
		return err
	}

	router := httpd.NewRouter()
	svc.Register(router)

	if cfg.StaticDir != "" {
		budget := cfg.FileCacheBytes
		if budget == 0 {
			budget = fcache.DefaultBudget()
		}

		cache, err := fcache.New(fcache.DefaultShards, budget)
		if err != nil {
			return err
		}

		router.GET("/static/*", httpd.StaticDir(cfg.StaticDir, cache))
	}

	srv := httpd.NewServer(httpd.Config{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}, router)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.L().Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.L().Error("shutdown incomplete", "error", err.Error())
	}

	return nil
}
