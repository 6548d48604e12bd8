package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/danielhkuo/works-portal/cliparse"
	"github.com/danielhkuo/works-portal/db"
	"github.com/danielhkuo/works-portal/handlers"
	"github.com/danielhkuo/works-portal/logger"
	"github.com/danielhkuo/works-portal/media"
	"github.com/danielhkuo/works-portal/router"
	"github.com/danielhkuo/works-portal/seed"
)

const (
	shutdownTimeout = 10 * time.Second
	janitorInterval = 15 * time.Minute
)

func main() {
	// signal.NotifyContext cancels on Ctrl-C and SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := cliparse.NewViper()
	var envFile string

	serveCmd := func(cmd *cobra.Command, _ []string) error {
		return serve(cmd.Context(), v)
	}

	root := &cobra.Command{
		Use:          "portal",
		Short:        "Municipal works portal API server",
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return cliparse.LoadDotEnv(envFile)
		},
		RunE: serveCmd,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before reading settings")
	if err := cliparse.BindFlags(root.PersistentFlags(), v); err != nil {
		panic(err)
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the API server (default)",
		Args:  cobra.NoArgs,
		RunE:  serveCmd,
	})

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, log, store, err := setup(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer log.Sync()
			defer store.Close()
			return nil
		},
	})

	var seedFile string
	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Load regions, e-filing reference data and an admin user from YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, log, store, err := setup(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer log.Sync()
			defer store.Close()

			f, err := seed.Load(seedFile)
			if err != nil {
				log.Error("failed to read seed file", zap.String("file", seedFile), zap.Error(err))
				return err
			}
			if _, err := seed.Apply(cmd.Context(), store, log, f); err != nil {
				log.Error("seed failed", zap.Error(err))
				return err
			}
			return nil
		},
	}
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "seed.yaml", "Seed file")
	root.AddCommand(seedCmd)

	return root
}

// setup loads the configuration, builds the logger and opens a migrated
// database.
func setup(ctx context.Context, v *viper.Viper) (cliparse.Config, *zap.Logger, *db.Store, error) {
	cfg, err := cliparse.Load(v)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error parsing configuration:", err)
		return cliparse.Config{}, nil, nil, err
	}

	log, err := logger.New(os.Stderr, logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error building logger:", err)
		return cliparse.Config{}, nil, nil, err
	}

	store, err := db.Open(ctx, cfg.DatabaseType, cfg.DatabaseURL)
	if err != nil {
		log.Error("database connection failed", zap.Error(err))
		return cliparse.Config{}, nil, nil, err
	}

	if err := db.NewMigrator(store, log).Up(ctx, db.Migrations()); err != nil {
		log.Error("migration failed", zap.Error(err))
		store.Close()
		return cliparse.Config{}, nil, nil, err
	}
	log.Info("database schema ready", zap.String("dialect", store.Dialect))

	return cfg, log, store, nil
}

func serve(ctx context.Context, v *viper.Viper) error {
	cfg, log, store, err := setup(ctx, v)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer store.Close()

	files, err := media.NewStore(cfg.MediaDir, media.Limits{
		MaxImage: cfg.MaxImageSize,
		MaxVideo: cfg.MaxVideoSize,
		Chunk:    cfg.ChunkSize,
	})
	if err != nil {
		log.Error("media store unavailable", zap.Error(err))
		return err
	}

	server := &http.Server{
		Handler:           router.NewRouter(store, cfg, log, files),
		Addr:              ":" + strconv.Itoa(cfg.Port),
		ReadHeaderTimeout: 10 * time.Second,
	}
	janitor := handlers.NewMediaHandler(store, cfg, log, files)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("listening", zap.Int("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(janitorInterval)
		defer ticker.Stop()
		for {
			if _, err := janitor.PruneExpired(gctx); err != nil {
				log.Warn("upload cleanup failed", zap.Error(err))
			}
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped", zap.Error(err))
		return err
	}
	log.Info("server stopped")
	return nil
}
