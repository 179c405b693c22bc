package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gitter-badger/urfiles/icons/application"
	"github.com/gitter-badger/urfiles/icons/persistence"
	"github.com/gitter-badger/urfiles/internal/config"
	"github.com/gitter-badger/urfiles/internal/rest"
	"github.com/gitter-badger/urfiles/shared/db/sqlite"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const readHeaderTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the icon HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, err := cmd.Flags().GetString("config")
		if err != nil {
			return fmt.Errorf("failed to get config: %w", err)
		}

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		configureLogging(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return serve(ctx, cfg)
	},
}

func init() {
	serveCmd.Flags().StringP("config", "c", "", "Path to the YAML configuration file")
	rootCmd.AddCommand(serveCmd)
}

func configureLogging(cfg *config.Config) {
	zerolog.SetGlobalLevel(cfg.Level())
	if cfg.LogFormat == config.LogFormatConsole {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	if cfg.Level() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	files, err := persistence.NewLocalFileStore(cfg.BaseDirectory)
	if err != nil {
		return err
	}

	database := sqlite.NewSQLiteDB(cfg.SQLite())
	if err := database.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	}()

	icons := application.NewIconService(
		application.NewValidator(),
		files,
		persistence.NewIconRepository(database.DB()),
		persistence.NewTransactor(database.DB()),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           rest.NewRouter(rest.NewIconHandler(icons)),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().
			Int("port", cfg.Port).
			Str("base_directory", cfg.BaseDirectory).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		log.Info().Msg("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		return nil
	})

	err = g.Wait()
	log.Info().Msg("Server stopped")
	return err
}
