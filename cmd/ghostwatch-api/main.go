package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/ghostwatch/internal/auth"
	"github.com/MarcoPoloResearchLab/ghostwatch/internal/comments"
	"github.com/MarcoPoloResearchLab/ghostwatch/internal/config"
	"github.com/MarcoPoloResearchLab/ghostwatch/internal/database"
	"github.com/MarcoPoloResearchLab/ghostwatch/internal/ghosts"
	"github.com/MarcoPoloResearchLab/ghostwatch/internal/logging"
	"github.com/MarcoPoloResearchLab/ghostwatch/internal/server"
	"github.com/MarcoPoloResearchLab/ghostwatch/internal/sightings"
	"github.com/MarcoPoloResearchLab/ghostwatch/internal/store"
	"github.com/MarcoPoloResearchLab/ghostwatch/internal/tours"
	"github.com/MarcoPoloResearchLab/ghostwatch/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
)

func main() {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "ghostwatch-api",
		Short: "Campus ghost sightings API",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "bootstrap",
		Short: "Create the schema, apply migrations and seed an empty database, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBootstrap(cmd.Context())
		},
	})

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to configuration file")
	flags.String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	flags.String("database-engine", defaults.GetString("database.engine"), "Database engine (sqlite, mysql, postgres)")
	flags.String("database-path", defaults.GetString("database.path"), "SQLite database path")
	flags.String("database-dsn", defaults.GetString("database.dsn"), "MySQL or Postgres connection string")
	flags.Bool("seed", defaults.GetBool("seed.enabled"), "Seed demonstration data into an empty database")
	flags.Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Session token TTL in minutes")
	flags.String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	flags.String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	flags.String("signing-secret", "", "Session signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.engine", "database-engine")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "seed.enabled", "seed")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
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

func loadRuntime() (config.AppConfig, *zap.Logger, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return config.AppConfig{}, nil, err
	}
	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return config.AppConfig{}, nil, err
	}
	return appConfig, logger, nil
}

func openDatabase(ctx context.Context, appConfig config.AppConfig, logger *zap.Logger) (store.Store, error) {
	return database.Open(ctx, database.Config{
		Engine:       appConfig.DatabaseEngine,
		Path:         appConfig.DatabasePath,
		DSN:          appConfig.DatabaseDSN,
		SeedEnabled:  appConfig.SeedEnabled,
		ReadyTimeout: appConfig.ReadyTimeout,
	}, logger)
}

func runBootstrap(ctx context.Context) error {
	ctx, stop := shutdownSignals(ctx)
	defer stop()

	appConfig, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	st, err := openDatabase(ctx, appConfig, logger)
	if err != nil {
		logger.Error("bootstrap failed", zap.Error(err))
		return err
	}
	return st.Close()
}

// shutdownSignals is canceled on SIGINT or SIGTERM. It covers startup too, so
// an interrupt ends the wait for the database.
func shutdownSignals(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
}

func runServer(ctx context.Context) error {
	signalCtx, stop := shutdownSignals(ctx)
	defer stop()

	appConfig, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if logging.ParseLevel(appConfig.LogLevel) != zap.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	st, err := openDatabase(signalCtx, appConfig, logger)
	if err != nil {
		logger.Error("database bootstrap failed", zap.Error(err))
		return err
	}
	defer st.Close()

	handler, err := buildHandler(st, appConfig, logger)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress), zap.String("engine", string(st.Engine())))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func buildHandler(st store.Store, appConfig config.AppConfig, logger *zap.Logger) (http.Handler, error) {
	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.AuthSigningSecret),
		Issuer:        appConfig.AuthIssuer,
		Audience:      appConfig.AuthAudience,
		TokenTTL:      appConfig.AuthTokenTTL,
	})
	if err != nil {
		return nil, err
	}

	sightingService, err := sightings.NewService(sightings.ServiceConfig{Store: st, Logger: logger.Named("sightings")})
	if err != nil {
		return nil, err
	}
	ghostService, err := ghosts.NewService(ghosts.ServiceConfig{Store: st, Logger: logger.Named("ghosts")})
	if err != nil {
		return nil, err
	}
	sightingComments, err := comments.NewService(comments.ServiceConfig{Store: st, Target: comments.SightingTarget, Logger: logger.Named("comments")})
	if err != nil {
		return nil, err
	}
	ghostComments, err := comments.NewService(comments.ServiceConfig{Store: st, Target: comments.GhostTarget, Logger: logger.Named("comments")})
	if err != nil {
		return nil, err
	}
	userService, err := users.NewService(users.ServiceConfig{Store: st, Logger: logger.Named("users")})
	if err != nil {
		return nil, err
	}
	tourService, err := tours.NewService(tours.ServiceConfig{Store: st, Logger: logger.Named("tours")})
	if err != nil {
		return nil, err
	}

	return server.NewHTTPHandler(server.Dependencies{
		Health:           st,
		TokenManager:     tokenIssuer,
		Sightings:        sightingService,
		Ghosts:           ghostService,
		SightingComments: sightingComments,
		GhostComments:    ghostComments,
		Users:            userService,
		Tours:            tourService,
		Realtime:         server.NewRealtimeDispatcher(),
		AllowedOrigins:   appConfig.CORSAllowedOrigins,
		AuthRateLimit: server.RateLimit{
			RPS:   appConfig.AuthRateLimitRPS,
			Burst: appConfig.AuthRateLimitBurst,
		},
		Logger: logger,
	})
}
