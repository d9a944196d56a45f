package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/bankcards-api/internal/config"
	"github.com/phrazzld/bankcards-api/internal/domain"
	"github.com/phrazzld/bankcards-api/internal/platform/memory"
	"github.com/phrazzld/bankcards-api/internal/platform/metrics"
	"github.com/phrazzld/bankcards-api/internal/platform/postgres"
	"github.com/phrazzld/bankcards-api/internal/service"
	"github.com/phrazzld/bankcards-api/internal/service/auth"
	"github.com/phrazzld/bankcards-api/internal/store"
	"github.com/phrazzld/bankcards-api/internal/task"
	"golang.org/x/sync/errgroup"
)

// application holds the wired components of a running server.
type application struct {
	config  *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	// db is nil for the memory backend.
	db *sql.DB

	cardStore     store.CardStore
	userStore     store.UserStore
	transferStore store.TransferStore

	jwtService auth.JWTService

	cardService     service.CardService
	transferService service.TransferService
	userService     service.UserService
	authService     service.AuthService

	sweeper *task.ExpirySweeper
}

// newApplication opens storage and builds every service. The caller must
// call cleanup once the application is no longer needed.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		config:  cfg,
		logger:  logger,
		metrics: metrics.New(),
	}

	if err := app.setupStorage(ctx); err != nil {
		return nil, err
	}

	if err := app.setupServices(); err != nil {
		app.cleanup()
		return nil, err
	}

	if err := app.bootstrapAdmin(ctx); err != nil {
		app.cleanup()
		return nil, err
	}

	logger.Info("application initialized successfully")
	return app, nil
}

func (app *application) setupStorage(ctx context.Context) error {
	switch app.config.Server.Storage {
	case config.StorageMemory:
		db := memory.New(app.logger)
		app.cardStore = db.Cards()
		app.userStore = db.Users()
		app.transferStore = db.Transfers()
		app.logger.Warn("using in-memory storage, data is lost on restart")
		return nil

	case config.StoragePostgres:
		db, err := setupAppDatabase(ctx, app.config.Database, app.logger)
		if err != nil {
			return err
		}
		if app.config.Database.RunMigrations {
			if err := postgres.Migrate(ctx, db, "up", app.logger); err != nil {
				_ = db.Close()
				return fmt.Errorf("failed to apply migrations: %w", err)
			}
		}
		app.db = db
		app.cardStore = postgres.NewPostgresCardStore(db, app.logger)
		app.userStore = postgres.NewPostgresUserStore(db, app.logger)
		app.transferStore = postgres.NewPostgresTransferStore(db, app.logger)
		return nil

	default:
		return fmt.Errorf("unsupported storage backend %q", app.config.Server.Storage)
	}
}

func (app *application) setupServices() error {
	cfg := app.config
	var err error

	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	app.logger.Info("JWT authentication service initialized",
		slog.Int("token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes))

	passwords := auth.NewBcryptVerifier(cfg.Auth.BCryptCost)
	opts := service.CardServiceOptions{
		Clock:       service.NewClock(cfg.Expiry.Location()),
		LockTimeout: cfg.Transfer.LockTimeout,
		Metrics:     app.metrics,
	}

	app.cardService, err = service.NewCardService(app.cardStore, app.userStore, opts, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create card service: %w", err)
	}

	app.transferService, err = service.NewTransferService(app.cardStore, app.transferStore,
		service.TransferServiceOptions{
			CardServiceOptions: opts,
			MaxAmount:          cfg.Transfer.MaxAmountDecimal(),
		}, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create transfer service: %w", err)
	}

	app.userService, err = service.NewUserService(app.userStore, app.cardStore, passwords, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create user service: %w", err)
	}

	app.authService, err = service.NewAuthService(app.userService, app.userStore, passwords,
		app.jwtService, opts.Clock, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create auth service: %w", err)
	}

	if cfg.Expiry.SweepInterval > 0 {
		app.sweeper, err = task.NewExpirySweeper(app.cardService, task.ExpirySweeperConfig{
			Interval:  cfg.Expiry.SweepInterval,
			BatchSize: cfg.Expiry.SweepBatchSize,
		}, app.logger)
		if err != nil {
			return fmt.Errorf("failed to create expiry sweeper: %w", err)
		}
	}

	return nil
}

// bootstrapAdmin creates the configured administrator unless the username
// already exists.
func (app *application) bootstrapAdmin(ctx context.Context) error {
	username := app.config.Auth.BootstrapAdminUsername
	if username == "" {
		return nil
	}

	_, err := app.userService.CreateUser(ctx, username, app.config.Auth.BootstrapAdminPassword,
		[]domain.Role{domain.RoleUser, domain.RoleAdmin})
	switch {
	case err == nil:
		app.logger.Info("bootstrap administrator created", slog.String("username", username))
		return nil
	case errors.Is(err, domain.ErrUsernameTaken):
		app.logger.Debug("bootstrap administrator already exists", slog.String("username", username))
		return nil
	default:
		return fmt.Errorf("failed to create bootstrap administrator: %w", err)
	}
}

// Run serves HTTP and, when enabled, sweeps expired cards until ctx is
// cancelled or either component fails.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.startHTTPServer(gctx, router)
	})
	if app.sweeper != nil {
		g.Go(func() error {
			return app.sweeper.Run(gctx)
		})
	}

	return g.Wait()
}

func (app *application) cleanup() {
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", slog.String("error", err.Error()))
		}
	}

	app.logger.Info("application shutdown completed")
}
