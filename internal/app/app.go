package app

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"golang.org/x/sync/errgroup"

	_ "authapi/docs"
	"authapi/internal/config"
	"authapi/internal/handlers"
	"authapi/internal/metrics"
	"authapi/internal/middleware"
	"authapi/internal/repositories"
	"authapi/internal/routes"
	"authapi/internal/services"
	"authapi/internal/utils"
)

type App struct {
	cfg     *config.Config
	log     *slog.Logger
	db      *sql.DB
	redis   *redis.Client
	metrics *metrics.Metrics
	router  *gin.Engine
}

// New wires the store, services and HTTP router from cfg. The caller owns
// the returned App and must Close it.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, log: log, metrics: metrics.New()}

	// === Store ===
	var users repositories.UserRepository
	if cfg.Database.Driver == repositories.DriverMemory {
		log.Warn("using in-memory user store; data is lost on restart")
		users = repositories.NewMemoryUserRepository()
	} else {
		db, err := repositories.OpenDB(ctx, cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			return nil, oops.Code("DB_CONNECT_FAILED").With("driver", cfg.Database.Driver).Wrap(err)
		}
		a.db = db
		if cfg.Database.AutoMigrate {
			if err := repositories.Migrate(ctx, db); err != nil {
				_ = db.Close()
				return nil, oops.Code("MIGRATION_FAILED").Wrap(err)
			}
			log.Info("migrations applied")
		}
		users = repositories.NewUserRepository(db)
	}

	// === Notifier ===
	var notifier services.Notifier
	if cfg.Email.DryRun {
		log.Warn("email dry-run: links are logged, not sent")
		notifier = services.NewLogNotifier(cfg.Email.VerifyURL, cfg.Email.ResetURL, log)
	} else {
		notifier = services.NewEmailService(services.EmailConfig{
			SMTPHost:     cfg.Email.SMTPHost,
			SMTPPort:     cfg.Email.SMTPPort,
			SMTPUser:     cfg.Email.SMTPUser,
			SMTPPassword: cfg.Email.SMTPPassword,
			FromEmail:    cfg.Email.FromEmail,
			VerifyURL:    cfg.Email.VerifyURL,
			ResetURL:     cfg.Email.ResetURL,
			SendTimeout:  cfg.Email.SendTimeout,
			MaxAttempts:  cfg.Email.MaxAttempts,
			RetryBackoff: cfg.Email.RetryBackoff,
		}, log)
	}

	// === Services ===
	tokens := utils.NewTokenGenerator(cfg.Auth.TokenBytes)
	hasher := utils.NewPasswordHasher(cfg.Auth.BcryptCost, cfg.Auth.HashConcurrency)
	sessions := utils.NewSessionIssuer([]byte(cfg.Auth.JWTSecret), cfg.Auth.SessionTTL)

	verification := services.NewVerificationService(users, tokens, notifier, cfg.Auth.VerificationTTL, log, a.metrics, nil)
	reset := services.NewPasswordResetService(users, tokens, hasher, notifier, cfg.Auth.ResetTTL, log, a.metrics, nil)
	auth := services.NewAuthService(users, hasher, sessions, verification, log, a.metrics)

	// === Handlers ===
	authHandler := handlers.NewAuthHandler(auth, verification, reset, log)

	// === Gin ===
	router := gin.New()
	// nil: X-Forwarded-For игнорируется, ClientIP = RemoteAddr
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		_ = a.Close()
		return nil, oops.Code("CONFIG_INVALID").With("trusted_proxies", cfg.Server.TrustedProxies).Wrap(err)
	}
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(log, a.metrics))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(cfg.Server.CORSOrigins))
	router.Use(middleware.BodyLimit(cfg.Server.BodyLimitBytes))
	if cfg.RateLimit.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RateLimit.RedisAddr,
			Password: cfg.RateLimit.RedisPassword,
			DB:       cfg.RateLimit.RedisDB,
		})
		limiter := middleware.NewRateLimiter(a.redis, cfg.RateLimit.Requests, cfg.RateLimit.Window, log)
		router.Use(limiter.Middleware())
	}

	// Swagger
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/healthz", a.healthz)
	router.GET("/metrics", gin.WrapH(a.metrics.Handler()))

	routes.SetupRoutes(router, authHandler, auth, auth, log)
	a.router = router
	return a, nil
}

func (a *App) Handler() http.Handler { return a.router }

func (a *App) healthz(c *gin.Context) {
	if a.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := a.db.PingContext(ctx); err != nil {
			a.log.ErrorContext(ctx, "healthz: database unreachable", "err", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "failed", "message": "database unreachable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "ok"})
}

// Serve listens on the configured port until ctx is done, then shuts the
// server down within the configured timeout.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:         a.cfg.Addr(),
		Handler:      a.router,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("server started", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return oops.Code("SERVER_FAILED").Wrap(err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		a.log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (a *App) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}

// Run loads the config at path and serves until ctx is done.
func Run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	log := NewLogger(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	a, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("close failed", "err", err)
		}
	}()
	return a.Serve(ctx)
}

// Migrate applies the embedded migrations to the configured database.
func Migrate(ctx context.Context, configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Database.Driver == repositories.DriverMemory {
		return oops.Code("CONFIG_INVALID").Errorf("migrate needs a SQL database, driver is %q", cfg.Database.Driver)
	}

	db, err := repositories.OpenDB(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer db.Close()

	if err := repositories.Migrate(ctx, db); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}
	return nil
}
