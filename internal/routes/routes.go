package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/parkease/parkease/internal/config"
	"github.com/parkease/parkease/internal/identity"
	"github.com/parkease/parkease/internal/ledger"
	"github.com/parkease/parkease/internal/middleware"
	"github.com/parkease/parkease/internal/notification"
	"github.com/parkease/parkease/internal/topup"
	"github.com/parkease/parkease/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes. Store, Processor and
// Verifier are optional; when nil they are built from Cfg.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger

	Store     ledger.Store
	Processor topup.Processor
	Verifier  identity.Verifier
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	store, err := buildStore(d)
	if err != nil {
		return err
	}
	processor, err := buildProcessor(d)
	if err != nil {
		return err
	}
	verifier := d.Verifier
	if verifier == nil {
		if d.Cfg.IdentityJWTSecret == "" {
			d.Logger.Warn("IDENTITY_JWT_SECRET is empty, every bearer token will be rejected")
		}
		verifier = identity.NewJWTVerifier(d.Cfg.IdentityJWTSecret, d.Cfg.IdentityJWTIssuer, d.Cfg.IdentityJWTAudience)
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(cors.New(cors.Config{
		AllowOrigins: d.Cfg.CORSAllowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, Idempotency-Key",
	}))
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	// Health
	RegisterHealthRoutes(app, d, store)

	// Services and handlers
	notifier := notification.NewLoggerNotifier(d.Logger)
	walletSvc := wallet.NewService(store, wallet.Config{
		DailyCharge: d.Cfg.DailyCharge,
		Location:    d.Cfg.CheckInLocation,
	}, notifier, d.Logger)

	topupSvc, err := topup.NewService(processor, walletSvc, topup.Config{
		Currency:   d.Cfg.TopUpCurrency,
		MinAmount:  d.Cfg.TopUpMinAmount,
		MaxAmount:  d.Cfg.TopUpMaxAmount,
		SuccessURL: d.Cfg.CheckoutSuccessURL,
		CancelURL:  d.Cfg.CheckoutCancelURL,
	}, d.Logger)
	if err != nil {
		return err
	}

	identityHandler := identity.NewHandler(verifier, walletSvc, d.Logger)
	walletHandler := wallet.NewHandler(walletSvc)
	topupHandler := topup.NewHandler(topupSvc)

	// API routes
	api := app.Group("/api")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals(middleware.RequestIDKey).(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	RegisterIdentityRoutes(api, identityHandler, middleware.RateLimit(d.Cache, "verify_token", d.Cfg.VerifyRateLimitPerMin))

	// Protected routes
	protected := api.Group("", middleware.BearerAuth(verifier))
	if d.Cache != nil {
		protected.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	RegisterWalletRoutes(protected, walletHandler)
	RegisterTopUpRoutes(protected, topupHandler)

	return nil
}

func buildStore(d Deps) (ledger.Store, error) {
	if d.Store != nil {
		return d.Store, nil
	}
	switch d.Cfg.StoreBackend {
	case config.StorePostgres:
		if d.DB != nil {
			return ledger.NewPostgresStore(d.DB, d.Cfg.StoreMaxRetries), nil
		}
	case config.StoreRedis:
		if d.Cache != nil {
			return ledger.NewRedisStore(d.Cache, d.Cfg.StoreMaxRetries), nil
		}
	case config.StoreMemory, "":
		return ledger.NewInMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", d.Cfg.StoreBackend)
	}
	if !d.Cfg.IsDev() {
		return nil, fmt.Errorf("%s store is required when APP_ENV=%s", d.Cfg.StoreBackend, d.Cfg.AppEnv)
	}
	d.Logger.Warn("ledger store not connected, wallet operations will fail", slog.String("backend", d.Cfg.StoreBackend))
	return ledger.Unavailable{Reason: d.Cfg.StoreBackend + " not connected"}, nil
}

func buildProcessor(d Deps) (topup.Processor, error) {
	if d.Processor != nil {
		return d.Processor, nil
	}
	if d.Cfg.StripeSecretKey != "" {
		return topup.NewStripeProcessor(d.Cfg.StripeSecretKey), nil
	}
	if !d.Cfg.IsDev() {
		return nil, fmt.Errorf("STRIPE_SECRET_KEY is required when APP_ENV=%s", d.Cfg.AppEnv)
	}
	d.Logger.Warn("STRIPE_SECRET_KEY is empty, using the static payment processor")
	return topup.NewStaticProcessor(), nil
}
