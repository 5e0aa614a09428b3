package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/otpless-auth/otpless/internal/auth"
	"github.com/otpless-auth/otpless/internal/config"
	"github.com/otpless-auth/otpless/internal/identity"
	"github.com/otpless-auth/otpless/internal/middleware"
	"github.com/otpless-auth/otpless/internal/notification"
	"github.com/otpless-auth/otpless/internal/relay"
	"github.com/otpless-auth/otpless/internal/verification"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
	// Notifier overrides the messaging channel chosen from Cfg. Used by tests.
	Notifier notification.Notifier
}

// Services exposes the long-lived components built during Setup.
type Services struct {
	Auth   *auth.Service
	Users  *identity.Service
	Tokens *verification.Store
	Hub    *relay.Hub
}

// Setup configures middlewares and all application routes. Without a database
// or cache it falls back to in-memory stores, which config only allows in
// development.
func Setup(app *fiber.App, d Deps) (*Services, error) {
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))
	app.Use(cors.New(cors.Config{
		AllowOrigins: d.Cfg.FrontendBaseURL,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	RegisterHealthRoutes(app, d)

	var (
		identityRepo     identity.Repository
		verificationRepo verification.Repository
		attempts         auth.AttemptTracker
	)
	if d.DB != nil {
		identityRepo = identity.NewPostgresRepository(d.DB)
		verificationRepo = verification.NewPostgresRepository(d.DB)
	} else {
		identityRepo = identity.NewMemoryRepository()
		verificationRepo = verification.NewMemoryRepository()
	}
	if d.Cache != nil {
		attempts = auth.NewRedisAttemptTracker(d.Cache, d.Cfg.VerificationTokenTTL)
	} else {
		attempts = auth.NewMemoryAttemptTracker(d.Cfg.VerificationTokenTTL)
	}

	users := identity.NewService(identityRepo)
	tokens := verification.NewStore(verificationRepo, d.Cfg.VerificationTokenTTL, d.Cfg.RefreshTokenTTL)
	issuer, err := auth.NewIssuer(d.Cfg.JWTSecret, d.Cfg.AccessTokenTTL, tokens)
	if err != nil {
		return nil, err
	}
	hub := relay.NewHub(0)

	notifier := d.Notifier
	if notifier == nil {
		notifier = newNotifier(d.Cfg, d.Logger)
	}

	authSvc := auth.NewService(auth.Deps{
		AppName:  d.Cfg.AppName,
		Users:    users,
		Tokens:   tokens,
		Issuer:   issuer,
		Notifier: notifier,
		Relay:    hub,
		Attempts: attempts,
		Logger:   d.Logger,
	})

	var signatures auth.SignatureValidator
	if !d.Cfg.MockMessaging {
		signatures = auth.NewTwilioSignatureValidator(d.Cfg.Twilio.AuthToken)
	}
	webhook := auth.NewWebhookHandler(authSvc, signatures, d.Cfg.WebhookPublicURL, d.Cfg.MockMessaging, d.Logger)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID := middleware.GetRequestID(c)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterAuthRoutes(api, auth.NewHandler(authSvc))
	RegisterWebhookRoutes(api, webhook, middleware.Idempotency(d.Cache, middleware.TwilioIdempotencyHeader, d.Cfg.WebhookDedupTTL, d.Logger))
	RegisterRelayRoutes(app, hub, d.Cfg.VerificationTokenTTL, d.Logger)

	protected := api.Group("", middleware.BearerAuth(authSvc))
	RegisterIdentityRoutes(protected, identity.NewHandler(users))

	return &Services{Auth: authSvc, Users: users, Tokens: tokens, Hub: hub}, nil
}

func newNotifier(cfg config.Config, logger *slog.Logger) notification.Notifier {
	if cfg.MockMessaging {
		return notification.NewLoggerNotifier(logger)
	}
	t := cfg.Twilio
	return notification.NewTwilioNotifier(t.AccountSID, t.AuthToken, t.WhatsAppFrom, t.ContentSID)
}
