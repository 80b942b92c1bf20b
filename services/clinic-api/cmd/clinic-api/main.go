// Command clinic-api serves the public booking API, the assistant chat and
// the staff endpoints.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/crypto/bcrypt"

	"github.com/slaurent/cliniquerdv/libs/config"
	"github.com/slaurent/cliniquerdv/libs/db"
	"github.com/slaurent/cliniquerdv/libs/httpx"
	"github.com/slaurent/cliniquerdv/libs/kafkax"
	otelx "github.com/slaurent/cliniquerdv/libs/otel"
	"github.com/slaurent/cliniquerdv/libs/runtime"
	"github.com/slaurent/cliniquerdv/services/clinic-api/internal/assistant"
	"github.com/slaurent/cliniquerdv/services/clinic-api/internal/authn"
	"github.com/slaurent/cliniquerdv/services/clinic-api/internal/booking"
	"github.com/slaurent/cliniquerdv/services/clinic-api/internal/handlers"
	"github.com/slaurent/cliniquerdv/services/clinic-api/internal/model"
	"github.com/slaurent/cliniquerdv/services/clinic-api/internal/outbox"
	"github.com/slaurent/cliniquerdv/services/clinic-api/internal/storage"
)

func main() {
	_ = godotenv.Load()

	service := config.String("SERVICE_NAME", "clinic-api")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	sessionSecret, err := config.RequiredString("SESSION_SECRET")
	if err != nil {
		panic(err)
	}

	loc, err := time.LoadLocation(config.String("CLINIC_TIMEZONE", "Europe/Paris"))
	if err != nil {
		logger.Error("invalid clinic timezone, using UTC", "err", err)
		loc = time.UTC
	}

	outboxRepo := outbox.NewRepository(pool)
	store := storage.New(pool, outboxRepo)
	bootstrapStaff(ctx, store, logger)

	bookingSvc := booking.New(store, logger, loc)
	responder := assistant.NewResponder(store, bookingSvc)

	bookingHandler := handlers.NewBookingHandler(bookingSvc, logger)
	practitionerHandler := handlers.NewPractitionerHandler(store, bookingSvc, logger)
	chatHandler := handlers.NewChatHandler(responder, store, logger)
	authHandler := handlers.NewAuthHandler(store, sessionSecret, logger)
	adminHandler := handlers.NewAdminHandler(store, outboxRepo, logger, loc)
	session := authn.NewMiddleware(sessionSecret, store, logger)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go outboxPublisher.Run(ctx)

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}
	if brokers := config.String("KAFKA_BROKERS", ""); brokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}

	var rateLimit httpx.Middleware
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		limiter := httpx.NewRedisRateLimiter(rdb,
			config.Int("RATE_LIMIT", 60), config.Duration("RATE_WINDOW", time.Minute), service)
		rateLimit = limiter.Middleware(logger, true)
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb)})
	} else {
		rateLimit = httpx.NewRateLimiter(config.Int("RATE_LIMIT", 60), config.Duration("RATE_WINDOW", time.Minute)).Middleware()
	}

	mux := runtime.NewBaseMux(readyChecks...)

	mux.HandleFunc("GET /api/practitioners", practitionerHandler.List)
	mux.HandleFunc("GET /api/practitioners/{id}", practitionerHandler.Get)
	mux.HandleFunc("GET /api/practitioners/{id}/slots", practitionerHandler.Slots)
	mux.HandleFunc("POST /api/bookings", bookingHandler.Create)
	mux.HandleFunc("GET /api/bookings", bookingHandler.ListByPhone)
	mux.HandleFunc("DELETE /api/bookings/{id}", bookingHandler.Cancel)
	mux.HandleFunc("POST /api/chat", chatHandler.Post)
	mux.HandleFunc("GET /api/chat/{session}", chatHandler.History)

	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("POST /api/auth/logout", authHandler.Logout)
	mux.Handle("GET /api/auth/me", session.RequireRoles()(http.HandlerFunc(authHandler.Me)))

	staff := session.RequireRoles(model.RoleAdmin, model.RoleSecretary)
	adminOnly := session.RequireRoles(model.RoleAdmin)
	mux.Handle("GET /api/admin/accounts", adminOnly(http.HandlerFunc(adminHandler.ListAccounts)))
	mux.Handle("GET /api/admin/appointments", staff(http.HandlerFunc(adminHandler.ListAppointments)))
	mux.Handle("PATCH /api/admin/appointments/{id}", staff(http.HandlerFunc(adminHandler.UpdateAppointment)))
	mux.Handle("POST /api/admin/notifications", staff(http.HandlerFunc(adminHandler.CreateNotification)))
	mux.Handle("GET /api/practitioner/appointments",
		session.RequireRoles(model.RolePractitioner)(http.HandlerFunc(adminHandler.MyAppointments)))

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   strings.Split(config.String("CORS_ORIGINS", "http://localhost:3000"), ","),
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type"},
			AllowCredentials: true,
		}),
		rateLimit,
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "clinic-api")

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

// bootstrapStaff makes sure the admin and secretary logins exist. The seed
// data carries no credentials, so hashes are computed here from env values.
func bootstrapStaff(ctx context.Context, store *storage.Store, logger *slog.Logger) {
	ensure := func(name, emailKey, emailDefault, passKey, passDefault, role string) {
		email := config.String(emailKey, emailDefault)
		password := config.String(passKey, passDefault)
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			logger.Error("password hash failed", "role", role, "err", err)
			return
		}
		if _, err := store.EnsureStaffAccount(ctx, name, email, string(hash), role); err != nil {
			logger.Error("staff account bootstrap failed", "role", role, "err", err)
			return
		}
		logger.Info("staff account ready", "role", role, "email", email)
	}
	ensure("Administrateur", "ADMIN_EMAIL", "admin@clinic.example", "ADMIN_PASSWORD", "admin123", model.RoleAdmin)
	ensure("Secrétaire", "SECRETARY_EMAIL", "secretaire@clinic.example", "SECRETARY_PASSWORD", "secret123", model.RoleSecretary)
}
