package http

import (
	"net/http"

	"github.com/C13M3n7/my-event-app/internal/application/admin"
	"github.com/C13M3n7/my-event-app/internal/application/otp"
	"github.com/C13M3n7/my-event-app/internal/application/session"
	"github.com/C13M3n7/my-event-app/internal/config"
	"github.com/C13M3n7/my-event-app/internal/transport/http/handler"
	appmiddleware "github.com/C13M3n7/my-event-app/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	var authMw func(http.Handler) http.Handler
	if deps.JWTProvider != nil {
		authMw = appmiddleware.Auth(deps.JWTProvider)
	} else {
		authMw = func(next http.Handler) http.Handler { return next }
	}

	// 5 requests/second, burst of 10 — applied to the OTP endpoints.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	otpSvc := otp.NewService(otp.ServiceDeps{
		OtpRepo:     deps.OtpRepo,
		UserRepo:    deps.UserRepo,
		Mailer:      deps.Mailer,
		SMSSender:   deps.SMSSender,
		Minter:      deps.JWTProvider,
		TTL:         cfg.OtpTTL,
		MaxAttempts: cfg.OtpMaxAttempts,
	})
	sessionSvc := session.NewService(session.ServiceDeps{
		SessionRepo:     deps.SessionRepo,
		UserRepo:        deps.UserRepo,
		RedeemedRepo:    deps.RedeemedRepo,
		TokenProvider:   deps.JWTProvider,
		GoogleVerifier:  deps.GoogleVerifier,
		RefreshTokenDur: cfg.RefreshTokenDur,
	})
	adminSvc := admin.NewService(deps.UserRepo, deps.SessionRepo)

	healthH := handler.NewHealthHandler()
	otpH := handler.NewOtpHandler(otpSvc)
	sessionH := handler.NewSessionHandler(sessionSvc)
	adminH := handler.NewAdminHandler(adminSvc)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.With(sensitiveRL.Limit).Post("/auth/otp/send", otpH.Send)
		r.With(sensitiveRL.Limit).Post("/auth/otp/verify", otpH.Verify)
		r.Post("/sessions/token", sessionH.Redeem)
		r.Post("/sessions/google", sessionH.GoogleSignIn)
		r.Post("/sessions/refresh", sessionH.Refresh)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.Get("/sessions", sessionH.GetCurrent)
			r.Post("/sessions/logout", sessionH.Logout)

			// Admin-only routes
			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireAdmin)

				r.Get("/admin/users", adminH.ListUsers)
				r.Post("/admin/users", adminH.CreateAdmin)
				r.Post("/admin/roles", adminH.ManageRole)
			})
		})
	})

	return r
}
