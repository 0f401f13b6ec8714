package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"passport/internal/auth"
	"passport/internal/config"
)

// Services bundles the application services the router exposes.
type Services struct {
	Auth      *auth.Service
	SSO       *auth.SSOService
	Notify    *auth.NotifyService
	Accounts  *auth.AccountService
	Providers providerLister
}

// NewRouter wires application routes and middleware using chi.
func NewRouter(cfg config.Config, svc Services, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(newSecurityHeadersMiddleware(cfg.Environment))
	r.Use(newSlogMiddleware(logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"environment": cfg.Environment,
		})
	})

	cookies := cookieSettings{
		name:   cfg.Cookie.Name,
		domain: cfg.Cookie.Domain,
		secure: cfg.Cookie.Secure || !cfg.IsDevelopment(),
	}
	requireUser := newAuthMiddleware(svc.Auth, cookies.name, logger)

	authHandler := NewAuthHandler(svc.Auth, cookies, logger)
	ssoHandler := NewSSOHandler(svc.SSO, svc.Providers, cookies, logger)
	notifyHandler := NewNotifyHandler(svc.Notify, logger)
	accountHandler := NewAccountHandler(svc.Accounts, cookies, logger)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/token", authHandler.Token)
		r.Post("/logout", authHandler.Logout)
		r.Post("/register", authHandler.Register)
		r.Post("/reset-password-request", accountHandler.RequestPasswordReset)
		r.Post("/reset-password", accountHandler.ResetPassword)
	})

	r.Group(func(r chi.Router) {
		r.Use(requireUser)
		r.Get("/users/me", authHandler.Me)
		r.Patch("/users/me", accountHandler.UpdateMe)
		r.Delete("/users/me", accountHandler.DeleteMe)
	})

	r.Route("/sso", func(r chi.Router) {
		r.Get("/providers", ssoHandler.Providers)

		r.Post("/telegram/token", ssoHandler.TelegramToken)
		r.With(requireUser).Post("/telegram/connect", ssoHandler.TelegramConnect)

		r.Get("/{provider}/login", ssoHandler.Login)
		r.Post("/{provider}/token", ssoHandler.Token)
		r.With(requireUser).Post("/{provider}/connect", ssoHandler.Connect)

		r.Group(func(r chi.Router) {
			r.Use(requireUser)
			r.Get("/accounts", ssoHandler.Accounts)
			r.Delete("/accounts/{id}", ssoHandler.Disconnect)
		})
	})

	r.Route("/notify", func(r chi.Router) {
		r.Use(requireUser)
		r.Post("/code", notifyHandler.SendCode)
		r.Get("/code/verify", notifyHandler.VerifyCode)
	})

	return r
}
