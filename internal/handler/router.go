package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/goquote/goquote-go/internal/crypto"
	"github.com/goquote/goquote-go/internal/middleware"
)

// RouterConfig carries the HTTP-level settings of the router.
type RouterConfig struct {
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
	RequestTimeout time.Duration
}

// NewRouter mounts every route and the middleware chain.
func NewRouter(cfg RouterConfig, auth *AuthHandler, meta *MetaHandler, tokens *crypto.TokenIssuer) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(chimw.Timeout(cfg.RequestTimeout))
	}
	r.Use(middleware.CORS(cfg.CORSOrigins))

	r.NotFound(HandleNotFound)
	r.MethodNotAllowed(HandleMethodNotAllowed)

	r.Get("/", meta.HandleRoot)
	r.Get("/health", meta.HandleHealth)

	r.Route("/api/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if cfg.RateLimitRPS > 0 {
				r.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
			}
			r.Post("/signup", auth.HandleSignUp)
			r.Post("/signin", auth.HandleSignIn)
			r.Post("/forgot-password", auth.HandleForgotPassword)
			r.Post("/verify-otp", auth.HandleVerifyOTP)
			r.Post("/reset-password", auth.HandleResetPassword)
			r.Post("/resend-otp", auth.HandleResendOTP)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.JWTAuth(tokens))
			r.Get("/me", auth.HandleMe)
		})
	})

	return r
}
