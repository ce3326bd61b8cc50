package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/quentinzango/evenement/internal/auth"
	"github.com/quentinzango/evenement/internal/config"
	"github.com/quentinzango/evenement/internal/db"
	"github.com/quentinzango/evenement/internal/feed"
)

type Server struct {
	router *chi.Mux
	config *config.Config
	hub    *feed.Hub
}

func NewServer(cfg *config.Config, database *db.DB) (*Server, error) {
	tokenService := auth.NewTokenService(
		cfg.Auth.DeviceTokenSecret,
		cfg.Auth.DeviceTokenTTL,
	)

	profileRepo := db.NewProfileRepository(database)
	messageRepo := db.NewMessageRepository(database)

	hub := feed.NewHub()
	go hub.Run()

	postLimiter := NewRateLimiter(30, time.Minute)

	registerHandler := NewRegisterHandler(profileRepo, tokenService)
	postHandler := NewPostMessageHandler(profileRepo, messageRepo, tokenService, hub, postLimiter)
	historyHandler := NewHistoryHandler(messageRepo)
	profileHandler := NewProfileHandler(profileRepo)
	feedHandler := NewFeedHandler(hub)
	healthHandler := NewHealthHandler(database)

	r := chi.NewRouter()
	r.Use(slogRequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware)
	r.Use(securityHeadersMiddleware)

	r.Get("/health", healthHandler.Check)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(maxBodySizeMiddleware(2 << 20)) // avatar payload plus JSON overhead

		r.With(httprate.LimitByIP(10, time.Minute)).Post("/register_device", registerHandler.Register)
		r.With(httprate.LimitByIP(60, time.Minute)).Post("/post_message", postHandler.Post)

		r.Get("/messages", historyHandler.GetHistory)
		r.Get("/profiles/{profileID}", profileHandler.Get)
	})

	r.Get("/feed", feedHandler.ServeFeed)

	return &Server{
		router: r,
		config: cfg,
		hub:    hub,
	}, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) Shutdown() {
	s.hub.Shutdown()
}

// corsMiddleware is deliberately permissive: clients are static pages served
// from arbitrary origins. Preflight answers 200.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func maxBodySizeMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

func slogRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
			"remote", r.RemoteAddr,
		)
	})
}
