/*
Package handler provides the HTTP handlers and routing setup for the WNSChat operator API.

This file defines the main Router, applying middleware like logging, CORS and IP-based rate
limiting before delegating requests to the operator API and the WebSocket chat transport.
*/
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"wnschat/internal/pkg/auth/jwt"
	"wnschat/internal/pkg/limiter"
	"wnschat/internal/pkg/logx"
	"wnschat/internal/pkg/resp"
)

const (
	APIRate   = 5
	APIBurst  = 20
	JoinRate  = 0.2
	JoinBurst = 5
)

// Router sets up the HTTP routing table. ctx bounds the background work of the rate limiters.
func Router(ctx context.Context, deps *AppDeps) http.Handler {
	apiLimiter := limiter.NewIPRateLimiter(ctx, rate.Limit(APIRate), APIBurst)
	joinLimiter := limiter.NewIPRateLimiter(ctx, rate.Limit(JoinRate), JoinBurst)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	wsUpgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.IsDevelopment() {
				return true
			}

			origin := r.Header.Get("Origin")
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, map[string]string{
			"status":  "ok",
			"service": "WNSChat Server",
		})
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(apiLimiter.Middleware)
		api.Use(jwt.RequireOperator(deps.Config.APISecret))

		api.Get("/status", HandleStatus(deps))
		api.Get("/users", HandleUsers(deps))
		api.Post("/announce", HandleAnnounce(deps))
	})

	r.Get("/ws", HandleWebSocket(deps, wsUpgrader, joinLimiter))

	return r
}
