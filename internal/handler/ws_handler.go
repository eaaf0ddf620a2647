/*
Package handler provides the HTTP handler function for WebSocket connection upgrading.

This file contains HandleWebSocket, which rate limits, upgrades the HTTP connection to WebSocket
and runs the binary chat protocol over it exactly as over TCP.
*/
package handler

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"wnschat/internal/pkg/errs"
	"wnschat/internal/pkg/limiter"
	"wnschat/internal/pkg/resp"
	"wnschat/internal/pkg/wsconn"
)

// HandleWebSocket creates an HTTP HandlerFunc that serves one chat session per WebSocket.
// The handler blocks until the session ends.
func HandleWebSocket(deps *AppDeps, upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := zerolog.Ctx(r.Context())

		if !rateLimiter.Allow(limiter.ClientIP(r)) {
			logger.Warn().Msg("WebSocket connection rejected: Rate limit exceeded.")
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		select {
		case <-deps.Server.Done():
			resp.RespondError(w, r, errs.NewError(errs.ErrServiceStopped))
			return
		default:
		}

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to upgrade connection to WebSocket")
			return
		}

		logger.Info().Msg("WebSocket connection established")

		deps.Server.HandleStream(wsconn.New(ws), "ws/"+r.RemoteAddr)
	}
}
