/*
Package handler provides the HTTP handler function for WebSocket connection upgrading and initialization.

HandleWebSocket rate limits the handshake, authenticates the bearer token,
upgrades the connection and runs the session until the socket closes.
*/
package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"roomchat/internal/app/chat"
	"roomchat/internal/pkg/auth/jwt"
	"roomchat/internal/pkg/errs"
	"roomchat/internal/pkg/limiter"
	"roomchat/internal/pkg/logx"
	"roomchat/internal/pkg/randx"
	"roomchat/internal/pkg/resp"
)

// HandleWebSocket creates an HTTP HandlerFunc to process WebSocket connection requests.
// A connection is only registered once its token has been verified.
func HandleWebSocket(deps *AppDeps, upgrader websocket.Upgrader, rateLimiter *limiter.KeyedLimiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := limiter.ClientIP(r)
		if !rateLimiter.Allow(ip) {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", logx.AnonymizeIP(ip))
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		token := jwt.BearerToken(r)
		if token == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		identity, err := deps.Verifier.Verify(r.Context(), token)
		if err != nil {
			logx.Warn("WebSocket connection rejected: invalid token.", "error", err.Error())
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		payload, err := jwt.ParseToken(token, deps.Config.JWTSecret)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		connID, err := randx.ConnectionID()
		if err != nil {
			logx.Error(err, "Failed to generate connection id")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		refresh := func() (string, time.Time, error) {
			return issueToken(deps, identity)
		}

		client := chat.NewClient(conn, connID, payload.Expiry(), refresh)

		ctx := r.Context()
		session := deps.Coordinator.Connect(ctx, *identity, connID, client)

		go client.WritePump()

		logx.Info("WebSocket connection established", "conn_id", connID, "user_id", identity.ID)

		client.ReadPump(ctx, deps.Coordinator, session)
	}
}
