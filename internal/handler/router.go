/*
Package handler provides the HTTP handlers and routing setup for the chat server.

This file defines the main Router, applying necessary middleware like logging, CORS,
and rate limiting before delegating requests to specific handlers (API and WebSocket).
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"roomchat/internal/pkg/auth/jwt"
	"roomchat/internal/pkg/limiter"
	"roomchat/internal/pkg/logx"
	"roomchat/internal/pkg/resp"
)

const (
	CreateRate   = 0.05
	CreateBurst  = 2
	ConnectRate  = 0.2
	ConnectBurst = 5
)

// Limiters holds the per-IP token buckets of the router. Their sweepers are
// started by the caller.
type Limiters struct {
	Create  *limiter.KeyedLimiter
	Connect *limiter.KeyedLimiter
}

// NewLimiters creates the default per-IP limiters.
func NewLimiters() *Limiters {
	return &Limiters{
		Create:  limiter.NewKeyedLimiter(rate.Limit(CreateRate), CreateBurst),
		Connect: limiter.NewKeyedLimiter(rate.Limit(ConnectRate), ConnectBurst),
	}
}

// Router sets up the main HTTP routing table (chi.Router) for the application.
// It configures CORS, applies global and per-route middleware and mounts the
// REST API and the WebSocket endpoint.
func Router(deps *AppDeps, limiters *Limiters) http.Handler {
	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	var wsUpgrader = websocket.Upgrader{
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
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-PoW-Token"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		data := map[string]any{
			"status":   "ok",
			"service":  "roomchat",
			"sessions": deps.Coordinator.Registry().Len(),
		}
		resp.RespondSuccess(w, r, data)
	})

	r.Route("/api", func(api chi.Router) {
		api.Route("/auth", func(auth chi.Router) {
			auth.Use(limiter.AuthMiddleware(deps.AuthThrottle))
			auth.Post("/register", HandleRegister(deps))
			auth.Post("/login", HandleLogin(deps))
		})

		api.Route("/pow", func(p chi.Router) {
			p.Get("/challenge", HandlePowChallenge(deps))
			p.Post("/verify", HandlePowVerify(deps))
		})

		api.Group(func(protected chi.Router) {
			protected.Use(jwt.RequireIdentity(deps.Verifier))

			protected.Route("/user", func(u chi.Router) {
				u.Get("/profile", HandleGetUserProfile(deps))
				u.Put("/status", HandleUpdateStatus(deps))
			})

			protected.Route("/rooms", func(rooms chi.Router) {
				rooms.With(limiters.Create.Middleware).Post("/", HandleCreateRoom(deps))
				rooms.Get("/", HandleListRooms(deps))
				rooms.Get("/mine", HandleListMyRooms(deps))

				rooms.Route("/{roomID}", func(room chi.Router) {
					room.Get("/", HandleGetRoom(deps))
					room.Delete("/", HandleDeleteRoom(deps))
					room.Post("/join", HandleJoinRoom(deps))
					room.Post("/leave", HandleLeaveRoom(deps))
					room.Get("/messages", HandleListMessages(deps))
					room.Post("/messages", HandleSendMessage(deps))
				})
			})

			protected.Route("/messages/{messageID}", func(msg chi.Router) {
				msg.Put("/", HandleEditMessage(deps))
				msg.Delete("/", HandleDeleteMessage(deps))
				msg.Post("/reactions", HandleReaction(deps, true))
				msg.Delete("/reactions", HandleReaction(deps, false))
			})

			protected.Route("/files", func(files chi.Router) {
				files.Post("/presign-upload", HandlePresignUploadURL(deps))
				files.Get("/presign-download", HandlePresignDownloadURL(deps))
				files.Post("/upload", HandleUploadFile(deps))
			})
		})
	})

	r.Get("/ws", HandleWebSocket(deps, wsUpgrader, limiters.Connect))

	return r
}
