package handler

import (
	"roomchat/internal/app/chat"
	"roomchat/internal/app/storage"
	"roomchat/internal/app/store"
	"roomchat/internal/configs"
	"roomchat/internal/pkg/auth/jwt"
	"roomchat/internal/pkg/limiter"
	"roomchat/internal/pkg/pow"
)

// AppDeps carries the collaborators every handler is built from.
type AppDeps struct {
	Config       *configs.AppConfig
	Store        store.Store
	Coordinator  *chat.Coordinator
	Verifier     jwt.IdentityVerifier
	PoW          *pow.PoWManager
	AuthThrottle limiter.AuthThrottle

	// Storage is nil when attachment storage is not configured; the file
	// endpoints then answer with ErrFileStorageFailed.
	Storage storage.StorageService
}
