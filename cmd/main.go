/*
Package main is the entry point for the roomchat server.

It is responsible for loading configuration, initializing the global logging system,
selecting the backing store, wiring the chat core to the HTTP server and
shutting everything down in order when the process receives SIGINT or SIGTERM.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/redis/go-redis/v9"

	"roomchat/internal/app/chat"
	"roomchat/internal/app/db"
	"roomchat/internal/app/storage"
	"roomchat/internal/app/store"
	"roomchat/internal/app/store/memstore"
	"roomchat/internal/configs"
	"roomchat/internal/handler"
	"roomchat/internal/pkg/auth/jwt"
	"roomchat/internal/pkg/limiter"
	"roomchat/internal/pkg/logx"
	"roomchat/internal/pkg/pow"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.IsDevelopment())
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Int("pow_difficulty", cfg.PowDifficulty).
		Str("store_driver", cfg.StoreDriver).
		Bool("redis", cfg.RedisURL != "").
		Bool("storage", cfg.StorageEnabled()).
		Msg("Configuration loaded successfully")

	// Background sweepers stop with this context.
	bgCtx, stopBackground := context.WithCancel(context.Background())

	st, closeStore := openStore(bgCtx, cfg)

	var (
		authThrottle limiter.AuthThrottle
		redisClient  *redis.Client
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logx.Fatal(err, "Invalid REDIS_URL")
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(bgCtx).Err(); err != nil {
			logx.Fatal(err, "Failed to connect to Redis")
		}
		authThrottle = limiter.NewRedisAuthThrottle(redisClient, cfg.AuthMaxAttempts, cfg.AuthWindow)
	} else {
		memThrottle := limiter.NewMemoryAuthThrottle(cfg.AuthMaxAttempts, cfg.AuthWindow)
		go memThrottle.Run(bgCtx)
		authThrottle = memThrottle
	}

	var storageService storage.StorageService
	if cfg.StorageEnabled() {
		storageService, err = storage.NewStorageService(bgCtx, storage.ServiceConfig{
			S3BucketName:      cfg.S3BucketName,
			S3Endpoint:        cfg.S3Endpoint,
			S3Region:          cfg.S3Region,
			S3AccessKeyID:     cfg.S3AccessKeyID,
			S3SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			logx.Fatal(err, "Failed to initialize storage service")
		}
	} else {
		logx.Warn("S3 storage is not configured; attachment endpoints are disabled")
	}

	powManager := pow.NewPoWManager(cfg.PowDifficulty)
	go powManager.Run(bgCtx)

	throttle := limiter.NewCommandThrottle(cfg.CommandCooldown)
	go throttle.Limiter().Run(bgCtx)

	coordOpts := []chat.Option{chat.WithEditWindow(cfg.MessageEditWindow)}
	if storageService != nil {
		coordOpts = append(coordOpts, chat.WithObjectStore(storageService))
	}
	coordinator := chat.NewCoordinator(st, chat.NewRegistry(), chat.NewHub(), throttle, coordOpts...)

	limiters := handler.NewLimiters()
	go limiters.Create.Run(bgCtx)
	go limiters.Connect.Run(bgCtx)

	deps := &handler.AppDeps{
		Config:       cfg,
		Store:        st,
		Coordinator:  coordinator,
		Verifier:     jwt.NewVerifier(cfg.JWTSecret, st),
		PoW:          powManager,
		AuthThrottle: authThrottle,
		Storage:      storageService,
	}

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           handler.Router(deps, limiters),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("roomchat server starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	// Operations run concurrently once SIGINT or SIGTERM arrives. Each waits
	// for the ones it depends on to finish first.
	httpDone := make(chan struct{})
	sessionsDone := make(chan struct{})

	wait := gfshutdown.GracefulShutdown(context.Background(), shutdownTimeout, map[string]gfshutdown.Operation{
		"http-server": func(ctx context.Context) error {
			defer close(httpDone)
			return server.Shutdown(ctx)
		},
		"chat-sessions": func(ctx context.Context) error {
			defer close(sessionsDone)
			<-httpDone
			return coordinator.Shutdown(ctx)
		},
		"store": func(ctx context.Context) error {
			<-sessionsDone
			stopBackground()
			closeStore()
			if redisClient != nil {
				return redisClient.Close()
			}
			return nil
		},
	})

	exitCode := <-wait
	logx.Info("Server stopped.", "exit_code", exitCode)
	os.Exit(exitCode)
}

// openStore connects the configured store and returns it with its close function.
func openStore(ctx context.Context, cfg *configs.AppConfig) (store.Store, func()) {
	if cfg.StoreDriver == configs.StoreDriverMemory {
		logx.Warn("Using the in-memory store; data is lost on restart")
		st := memstore.New()
		return st, st.Close
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
	if err != nil {
		logx.Fatal(err, "Failed to connect to PostgreSQL")
	}

	st := db.New(pool)
	return st, st.Close
}
