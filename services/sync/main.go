// chatsync daemon: mirrors one operator's chat and notification state from
// the platform's socket and REST API into an in-memory store, and serves the
// reconciled state to the admin console over a local HTTP gateway.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/chatsync/internal/config"
	"github.com/chatsync/internal/engine"
	"github.com/chatsync/internal/handler"
	"github.com/chatsync/internal/logger"
	"github.com/chatsync/internal/middleware"
	"github.com/chatsync/internal/push"
	"github.com/chatsync/internal/rest"
	"github.com/chatsync/internal/storage"
	memstore "github.com/chatsync/internal/storage/memory"
	redisstore "github.com/chatsync/internal/storage/redis"
	"github.com/chatsync/internal/store"
	"github.com/chatsync/internal/ws"
)

func main() {
	logger.SetPrefix("sync")
	logger.Info("starting sync daemon")
	cfg := config.Load()
	logger.SetLevel(cfg.LogLevel)

	if cfg.LocalUserID == "" {
		logger.Error("LOCAL_USER_ID is required (the operator this session belongs to)")
		os.Exit(1)
	}

	snapshots := openSnapshotStore(cfg)
	defer func() {
		if err := snapshots.Close(); err != nil {
			logger.Errorf("snapshot store close: %v", err)
		}
	}()

	st := store.New(store.Options{
		DuplicateWindow:  cfg.DuplicateWindow(),
		OptimisticWindow: cfg.OptimisticWindow(),
	})

	var keys *push.VAPIDKeys
	if k, err := push.EnsureVAPIDKeys(cfg.VAPIDKeysFile); err == nil {
		keys = k
	} else {
		logger.Infof("VAPID keys unavailable: %v, web push disabled", err)
	}
	notifier := push.NewNotifier(cfg.LocalUserID, snapshots, keys)

	sock := ws.NewClient(cfg.UpstreamSocketURL)
	eng := engine.New(st, engine.Config{
		LocalUserID:     cfg.LocalUserID,
		NotificationCap: cfg.NotificationCap,
		Alerter:         notifier,
		Receipts:        sock,
		Snapshots:       snapshots,
	})
	sock.Attach(eng)

	startCtx, startCancel := context.WithTimeout(context.Background(), 5*time.Second)
	eng.RestoreNotifications(startCtx)
	startCancel()

	if cfg.UpstreamToken != "" {
		sock.SetCredentials(cfg.UpstreamToken)
	} else {
		logger.Info("no UPSTREAM_TOKEN, socket idle until credentials arrive via the gateway")
	}
	defer sock.Close()

	api := rest.NewClient(cfg.UpstreamAPIURL, cfg.UpstreamToken)

	chatH := handler.NewChatHandler(eng, sock, api)
	notifH := handler.NewNotificationHandler(eng)
	pushH := handler.NewPushHandler(cfg.LocalUserID, snapshots, keys)
	sessionH := handler.NewSessionHandler(eng, sock)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLog)
	r.Use(middleware.RecoverJSON)
	r.Use(chimw.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSAllowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Gateway-Secret"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.GatewayAuth(cfg.GatewaySecret))
		r.Use(middleware.RateLimit)

		r.Route("/chat", func(r chi.Router) {
			r.Get("/conversations", chatH.ListConversations)
			r.Post("/conversations/refresh", chatH.RefreshConversations)
			r.Get("/unread", chatH.GetUnreadTotal)
			r.Post("/close", chatH.CloseConversation)
			r.Route("/conversations/{id}", func(r chi.Router) {
				r.Get("/messages", chatH.GetMessages)
				r.Post("/messages/refresh", chatH.RefreshMessages)
				r.Post("/open", chatH.OpenConversation)
				r.Post("/send", chatH.SendMessage)
				r.Post("/read", chatH.MarkRead)
				r.Post("/typing", chatH.SetTyping)
				r.Get("/presence", chatH.GetPresence)
			})
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", notifH.List)
			r.Post("/read-all", notifH.MarkAllRead)
			r.Post("/{id}/read", notifH.MarkRead)
		})

		r.Route("/push", func(r chi.Router) {
			r.Get("/vapid-public", pushH.VAPIDPublic)
			r.Post("/subscribe", pushH.Subscribe)
			r.Delete("/subscribe", pushH.Unsubscribe)
		})

		r.Post("/session/credentials", sessionH.SetCredentials)
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.IdleTimeout) * time.Second,
	}

	go func() {
		logger.Infof("gateway listening on %s", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("gateway: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("gateway shutdown: %v", err)
	}
	logger.Info("sync daemon stopped")
}

func openSnapshotStore(cfg *config.Config) storage.SnapshotStore {
	if cfg.RedisURL == "" {
		logger.Info("no REDIS_URL, snapshots kept in memory only")
		return memstore.New()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := redisstore.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Errorf("redis unavailable: %v, falling back to in-memory snapshots", err)
		return memstore.New()
	}
	logger.Info("redis connected")
	return client
}
