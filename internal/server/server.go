package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ksb-community/apiserver/config"
	"github.com/ksb-community/apiserver/internal/db"
	"github.com/ksb-community/apiserver/internal/handlers"
	"github.com/ksb-community/apiserver/internal/mq"
	"github.com/ksb-community/apiserver/internal/relay"
	"github.com/ksb-community/apiserver/internal/services"
	"github.com/ksb-community/apiserver/internal/storage"
	"github.com/ksb-community/apiserver/internal/store"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	broker     *mq.MQ
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)
	messageRepo := store.NewMessageRepository(dbConn)
	dmRepo := store.NewDirectMessageRepository(dbConn)
	fanartRepo := store.NewFanartRepository(dbConn)

	userService := services.NewUserService(userRepo)
	messageService := services.NewMessageService(messageRepo)
	dmService := services.NewDirectMessageService(dmRepo)
	fanartService := services.NewFanartService(fanartRepo)

	objectStorage, err := openStorage(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	imageService := services.NewImageService(objectStorage)

	broker, err := openBroker(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	jwtSecret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if jwtSecret == "" {
		_ = dbConn.Close()
		return nil, errors.New("JWT_SECRET is required")
	}

	authMiddleware := handlers.RequireAuth(jwtSecret)
	dmRelay := relay.NewRelay(dmService, imageService)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/api", func(r chi.Router) {
		handlers.AuthRouter(r, userService, imageService, jwtSecret)
		handlers.UsersRouter(r, userService, broker, authMiddleware)
		handlers.ChatRouter(r, messageService, userService, imageService, broker, authMiddleware)
		handlers.DMRouter(r, dmService, userService, imageService, authMiddleware)
		handlers.FanartRouter(r, fanartService, userService, imageService, broker, authMiddleware)
	})
	router.Get("/ws", dmRelay.ServeHTTP)
	if objectStorage != nil {
		handlers.ImageRouter(router, imageService)
	}

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:        fmt.Sprintf(":%d", port),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// The websocket relay holds long-lived connections, so only
		// the read path gets a write deadline via the relay itself.
		IdleTimeout: 60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		broker:     broker,
	}, nil
}

// openStorage selects the object storage backend from configuration.
// An empty backend means image uploads stay inline as data URLs.
func openStorage(ctx context.Context, cfg config.Config) (*storage.Storage, error) {
	switch cfg.StorageBackend {
	case "minio":
		client, err := storage.NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, fmt.Errorf("init minio failed: %w", err)
		}
		backend := storage.NewStorage(client)
		if err := backend.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("ensure bucket failed: %w", err)
		}
		return backend, nil
	case "gcs":
		client, err := storage.NewGCSClient(ctx, cfg.GCS)
		if err != nil {
			return nil, fmt.Errorf("init gcs failed: %w", err)
		}
		backend := storage.NewStorage(client)
		if err := backend.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("ensure bucket failed: %w", err)
		}
		return backend, nil
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// openBroker selects the moderation event broker from configuration.
// An empty backend disables event publishing.
func openBroker(ctx context.Context, cfg config.Config) (*mq.MQ, error) {
	switch cfg.MQBackend {
	case "rabbitmq":
		client, err := mq.NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, fmt.Errorf("init rabbitmq failed: %w", err)
		}
		return mq.New(client), nil
	case "pubsub":
		client, err := mq.NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			return nil, fmt.Errorf("init pubsub failed: %w", err)
		}
		return mq.New(client), nil
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.MQBackend)
	}
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.broker != nil {
		_ = s.broker.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return s.httpServer.Close()
}
