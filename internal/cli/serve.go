package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/tcgvault/messaging/internal/api"
	"github.com/tcgvault/messaging/internal/auth"
	"github.com/tcgvault/messaging/internal/cache"
	"github.com/tcgvault/messaging/internal/config"
	"github.com/tcgvault/messaging/internal/filter"
	"github.com/tcgvault/messaging/internal/messaging"
	"github.com/tcgvault/messaging/internal/queue"
	"github.com/tcgvault/messaging/internal/realtime"
	"github.com/tcgvault/messaging/store/conversation"
	"github.com/tcgvault/messaging/store/message"

	_ "github.com/lib/pq"
)

const (
	tokenValidity   = time.Hour
	shutdownTimeout = 10 * time.Second
)

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the messaging HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "http service address")
	return cmd
}

func openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		// The database may still be starting (docker compose).
		log.Printf("Warning: Database unreachable: %v", err)
	} else {
		log.Println("Connected to database")
	}
	return db, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	db, err := openDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing db: %v", err)
		}
	}()

	hub := realtime.NewHub()
	defer hub.Close()

	opts := []messaging.Option{messaging.WithFilter(filter.New(cfg.SiteDomains...))}
	var notifier messaging.Notifier = hub

	if cfg.RedisURL != "" {
		c, err := cache.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.Printf("Warning: Redis unavailable, idempotency keys and queued notifications disabled: %v", err)
		} else {
			defer func() {
				_ = c.Close()
			}()
			opts = append(opts, messaging.WithIdempotency(c, cfg.IdempotencyTTL))

			q, worker, err := startQueue(cfg, hub)
			if err != nil {
				return err
			}
			defer func() {
				worker.Shutdown()
				_ = q.Close()
			}()
			notifier = q
		}
	}
	opts = append(opts, messaging.WithNotifier(notifier))

	svc := messaging.NewService(conversation.NewSQLStore(db), message.NewSQLStore(db), opts...)

	authenticator := auth.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer, tokenValidity).WithAudience(cfg.JWTAudience)
	if cfg.JWKSURL != "" {
		kf, err := auth.NewJWKSKeyfunc(ctx, cfg.JWKSURL)
		if err != nil {
			return fmt.Errorf("load JWKS from %s: %w", cfg.JWKSURL, err)
		}
		authenticator.WithKeyfunc(kf)
	}

	gin.SetMode(gin.ReleaseMode)
	server := api.NewServer(svc, authenticator, api.CORS{
		AllowedOrigins: cfg.AllowedOrigins,
		DefaultOrigin:  cfg.DefaultOrigin,
	}, api.WithHub(hub))

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server starting on %s", cfg.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ListenAndServe: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func startQueue(cfg *config.Config, hub *realtime.Hub) (*queue.Notifier, *queue.Worker, error) {
	q, err := queue.NewNotifier(cfg.RedisURL, cfg.NotifyQueue)
	if err != nil {
		return nil, nil, err
	}
	worker, err := queue.NewWorker(cfg.RedisURL, cfg.NotifyQueue, cfg.WorkerConcurrency, hub)
	if err != nil {
		_ = q.Close()
		return nil, nil, err
	}
	if err := worker.Start(); err != nil {
		_ = q.Close()
		return nil, nil, fmt.Errorf("start notification worker: %w", err)
	}
	return q, worker, nil
}
