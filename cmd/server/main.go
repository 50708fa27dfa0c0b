package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ZhonFortune/classtab-ics-backend/internal/config"
	"github.com/ZhonFortune/classtab-ics-backend/internal/db"
	"github.com/ZhonFortune/classtab-ics-backend/internal/digest"
	internalhttp "github.com/ZhonFortune/classtab-ics-backend/internal/http"
	"github.com/ZhonFortune/classtab-ics-backend/internal/identity"
	"github.com/ZhonFortune/classtab-ics-backend/internal/model"
	"github.com/ZhonFortune/classtab-ics-backend/internal/repository"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connection failed: %v", err)
	}
	defer pool.Close()

	if err := db.InitSchema(ctx, pool); err != nil {
		log.Fatalf("schema init failed: %v", err)
	}

	store := repository.NewStore(pool)
	if err := ensureBootstrapUser(ctx, store, cfg); err != nil {
		log.Fatalf("bootstrap user failed: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			cancel()
			log.Fatalf("redis ping failed: %v", err)
		}
		cancel()
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Printf("redis close error: %v", err)
			}
		}()
	}

	server := internalhttp.NewServer(cfg, store, redisClient)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("classtab backend listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

// ensureBootstrapUser registers the default level-0 account on first start.
// The insert is idempotent, so an existing row is left untouched.
func ensureBootstrapUser(ctx context.Context, store *repository.Store, cfg config.Config) error {
	if cfg.BootstrapUser == "" || cfg.BootstrapPass == "" {
		return nil
	}
	passwordHash := digest.Sum(cfg.BootstrapPass)
	inserted, err := store.CreateUser(ctx, model.User{
		Name:         cfg.BootstrapUser,
		PasswordHash: passwordHash,
		Level:        0,
		Token:        identity.Token(cfg.BootstrapUser, passwordHash, 0),
	})
	if err != nil {
		return err
	}
	if inserted {
		log.Printf("bootstrap user %q created", cfg.BootstrapUser)
	}
	return nil
}
