package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/config"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/enum"
	mw "github.com/kunhuatsai-cpu/tilepark-order/internal/middleware"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/router"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/sink"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/store"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/variant"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/workflow"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/ws"
)

const pruneInterval = 10 * time.Minute

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	variants, err := variant.Load(cfg.VariantsFile)
	if err != nil {
		log.Fatalf("Unable to load variants: %v", err)
	}
	if cfg.DefaultVariant != "" {
		if err := variants.SetDefault(cfg.DefaultVariant); err != nil {
			log.Fatalf("Invalid DEFAULT_VARIANT: %v", err)
		}
	}

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Unable to open session store: %v", err)
	}
	defer closeStore()

	hub := ws.NewHub()
	go hub.Run(ctx)

	limiter := mw.NewRateLimiter(cfg.SubmitRPS, cfg.SubmitBurst)
	go limiter.Run(ctx)

	svc := workflow.NewService(st, sink.NewClient(cfg.SubmitTimeout), variants, cfg.Location())
	svc.SetSubmitTimeout(cfg.SubmitTimeout)
	svc.SetNotifier(hub)
	go pruneLoop(ctx, svc, cfg.SessionTTL)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router.New(cfg, svc, variants, hub, limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.SubmitTimeout+5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("ERROR: shutdown: %v", err)
		}
	}()

	log.Printf("Starting server on :%s (store=%s, default variant=%s)", cfg.Port, cfg.SessionStore, variants.Default().Name)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
	log.Println("Server stopped")
}

// openStore returns the configured session store and its cleanup function.
func openStore(ctx context.Context, cfg *config.Config) (workflow.Store, func(), error) {
	switch cfg.SessionStore {
	case enum.StoreMemory:
		return store.NewMemoryStore(), func() {}, nil

	case enum.StorePostgres:
		if err := store.Migrate(cfg.DatabaseURL); err != nil {
			return nil, nil, err
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping: %w", err)
		}
		log.Println("Connected to database")
		return store.NewPostgresStore(pool), pool.Close, nil

	case enum.StoreSQLite:
		st, err := store.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("Using sqlite session store at %s", cfg.SQLitePath)
		return st, func() {
			if err := st.Close(); err != nil {
				log.Printf("ERROR: close sqlite: %v", err)
			}
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown SESSION_STORE %q", cfg.SessionStore)
}

func pruneLoop(ctx context.Context, svc *workflow.Service, ttl time.Duration) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.Prune(ctx, ttl)
			if err != nil {
				log.Printf("ERROR: prune sessions: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("pruned %d stale sessions", n)
			}
		}
	}
}
