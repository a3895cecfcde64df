package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/redis/go-redis/v9"

	"chat-relay/internal/auth"
	"chat-relay/internal/config"
	"chat-relay/internal/relay"
	"chat-relay/internal/server"
	"chat-relay/internal/store"
	"chat-relay/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.JWTSecret == config.Default().JWTSecret {
		log.Printf("Warning: using the default JWT secret; set JWT_SECRET in production")
	}

	users, messages, cleanup, err := openStores(cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer cleanup()

	var connOpts []ws.ConnManagerOption
	if cfg.MaxConns > 0 {
		connOpts = append(connOpts, ws.WithMaxConns(cfg.MaxConns))
	}
	conns := ws.NewConnManager(connOpts...)
	registry := ws.NewRegistry(conns)

	relayer := relay.New(users, messages, registry)
	presence := relay.NewPresence(users, registry, registry)
	wsHandler := ws.NewHandler(registry, presence, relayer)

	authSvc := auth.NewService(users, cfg.JWTSecret, cfg.TokenTTL)
	srv := server.New(cfg.ListenAddr, authSvc, users, messages, wsHandler)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Starting chat-relay server on %s", cfg.ListenAddr)
		if err := srv.Run(); err != nil {
			log.Printf("Server stopped: %v", err)
			stop()
		}
	}()

	<-ctx.Done()

	log.Printf("Shutting down")
	conns.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}

// openStores picks the persistence backend: Redis when REDIS_ADDR is
// set, Badger when DATA_DIR is set, in-memory otherwise. The returned
// cleanup closes whatever was opened.
func openStores(cfg config.Config) (store.UserStore, store.MessageStore, func(), error) {
	switch {
	case cfg.RedisAddr != "":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, nil, nil, err
		}
		log.Printf("Connected to Redis at %s", cfg.RedisAddr)
		return store.NewRedisUsers(rdb), store.NewRedisMessages(rdb), func() { rdb.Close() }, nil

	case cfg.DataDir != "":
		opts := badger.DefaultOptions(cfg.DataDir).WithLogger(nil)
		db, err := badger.Open(opts)
		if err != nil {
			return nil, nil, nil, err
		}
		log.Printf("Opened Badger store at %s", cfg.DataDir)
		return store.NewBadgerUsers(db), store.NewBadgerMessages(db), func() { db.Close() }, nil

	default:
		log.Printf("Using in-memory store; data will not survive restarts")
		return store.NewMemoryUsers(), store.NewMemoryMessages(), func() {}, nil
	}
}
