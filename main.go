package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"kanban-api/api"
	"kanban-api/config"
	"kanban-api/session"
	"kanban-api/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.New()
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}

	local, err := storage.NewLocal(cfg.DataDir)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	var store storage.Store = local
	var fallback storage.Store
	if cfg.RemoteEnabled() {
		remote, err := storage.NewRemote(cfg.StorageConnectionString, cfg.CardsTable)
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
		store = remote
		// The last good local blob serves reads when the table is unreachable.
		fallback = local
		if cfg.CacheEnabled() {
			rc := redis.NewClient(redisOptions(cfg.RedisConnectionString))
			store = storage.NewCache(remote, rc, cfg.BoardCacheTTL)
		}
	}

	var auth api.Authenticator
	switch {
	case os.Getenv("AUTH0_TEST_MODE") == "1":
		auth = api.NewAuth(nil, "", "")
	case cfg.AuthEnabled():
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.Auth0Domain)
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		auth = api.NewAuth(jwks, cfg.Auth0Audience, "https://"+cfg.Auth0Domain+"/")
	default:
		if cfg.RemoteEnabled() {
			log.Fatal("remote storage requires Auth0 config")
		}
		auth = api.Anonymous{}
	}

	hub := api.NewHub()
	manager := session.NewManager(func(ownerID string) (*session.Session, error) {
		return session.New(session.Config{
			OwnerID:        ownerID,
			Store:          store,
			Fallback:       fallback,
			Logger:         logger,
			Notify:         func() { hub.Notify(ownerID) },
			DebounceWindow: cfg.DebounceWindow,
		})
	})

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	api.Register(e, manager, auth, hub, logger)

	listenAddr := cfg.ListenAddr
	if val, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok {
		listenAddr = ":" + val
	}

	go func() {
		if err := e.Start(listenAddr); err != nil {
			logger.WithError(err).Info("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	// Flush pending board writes before the process exits.
	manager.Shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("shutdown")
	}
}

// redisOptions parses either a redis URL or the Azure-style comma separated
// "host:port,password=...,ssl=true" connection string.
func redisOptions(connStr string) *redis.Options {
	opts, err := redis.ParseURL(connStr)
	if err == nil {
		return opts
	}
	parts := strings.Split(connStr, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}
