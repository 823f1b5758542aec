package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloudrbac.org/internal/auth"
	"cloudrbac.org/internal/config"
	"cloudrbac.org/internal/httpapi"
	"cloudrbac.org/internal/obs"
	"cloudrbac.org/internal/store/memory"
	"cloudrbac.org/internal/store/pg"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	configPath := flag.String("config", os.Getenv("RBAC_CONFIG"), "Path to YAML config")
	flag.Parse()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	secret, err := config.Secret()
	if err != nil {
		log.Fatalf("auth secret: %v", err)
	}

	// Store: PostgreSQL when a DSN is configured, in-memory otherwise.
	var (
		store auth.DirectoryStore
		probe httpapi.ReadyProbe
	)
	if cfg.Database.DSN != "" {
		pgStore, err := pg.Open(cfg.Database.DSN,
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
			time.Duration(cfg.Database.ConnMaxLifetime)*time.Minute)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer pgStore.Close()
		store = pgStore
		probe = httpapi.ReadyProbe{DB: pgStore.DB()}
	} else {
		log.Println("no DSN configured, using in-memory store")
		store = memory.New()
	}

	codec, err := auth.NewTokenCodec(secret, auth.WithTokenTTL(cfg.Auth.TokenTTL))
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}
	sessions, err := auth.NewSessionManager(store, codec)
	if err != nil {
		log.Fatalf("session manager: %v", err)
	}
	resolver, err := auth.NewResolver(store)
	if err != nil {
		log.Fatalf("resolver: %v", err)
	}
	gate, err := auth.NewGate(sessions, resolver)
	if err != nil {
		log.Fatalf("gate: %v", err)
	}
	directory, err := auth.NewDirectory(store)
	if err != nil {
		log.Fatalf("directory: %v", err)
	}

	api := httpapi.New(httpapi.Deps{
		Ready:     probe,
		Version:   version,
		Sessions:  sessions,
		Gate:      gate,
		Resolver:  resolver,
		Directory: directory,
	})

	var handler http.Handler = api.Handler()
	handler = httpapi.MaxBodyBytes(handler, cfg.Server.MaxBodyBytes)
	handler = httpapi.RateLimit(handler, cfg.RateLimit.Burst, cfg.RateLimit.PerSecond)
	handler = httpapi.CORS(handler)
	handler = httpapi.SecurityHeaders(handler)
	handler = httpapi.Logging(handler)
	handler = httpapi.RequestID(handler)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeout) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:       time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	log.Printf("Starting cloudrbac %s on %s", version, srv.Addr)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
