package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"veloeats.org/internal/audit"
	"veloeats.org/internal/auth"
	"veloeats.org/internal/config"
	"veloeats.org/internal/httpapi"
	"veloeats.org/internal/impersonation"
	"veloeats.org/internal/lockout"
	"veloeats.org/internal/obs"
	"veloeats.org/internal/permission"
)

var version = "0.3.1"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.EphemeralSecret {
		log.Printf("WARNING: VELO_AUTH_SECRET not set, using ephemeral secret; all tokens invalidate on restart")
	}

	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("VELO_COMMIT"))

	var db *sql.DB
	if cfg.DatabaseDSN != "" {
		db, err = sql.Open("pgx", cfg.DatabaseDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	} else {
		log.Fatal("missing VELO_PG_DSN")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Pre-auth lockout counters: redis when configured, otherwise in-process.
	var guardStore lockout.KeyedStore
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		guardStore = lockout.NewRedisStore(client)
		defer client.Close()
	} else {
		mem := lockout.NewMemoryStore()
		mem.StartSweeper(ctx, time.Minute, cfg.LockoutWindow)
		guardStore = mem
	}
	guard := lockout.NewGuard(guardStore, cfg.LockoutMaxAttempts, cfg.LockoutWindow, cfg.LockoutDuration)

	sink := audit.NewPGSink(db)
	recorder := audit.NewRecorder(sink, audit.NewPGDeviceStore(db), cfg.AuditBufferSize)

	tokens, err := auth.NewTokenService(cfg.AuthSecret,
		auth.WithAccessTTL(cfg.AccessTokenTTL),
		auth.WithRefreshTTL(cfg.RefreshTokenTTL),
		auth.WithSecureCookies(cfg.IsProduction()),
	)
	if err != nil {
		log.Fatalf("token service: %v", err)
	}

	store := auth.NewPGStore(db)
	second := auth.NewSecondFactor(cfg.AuthSecret)
	authSvc := auth.NewService(store, tokens, second, guard, recorder,
		auth.WithLockoutPolicy(cfg.LockoutMaxAttempts, cfg.LockoutWindow, cfg.LockoutDuration))

	broker := impersonation.NewBroker(impersonation.NewPGStore(db), store, recorder, cfg.ImpersonationTTL)

	limiter := httpapi.NewRateLimiter(float64(cfg.RateLimitPerSec), cfg.RateLimitBurst)
	go limiter.Run(ctx.Done())

	api := httpapi.New(httpapi.Deps{
		AuthService:   authSvc,
		Tokens:        tokens,
		Store:         store,
		Broker:        broker,
		Recorder:      recorder,
		AuditSearch:   sink,
		OwnerResolver: permission.NewPGOwnerResolver(db),
		Probe:         httpapi.ReadyProbe{DB: db},
		Limiter:       limiter,
		MaxBodyBytes:  cfg.MaxBodyBytes,
		Version:       version,
	})

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting veloeats-auth %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	cancel()
	recorder.Close()
	_ = db.Close()
	log.Println("Stopped")
}
