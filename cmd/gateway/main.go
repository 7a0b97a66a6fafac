// connecta-gateway: trusted producer entry point for external gigs.
//
// Serves the authenticated /external-gigs REST API and its gRPC twin
// (connecta.ingest.v1.ExternalGigs), and runs the expiry reaper on
// REAP_SCHEDULE. Every upsert, delete and reaper sweep is published to
// Redis for the main platform's consumers.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"connecta/ingest-service/internal/config"
	"connecta/ingest-service/internal/db"
	"connecta/ingest-service/internal/events"
	"connecta/ingest-service/internal/externalgig"
	"connecta/ingest-service/internal/grpcserver"
	"connecta/ingest-service/internal/ingest"
	"connecta/ingest-service/internal/logger"
	"connecta/ingest-service/internal/reaper"
	"connecta/ingest-service/internal/scheduler"
	"connecta/ingest-service/internal/store"
)

const version = "1.0.0"

func main() {
	// ── Config ──────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[gateway] Config error: %v", err)
	}
	if err := cfg.RequireAPIKey(); err != nil {
		log.Fatalf("[gateway] Config error: %v", err)
	}
	logger.Install(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Store ────────────────────────────────────────────────────────────────
	opened, err := store.Open(ctx, cfg.StoreDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[gateway] Store: %v", err)
	}
	defer opened.Close()

	// ── Redis ────────────────────────────────────────────────────────────────
	log.Println("[gateway] Connecting to Redis…")
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("[gateway] Redis: %v", err)
	}
	defer rdb.Close()
	log.Println("[gateway] Redis connected ✓")

	pub := events.NewRedisPublisher(rdb)
	ingester := ingest.NewIngester(opened.Store, pub, ingest.NewNormalizer(cfg.DefaultTTL))
	svc := externalgig.NewService(ingester, opened.Store, pub)
	auth := externalgig.NewAuthenticator(cfg.APIKey)

	// ── Reaper ───────────────────────────────────────────────────────────────
	sched := scheduler.New()
	rp := reaper.New(opened.Store, pub, cfg.StaleAfter)
	if err := sched.Register(ctx, "reaper", cfg.ReapSchedule, true, rp.Run); err != nil {
		log.Fatalf("[gateway] Scheduler: %v", err)
	}
	sched.Start()

	// ── HTTP server ──────────────────────────────────────────────────────────
	r := mux.NewRouter()
	r.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	externalgig.NewHandler(svc, auth).RegisterRoutes(r)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.GatewayPort),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	fatal := make(chan error, 3)
	go func() {
		log.Printf("[gateway] v%s listening on :%s", version, cfg.GatewayPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatal <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	// ── gRPC server ──────────────────────────────────────────────────────────
	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		log.Fatalf("[gateway] gRPC listen: %v", err)
	}
	gs := grpcserver.New(svc, auth)
	go func() {
		log.Printf("[gateway] gRPC listening on :%s", cfg.GRPCPort)
		if err := gs.Serve(lis); err != nil {
			fatal <- fmt.Errorf("gRPC server: %w", err)
		}
	}()

	// ── Watchdog ─────────────────────────────────────────────────────────────
	go func() {
		err := db.NewWatchdog(cfg.WatchdogInterval, cfg.WatchdogMaxFailures, opened.Check, db.RedisCheck(rdb)).Run(ctx)
		if db.IsFatal(err) {
			fatal <- err
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	code := 0
	select {
	case <-quit:
		log.Println("[gateway] Shutting down…")
	case err := <-fatal:
		log.Printf("[gateway] Fatal: %v", err)
		code = 1
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[gateway] Shutdown error: %v", err)
	}
	gs.GracefulStop()
	select {
	case <-sched.Stop().Done():
	case <-shutdownCtx.Done():
		log.Println("[gateway] Reaper still running at shutdown deadline")
	}
	log.Println("[gateway] Stopped.")

	if code != 0 {
		opened.Close()
		rdb.Close()
		os.Exit(code)
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": "ingest-gateway",
		"version": version,
	})
}
