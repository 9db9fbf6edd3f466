// The moderator service is the read side of the coordinator's moderation
// fan-out: it tails report and ban events from NATS for the moderation log
// and serves the durable report list over HTTP.
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pairwise/chat-app/internal/messaging"
	"github.com/pairwise/chat-app/internal/report"
)

func main() {
	log.Println("Starting Pairwise moderation service...")

	listenAddr := ":8090"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		listenAddr = v
	}

	// Report store: required here, this service exists to read it.
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	store, err := report.OpenPostgres(ctx, dsn)
	cancel()
	if err != nil {
		log.Fatalf("failed to open report store: %v", err)
	}
	defer store.Close()

	// NATS setup.
	natsConfig := messaging.DefaultConfig()
	if v := os.Getenv("NATS_URL"); v != "" {
		natsConfig.URL = v
	}
	natsConfig.Name = "pairwise-moderator"

	natsClient, err := messaging.Connect(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	err = natsClient.SubscribeReportFiled(func(ev messaging.ReportEvent) {
		log.Printf("[moderator] report reporter=%s reported=%s reason=%s",
			ev.ReporterID, ev.ReportedID, ev.Reason)
	})
	if err != nil {
		log.Fatalf("failed to subscribe to report events: %v", err)
	}

	err = natsClient.SubscribeBan(func(ev messaging.BanEvent) {
		log.Printf("[moderator] BAN user=%s reports=%d", ev.UserID, ev.ReportCount)
	})
	if err != nil {
		log.Fatalf("failed to subscribe to ban events: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/reports", func(w http.ResponseWriter, r *http.Request) {
		reports, err := store.List(r.Context())
		if err != nil {
			log.Printf("[moderator] list reports: %v", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(reports)
	})

	httpServer := &http.Server{Addr: listenAddr, Handler: mux}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	log.Printf("Pairwise moderation service running")
	log.Printf("  listen_addr: %s", listenAddr)
	log.Printf("  nats_url:    %s", natsConfig.URL)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	natsClient.Close()
}
