package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pairwise/chat-app/internal/hub"
	"github.com/pairwise/chat-app/internal/messaging"
	"github.com/pairwise/chat-app/internal/metrics"
	"github.com/pairwise/chat-app/internal/protocol"
	"github.com/pairwise/chat-app/internal/ratelimit"
	"github.com/pairwise/chat-app/internal/report"
	"github.com/pairwise/chat-app/internal/ws"
)

func main() {
	config := ws.DefaultServerConfig()

	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		config.ListenAddr = v
	}
	if v := os.Getenv("WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.WorkerPoolSize = n
		}
	}
	if v := os.Getenv("MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.MaxConnections = n
		}
	}
	if v := os.Getenv("READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.ReadTimeout = d
		}
	}
	if v := os.Getenv("WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.WriteTimeout = d
		}
	}

	hubConfig := hub.Config{}
	if v := os.Getenv("REPORT_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			hubConfig.ReportThreshold = n
		}
	}

	// --- Durable report store: Postgres when configured, memory otherwise ---
	var store report.Store
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pg, err := report.OpenPostgres(ctx, dsn)
		cancel()
		if err != nil {
			log.Fatalf("failed to open report store: %v", err)
		}
		defer pg.Close()
		store = pg
	} else {
		log.Printf("DATABASE_URL not set, reports kept in memory only")
		store = report.NewMemoryStore()
	}
	writer := report.NewWriter(store)

	// --- NATS moderation fan-out (optional) ---
	var events hub.EventSink
	var natsClient *messaging.Client
	if url := os.Getenv("NATS_URL"); url != "" {
		natsConfig := messaging.DefaultConfig()
		natsConfig.URL = url
		natsConfig.Name = "pairwise-coordinator"

		var err error
		natsClient, err = messaging.Connect(natsConfig)
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
		events = messaging.ModerationEvents{Client: natsClient}
	} else {
		log.Printf("NATS_URL not set, moderation events disabled")
	}

	// --- Redis rate limiting (optional, fails open when absent) ---
	var limiter *ratelimit.Limiter
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(ctx).Err(); err != nil {
			cancel()
			log.Fatalf("failed to connect to Redis: %v", err)
		}
		cancel()
		defer rdb.Close()
		limiter = ratelimit.NewLimiter(rdb)
	} else {
		log.Printf("REDIS_ADDR not set, rate limiting disabled")
	}

	coordinator := hub.New(hubConfig, writer, events)

	log.Printf("Pairwise coordinator starting")
	log.Printf("  listen_addr:     %s", config.ListenAddr)
	log.Printf("  worker_pool:     %d", config.WorkerPoolSize)
	log.Printf("  max_connections: %d", config.MaxConnections)
	log.Printf("  read_timeout:    %s", config.ReadTimeout)
	log.Printf("  write_timeout:   %s", config.WriteTimeout)

	dispatcher := ws.NewDispatcher()

	dispatcher.Register(protocol.TypeStartMatching, func(conn *ws.Connection, msg interface{}) {
		m, ok := msg.(protocol.StartMatchingMsg)
		if !ok {
			return
		}
		if !limiter.Allow(context.Background(), conn.ID, ratelimit.RuleMatch) {
			log.Printf("rate limited start-matching conn=%s", conn.ID)
			metrics.DroppedFrames.WithLabelValues("rate_limited").Inc()
			return
		}
		coordinator.StartMatching(conn.ID, m.Interests, m.HasVideo)
	})

	dispatcher.Register(protocol.TypeCancelMatching, func(conn *ws.Connection, _ interface{}) {
		coordinator.CancelMatching(conn.ID)
	})

	dispatcher.Register(protocol.TypeChatMessage, func(conn *ws.Connection, msg interface{}) {
		m, ok := msg.(protocol.ChatMsg)
		if !ok {
			return
		}
		if !limiter.Allow(context.Background(), conn.ID, ratelimit.RuleChat) {
			log.Printf("rate limited chat-message conn=%s", conn.ID)
			metrics.DroppedFrames.WithLabelValues("rate_limited").Inc()
			return
		}
		coordinator.RelayChat(conn.ID, m.Content)
	})

	dispatcher.Register(protocol.TypeEndChat, func(conn *ws.Connection, _ interface{}) {
		coordinator.EndSession(conn.ID)
	})

	dispatcher.Register(protocol.TypeFindNewChat, func(conn *ws.Connection, _ interface{}) {
		coordinator.FindNewChat(conn.ID)
	})

	dispatcher.Register(protocol.TypeReportUser, func(conn *ws.Connection, msg interface{}) {
		m, ok := msg.(protocol.ReportMsg)
		if !ok {
			return
		}
		coordinator.Report(conn.ID, m.Reason, m.Details)
	})

	dispatcher.Register(protocol.TypeTypingStatus, func(conn *ws.Connection, msg interface{}) {
		m, ok := msg.(protocol.TypingMsg)
		if !ok {
			return
		}
		coordinator.RelayTyping(conn.ID, m.IsTyping)
	})

	dispatcher.Register(protocol.TypeMessageRead, func(conn *ws.Connection, msg interface{}) {
		m, ok := msg.(protocol.ReadMsg)
		if !ok {
			return
		}
		coordinator.RelayRead(conn.ID, m.MessageID)
	})

	dispatcher.Register(protocol.TypeBlockUser, func(conn *ws.Connection, _ interface{}) {
		coordinator.Block(conn.ID)
	})

	relaySignal := func(conn *ws.Connection, msg interface{}) {
		m, ok := msg.(protocol.SignalMsg)
		if !ok {
			return
		}
		coordinator.RelaySignal(conn.ID, m.Frame)
	}
	dispatcher.Register(protocol.TypeWebRTCOffer, relaySignal)
	dispatcher.Register(protocol.TypeWebRTCAnswer, relaySignal)
	dispatcher.Register(protocol.TypeWebRTCICECandidate, relaySignal)

	server := ws.NewServer(config)
	server.OnConnect = func(conn *ws.Connection) {
		coordinator.Register(conn.ID, conn)
	}
	server.OnMessage = dispatcher.Dispatch
	server.OnDisconnect = coordinator.Disconnect
	server.Admit = func(r *http.Request) bool {
		return limiter.Allow(r.Context(), clientIP(r), ratelimit.RuleConnect)
	}

	server.Handle("/api/stats", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(coordinator.Snapshot())
	}))
	server.Handle("/metrics", metrics.Handler())

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)
		if natsClient != nil {
			natsClient.Close()
		}
		if err := server.Shutdown(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		writer.Close()
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// clientIP extracts the remote address without the port, preferring the
// X-Forwarded-For header set by the load balancer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host := r.RemoteAddr
	for i := len(host) - 1; i >= 0; i-- {
		if host[i] == ':' {
			return host[:i]
		}
	}
	return host
}
