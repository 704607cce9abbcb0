// Command controlplane serves the HTTP API that fronts the chat, planning,
// approval, and context-store subsystems for the multi-agent platform.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/codelab-platform/agent-control-plane/pkg/agentstore"
	"github.com/codelab-platform/agent-control-plane/pkg/api"
	"github.com/codelab-platform/agent-control-plane/pkg/approval"
	"github.com/codelab-platform/agent-control-plane/pkg/cache"
	"github.com/codelab-platform/agent-control-plane/pkg/chatstore"
	"github.com/codelab-platform/agent-control-plane/pkg/config"
	"github.com/codelab-platform/agent-control-plane/pkg/database"
	"github.com/codelab-platform/agent-control-plane/pkg/outbox"
	"github.com/codelab-platform/agent-control-plane/pkg/planstore"
	"github.com/codelab-platform/agent-control-plane/pkg/router"
	"github.com/codelab-platform/agent-control-plane/pkg/stream"
	"github.com/codelab-platform/agent-control-plane/pkg/workerspace"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("warning: could not load %s: %v", envPath, err)
		log.Printf("continuing with existing environment variables")
	} else {
		log.Printf("loaded environment from %s", envPath)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	gin.SetMode(getEnv("GIN_MODE", "release"))

	log.Printf("starting control plane")
	log.Printf("http port: %s", httpPort)
	log.Printf("config directory: %s", *configDir)

	ctx := context.Background()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		log.Fatalf("failed to initialize configuration: %v", err)
	}

	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("failed to load database config: %v", err)
	}

	db, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("error closing database connection: %v", err)
		}
	}()
	log.Println("connected to postgresql, migrations applied")

	// Core stores. Every store takes the same *sql.DB; none of them own
	// connection lifecycle.
	chatStore := chatstore.New(db)
	outboxRepo := outbox.NewRepository(db)
	agents := agentstore.New(db)
	plans := planstore.New(db)

	// Replay buffer for the event stream: a single process's in-memory
	// cache is enough for one pod, matching the stream package's own
	// scoping.
	replayCache := cache.New(cfg.Stream.EventTTL)
	broker := stream.NewBroker(replayCache)

	outboxPub := outbox.NewPublisher(outboxRepo, broker, outbox.Config{
		BatchSize:         cfg.Outbox.BatchSize,
		MaxRetries:        cfg.Outbox.MaxRetries,
		InitialRetryDelay: cfg.Outbox.InitialRetryDelay,
		MaxRetryDelay:     cfg.Outbox.MaxRetryDelay,
		PollInterval:      cfg.Outbox.PollInterval,
	})

	// *stream.Broker's BroadcastToOwner method satisfies approval.Notifier
	// directly, fanning an approval event out to every session the owning
	// user currently has open.
	approvals := approval.NewManager(db, broker)

	// Chat completion / embedding provider wiring is intentionally left to
	// the deployment: this module defines the llm.Client contract but
	// ships no concrete provider. With a nil client the context store
	// falls back to hash-derived vectors and a space answers with a fixed
	// placeholder reply, so the chat path still works.
	spaces := workerspace.NewManager(agents, nil, workerspace.DefaultConfig())
	routerSvc := router.New(agents, broker)

	server := api.NewServer(chatStore, outboxRepo, outboxPub, broker, approvals, spaces, routerSvc, agents, plans)

	pubCtx, cancelPub := context.WithCancel(ctx)
	defer cancelPub()
	outboxPub.Start(pubCtx)
	defer outboxPub.Stop()

	go func() {
		log.Printf("http server listening on :%s", httpPort)
		if err := server.Start(":" + httpPort); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("error during server shutdown: %v", err)
	}
	spaces.CleanupAll()
}
