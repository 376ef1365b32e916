package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/call-deck/backend/internal/config"
	"github.com/call-deck/backend/internal/hub"
	"github.com/call-deck/backend/internal/mock"
	"github.com/call-deck/backend/internal/relay"
	"github.com/call-deck/backend/internal/session"
	"github.com/call-deck/backend/internal/stream"
	"github.com/call-deck/backend/internal/verify"
)

func main() {
	mockMode := flag.Bool("mock", false, "Simulate the switch feed with scripted calls")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *port > 0 {
		cfg.Server.Port = *port
	}

	registry := session.NewRegistry()
	redact := &session.RedactionFilter{
		MaskNumbers:   cfg.Privacy.MaskNumbers,
		MaskCallerRef: cfg.Privacy.MaskCallerRef,
		DropScreenPop: cfg.Privacy.DropScreenPop,
	}
	broadcaster := hub.NewBroadcaster(registry, redact, cfg.Server.SnapshotInterval)

	var verifier verify.Verifier
	if *mockMode {
		verifier = mock.Verifier{}
	} else {
		verifier = verify.NewClient(cfg.Verify.URL, cfg.Verify.Token, cfg.Verify.Timeout)
	}

	rel := relay.New(registry, broadcaster, verifier, cfg.Sessions.EvictionGrace)
	server := hub.NewServer(registry, broadcaster, rel, cfg.Server.AllowedOrigins, cfg.Server.AuthToken)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var client *stream.Client
	if *mockMode {
		log.Println("Starting in mock mode (scripted call feed)")
		gen := mock.NewGenerator(rel)
		gen.Start(ctx)
	} else {
		log.Printf("Connecting to switch feed at %s", cfg.Stream.URL)
		dialer := stream.WSDialer{
			URL:          cfg.Stream.URL,
			Token:        cfg.Stream.Token,
			PingInterval: cfg.Stream.PingInterval,
			PongTimeout:  cfg.Stream.PongTimeout,
		}
		client = stream.New(dialer.Dial(), stream.Options{
			Backoff: stream.Backoff{
				Base:    cfg.Stream.BackoffBase,
				Ceiling: cfg.Stream.BackoffCeiling,
			},
			MaxAttempts: cfg.Stream.MaxAttempts,
		})
		rel.Bind(client)
		server.SetUpstreamStatus(client)
		client.Connect(ctx)
	}

	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down...")
		cancel()
		if client != nil {
			client.Close()
		}
		rel.Stop()
		broadcaster.Stop()
		os.Exit(0)
	}()

	if err := hub.ListenAndServe(cfg.Server.Host, cfg.Server.Port, mux); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
