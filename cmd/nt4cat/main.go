// Command nt4cat connects to an NT4 server and prints every value it
// receives for a set of topics, demonstrating the nt4go client.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/nab138/nt4go"
	"github.com/nab138/nt4go/internal/config"
)

func main() {
	_ = godotenv.Load()             // .env in the working directory
	_ = godotenv.Load("../.env")    // .env one level up
	_ = godotenv.Load("../../.env") // running from cmd/nt4cat/ -> repo root .env

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel)

	runID := uuid.NewString()
	slog.Info("starting nt4cat", "run_id", runID, "server", cfg.ServerAddr)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client, err := nt4.NewWithConfig(cfg.ServerAddr, nt4.Config{
		ConnectTimeout: cfg.ConnectTimeout,
		OnDisconnect: func() {
			slog.Warn("disconnected from NT4 server", "run_id", runID)
		},
		OnReconnect: func() {
			slog.Info("reconnected to NT4 server", "run_id", runID)
		},
		OnAnnounce: func(t nt4.Topic) {
			slog.Info("topic announced", "name", t.Name, "type", t.Type.String())
		},
		OnUnAnnounce: func(t nt4.Topic) {
			slog.Info("topic retracted", "name", t.Name)
		},
	})
	if err != nil {
		slog.Error("failed to connect", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	topics := os.Args[1:]
	if len(topics) == 0 {
		topics = []string{""}
		slog.Info("no topics given on the command line; subscribing to everything via prefix match")
	}

	prefix := len(os.Args) < 2
	sub, err := client.SubscribeWithOptions(topics, &nt4.SubscriptionOptions{Prefix: &prefix})
	if err != nil {
		slog.Error("failed to subscribe", "error", err)
		os.Exit(1)
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			slog.Info("shutting down nt4cat")
			return
		case msg, ok := <-sub.Values():
			if !ok {
				return
			}
			slog.Info("value", "topic", msg.Topic, "timestamp", msg.Timestamp, "type", msg.Type.String(), "value", msg.Value)
		}
	}
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))
}
