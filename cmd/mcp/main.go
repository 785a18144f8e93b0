package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/alta-ny/chatbot/internal/mcp"
)

func main() {
	_ = godotenv.Load()

	serverURL := os.Getenv("CHATBOT_SERVER_URL")
	if serverURL == "" {
		serverURL = "http://localhost:5001"
	}

	// stdout carries the protocol; logs go to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := mcp.NewServer(serverURL, os.Getenv("API_KEY"), logger)
	if err := server.Run(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "mcp server error: %s\n", err)
		os.Exit(1)
	}
}
