// # cmd/resym-worker/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"resym/internal/pyparse"
)

var verbose = flag.Bool("verbose", false, "Enable verbose logging")

func main() {
	flag.Parse()

	// stdout carries the response stream, so all logging goes to stderr.
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := pyparse.NewServer()
	if err := srv.Serve(ctx, os.Stdin, os.Stdout); err != nil {
		slog.Error("worker terminated", "error", err)
		fmt.Fprintln(os.Stdout, `{"id":0,"status":"error","error_code":"InternalError","message":"worker terminated"}`)
		os.Exit(1)
	}
}
