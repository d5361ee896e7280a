package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ironsheep/omr-tools-mcp/internal/config"
	"github.com/ironsheep/omr-tools-mcp/internal/httpapi"
	"github.com/ironsheep/omr-tools-mcp/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	mode := "mcp"
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("omr-tools-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			printHelp()
			return
		case "http":
			mode = "http"
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q, see --help\n", os.Args[1])
			os.Exit(2)
		}
	}

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "omr-tools-mcp: %v\n", err)
		os.Exit(1)
	}
	level, _ := cfg.SlogLevel()

	// Logging goes to stderr; stdout carries the MCP protocol.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	logger.Debug("starting", "version", Version, "built", BuildTime, "commit", GitCommit, "mode", mode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if mode == "http" {
		err = runHTTP(ctx, cfg, logger)
	} else {
		err = server.New(cfg, logger, Version).Run(ctx, os.Stdin, os.Stdout)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func runHTTP(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httpapi.NewRouter(cfg, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", cfg.HTTP.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}

func printHelp() {
	fmt.Println("omr-tools-mcp - read and grade photographed answer sheets")
	fmt.Println()
	fmt.Println("Usage: omr-tools-mcp [command]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  (none)           Serve MCP over stdin/stdout")
	fmt.Println("  http             Serve the REST API")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version, -v    Print version information")
	fmt.Println("  --help, -h       Print this help message")
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Println("  OMR_MCP_CONFIG=path.yaml     Load settings from a YAML file")
	fmt.Println("  OMR_MCP_LOG_LEVEL=debug      Log level (debug, info, warn, error)")
	fmt.Println("  OMR_MCP_HTTP_ADDR=:8080      Listen address of the http command")
	fmt.Println("  OMR_MCP_WORKERS=4            Sheets processed in parallel by sheet_batch")
}
