package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aurum-app/facerank/internal/config"
	"github.com/aurum-app/facerank/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scoring API server",
	Long: `Start the facerank API server.
It exposes scoring submissions, standings, the leaderboard, similarity
lookups, the score distribution and Prometheus metrics over HTTP.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command, cfg *config.Config) (string, int) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if !cmd.Flags().Changed("port") && cfg.Web.Port != 0 {
		port = cfg.Web.Port
	}
	if !cmd.Flags().Changed("host") && cfg.Web.Host != "" {
		host = cfg.Web.Host
	}
	return host, port
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, client, cleanup, err := buildService(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.Extraction.ProbeInterval > 0 {
		client.StartProber(ctx, cfg.Extraction.ProbeInterval)
		fmt.Printf("Extraction backend prober started (every %s)\n", cfg.Extraction.ProbeInterval)
	}

	host, port := resolveServeHostPort(cmd, cfg)
	server := web.NewServer(svc, host, port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Warning: shutdown error: %v\n", err)
		}
	}()

	return server.Start()
}
