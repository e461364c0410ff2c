package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/face-id/internal/importer"
	"github.com/kozaktomas/face-id/internal/metrics"
	"github.com/kozaktomas/face-id/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the face recognition HTTP API.

Faces can be enrolled and identified with image uploads or raw embeddings,
listed, removed and cleared. POST /api/v1/storedb runs the bulk import
configured with IMPORT_DRIVER, IMPORT_DSN and IMPORT_QUERY.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8000, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to (overrides WEB_HOST)")
}

// resolveServeHostPort uses flags when given explicitly, then configuration.
func resolveServeHostPort(cmd *cobra.Command, a *app) (int, string) {
	port := a.cfg.Web.Port
	host := a.cfg.Web.Host
	if cmd.Flags().Changed("port") {
		port = mustGetInt(cmd, "port")
	}
	if cmd.Flags().Changed("host") {
		host = mustGetString(cmd, "host")
	}
	return port, host
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(true, false)
	if err != nil {
		return err
	}
	defer a.close()
	port, host := resolveServeHostPort(cmd, a)

	opts := web.Options{Logger: a.logger}
	if a.registry != nil {
		opts.Metrics = metrics.Handler(a.registry)
	}
	if a.cfg.Import.DSN != "" {
		opts.Import = func(ctx context.Context) (*importer.Report, error) {
			return a.runImport(ctx, a.defaultImportSettings())
		}
	}

	server := web.NewServer(a.cfg, a.recognizer, host, port, opts)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Face store %s loaded with %d faces\n", a.store.Path(), a.store.Len())
	fmt.Printf("Starting Face ID API on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
