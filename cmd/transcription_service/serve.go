package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reson/transcription-service/internal/cleanup"
	"github.com/reson/transcription-service/internal/config"
	"github.com/reson/transcription-service/internal/engine"
	"github.com/reson/transcription-service/internal/entitystore"
	"github.com/reson/transcription-service/internal/objectstore"
	"github.com/reson/transcription-service/internal/persist"
	"github.com/reson/transcription-service/internal/poller"
	"github.com/reson/transcription-service/internal/server"
	"github.com/reson/transcription-service/internal/sns"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start the HTTP server exposing the transcription, storage and webhook endpoints.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides SERVER_PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	if servePort > 0 {
		cfg.ServerPort = servePort
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	srv, err := buildServer(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	return srv.Start()
}

// buildServer wires the full dependency graph behind the HTTP API.
func buildServer(ctx context.Context, cfg *config.Config) (*server.Server, error) {
	eng, err := engine.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcription engine client: %w", err)
	}

	objects, err := objectstore.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	entities := entitystore.New(cfg.EntityStoreURL, nil)
	persister := persist.New(objects, entities, cfg.Fetch)

	return server.New(cfg, server.Deps{
		Engine:    eng,
		Poller:    poller.New(eng, cfg.Polling),
		Objects:   objects,
		Entities:  entities,
		Persister: persister,
		Verifier:  sns.NewVerifier(nil),
		Sweeper:   cleanup.New(eng, cfg.CleanupDays),
	}), nil
}
