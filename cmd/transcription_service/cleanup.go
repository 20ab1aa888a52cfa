package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reson/transcription-service/internal/cleanup"
	"github.com/reson/transcription-service/internal/config"
	"github.com/reson/transcription-service/internal/engine"
)

var cleanupDays int

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete old terminal transcription jobs",
	Long:  `Run one retention sweep: delete COMPLETED and FAILED engine jobs older than the retention window. Intended for cron; the same sweep is reachable over HTTP via POST /api/transcribe/cleanup.`,
	RunE:  runCleanup,
}

func init() {
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 0, "Retention in days (overrides TRANSCRIPTION_CLEANUP_DAYS)")
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	days := cfg.CleanupDays
	if cleanupDays > 0 {
		days = cleanupDays
	}

	eng, err := engine.New(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("failed to create transcription engine client: %w", err)
	}

	result, err := cleanup.New(eng, days).Sweep(cmd.Context())
	if err != nil {
		return fmt.Errorf("cleanup sweep failed: %w", err)
	}

	fmt.Printf("Deleted %d jobs older than %d days (%d errors)\n", result.Deleted, days, len(result.Errors))
	for _, e := range result.Errors {
		fmt.Printf("  %s\n", e)
	}
	return nil
}
