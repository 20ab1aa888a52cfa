// Package main provides the entry point for the transcription service.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "transcription_service",
	Short: "Transcription orchestration service",
	Long:  "Orchestrates AWS Transcribe jobs for recorded interview videos: starts jobs, polls them to completion, reconciles SNS completion notifications, and persists transcripts onto question/answer records.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
