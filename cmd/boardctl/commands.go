// Copyright (C) 2025 Dealdesk Labs (eng@dealdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dealdesk/boardroom/pkg/logging"
)

// --- Global Command Variables ---
var (
	serverURL string
	authToken string
	asJSON    bool

	rootCmd = &cobra.Command{
		Use:   "boardctl",
		Short: "A cli to convene and inspect deal board sessions",
		Long: `boardctl talks to a running board service: it convenes a board
				on a deal and streams the deliberation live, and it lists or
				replays finished sessions.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger := logging.New(logging.Config{Text: true})
			slog.SetDefault(logger.Slog())
		},
	}

	runCmd = &cobra.Command{
		Use:   "run [deal_id]",
		Short: "Convene the board on a deal and stream the deliberation",
		Args:  cobra.ExactArgs(1),
		Run:   runBoard, // Defined in cmd_run.go
	}

	sessionsCmd = &cobra.Command{
		Use:   "sessions",
		Short: "Inspect finished and in-flight board sessions",
	}
	sessionsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List board sessions for your user",
		Run:   runSessionsList, // Defined in cmd_sessions.go
	}
	sessionsShowCmd = &cobra.Command{
		Use:   "show [session_id]",
		Short: "Show one session's verdict and full event log",
		Args:  cobra.ExactArgs(1),
		Run:   runSessionsShow, // Defined in cmd_sessions.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server",
		envOr("BOARD_SERVER_URL", "http://localhost:12310"),
		"Base URL of the board service")
	rootCmd.PersistentFlags().StringVar(&authToken, "token",
		os.Getenv("BOARD_AUTH_TOKEN"),
		"Bearer token sent with every request")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false,
		"Emit raw JSON instead of human-readable output")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
