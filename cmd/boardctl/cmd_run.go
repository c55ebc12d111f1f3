// Copyright (C) 2025 Dealdesk Labs (eng@dealdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dealdesk/boardroom/services/board/datatypes"
)

// runBoard convenes the board on one deal and renders the SSE stream until
// the terminal event. Ctrl-C cancels the request; the server refunds the
// credit on its side when the stream is abandoned mid-deliberation.
func runBoard(cmd *cobra.Command, args []string) {
	dealID := args[0]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	url := fmt.Sprintf("%s/v1/board/%s/start", strings.TrimRight(serverURL, "/"), dealID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		log.Fatalf("Error building request: %v", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	// No client timeout: a full deliberation runs for minutes and the server
	// sends keepalive comments between events.
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("Error contacting the board service: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.Fatalf("Board service refused the session (%s): %s", resp.Status, strings.TrimSpace(string(body)))
	}

	if err := streamEvents(resp.Body); err != nil {
		if ctx.Err() != nil {
			log.Println("Stream cancelled; the session will be refunded server-side.")
			return
		}
		log.Fatalf("Stream ended abnormally: %v", err)
	}
}

// streamEvents parses the SSE body line by line. Only "data:" lines carry
// events; "event:" lines and ": ping" comments are advisory and skipped.
func streamEvents(body io.Reader) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var event datatypes.ProgressEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			log.Printf("Skipping malformed event: %v", err)
			continue
		}
		if asJSON {
			fmt.Println(payload)
		} else {
			renderEvent(event)
		}
		if event.Type.Terminal() {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return fmt.Errorf("stream closed before a terminal event")
}

func renderEvent(event datatypes.ProgressEvent) {
	ts := time.UnixMilli(event.CreatedAt).Format("15:04:05")
	switch event.Type {
	case datatypes.EventSessionStarted:
		fmt.Printf("[%s] Board convened (session %s)\n", ts, event.SessionId)
	case datatypes.EventMemberAnalysisStarted:
		fmt.Printf("[%s]   %s is reviewing the dossier...\n", ts, event.MemberId)
	case datatypes.EventMemberAnalysisCompleted:
		fmt.Printf("[%s]   %s finished analysis:\n%s\n", ts, event.MemberId, indent(event.Content))
	case datatypes.EventMemberAnalysisFailed:
		fmt.Printf("[%s]   %s dropped out: %s\n", ts, event.MemberId, event.Error)
	case datatypes.EventDebateRoundStarted:
		fmt.Printf("[%s] --- Debate round %d ---\n", ts, event.RoundNumber)
	case datatypes.EventDebateResponse:
		fmt.Printf("[%s]   %s:\n%s\n", ts, event.MemberId, indent(event.Content))
	case datatypes.EventDebateRoundCompleted:
		fmt.Printf("[%s] --- Round %d closed ---\n", ts, event.RoundNumber)
	case datatypes.EventVotingStarted:
		fmt.Printf("[%s] Voting opened\n", ts)
	case datatypes.EventMemberVoted:
		fmt.Printf("[%s]   %s votes %s\n", ts, event.MemberId, event.Choice)
	case datatypes.EventVerdictReached:
		renderVerdict(ts, event.Verdict)
	case datatypes.EventError:
		fmt.Printf("[%s] Session failed: %s\n", ts, event.Error)
	default:
		fmt.Printf("[%s] %s\n", ts, event.Type)
	}
}

func renderVerdict(ts string, v *datatypes.Verdict) {
	if v == nil {
		fmt.Printf("[%s] Verdict reached (no detail attached)\n", ts)
		return
	}
	fmt.Printf("[%s] ============ VERDICT ============\n", ts)
	fmt.Printf("  Decision:  %s (%s)\n", v.FinalChoice, v.ConsensusLevel)
	for _, vote := range v.Votes {
		fmt.Printf("  %-12s %-15s %s\n", vote.MemberId, vote.Choice, vote.Rationale)
	}
	for _, m := range v.FailedMembers {
		fmt.Printf("  %-12s %s\n", m, "(did not vote)")
	}
	if len(v.AgreementPoints) > 0 {
		fmt.Printf("  Agreement: %s\n", strings.Join(v.AgreementPoints, "; "))
	}
	if len(v.FrictionPoints) > 0 {
		fmt.Printf("  Friction:  %s\n", strings.Join(v.FrictionPoints, "; "))
	}
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "      " + l
	}
	return strings.Join(lines, "\n")
}
