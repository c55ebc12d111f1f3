// Copyright (C) 2025 Dealdesk Labs (eng@dealdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dealdesk/boardroom/services/board/datatypes"
	"github.com/dealdesk/boardroom/services/board/storage"
)

func getJSON(path string, out any) error {
	url := strings.TrimRight(serverURL, "/") + path
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func runSessionsList(cmd *cobra.Command, args []string) {
	var payload struct {
		Sessions []struct {
			Session        datatypes.Session        `json:"session"`
			FinalChoice    datatypes.VoteChoice     `json:"final_choice"`
			ConsensusLevel datatypes.ConsensusLevel `json:"consensus_level"`
		} `json:"sessions"`
	}
	if err := getJSON("/v1/board/sessions", &payload); err != nil {
		log.Fatalf("Error listing sessions: %v", err)
	}
	if asJSON {
		out, _ := json.MarshalIndent(payload, "", "  ")
		fmt.Println(string(out))
		return
	}
	if len(payload.Sessions) == 0 {
		fmt.Println("No stored board sessions.")
		return
	}
	fmt.Printf("%-38s %-16s %-8s %-15s %s\n", "SESSION", "DEAL", "PHASE", "DECISION", "CONSENSUS")
	for _, s := range payload.Sessions {
		fmt.Printf("%-38s %-16s %-8s %-15s %s\n",
			s.Session.Id, s.Session.DealId, s.Session.Phase, s.FinalChoice, s.ConsensusLevel)
	}
}

func runSessionsShow(cmd *cobra.Command, args []string) {
	var record storage.SessionRecord
	if err := getJSON("/v1/board/sessions/"+args[0], &record); err != nil {
		log.Fatalf("Error loading session: %v", err)
	}
	if asJSON {
		out, _ := json.MarshalIndent(record, "", "  ")
		fmt.Println(string(out))
		return
	}
	fmt.Printf("Session %s  deal=%s  phase=%s  started=%s\n",
		record.Session.Id, record.Session.DealId, record.Session.Phase,
		record.Session.CreatedAt.Format(time.RFC3339))
	for _, event := range record.Events {
		renderEvent(event)
	}
}
