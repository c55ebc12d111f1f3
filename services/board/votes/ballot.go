// Copyright (C) 2025 Dealdesk Labs (eng@dealdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package votes

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dealdesk/boardroom/services/board/datatypes"
)

// ballot is the JSON shape the voting prompt asks each member to produce.
type ballot struct {
	Choice    string `json:"choice"`
	Rationale string `json:"rationale"`
}

// BallotPrompt builds the voting-phase prompt for one member. The member has
// already seen the dossier and the debate; the prompt restates only its own
// final position inputs and demands strict JSON.
func BallotPrompt(brief string, debateDigest string) string {
	var b strings.Builder
	b.WriteString("The board debate on this deal has concluded. Cast your final vote.\n\n")
	b.WriteString(brief)
	if debateDigest != "" {
		b.WriteString("\nDebate record:\n")
		b.WriteString(debateDigest)
	}
	b.WriteString("\nRespond with a single JSON object and nothing else:\n")
	b.WriteString(`{"choice": "GO" | "NO_GO" | "NEED_MORE_INFO", "rationale": "<2-4 sentences>"}`)
	b.WriteString("\n")
	return b.String()
}

// ParseBallot extracts a Vote from raw model output. Models wrap JSON in
// prose or code fences often enough that we scan for the outermost object
// instead of unmarshaling the whole reply.
func ParseBallot(memberID, raw string) (datatypes.Vote, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return datatypes.Vote{}, fmt.Errorf("no JSON object in ballot from %s", memberID)
	}

	var b ballot
	if err := json.Unmarshal([]byte(raw[start:end+1]), &b); err != nil {
		return datatypes.Vote{}, fmt.Errorf("malformed ballot JSON from %s: %w", memberID, err)
	}
	choice, err := datatypes.ParseVoteChoice(b.Choice)
	if err != nil {
		return datatypes.Vote{}, fmt.Errorf("ballot from %s: %w", memberID, err)
	}
	if strings.TrimSpace(b.Rationale) == "" {
		return datatypes.Vote{}, fmt.Errorf("ballot from %s has an empty rationale", memberID)
	}
	return datatypes.Vote{
		MemberId:  memberID,
		Choice:    choice,
		Rationale: strings.TrimSpace(b.Rationale),
	}, nil
}
