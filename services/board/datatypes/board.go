// Copyright (C) 2025 Dealdesk Labs (eng@dealdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"fmt"
	"strings"
)

// AnalysisStatus tracks the lifecycle of one member's analysis call.
type AnalysisStatus string

const (
	AnalysisPending   AnalysisStatus = "pending"
	AnalysisSucceeded AnalysisStatus = "succeeded"
	AnalysisFailed    AnalysisStatus = "failed"
)

// MemberAnalysis is one member's independent take on the deal, produced
// during the ANALYSIS phase. A member that ends up failed here is excluded
// from every later phase of the session.
type MemberAnalysis struct {
	MemberId    string         `json:"member_id"`
	Content     string         `json:"content,omitempty"`
	Status      AnalysisStatus `json:"status"`
	ErrorReason string         `json:"error_reason,omitempty"`
}

// DebateResponse is a single member statement within a debate round.
type DebateResponse struct {
	MemberId string `json:"member_id"`
	Content  string `json:"content"`
}

// DebateRound holds all responses for one synchronized round. A round is
// closed only when every member that was live at round start has either
// responded or been marked failed mid-round.
type DebateRound struct {
	RoundNumber int              `json:"round_number"`
	Responses   []DebateResponse `json:"responses"`
}

// VoteChoice is the closed set of choices a member can cast.
type VoteChoice string

const (
	VoteGo           VoteChoice = "GO"
	VoteNoGo         VoteChoice = "NO_GO"
	VoteNeedMoreInfo VoteChoice = "NEED_MORE_INFO"
)

// ParseVoteChoice maps loosely-formatted model output onto the closed choice
// set. It tolerates case and separator noise ("no-go", "No Go").
func ParseVoteChoice(raw string) (VoteChoice, error) {
	norm := strings.ToUpper(strings.TrimSpace(raw))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	switch VoteChoice(norm) {
	case VoteGo, VoteNoGo, VoteNeedMoreInfo:
		return VoteChoice(norm), nil
	}
	return "", fmt.Errorf("unrecognized vote choice %q", raw)
}

// Vote is cast exactly once per live member at voting time and never revised.
type Vote struct {
	MemberId  string     `json:"member_id"`
	Choice    VoteChoice `json:"choice"`
	Rationale string     `json:"rationale"`
}

// ConsensusLevel classifies how aligned the final votes are.
type ConsensusLevel string

const (
	ConsensusUnanimous ConsensusLevel = "unanimous"
	ConsensusMajority  ConsensusLevel = "majority"
	ConsensusSplit     ConsensusLevel = "split"
)

// Verdict is the session's terminal artifact, created exactly once by the
// vote aggregator and immutable thereafter.
type Verdict struct {
	FinalChoice     VoteChoice     `json:"final_choice"`
	ConsensusLevel  ConsensusLevel `json:"consensus_level"`
	AgreementPoints []string       `json:"agreement_points"`
	FrictionPoints  []string       `json:"friction_points"`
	Votes           []Vote         `json:"votes"`
	FailedMembers   []string       `json:"failed_members"`
}

// Finding is one due-diligence result the board reasons over. Tier 1
// findings come from document extraction, tier 2 from cross-document
// analysis; the board treats both as read-only input.
type Finding struct {
	Category string `json:"category"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
}

// AnalysisContext is the prior due-diligence output for a deal, loaded once
// at session start and fed verbatim to every member.
type AnalysisContext struct {
	DealId   string    `json:"deal_id"`
	DealName string    `json:"deal_name"`
	Summary  string    `json:"summary"`
	Tier1    []Finding `json:"tier1_findings"`
	Tier2    []Finding `json:"tier2_findings"`
}

// Brief renders the context as the plain-text dossier embedded in member
// prompts.
func (a AnalysisContext) Brief() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Deal: %s (%s)\n", a.DealName, a.DealId)
	if a.Summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", a.Summary)
	}
	if len(a.Tier1) > 0 {
		b.WriteString("\nDocument findings:\n")
		for _, f := range a.Tier1 {
			fmt.Fprintf(&b, "- [%s/%s] %s\n", f.Category, f.Severity, f.Detail)
		}
	}
	if len(a.Tier2) > 0 {
		b.WriteString("\nCross-document findings:\n")
		for _, f := range a.Tier2 {
			fmt.Fprintf(&b, "- [%s/%s] %s\n", f.Category, f.Severity, f.Detail)
		}
	}
	return b.String()
}
