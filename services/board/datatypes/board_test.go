// Copyright (C) 2025 Dealdesk Labs (eng@dealdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVoteChoice(t *testing.T) {
	valid := map[string]VoteChoice{
		"GO":             VoteGo,
		"go":             VoteGo,
		" NO_GO ":        VoteNoGo,
		"no-go":          VoteNoGo,
		"No Go":          VoteNoGo,
		"need more info": VoteNeedMoreInfo,
		"NEED_MORE_INFO": VoteNeedMoreInfo,
	}
	for raw, want := range valid {
		got, err := ParseVoteChoice(raw)
		require.NoError(t, err, "input %q", raw)
		assert.Equal(t, want, got, "input %q", raw)
	}

	for _, raw := range []string{"", "MAYBE", "GO!", "NOGO MAYBE"} {
		_, err := ParseVoteChoice(raw)
		assert.Error(t, err, "input %q", raw)
	}
}

func TestBrief_RendersFindingsByTier(t *testing.T) {
	a := AnalysisContext{
		DealId:   "deal-1",
		DealName: "Acme",
		Summary:  "Logistics SaaS.",
		Tier1:    []Finding{{Category: "legal", Severity: "low", Detail: "Expired MSAs."}},
		Tier2:    []Finding{{Category: "market", Severity: "medium", Detail: "SMB churn."}},
	}

	brief := a.Brief()
	assert.Contains(t, brief, "Deal: Acme (deal-1)")
	assert.Contains(t, brief, "Summary: Logistics SaaS.")
	assert.Contains(t, brief, "Document findings:")
	assert.Contains(t, brief, "- [legal/low] Expired MSAs.")
	assert.Contains(t, brief, "Cross-document findings:")
	assert.Contains(t, brief, "- [market/medium] SMB churn.")
}

func TestBrief_OmitsEmptySections(t *testing.T) {
	brief := AnalysisContext{DealId: "d", DealName: "N"}.Brief()
	assert.NotContains(t, brief, "Summary:")
	assert.NotContains(t, brief, "findings:")
}

func TestMemberCallError(t *testing.T) {
	cause := errors.New("connection refused")
	err := &MemberCallError{MemberId: "quant", Phase: PhaseDebate, Err: cause}
	assert.Contains(t, err.Error(), "quant")
	assert.Contains(t, err.Error(), "DEBATE")
	assert.Contains(t, err.Error(), "provider error")
	assert.ErrorIs(t, err, cause)

	timeoutErr := &MemberCallError{MemberId: "quant", Phase: PhaseVote, Timeout: true, Err: cause}
	assert.Contains(t, timeoutErr.Error(), "timeout")
}

func TestDefaultRoster_StableOrderAndProviders(t *testing.T) {
	roster := DefaultRoster()
	require.Len(t, roster, 4)

	ids := make([]string, len(roster))
	for i, m := range roster {
		ids[i] = m.Id
		assert.NotEmpty(t, m.Persona)
		assert.NotEmpty(t, m.Provider)
	}
	assert.Equal(t, []string{"skeptic", "operator", "quant", "visionary"}, ids)
}

func TestEventType_Terminal(t *testing.T) {
	assert.True(t, EventVerdictReached.Terminal())
	assert.True(t, EventError.Terminal())
	assert.False(t, EventMemberVoted.Terminal())
	assert.False(t, EventSessionStarted.Terminal())
}
