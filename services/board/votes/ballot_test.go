// Copyright (C) 2025 Dealdesk Labs (eng@dealdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package votes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealdesk/boardroom/services/board/datatypes"
)

func TestParseBallot_CleanJSON(t *testing.T) {
	v, err := ParseBallot("quant", `{"choice": "GO", "rationale": "Numbers hold."}`)
	require.NoError(t, err)
	assert.Equal(t, datatypes.VoteGo, v.Choice)
	assert.Equal(t, "quant", v.MemberId)
	assert.Equal(t, "Numbers hold.", v.Rationale)
}

func TestParseBallot_JSONWrappedInProse(t *testing.T) {
	raw := "Here is my final vote:\n```json\n" +
		`{"choice": "no-go", "rationale": "Concentration risk is too high."}` +
		"\n```\nThank you."
	v, err := ParseBallot("skeptic", raw)
	require.NoError(t, err)
	assert.Equal(t, datatypes.VoteNoGo, v.Choice)
}

func TestParseBallot_NormalizesChoiceSpelling(t *testing.T) {
	v, err := ParseBallot("operator", `{"choice": "Need More Info", "rationale": "Missing cohort data."}`)
	require.NoError(t, err)
	assert.Equal(t, datatypes.VoteNeedMoreInfo, v.Choice)
}

func TestParseBallot_Rejections(t *testing.T) {
	cases := map[string]string{
		"no JSON at all":    "I vote GO because the deal is good.",
		"unknown choice":    `{"choice": "MAYBE", "rationale": "Hedging."}`,
		"empty rationale":   `{"choice": "GO", "rationale": "   "}`,
		"broken JSON":       `{"choice": "GO", "rationale": `,
		"object never ends": `{"choice"`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseBallot("visionary", raw)
			assert.Error(t, err)
		})
	}
}

func TestBallotPrompt_IncludesDossierAndDebate(t *testing.T) {
	prompt := BallotPrompt("Deal: Acme (demo-deal)", "Round 1:\nskeptic said no.")
	assert.Contains(t, prompt, "Deal: Acme (demo-deal)")
	assert.Contains(t, prompt, "skeptic said no.")
	assert.Contains(t, prompt, `"choice"`)
}
