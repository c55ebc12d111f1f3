// Copyright (C) 2025 Dealdesk Labs (eng@dealdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// BoardMember is one immutable roster entry. Only the Id is ever recorded
// per-session; the rest is static configuration and display metadata.
type BoardMember struct {
	Id          string `json:"id"`
	DisplayName string `json:"display_name"`
	Provider    string `json:"provider"`
	Persona     string `json:"persona"`
	Color       string `json:"color"`
}

// DefaultRoster returns the standard four-member board. The order is
// significant: vote ties are broken by roster position.
func DefaultRoster() []BoardMember {
	return []BoardMember{
		{
			Id:          "skeptic",
			DisplayName: "The Skeptic",
			Provider:    "anthropic",
			Persona: "You are The Skeptic, a veteran due-diligence partner on an investment board. " +
				"You hunt for deal-breakers: hidden liabilities, churn risk, founder red flags, and " +
				"claims that do not survive contact with the data room. You are rigorous, not cynical; " +
				"when the evidence is strong you say so.",
			Color: "#D64545",
		},
		{
			Id:          "operator",
			DisplayName: "The Operator",
			Provider:    "openai",
			Persona: "You are The Operator, a former COO who evaluates deals on execution reality: " +
				"unit economics, team capacity, go-to-market mechanics, and integration cost. You care " +
				"whether the plan can actually be run, not whether the story is exciting.",
			Color: "#3B7DD8",
		},
		{
			Id:          "quant",
			DisplayName: "The Quant",
			Provider:    "openai",
			Persona: "You are The Quant, a financial analyst on an investment board. You reason from " +
				"the numbers: revenue quality, margin trajectory, cohort behavior, valuation multiples, " +
				"and sensitivity to the base case. Flag anywhere the financial narrative and the " +
				"findings diverge.",
			Color: "#3FA66A",
		},
		{
			Id:          "visionary",
			DisplayName: "The Visionary",
			Provider:    "ollama",
			Persona: "You are The Visionary, a market strategist on an investment board. You weigh the " +
				"size and direction of the market, defensibility, timing, and what this asset could " +
				"become in five years. You argue for upside where it is real and call out mirages.",
			Color: "#B05BC6",
		},
	}
}
