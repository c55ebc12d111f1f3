// Copyright (C) 2025 Dealdesk Labs (eng@dealdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "time"

// Phase is the board session lifecycle state. A session only ever moves
// forward through the sequence; FAILED is terminal and reachable from any
// non-DONE phase.
type Phase string

const (
	PhaseInit     Phase = "INIT"
	PhaseAnalysis Phase = "ANALYSIS"
	PhaseDebate   Phase = "DEBATE"
	PhaseVote     Phase = "VOTE"
	PhaseDone     Phase = "DONE"
	PhaseFailed   Phase = "FAILED"
)

// phaseOrder maps each forward phase to its position in the fixed sequence.
// FAILED is deliberately absent; it is handled as a terminal special case.
var phaseOrder = map[Phase]int{
	PhaseInit:     0,
	PhaseAnalysis: 1,
	PhaseDebate:   2,
	PhaseVote:     3,
	PhaseDone:     4,
}

// CanAdvance reports whether moving from p to next respects the forward-only
// phase sequence. A terminal phase never advances. FAILED is reachable from
// any non-terminal phase.
func (p Phase) CanAdvance(next Phase) bool {
	if p == PhaseDone || p == PhaseFailed {
		return false
	}
	if next == PhaseFailed {
		return true
	}
	from, ok := phaseOrder[p]
	if !ok {
		return false
	}
	to, ok := phaseOrder[next]
	if !ok {
		return false
	}
	return to > from
}

// Terminal reports whether p is an end state.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// Session is the unit of work for one board deliberation. It is owned
// exclusively by the running controller until it reaches a terminal phase,
// after which it becomes an immutable stored record.
type Session struct {
	Id          string     `json:"id"`
	DealId      string     `json:"deal_id"`
	UserId      string     `json:"user_id"`
	Phase       Phase      `json:"phase"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Verdict     *Verdict   `json:"verdict,omitempty"`
}
