// Copyright (C) 2025 Dealdesk Labs (eng@dealdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// EventType is the closed set of progress event variants. Consumers switch
// over it exhaustively; adding a variant is an API change.
type EventType string

const (
	EventSessionStarted          EventType = "session_started"
	EventMemberAnalysisStarted   EventType = "member_analysis_started"
	EventMemberAnalysisCompleted EventType = "member_analysis_completed"
	EventMemberAnalysisFailed    EventType = "member_analysis_failed"
	EventDebateRoundStarted      EventType = "debate_round_started"
	EventDebateResponse          EventType = "debate_response"
	EventDebateRoundCompleted    EventType = "debate_round_completed"
	EventVotingStarted           EventType = "voting_started"
	EventMemberVoted             EventType = "member_voted"
	EventVerdictReached          EventType = "verdict_reached"
	EventError                   EventType = "error"
)

// Terminal reports whether t ends the event stream for a session. Exactly
// one terminal event is emitted per session, and it is always last.
func (t EventType) Terminal() bool {
	return t == EventVerdictReached || t == EventError
}

// ProgressEvent is one append-only entry in a session's event log. The log
// is the authoritative history of what happened and in what order.
//
// Each emitted event carries an id, a millisecond timestamp, and a SHA-256
// hash chained to the previous event's hash, so a replayed log can be
// verified for completeness and ordering.
type ProgressEvent struct {
	Id          string    `json:"id"`
	Type        EventType `json:"type"`
	SessionId   string    `json:"session_id"`
	MemberId    string    `json:"member_id,omitempty"`
	RoundNumber int       `json:"round_number,omitempty"`
	Message     string    `json:"message,omitempty"`
	Content     string    `json:"content,omitempty"`
	Choice      string    `json:"choice,omitempty"`
	Verdict     *Verdict  `json:"verdict,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   int64     `json:"created_at"`
	Hash        string    `json:"hash"`
	PrevHash    string    `json:"prev_hash,omitempty"`
}
