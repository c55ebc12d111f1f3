// Copyright (C) 2025 Dealdesk Labs (eng@dealdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package debate runs the synchronized multi-round debate phase. Every
// round is a barrier: all live members see the prior round's statements,
// respond in parallel, and the next round dispatches only after the full
// set has settled.
package debate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dealdesk/boardroom/services/board/datatypes"
	"github.com/dealdesk/boardroom/services/board/members"
	"github.com/dealdesk/boardroom/services/board/progress"
)

// DefaultRounds is the configured round count when nothing is set.
const DefaultRounds = 2

// Coordinator drives the debate rounds for one session.
type Coordinator struct {
	rounds int
	pool   *members.Pool
}

// NewCoordinator creates a coordinator running the given number of rounds.
// Non-positive values fall back to DefaultRounds.
func NewCoordinator(rounds int, pool *members.Pool) *Coordinator {
	if rounds <= 0 {
		rounds = DefaultRounds
	}
	return &Coordinator{rounds: rounds, pool: pool}
}

// Rounds is the configured round count.
func (c *Coordinator) Rounds() int { return c.rounds }

// Run executes the configured rounds over the live members.
//
// prior maps each live member to its latest statement (the ANALYSIS content
// going in, the previous round's response afterwards). A member whose call
// fails mid-round is dropped from every subsequent round, but its earlier
// statements stay in the historical record.
//
// Events: debate_round_started before each dispatch, one debate_response per
// surviving member as it settles (arrival order, interleaving allowed inside
// a round), debate_round_completed after the barrier. All events for round r
// are emitted before any event for round r+1, which the barrier guarantees.
//
// Run returns the closed rounds, the members still live afterwards, and the
// ids newly failed during debate. It stops early when fewer than two members
// remain or ctx is cancelled; the caller decides how to fail the session.
func (c *Coordinator) Run(ctx context.Context, em *progress.Emitter, brief string,
	live []datatypes.BoardMember, prior map[string]string) ([]datatypes.DebateRound, []datatypes.BoardMember, []string) {

	var rounds []datatypes.DebateRound
	var newlyFailed []string

	for r := 1; r <= c.rounds; r++ {
		// A lone survivor has nobody to argue with; the session moves
		// straight to voting, same as when debate starts with one member.
		if ctx.Err() != nil || len(live) <= 1 {
			break
		}

		em.Emit(datatypes.ProgressEvent{
			Type:        datatypes.EventDebateRoundStarted,
			RoundNumber: r,
			Message:     fmt.Sprintf("Debate round %d of %d", r, c.rounds),
		})

		prompts := make(map[string]string, len(live))
		for _, m := range live {
			prompts[m.Id] = roundPrompt(brief, r, m, live, prior)
		}

		round := datatypes.DebateRound{RoundNumber: r}
		var mu sync.Mutex

		results := c.pool.CallAll(ctx, live, prompts, func(memberID string, res members.CallResult) {
			if res.Failed() {
				return
			}
			mu.Lock()
			round.Responses = append(round.Responses, datatypes.DebateResponse{
				MemberId: memberID,
				Content:  res.Text,
			})
			mu.Unlock()
			em.Emit(datatypes.ProgressEvent{
				Type:        datatypes.EventDebateResponse,
				MemberId:    memberID,
				RoundNumber: r,
				Content:     res.Text,
			})
		})

		var survivors []datatypes.BoardMember
		for _, m := range live {
			res, ok := results[m.Id]
			if !ok || res.Failed() {
				newlyFailed = append(newlyFailed, m.Id)
				callErr := &datatypes.MemberCallError{
					MemberId: m.Id,
					Phase:    datatypes.PhaseDebate,
					Timeout:  res.Timeout,
					Err:      res.Err,
				}
				slog.Warn("Member dropped mid-debate", "round", r, "error", callErr)
				continue
			}
			prior[m.Id] = res.Text
			survivors = append(survivors, m)
		}
		live = survivors

		rounds = append(rounds, round)
		em.Emit(datatypes.ProgressEvent{
			Type:        datatypes.EventDebateRoundCompleted,
			RoundNumber: r,
			Message:     fmt.Sprintf("Round %d closed with %d responses", r, len(round.Responses)),
		})
	}

	return rounds, live, newlyFailed
}

// roundPrompt builds one member's input for a round: the dossier, its own
// prior statement, and every other live member's prior statement (full
// visibility, not just its own thread).
func roundPrompt(brief string, round int, self datatypes.BoardMember,
	live []datatypes.BoardMember, prior map[string]string) string {

	var b strings.Builder
	fmt.Fprintf(&b, "Board debate, round %d.\n\n", round)
	b.WriteString(brief)
	b.WriteString("\nYour previous position:\n")
	b.WriteString(prior[self.Id])
	b.WriteString("\n\nThe other members' current positions:\n")
	for _, m := range live {
		if m.Id == self.Id {
			continue
		}
		fmt.Fprintf(&b, "\n--- %s ---\n%s\n", m.DisplayName, prior[m.Id])
	}
	b.WriteString("\nRespond to the strongest points you disagree with and refine your own position. " +
		"Stay in character and keep it under 250 words.")
	return b.String()
}

// Digest renders the closed rounds as the plain-text record embedded in the
// voting prompt.
func Digest(roster []datatypes.BoardMember, rounds []datatypes.DebateRound) string {
	names := make(map[string]string, len(roster))
	for _, m := range roster {
		names[m.Id] = m.DisplayName
	}
	var b strings.Builder
	for _, round := range rounds {
		fmt.Fprintf(&b, "Round %d:\n", round.RoundNumber)
		for _, resp := range round.Responses {
			name := names[resp.MemberId]
			if name == "" {
				name = resp.MemberId
			}
			fmt.Fprintf(&b, "  %s: %s\n", name, resp.Content)
		}
	}
	return b.String()
}
