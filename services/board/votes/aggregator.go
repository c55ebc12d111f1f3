// Copyright (C) 2025 Dealdesk Labs (eng@dealdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package votes turns the final member votes into a Verdict: plurality
// choice with a deterministic roster-order tie-break, a consensus
// classification, and derived agreement/friction points.
package votes

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/dealdesk/boardroom/services/board/datatypes"
)

// DefaultConsensusThreshold is the strict ratio of live votes the winning
// choice needs for "majority". The original product did not pin this down;
// 2/3 is the documented default and it is configurable rather than fixed.
const DefaultConsensusThreshold = 2.0 / 3.0

// ratioEpsilon absorbs float division noise so that exactly 2-of-3 still
// clears a 2/3 threshold.
const ratioEpsilon = 1e-9

// Aggregator computes verdicts. It is stateless and pure: the same votes,
// roster, and failed set always produce the same Verdict.
type Aggregator struct {
	threshold float64
}

// NewAggregator creates an aggregator with the given majority threshold.
// Values outside (0, 1] fall back to DefaultConsensusThreshold.
func NewAggregator(threshold float64) *Aggregator {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultConsensusThreshold
	}
	return &Aggregator{threshold: threshold}
}

// Aggregate builds the session Verdict from the cast votes.
//
// finalChoice is the plurality choice; ties break to the choice of the
// first roster member that cast a vote for one of the tied choices, which
// makes the result deterministic for any roster configuration.
//
// consensusLevel is unanimous when every vote agrees, majority when the
// winning ratio meets the threshold (strict ratio comparison, not a rounded
// count), split otherwise.
//
// A Verdict requires at least one vote; zero votes is the caller's cue to
// fail the session instead.
func (a *Aggregator) Aggregate(roster []datatypes.BoardMember, cast []datatypes.Vote,
	failedMembers []string) (*datatypes.Verdict, error) {

	if len(cast) == 0 {
		return nil, fmt.Errorf("cannot build a verdict from zero votes: %w", datatypes.ErrNoLiveMembers)
	}

	counts := make(map[datatypes.VoteChoice]int, 3)
	for _, v := range cast {
		counts[v.Choice]++
	}

	top := 0
	for _, n := range counts {
		if n > top {
			top = n
		}
	}
	var tied []datatypes.VoteChoice
	for choice, n := range counts {
		if n == top {
			tied = append(tied, choice)
		}
	}

	final := a.breakTie(roster, cast, tied)

	level := datatypes.ConsensusSplit
	switch {
	case counts[final] == len(cast):
		level = datatypes.ConsensusUnanimous
	case float64(counts[final])/float64(len(cast))+ratioEpsilon >= a.threshold:
		level = datatypes.ConsensusMajority
	}

	agreement, friction := deriveThemes(cast, final)

	if failedMembers == nil {
		failedMembers = []string{}
	}
	return &datatypes.Verdict{
		FinalChoice:     final,
		ConsensusLevel:  level,
		AgreementPoints: agreement,
		FrictionPoints:  friction,
		Votes:           cast,
		FailedMembers:   failedMembers,
	}, nil
}

// breakTie picks among the tied plurality choices by roster order: the
// first configured member whose vote is one of the tied choices decides.
func (a *Aggregator) breakTie(roster []datatypes.BoardMember, cast []datatypes.Vote,
	tied []datatypes.VoteChoice) datatypes.VoteChoice {

	if len(tied) == 1 {
		return tied[0]
	}
	tiedSet := make(map[datatypes.VoteChoice]bool, len(tied))
	for _, c := range tied {
		tiedSet[c] = true
	}
	byMember := make(map[string]datatypes.VoteChoice, len(cast))
	for _, v := range cast {
		byMember[v.MemberId] = v.Choice
	}
	for _, m := range roster {
		if choice, ok := byMember[m.Id]; ok && tiedSet[choice] {
			return choice
		}
	}
	// Unreachable for real input (every vote belongs to a roster member),
	// but a stable fallback beats a panic.
	sort.Slice(tied, func(i, j int) bool { return tied[i] < tied[j] })
	return tied[0]
}

var themeTokenRe = regexp.MustCompile(`[a-zA-Z][a-zA-Z\-]{4,}`)

// stopTerms are generic deliberation vocabulary that says nothing about the
// deal itself.
var stopTerms = map[string]bool{
	"about": true, "after": true, "again": true, "agree": true, "because": true,
	"being": true, "board": true, "could": true, "still": true, "their": true,
	"there": true, "these": true, "think": true, "those": true, "vote": true,
	"voted": true, "votes": true, "which": true, "while": true, "would": true,
	"should": true, "overall": true, "members": true, "however": true,
	"strongly": true, "believe": true, "given": true, "remain": true,
}

// deriveThemes extracts convergent and divergent rationale themes with a
// deterministic term-overlap heuristic. A term shared by rationales on the
// winning side is an agreement point; a term a dissenting rationale shares
// with the winning side marks contested ground and becomes friction.
func deriveThemes(cast []datatypes.Vote, final datatypes.VoteChoice) (agreement, friction []string) {
	winnerTerms := map[string]int{}
	dissentTerms := map[string]int{}

	for _, v := range cast {
		seen := map[string]bool{}
		for _, raw := range themeTokenRe.FindAllString(v.Rationale, -1) {
			term := strings.ToLower(raw)
			if stopTerms[term] || seen[term] {
				continue
			}
			seen[term] = true
			if v.Choice == final {
				winnerTerms[term]++
			} else {
				dissentTerms[term]++
			}
		}
	}

	for term, n := range winnerTerms {
		if n >= 2 {
			agreement = append(agreement, fmt.Sprintf("Shared emphasis on %q across the %s camp", term, final))
		}
	}
	for term := range dissentTerms {
		if winnerTerms[term] > 0 {
			friction = append(friction, fmt.Sprintf("Contested reading of %q between camps", term))
		}
	}

	sort.Strings(agreement)
	sort.Strings(friction)
	agreement = capPoints(agreement, 5)
	friction = capPoints(friction, 5)
	return agreement, friction
}

func capPoints(points []string, max int) []string {
	if points == nil {
		return []string{}
	}
	if len(points) > max {
		return points[:max]
	}
	return points
}
