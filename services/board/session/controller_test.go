// Copyright (C) 2025 Dealdesk Labs (eng@dealdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealdesk/boardroom/services/board/credits"
	"github.com/dealdesk/boardroom/services/board/datatypes"
	"github.com/dealdesk/boardroom/services/board/members"
	"github.com/dealdesk/boardroom/services/llm"
)

// =============================================================================
// Fakes
// =============================================================================

// phaseClient answers each phase with a scripted reply: analysis and debate
// prompts get prose, the ballot prompt gets JSON. Any phase can be scripted
// to fail instead.
type phaseClient struct {
	id     string
	choice string // ballot choice, e.g. "GO"

	failAnalysis bool
	failDebate   bool
	failVote     bool
	badBallot    bool

	mu    sync.Mutex
	seen  []string
	hangC chan struct{} // non-nil: block analysis until closed or ctx done
}

func (c *phaseClient) Generate(ctx context.Context, _, prompt string, _ llm.GenerationParams) (string, error) {
	c.mu.Lock()
	c.seen = append(c.seen, prompt)
	c.mu.Unlock()

	switch {
	case strings.Contains(prompt, "Cast your final vote"):
		if c.failVote {
			return "", errors.New("vote call failed")
		}
		if c.badBallot {
			return "I abstain, this is not JSON.", nil
		}
		return fmt.Sprintf(`{"choice": "%s", "rationale": "Position of %s after debate."}`, c.choice, c.id), nil
	case strings.Contains(prompt, "Board debate"):
		if c.failDebate {
			return "", errors.New("debate call failed")
		}
		return c.id + " debate position", nil
	default:
		if c.hangC != nil {
			select {
			case <-c.hangC:
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		if c.failAnalysis {
			return "", errors.New("analysis call failed")
		}
		return c.id + " independent analysis", nil
	}
}

type fakeProvider struct {
	ctx datatypes.AnalysisContext
	err error
}

func (p *fakeProvider) Load(_ context.Context, dealID string) (datatypes.AnalysisContext, error) {
	if p.err != nil {
		return datatypes.AnalysisContext{}, p.err
	}
	out := p.ctx
	out.DealId = dealID
	return out, nil
}

type fakeSink struct {
	mu     sync.Mutex
	saves  int
	events []datatypes.ProgressEvent
	err    error
}

func (s *fakeSink) Save(_ context.Context, _ *datatypes.Session, _ *datatypes.Verdict,
	events []datatypes.ProgressEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saves++
	s.events = events
	return nil
}

// =============================================================================
// Harness
// =============================================================================

type harness struct {
	ctrl    *Controller
	gate    *credits.MemoryGate
	sink    *fakeSink
	clients map[string]*phaseClient
}

func newHarness(t *testing.T, clients []*phaseClient, sink *fakeSink) *harness {
	t.Helper()
	slots := make([]members.Slot, 0, len(clients))
	byID := make(map[string]*phaseClient, len(clients))
	for _, c := range clients {
		slots = append(slots, members.Slot{
			Member: datatypes.BoardMember{Id: c.id, DisplayName: "The " + c.id, Persona: "You are " + c.id + "."},
			Caller: c,
		})
		byID[c.id] = c
	}
	pool, err := members.NewPool(slots, 2*time.Second)
	require.NoError(t, err)

	gate := credits.NewMemoryGate(credits.Config{
		InitialCredits:    10,
		MaxConcurrent:     5,
		SessionsPerPeriod: 100,
		Period:            time.Hour,
	}, nil)

	provider := &fakeProvider{ctx: datatypes.AnalysisContext{
		DealName: "Acme",
		Summary:  "Logistics SaaS acquisition.",
		Tier1:    []datatypes.Finding{{Category: "financial", Severity: "medium", Detail: "Customer concentration."}},
	}}

	if sink == nil {
		sink = &fakeSink{}
	}
	ctrl := NewController(pool, gate, provider, sink, Config{DebateRounds: 2}, nil)
	return &harness{ctrl: ctrl, gate: gate, sink: sink, clients: byID}
}

// runToEnd drains the event feed concurrently and returns the verdict, the
// execute error, and the full delivered event sequence.
func runToEnd(t *testing.T, ctx context.Context, run *Run) (*datatypes.Verdict, error, []datatypes.ProgressEvent) {
	t.Helper()
	var events []datatypes.ProgressEvent
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range run.Events() {
			events = append(events, ev)
		}
	}()

	verdict, err := run.Execute(ctx)
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("event feed never closed")
	}
	return verdict, err, events
}

// =============================================================================
// Tests
// =============================================================================

func TestExecute_HappyPath(t *testing.T) {
	h := newHarness(t, []*phaseClient{
		{id: "skeptic", choice: "NO_GO"},
		{id: "operator", choice: "GO"},
		{id: "quant", choice: "GO"},
		{id: "visionary", choice: "GO"},
	}, nil)

	run, err := h.ctrl.StartBoard(context.Background(), "deal-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, 9, h.gate.Balance("alice"), "admission debits one credit")

	verdict, err, events := runToEnd(t, context.Background(), run)
	require.NoError(t, err)
	require.NotNil(t, verdict)

	assert.Equal(t, datatypes.VoteGo, verdict.FinalChoice)
	assert.Equal(t, datatypes.ConsensusMajority, verdict.ConsensusLevel)
	assert.Len(t, verdict.Votes, 4)
	assert.Empty(t, verdict.FailedMembers)

	sess := run.Session()
	assert.Equal(t, datatypes.PhaseDone, sess.Phase)
	require.NotNil(t, sess.CompletedAt)
	assert.Equal(t, verdict, sess.Verdict)

	// Completed sessions keep the debit.
	assert.Equal(t, 9, h.gate.Balance("alice"))
	assert.Equal(t, 1, h.sink.saves)

	// Terminal event is verdict_reached and it is last.
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, datatypes.EventVerdictReached, last.Type)
	require.NotNil(t, last.Verdict)
	for _, ev := range events[:len(events)-1] {
		assert.False(t, ev.Type.Terminal(), "non-final event %s is terminal", ev.Type)
	}

	assertPhaseEventOrdering(t, events)
}

// assertPhaseEventOrdering checks the coarse phase sequence on the feed:
// session_started, then every analysis event, then debate, then voting,
// then the verdict.
func assertPhaseEventOrdering(t *testing.T, events []datatypes.ProgressEvent) {
	t.Helper()
	rank := map[datatypes.EventType]int{
		datatypes.EventSessionStarted:          0,
		datatypes.EventMemberAnalysisStarted:   1,
		datatypes.EventMemberAnalysisCompleted: 1,
		datatypes.EventMemberAnalysisFailed:    1,
		datatypes.EventDebateRoundStarted:      2,
		datatypes.EventDebateResponse:          2,
		datatypes.EventDebateRoundCompleted:    2,
		datatypes.EventVotingStarted:           3,
		datatypes.EventMemberVoted:             3,
		datatypes.EventVerdictReached:          4,
		datatypes.EventError:                   4,
	}
	prev := 0
	for _, ev := range events {
		r, ok := rank[ev.Type]
		require.True(t, ok, "unknown event type %s", ev.Type)
		assert.GreaterOrEqual(t, r, prev, "event %s arrived after a later phase", ev.Type)
		if r > prev {
			prev = r
		}
	}
}

func TestExecute_AnalysisFailureExcludesMemberForGood(t *testing.T) {
	h := newHarness(t, []*phaseClient{
		{id: "skeptic", choice: "GO"},
		{id: "operator", choice: "GO", failAnalysis: true},
		{id: "quant", choice: "GO"},
	}, nil)

	run, err := h.ctrl.StartBoard(context.Background(), "deal-1", "alice")
	require.NoError(t, err)
	verdict, err, events := runToEnd(t, context.Background(), run)
	require.NoError(t, err)

	assert.Equal(t, []string{"operator"}, verdict.FailedMembers)
	assert.Len(t, verdict.Votes, 2)
	assert.Equal(t, datatypes.ConsensusUnanimous, verdict.ConsensusLevel)

	// The dead member was called exactly once (analysis) and never again.
	assert.Len(t, h.clients["operator"].seen, 1)

	var sawFailure bool
	for _, ev := range events {
		if ev.Type == datatypes.EventMemberAnalysisFailed {
			assert.Equal(t, "operator", ev.MemberId)
			assert.NotEmpty(t, ev.Error)
			sawFailure = true
		}
	}
	assert.True(t, sawFailure)
}

func TestExecute_AllAnalysesFailTerminatesWithRefund(t *testing.T) {
	h := newHarness(t, []*phaseClient{
		{id: "skeptic", failAnalysis: true},
		{id: "quant", failAnalysis: true},
	}, nil)

	run, err := h.ctrl.StartBoard(context.Background(), "deal-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, 9, h.gate.Balance("alice"))

	verdict, err, events := runToEnd(t, context.Background(), run)
	assert.Nil(t, verdict)
	assert.ErrorIs(t, err, datatypes.ErrNoLiveMembers)

	assert.Equal(t, datatypes.PhaseFailed, run.Session().Phase)
	assert.Equal(t, 10, h.gate.Balance("alice"), "failed session refunds the credit")
	assert.Equal(t, 0, h.sink.saves, "failed sessions are not persisted as records")

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, datatypes.EventError, last.Type)
	assert.NotEmpty(t, last.Error)
}

func TestExecute_SingleSurvivorSkipsDebate(t *testing.T) {
	h := newHarness(t, []*phaseClient{
		{id: "skeptic", failAnalysis: true},
		{id: "operator", failAnalysis: true},
		{id: "quant", choice: "NEED_MORE_INFO"},
	}, nil)

	run, err := h.ctrl.StartBoard(context.Background(), "deal-1", "alice")
	require.NoError(t, err)
	verdict, err, events := runToEnd(t, context.Background(), run)
	require.NoError(t, err)

	assert.Equal(t, datatypes.VoteNeedMoreInfo, verdict.FinalChoice)
	assert.Equal(t, datatypes.ConsensusUnanimous, verdict.ConsensusLevel)
	assert.ElementsMatch(t, []string{"skeptic", "operator"}, verdict.FailedMembers)

	for _, ev := range events {
		assert.NotEqual(t, datatypes.EventDebateRoundStarted, ev.Type, "single-member session must not debate")
	}
	// Survivor was called twice: analysis and vote.
	assert.Len(t, h.clients["quant"].seen, 2)
}

func TestExecute_MidDebateFailureReachesVerdict(t *testing.T) {
	h := newHarness(t, []*phaseClient{
		{id: "skeptic", choice: "NO_GO"},
		{id: "operator", choice: "GO", failDebate: true},
		{id: "quant", choice: "GO"},
	}, nil)

	run, err := h.ctrl.StartBoard(context.Background(), "deal-1", "alice")
	require.NoError(t, err)
	verdict, err, _ := runToEnd(t, context.Background(), run)
	require.NoError(t, err)

	assert.Contains(t, verdict.FailedMembers, "operator")
	assert.Len(t, verdict.Votes, 2)
	// 1-1 split, skeptic first on the roster.
	assert.Equal(t, datatypes.VoteNoGo, verdict.FinalChoice)
	assert.Equal(t, datatypes.ConsensusSplit, verdict.ConsensusLevel)
}

func TestExecute_UnparseableBallotMeansNoVote(t *testing.T) {
	h := newHarness(t, []*phaseClient{
		{id: "skeptic", choice: "GO"},
		{id: "operator", badBallot: true},
		{id: "quant", choice: "GO"},
	}, nil)

	run, err := h.ctrl.StartBoard(context.Background(), "deal-1", "alice")
	require.NoError(t, err)
	verdict, err, _ := runToEnd(t, context.Background(), run)
	require.NoError(t, err)

	assert.Len(t, verdict.Votes, 2)
	assert.Equal(t, []string{"operator"}, verdict.FailedMembers)
	assert.Equal(t, datatypes.ConsensusUnanimous, verdict.ConsensusLevel)
}

func TestExecute_NoBallotsAtAllFails(t *testing.T) {
	h := newHarness(t, []*phaseClient{
		{id: "skeptic", failVote: true},
		{id: "quant", badBallot: true},
	}, nil)

	run, err := h.ctrl.StartBoard(context.Background(), "deal-1", "alice")
	require.NoError(t, err)
	verdict, err, _ := runToEnd(t, context.Background(), run)

	assert.Nil(t, verdict)
	assert.ErrorIs(t, err, datatypes.ErrNoLiveMembers)
	assert.Equal(t, 10, h.gate.Balance("alice"))
}

func TestExecute_PersistenceFailureDowngradesToFailed(t *testing.T) {
	sink := &fakeSink{err: errors.New("disk full")}
	h := newHarness(t, []*phaseClient{
		{id: "skeptic", choice: "GO"},
		{id: "quant", choice: "GO"},
	}, sink)

	run, err := h.ctrl.StartBoard(context.Background(), "deal-1", "alice")
	require.NoError(t, err)
	verdict, err, events := runToEnd(t, context.Background(), run)

	assert.Nil(t, verdict)
	assert.ErrorContains(t, err, "persisting session record")
	assert.Equal(t, datatypes.PhaseFailed, run.Session().Phase)
	assert.Equal(t, 10, h.gate.Balance("alice"))
	assert.Equal(t, datatypes.EventError, events[len(events)-1].Type)
}

func TestExecute_CancellationRefunds(t *testing.T) {
	hang := make(chan struct{})
	defer close(hang)
	h := newHarness(t, []*phaseClient{
		{id: "skeptic", choice: "GO", hangC: hang},
		{id: "quant", choice: "GO", hangC: hang},
	}, nil)

	run, err := h.ctrl.StartBoard(context.Background(), "deal-1", "alice")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	verdict, err, events := runToEnd(t, ctx, run)
	assert.Nil(t, verdict)
	assert.Error(t, err)

	assert.Equal(t, datatypes.PhaseFailed, run.Session().Phase)
	assert.Equal(t, 10, h.gate.Balance("alice"), "abandoned session refunds despite cancelled context")
	assert.Equal(t, datatypes.EventError, events[len(events)-1].Type)
}

func TestExecute_OnlyOnce(t *testing.T) {
	h := newHarness(t, []*phaseClient{{id: "quant", choice: "GO"}}, nil)

	run, err := h.ctrl.StartBoard(context.Background(), "deal-1", "alice")
	require.NoError(t, err)
	_, err, _ = runToEnd(t, context.Background(), run)
	require.NoError(t, err)

	_, err = run.Execute(context.Background())
	assert.ErrorIs(t, err, datatypes.ErrInvalidSessionState)
}

func TestStartBoard_DealLoadFailureRefunds(t *testing.T) {
	h := newHarness(t, []*phaseClient{{id: "quant", choice: "GO"}}, nil)
	h.ctrl.provider = &fakeProvider{err: datatypes.ErrDealNotFound}

	_, err := h.ctrl.StartBoard(context.Background(), "missing-deal", "alice")
	assert.ErrorIs(t, err, datatypes.ErrDealNotFound)
	assert.Equal(t, 10, h.gate.Balance("alice"), "refused start must not consume credit")
}

func TestStartBoard_InsufficientCredits(t *testing.T) {
	h := newHarness(t, []*phaseClient{{id: "quant", choice: "GO"}}, nil)

	// Exhaust the balance with completed sessions.
	for i := 0; i < 10; i++ {
		run, err := h.ctrl.StartBoard(context.Background(), "deal-1", "alice")
		require.NoError(t, err)
		_, err, _ = runToEnd(t, context.Background(), run)
		require.NoError(t, err)
	}

	_, err := h.ctrl.StartBoard(context.Background(), "deal-1", "alice")
	assert.ErrorIs(t, err, datatypes.ErrInsufficientCredits)
}

func TestExecute_SavedEventLogMatchesFeed(t *testing.T) {
	h := newHarness(t, []*phaseClient{
		{id: "skeptic", choice: "GO"},
		{id: "quant", choice: "GO"},
	}, nil)

	run, err := h.ctrl.StartBoard(context.Background(), "deal-1", "alice")
	require.NoError(t, err)
	_, err, events := runToEnd(t, context.Background(), run)
	require.NoError(t, err)

	// The stored log is captured at save time, before the terminal event.
	require.NotEmpty(t, h.sink.events)
	assert.Equal(t, events[:len(events)-1], h.sink.events)
}
