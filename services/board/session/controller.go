// Copyright (C) 2025 Dealdesk Labs (eng@dealdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package session implements the board session controller: the phase state
// machine that drives one deliberation from admission through analysis,
// debate, and voting to a terminal verdict or failure.
//
// # Phase Machine
//
//	INIT → ANALYSIS → DEBATE → VOTE → DONE
//	                             └──────► FAILED (from any non-DONE phase)
//
// Phases only move forward. Each arrow is a synchronization barrier: the
// controller waits for every live member's result before advancing, and
// never races to the first response.
//
// # Guarantees
//
//   - Exactly one terminal event per session (verdict_reached xor error),
//     always the last event on the feed.
//   - The credit is debited exactly once before ANALYSIS and refunded
//     exactly once if and only if the session ends FAILED, including when
//     the caller disconnects mid-session.
//   - A member that fails in any phase never reappears in a later phase.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"

	"github.com/dealdesk/boardroom/services/board/credits"
	"github.com/dealdesk/boardroom/services/board/datatypes"
	"github.com/dealdesk/boardroom/services/board/debate"
	"github.com/dealdesk/boardroom/services/board/members"
	"github.com/dealdesk/boardroom/services/board/observability"
	"github.com/dealdesk/boardroom/services/board/progress"
	"github.com/dealdesk/boardroom/services/board/votes"
)

var tracer = otel.Tracer("boardroom.session")

// Config tunes one controller. Zero values fall back to package defaults.
type Config struct {
	// DebateRounds is the fixed number of synchronized debate rounds.
	DebateRounds int

	// ConsensusThreshold is the strict winning ratio for "majority".
	ConsensusThreshold float64
}

// Controller builds and runs board sessions. It is safe for concurrent use;
// all per-session state lives on the Run.
type Controller struct {
	pool     *members.Pool
	gate     credits.Gate
	provider AnalysisResultsProvider
	sink     PersistenceSink
	agg      *votes.Aggregator
	cfg      Config
	metrics  *observability.BoardMetrics
}

// NewController wires a controller from its collaborators. metrics may be
// nil (e.g. in tests).
func NewController(pool *members.Pool, gate credits.Gate, provider AnalysisResultsProvider,
	sink PersistenceSink, cfg Config, metrics *observability.BoardMetrics) *Controller {
	return &Controller{
		pool:     pool,
		gate:     gate,
		provider: provider,
		sink:     sink,
		agg:      votes.NewAggregator(cfg.ConsensusThreshold),
		cfg:      cfg,
		metrics:  metrics,
	}
}

// Run is one admitted, not-yet-started board session. It owns its Session
// and progress emitter exclusively; no two runs share a session id.
type Run struct {
	c           *Controller
	session     *datatypes.Session
	reservation *credits.Reservation
	analysisCtx datatypes.AnalysisContext
	em          *progress.Emitter

	executed bool
}

// StartBoard admits and initializes a session: it debits one credit,
// loads the deal's prior analysis results, and returns a Run ready to
// execute. On any error after the debit the credit is refunded before
// returning, so a rejected start never consumes credit.
//
// Errors worth branching on: datatypes.ErrInsufficientCredits,
// datatypes.ErrSessionLimit, datatypes.ErrDealNotFound.
func (c *Controller) StartBoard(ctx context.Context, dealID, userID string) (*Run, error) {
	res, err := c.gate.Reserve(ctx, userID)
	if err != nil {
		return nil, err
	}

	analysisCtx, err := c.provider.Load(ctx, dealID)
	if err != nil {
		if refundErr := c.gate.Refund(context.WithoutCancel(ctx), res); refundErr != nil {
			slog.Error("Refund after failed deal load also failed", "userId", userID, "error", refundErr)
		}
		return nil, fmt.Errorf("loading analysis context for deal %s: %w", dealID, err)
	}

	sess := &datatypes.Session{
		Id:        uuid.New().String(),
		DealId:    dealID,
		UserId:    userID,
		Phase:     datatypes.PhaseInit,
		CreatedAt: time.Now(),
	}
	res.SessionId = sess.Id

	slog.Info("Board session admitted",
		"sessionId", sess.Id, "dealId", dealID, "userId", userID)

	return &Run{
		c:           c,
		session:     sess,
		reservation: res,
		analysisCtx: analysisCtx,
		em:          progress.NewEmitter(sess.Id),
	}, nil
}

// Session returns the run's session. Read-only for callers.
func (r *Run) Session() *datatypes.Session { return r.session }

// Events is the ordered progress feed for this run. The transport adapter
// (SSE, websocket, or a test) drains it until closed; the terminal event is
// always the last one delivered.
func (r *Run) Events() <-chan datatypes.ProgressEvent { return r.em.Events() }

// Execute drives the session through all phases and returns the Verdict.
// It must be called at most once. Cancel ctx to abort: the refund is still
// attempted and the terminal error event still emitted.
func (r *Run) Execute(ctx context.Context) (*datatypes.Verdict, error) {
	if r.executed {
		return nil, fmt.Errorf("%w: run already executed", datatypes.ErrInvalidSessionState)
	}
	r.executed = true

	ctx, span := tracer.Start(ctx, "Board.Execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("board.session_id", r.session.Id),
		attribute.String("board.deal_id", r.session.DealId),
	)

	r.c.metrics.SessionStarted()
	start := time.Now()
	verdict, err := r.execute(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		r.c.metrics.SessionFinished("failed", time.Since(start))
		return nil, err
	}
	r.c.metrics.SessionFinished("done", time.Since(start))
	return verdict, nil
}

func (r *Run) execute(ctx context.Context) (*datatypes.Verdict, error) {
	roster := r.c.pool.Roster()

	// --- INIT → ANALYSIS ---
	if err := r.advance(datatypes.PhaseAnalysis); err != nil {
		return nil, r.fail(ctx, err)
	}
	r.em.Emit(datatypes.ProgressEvent{
		Type:    datatypes.EventSessionStarted,
		Message: fmt.Sprintf("Board convened on %s with %d members", r.analysisCtx.DealName, len(roster)),
	})

	analyses, live, failed := r.runAnalysis(ctx, roster)
	if ctx.Err() != nil {
		return nil, r.fail(ctx, fmt.Errorf("session cancelled during analysis: %w", ctx.Err()))
	}
	if len(live) == 0 {
		return nil, r.fail(ctx, fmt.Errorf("all %d analysis calls failed: %w", len(roster), datatypes.ErrNoLiveMembers))
	}

	// --- ANALYSIS → DEBATE ---
	if err := r.advance(datatypes.PhaseDebate); err != nil {
		return nil, r.fail(ctx, err)
	}

	prior := make(map[string]string, len(live))
	for _, m := range live {
		prior[m.Id] = analyses[m.Id].Content
	}

	var rounds []datatypes.DebateRound
	if len(live) == 1 {
		// Debate with a single participant is a pass-through to voting.
		slog.Info("Single live member, skipping debate", "sessionId", r.session.Id)
	} else {
		coord := debate.NewCoordinator(r.c.cfg.DebateRounds, r.c.pool)
		var debateFailed []string
		rounds, live, debateFailed = coord.Run(ctx, r.em, r.analysisCtx.Brief(), live, prior)
		failed = append(failed, debateFailed...)
	}
	if ctx.Err() != nil {
		return nil, r.fail(ctx, fmt.Errorf("session cancelled during debate: %w", ctx.Err()))
	}
	if len(live) == 0 {
		return nil, r.fail(ctx, fmt.Errorf("every member dropped mid-debate: %w", datatypes.ErrNoLiveMembers))
	}

	// --- DEBATE → VOTE ---
	if err := r.advance(datatypes.PhaseVote); err != nil {
		return nil, r.fail(ctx, err)
	}

	cast, voteFailed := r.runVoting(ctx, roster, live, rounds)
	failed = append(failed, voteFailed...)
	if ctx.Err() != nil {
		return nil, r.fail(ctx, fmt.Errorf("session cancelled during voting: %w", ctx.Err()))
	}
	if len(cast) == 0 {
		return nil, r.fail(ctx, fmt.Errorf("no member produced a vote: %w", datatypes.ErrNoLiveMembers))
	}

	verdict, err := r.c.agg.Aggregate(roster, cast, failed)
	if err != nil {
		return nil, r.fail(ctx, err)
	}

	// --- VOTE → DONE ---
	now := time.Now()
	r.session.Verdict = verdict
	r.session.CompletedAt = &now
	if err := r.advance(datatypes.PhaseDone); err != nil {
		return nil, r.fail(ctx, err)
	}
	if err := r.c.sink.Save(ctx, r.session, verdict, r.em.Log()); err != nil {
		// Persistence failure downgrades the session: the caller gets a
		// terminal error instead of a verdict and the credit comes back.
		// This is the one place FAILED is entered without the guard, since
		// the phase already flipped to DONE for the stored record.
		r.session.Phase = datatypes.PhaseFailed
		return nil, r.terminate(ctx, fmt.Errorf("persisting session record: %w", err))
	}

	r.em.Emit(datatypes.ProgressEvent{
		Type:    datatypes.EventVerdictReached,
		Verdict: verdict,
		Message: fmt.Sprintf("Verdict: %s (%s)", verdict.FinalChoice, verdict.ConsensusLevel),
	})
	r.em.Close()
	r.c.gate.Complete(r.reservation)

	slog.Info("Board session complete",
		"sessionId", r.session.Id,
		"verdict", verdict.FinalChoice,
		"consensus", verdict.ConsensusLevel,
		"failedMembers", len(verdict.FailedMembers))
	return verdict, nil
}

// runAnalysis executes the ANALYSIS barrier: one independent call per roster
// member, all settled before the phase advances. Failed members are excluded
// from every later phase.
func (r *Run) runAnalysis(ctx context.Context,
	roster []datatypes.BoardMember) (map[string]datatypes.MemberAnalysis, []datatypes.BoardMember, []string) {

	brief := r.analysisCtx.Brief()
	prompt := "Review the due-diligence dossier below and give your independent assessment " +
		"of this deal from your seat on the board. Lead with your overall read, then the " +
		"three points that most drive it. Under 300 words.\n\n" + brief

	prompts := make(map[string]string, len(roster))
	for _, m := range roster {
		prompts[m.Id] = prompt
		r.em.Emit(datatypes.ProgressEvent{
			Type:     datatypes.EventMemberAnalysisStarted,
			MemberId: m.Id,
		})
	}

	results := r.c.pool.CallAll(ctx, roster, prompts, func(memberID string, res members.CallResult) {
		if res.Failed() {
			r.c.metrics.MemberCall("failed")
			r.em.Emit(datatypes.ProgressEvent{
				Type:     datatypes.EventMemberAnalysisFailed,
				MemberId: memberID,
				Error:    res.Err.Error(),
			})
			return
		}
		r.c.metrics.MemberCall("succeeded")
		r.em.Emit(datatypes.ProgressEvent{
			Type:     datatypes.EventMemberAnalysisCompleted,
			MemberId: memberID,
			Content:  res.Text,
		})
	})

	analyses := make(map[string]datatypes.MemberAnalysis, len(roster))
	var live []datatypes.BoardMember
	var failed []string
	for _, m := range roster {
		res := results[m.Id]
		if res.Failed() {
			callErr := &datatypes.MemberCallError{
				MemberId: m.Id, Phase: datatypes.PhaseAnalysis, Timeout: res.Timeout, Err: res.Err,
			}
			analyses[m.Id] = datatypes.MemberAnalysis{
				MemberId: m.Id, Status: datatypes.AnalysisFailed, ErrorReason: callErr.Error(),
			}
			failed = append(failed, m.Id)
			continue
		}
		analyses[m.Id] = datatypes.MemberAnalysis{
			MemberId: m.Id, Status: datatypes.AnalysisSucceeded, Content: res.Text,
		}
		live = append(live, m)
	}
	return analyses, live, failed
}

// runVoting executes the VOTE barrier over the surviving members. A member
// whose call fails or whose ballot cannot be parsed casts no vote and is
// recorded among the failed members; it does not retroactively change the
// live count used elsewhere.
func (r *Run) runVoting(ctx context.Context, roster, live []datatypes.BoardMember,
	rounds []datatypes.DebateRound) ([]datatypes.Vote, []string) {

	r.em.Emit(datatypes.ProgressEvent{
		Type:    datatypes.EventVotingStarted,
		Message: fmt.Sprintf("Voting opened for %d members", len(live)),
	})

	digest := debate.Digest(roster, rounds)
	brief := r.analysisCtx.Brief()
	prompts := make(map[string]string, len(live))
	for _, m := range live {
		prompts[m.Id] = votes.BallotPrompt(brief, digest)
	}

	byMember := make(map[string]datatypes.Vote, len(live))
	var failed []string

	results := r.c.pool.CallAll(ctx, live, prompts, nil)
	for _, m := range live {
		res := results[m.Id]
		if res.Failed() {
			r.c.metrics.MemberCall("failed")
			slog.Warn("Vote call failed", "sessionId", r.session.Id, "memberId", m.Id, "error", res.Err)
			failed = append(failed, m.Id)
			continue
		}
		vote, err := votes.ParseBallot(m.Id, res.Text)
		if err != nil {
			r.c.metrics.MemberCall("failed")
			slog.Warn("Discarding unparseable ballot", "sessionId", r.session.Id, "memberId", m.Id, "error", err)
			failed = append(failed, m.Id)
			continue
		}
		r.c.metrics.MemberCall("succeeded")
		byMember[m.Id] = vote
		r.em.Emit(datatypes.ProgressEvent{
			Type:     datatypes.EventMemberVoted,
			MemberId: m.Id,
			Choice:   string(vote.Choice),
			Content:  vote.Rationale,
		})
	}

	// Roster order keeps the verdict's vote list deterministic.
	var cast []datatypes.Vote
	for _, m := range roster {
		if v, ok := byMember[m.Id]; ok {
			cast = append(cast, v)
		}
	}
	return cast, failed
}

// advance moves the session forward one phase, enforcing the forward-only
// sequence.
func (r *Run) advance(next datatypes.Phase) error {
	if !r.session.Phase.CanAdvance(next) {
		return fmt.Errorf("%w: %s -> %s", datatypes.ErrInvalidSessionState, r.session.Phase, next)
	}
	slog.Debug("Session phase transition",
		"sessionId", r.session.Id, "from", r.session.Phase, "to", next)
	r.session.Phase = next
	return nil
}

// fail moves the session to FAILED and finishes it with terminate.
func (r *Run) fail(ctx context.Context, cause error) error {
	if r.session.Phase.CanAdvance(datatypes.PhaseFailed) {
		r.session.Phase = datatypes.PhaseFailed
	}
	return r.terminate(ctx, cause)
}

// terminate performs the terminal failure bookkeeping exactly once: the
// compensating refund, the terminal error event, and the feed close. The
// refund uses a detached context so a disconnected caller still gets the
// credit back.
func (r *Run) terminate(ctx context.Context, cause error) error {
	slog.Error("Board session failed", "sessionId", r.session.Id, "error", cause)

	if err := r.c.gate.Refund(context.WithoutCancel(ctx), r.reservation); err != nil {
		slog.Error("Compensating refund failed", "sessionId", r.session.Id, "error", err)
	} else {
		r.c.metrics.Refund()
	}

	r.em.Emit(datatypes.ProgressEvent{
		Type:  datatypes.EventError,
		Error: cause.Error(),
	})
	r.em.Close()
	return cause
}
