// Copyright (C) 2025 Dealdesk Labs (eng@dealdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package members holds the fixed board roster and the bounded fan-out used
// by every phase. Each member is a (descriptor, model client) pair; dispatch
// is interface-based, never string-matched on provider names.
package members

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dealdesk/boardroom/services/board/datatypes"
	"github.com/dealdesk/boardroom/services/llm"
)

// Slot binds one roster entry to its model client.
type Slot struct {
	Member datatypes.BoardMember
	Caller llm.LLMClient
}

// CallResult is one settled member call. Exactly one of Text or Err is
// meaningful; Timeout distinguishes deadline expiry from provider errors
// for logging and events, the session treats both identically.
type CallResult struct {
	Text    string
	Err     error
	Timeout bool
}

// Failed reports whether the call did not produce usable text.
func (r CallResult) Failed() bool { return r.Err != nil }

// Pool is the fixed board roster. It is immutable after construction and
// shared by all sessions; per-session live/failed tracking belongs to the
// session, not the pool.
type Pool struct {
	slots   []Slot
	byId    map[string]Slot
	timeout time.Duration
}

// NewPool builds a pool from the configured slots. perCallTimeout bounds
// every individual model call; zero falls back to 90 seconds.
func NewPool(slots []Slot, perCallTimeout time.Duration) (*Pool, error) {
	if len(slots) == 0 {
		return nil, fmt.Errorf("board roster is empty")
	}
	if perCallTimeout <= 0 {
		perCallTimeout = 90 * time.Second
	}
	byId := make(map[string]Slot, len(slots))
	for _, s := range slots {
		if s.Caller == nil {
			return nil, fmt.Errorf("member %s has no model client", s.Member.Id)
		}
		if _, dup := byId[s.Member.Id]; dup {
			return nil, fmt.Errorf("duplicate member id %s", s.Member.Id)
		}
		byId[s.Member.Id] = s
	}
	return &Pool{slots: slots, byId: byId, timeout: perCallTimeout}, nil
}

// Roster returns the configured members in roster order. The order is part
// of the contract: vote ties resolve by position in this slice.
func (p *Pool) Roster() []datatypes.BoardMember {
	out := make([]datatypes.BoardMember, len(p.slots))
	for i, s := range p.slots {
		out[i] = s.Member
	}
	return out
}

// Member looks up a roster entry by id.
func (p *Pool) Member(id string) (datatypes.BoardMember, bool) {
	s, ok := p.byId[id]
	return s.Member, ok
}

// CallTimeout is the per-call deadline applied by CallAll.
func (p *Pool) CallTimeout() time.Duration { return p.timeout }

// CallAll fans one prompt per member out to the model clients and waits for
// the full set to settle — a barrier, not a race. Concurrency is bounded by
// the number of members called, which is bounded by the roster size.
//
// A call that exceeds the per-call timeout settles as failed; it is never
// retried here. onSettled, if non-nil, is invoked once per member as its
// result arrives (from the calling member's goroutine), letting the session
// stream per-member events before the barrier closes.
func (p *Pool) CallAll(ctx context.Context, live []datatypes.BoardMember,
	prompts map[string]string, onSettled func(memberID string, res CallResult)) map[string]CallResult {

	results := make(map[string]CallResult, len(live))
	var mu sync.Mutex

	var g errgroup.Group
	for _, m := range live {
		slot, ok := p.byId[m.Id]
		if !ok {
			continue
		}
		prompt, ok := prompts[m.Id]
		if !ok {
			continue
		}
		g.Go(func() error {
			res := p.callOne(ctx, slot, prompt)
			mu.Lock()
			results[slot.Member.Id] = res
			mu.Unlock()
			if onSettled != nil {
				onSettled(slot.Member.Id, res)
			}
			// Member failures are absorbed, never propagated: one straggler
			// or provider outage must not cancel the siblings.
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (p *Pool) callOne(ctx context.Context, slot Slot, prompt string) CallResult {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	text, err := slot.Caller.Generate(callCtx, slot.Member.Persona, prompt, llm.GenerationParams{})
	elapsed := time.Since(start)

	if err != nil {
		timedOut := errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded)
		slog.Warn("Board member call failed",
			"memberId", slot.Member.Id,
			"provider", slot.Member.Provider,
			"timeout", timedOut,
			"elapsed", elapsed,
			"error", err)
		return CallResult{Err: err, Timeout: timedOut}
	}
	if text == "" {
		return CallResult{Err: fmt.Errorf("member %s returned empty output", slot.Member.Id)}
	}
	slog.Debug("Board member call settled",
		"memberId", slot.Member.Id, "elapsed", elapsed, "chars", len(text))
	return CallResult{Text: text}
}
