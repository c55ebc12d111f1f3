// Copyright (C) 2025 Dealdesk Labs (eng@dealdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package credits

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/dealdesk/boardroom/services/board/datatypes"
)

// Config controls the per-user admission limits.
type Config struct {
	// InitialCredits is the starting balance for a user the gate has not
	// seen before.
	InitialCredits int

	// MaxConcurrent caps simultaneously running sessions per user.
	MaxConcurrent int

	// SessionsPerPeriod and Period bound session starts over a rolling
	// window (e.g. 10 per hour).
	SessionsPerPeriod int
	Period            time.Duration
}

// DefaultConfig returns the limits used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		InitialCredits:    25,
		MaxConcurrent:     2,
		SessionsPerPeriod: 10,
		Period:            time.Hour,
	}
}

type userState struct {
	balance  int
	inflight int
	limiter  *rate.Limiter
}

// MemoryGate is the in-process Gate implementation. All counters live under
// one mutex; Reserve is a genuine compare-and-decrement, never read-then-write
// across the lock boundary.
type MemoryGate struct {
	cfg    Config
	ledger LedgerWriter

	mu    sync.Mutex
	users map[string]*userState
}

// NewMemoryGate creates a gate with the given limits. ledger may be nil.
func NewMemoryGate(cfg Config, ledger LedgerWriter) *MemoryGate {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.Period <= 0 {
		cfg.Period = time.Hour
	}
	return &MemoryGate{
		cfg:    cfg,
		ledger: ledger,
		users:  make(map[string]*userState),
	}
}

func (g *MemoryGate) userLocked(userID string) *userState {
	u, ok := g.users[userID]
	if !ok {
		u = &userState{
			balance: g.cfg.InitialCredits,
			limiter: rate.NewLimiter(
				rate.Limit(float64(g.cfg.SessionsPerPeriod)/g.cfg.Period.Seconds()),
				g.cfg.SessionsPerPeriod,
			),
		}
		g.users[userID] = u
	}
	return u
}

// Reserve implements Gate.
func (g *MemoryGate) Reserve(ctx context.Context, userID string) (*Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	u := g.userLocked(userID)

	if u.inflight >= g.cfg.MaxConcurrent {
		g.mu.Unlock()
		return nil, fmt.Errorf("%w: %d sessions already running", datatypes.ErrSessionLimit, g.cfg.MaxConcurrent)
	}
	if u.balance <= 0 {
		g.mu.Unlock()
		return nil, datatypes.ErrInsufficientCredits
	}
	// The limiter check goes last: Allow consumes a period token, so a
	// rejected start must never reach it.
	if !u.limiter.Allow() {
		g.mu.Unlock()
		return nil, fmt.Errorf("%w: rolling period cap of %d reached", datatypes.ErrSessionLimit, g.cfg.SessionsPerPeriod)
	}

	u.balance--
	u.inflight++
	res := &Reservation{
		Id:     uuid.New().String(),
		UserId: userID,
	}
	g.mu.Unlock()

	slog.Info("Reserved board session credit", "userId", userID, "reservationId", res.Id)
	g.writeLedger(ctx, LedgerEntry{
		UserId: userID,
		Delta:  -1,
		Reason: "board_session_debit",
		At:     time.Now(),
	})
	return res, nil
}

// Complete implements Gate.
func (g *MemoryGate) Complete(res *Reservation) {
	if res == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if res.settled {
		return
	}
	res.settled = true
	if u, ok := g.users[res.UserId]; ok && u.inflight > 0 {
		u.inflight--
	}
}

// Refund implements Gate. A reservation already settled (completed or
// refunded) is left alone, which makes double-refund impossible and keeps
// completed sessions debited.
func (g *MemoryGate) Refund(ctx context.Context, res *Reservation) error {
	if res == nil {
		return nil
	}
	g.mu.Lock()
	if res.settled {
		g.mu.Unlock()
		return nil
	}
	res.settled = true
	u := g.userLocked(res.UserId)
	u.balance++
	if u.inflight > 0 {
		u.inflight--
	}
	g.mu.Unlock()

	slog.Info("Refunded board session credit", "userId", res.UserId, "reservationId", res.Id, "sessionId", res.SessionId)
	g.writeLedger(ctx, LedgerEntry{
		UserId:    res.UserId,
		SessionId: res.SessionId,
		Delta:     1,
		Reason:    "board_session_refund",
		At:        time.Now(),
	})
	return nil
}

// Balance reports the user's current credit balance.
func (g *MemoryGate) Balance(userID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.userLocked(userID).balance
}

func (g *MemoryGate) writeLedger(ctx context.Context, entry LedgerEntry) {
	if g.ledger == nil {
		return
	}
	if err := g.ledger.AppendLedgerEntry(ctx, entry); err != nil {
		slog.Error("Failed to persist credit ledger entry", "userId", entry.UserId, "error", err)
	}
}

var _ Gate = (*MemoryGate)(nil)
