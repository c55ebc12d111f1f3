// Copyright (C) 2025 Dealdesk Labs (eng@dealdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package credits implements admission control for board sessions.
//
// A session start debits exactly one credit at Reserve time. A session that
// ends in FAILED gets the credit back through Refund, exactly once; a
// session that completes keeps the debit. The gate also caps concurrent
// sessions per user and session starts per rolling period.
package credits

import (
	"context"
	"time"
)

// LedgerEntry is one debit or refund in the per-user credit ledger.
type LedgerEntry struct {
	UserId    string    `json:"user_id"`
	SessionId string    `json:"session_id"`
	Delta     int       `json:"delta"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
}

// LedgerWriter persists ledger entries. The gate tolerates a nil writer;
// persistence failures are logged, not fatal, since the in-memory counters
// remain authoritative for admission decisions.
type LedgerWriter interface {
	AppendLedgerEntry(ctx context.Context, entry LedgerEntry) error
}

// Reservation is the token for one admitted session. It is handed back to
// the gate exactly once, through either Complete or Refund.
type Reservation struct {
	Id        string
	UserId    string
	SessionId string

	settled bool // guarded by the owning gate's mutex
}

// Gate is the admission-control contract the session controller depends on.
//
// Reserve must behave as an atomic compare-and-decrement: two concurrent
// calls for the same user must not both succeed when only one credit (or
// one concurrency slot) remains.
type Gate interface {
	// Reserve admits one session for the user, debiting one credit. It
	// returns datatypes.ErrInsufficientCredits when the balance is empty and
	// datatypes.ErrSessionLimit when the concurrency or rolling-period cap
	// would be exceeded.
	Reserve(ctx context.Context, userID string) (*Reservation, error)

	// Complete releases the reservation's concurrency slot and keeps the
	// debit. Called exactly once for sessions that reach DONE.
	Complete(res *Reservation)

	// Refund releases the slot and credits the debit back. Idempotent per
	// reservation; a reservation that was already completed is not refunded.
	Refund(ctx context.Context, res *Reservation) error
}
