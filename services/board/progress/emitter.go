// Copyright (C) 2025 Dealdesk Labs (eng@dealdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package progress implements the ordered, append-only progress feed for one
// board session.
//
// # Description
//
// The Emitter decouples the orchestrator (producer) from the transport
// (consumer). Emit never blocks the producing phase: events land in an
// internal queue and a pump goroutine delivers them to the consumer channel
// in emission order. The transport side (SSE handler, websocket handler, or
// a test harness) reads Events() until it is closed.
//
// Each event is assigned an id, a millisecond timestamp, and a SHA-256 hash
// chained to the previous event, so a stored log can be replayed and
// verified for ordering and completeness.
//
// # Thread Safety
//
// Emit is safe for concurrent use. Ordering is guaranteed relative to the
// call sequence: two Emit calls that do not race each other are delivered in
// call order.
package progress

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dealdesk/boardroom/services/board/datatypes"
)

// Emitter is the append-only event sink for a single session. One emitter
// belongs to exactly one running orchestration; it is never shared between
// sessions.
type Emitter struct {
	sessionID string

	mu       sync.Mutex
	queue    []datatypes.ProgressEvent
	log      []datatypes.ProgressEvent
	prevHash string
	closed   bool

	wake chan struct{}
	out  chan datatypes.ProgressEvent
}

// NewEmitter creates an emitter for the given session and starts its pump
// goroutine. The caller must eventually call Close, or the pump leaks.
func NewEmitter(sessionID string) *Emitter {
	e := &Emitter{
		sessionID: sessionID,
		wake:      make(chan struct{}, 1),
		out:       make(chan datatypes.ProgressEvent, 16),
	}
	go e.pump()
	return e
}

// Emit appends an event to the session feed. It assigns Id, SessionId,
// CreatedAt, and the hash chain, then returns immediately; delivery to the
// consumer happens asynchronously. Events emitted after Close are dropped.
func (e *Emitter) Emit(ev datatypes.ProgressEvent) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	ev.Id = uuid.New().String()
	ev.SessionId = e.sessionID
	ev.CreatedAt = time.Now().UnixMilli()
	ev.PrevHash = e.prevHash
	ev.Hash = computeEventHash(ev)
	e.prevHash = ev.Hash

	e.queue = append(e.queue, ev)
	e.log = append(e.log, ev)
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Events returns the consumer channel. It is closed after Close once every
// queued event has been delivered.
func (e *Emitter) Events() <-chan datatypes.ProgressEvent {
	return e.out
}

// Log returns a copy of every event emitted so far, in order. The stored
// session record keeps this as the authoritative history.
func (e *Emitter) Log() []datatypes.ProgressEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]datatypes.ProgressEvent, len(e.log))
	copy(out, e.log)
	return out
}

// Close stops accepting events. Already-queued events are still delivered,
// then the consumer channel is closed. Safe to call more than once.
func (e *Emitter) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// pump drains the queue into the consumer channel in order. The send may
// block on a slow consumer; that back-pressure never reaches Emit.
func (e *Emitter) pump() {
	for {
		e.mu.Lock()
		if len(e.queue) == 0 {
			if e.closed {
				e.mu.Unlock()
				close(e.out)
				return
			}
			e.mu.Unlock()
			<-e.wake
			continue
		}
		ev := e.queue[0]
		e.queue = e.queue[1:]
		e.mu.Unlock()

		e.out <- ev
	}
}

// computeEventHash computes the SHA-256 hash of the event's content fields.
// The Hash field itself is excluded; PrevHash links the chain.
func computeEventHash(ev datatypes.ProgressEvent) string {
	hashInput := fmt.Sprintf("%s|%s|%d|%s|%s|%d|%s|%s|%s|%s",
		ev.Id,
		ev.Type,
		ev.CreatedAt,
		ev.PrevHash,
		ev.MemberId,
		ev.RoundNumber,
		ev.Message,
		ev.Content,
		ev.Choice,
		ev.Error,
	)
	sum := sha256.Sum256([]byte(hashInput))
	return hex.EncodeToString(sum[:])
}

// VerifyChain checks that a replayed event log is a contiguous, untampered
// sequence: each event's PrevHash must equal the prior event's Hash and each
// Hash must match its own content.
func VerifyChain(events []datatypes.ProgressEvent) error {
	prev := ""
	for i, ev := range events {
		if ev.PrevHash != prev {
			return fmt.Errorf("event %d (%s): broken chain link", i, ev.Type)
		}
		if computeEventHash(ev) != ev.Hash {
			return fmt.Errorf("event %d (%s): content hash mismatch", i, ev.Type)
		}
		prev = ev.Hash
	}
	return nil
}
