// Copyright (C) 2025 Dealdesk Labs (eng@dealdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"errors"
	"fmt"
)

// Sentinel errors for the board orchestrator. Handlers map these onto HTTP
// status codes; everything else surfaces as a generic 500.
var (
	// ErrInsufficientCredits is an admission-control rejection, not a bug.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrSessionLimit rejects a start that would exceed the per-user
	// concurrent-session or rolling-period cap.
	ErrSessionLimit = errors.New("session limit reached")

	// ErrNoLiveMembers is session-fatal: every member failed and no verdict
	// can be produced.
	ErrNoLiveMembers = errors.New("no live board members remain")

	// ErrDealNotFound means no analysis context exists for the requested deal.
	ErrDealNotFound = errors.New("deal not found")

	// ErrSessionNotFound means no stored session record exists for the id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidSessionState flags a phase-machine invariant violation. It
	// should never surface to a caller; if it does, it is a bug.
	ErrInvalidSessionState = errors.New("invalid session state transition")
)

// MemberCallError is an expected, tolerated failure of a single member's
// model call. It removes that member from the rest of the session but never
// aborts the session on its own.
type MemberCallError struct {
	MemberId string
	Phase    Phase
	Timeout  bool
	Err      error
}

func (e *MemberCallError) Error() string {
	kind := "provider error"
	if e.Timeout {
		kind = "timeout"
	}
	return fmt.Sprintf("member %s failed during %s (%s): %v", e.MemberId, e.Phase, kind, e.Err)
}

func (e *MemberCallError) Unwrap() error { return e.Err }
