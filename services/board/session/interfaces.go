// Copyright (C) 2025 Dealdesk Labs (eng@dealdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"context"

	"github.com/dealdesk/boardroom/services/board/datatypes"
)

// =============================================================================
// Collaborator Interfaces
// =============================================================================

// AnalysisResultsProvider supplies the prior due-diligence findings the
// board reasons over. The orchestrator fetches the context once at session
// start and treats it as read-only afterwards.
//
// Load returns datatypes.ErrDealNotFound (possibly wrapped) when no context
// exists for the deal.
type AnalysisResultsProvider interface {
	Load(ctx context.Context, dealID string) (datatypes.AnalysisContext, error)
}

// PersistenceSink stores the durable record of a completed session. It is
// called exactly once per session that reaches DONE and never for a session
// that ends FAILED. The event log is the session's authoritative history
// and is stored alongside the verdict.
type PersistenceSink interface {
	Save(ctx context.Context, sess *datatypes.Session, verdict *datatypes.Verdict,
		events []datatypes.ProgressEvent) error
}
