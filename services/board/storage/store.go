// Copyright (C) 2025 Dealdesk Labs (eng@dealdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/dealdesk/boardroom/services/board/credits"
	"github.com/dealdesk/boardroom/services/board/datatypes"
	"github.com/dealdesk/boardroom/services/board/session"
)

// Key layout. Everything is JSON under a typed prefix.
const (
	sessionPrefix = "board/session/"
	dealPrefix    = "board/deal/"
	ledgerPrefix  = "board/ledger/"
)

// SessionRecord is the durable artifact of one completed deliberation: the
// session, its verdict, and the full ordered event log.
type SessionRecord struct {
	Session datatypes.Session         `json:"session"`
	Verdict datatypes.Verdict         `json:"verdict"`
	Events  []datatypes.ProgressEvent `json:"events"`
}

// Store implements the board's persistence collaborators on BadgerDB:
// session.PersistenceSink, session.AnalysisResultsProvider, and
// credits.LedgerWriter.
type Store struct {
	db *badger.DB
}

// NewStore wraps an opened database.
func NewStore(db *badger.DB) *Store {
	return &Store{db: db}
}

// Save implements session.PersistenceSink. It is called once per completed
// session; the record is immutable afterwards.
func (s *Store) Save(ctx context.Context, sess *datatypes.Session, verdict *datatypes.Verdict,
	events []datatypes.ProgressEvent) error {

	if err := ctx.Err(); err != nil {
		return err
	}
	record := SessionRecord{Session: *sess, Verdict: *verdict, Events: events}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal session record: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(sessionPrefix+sess.Id), data)
	})
	if err != nil {
		return fmt.Errorf("persist session %s: %w", sess.Id, err)
	}
	slog.Info("Persisted board session record", "sessionId", sess.Id, "events", len(events))
	return nil
}

// GetSession loads one stored session record.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var record SessionRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(sessionPrefix + sessionID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("session %s: %w", sessionID, datatypes.ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	return &record, nil
}

// ListSessions returns every stored session record. Records are small
// (verdict plus event log) and the board volume is low, so a full scan is
// fine here.
func (s *Store) ListSessions(ctx context.Context) ([]SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var records []SessionRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(sessionPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var record SessionRecord
				if err := json.Unmarshal(val, &record); err != nil {
					return err
				}
				records = append(records, record)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return records, nil
}

// Load implements session.AnalysisResultsProvider: the due-diligence
// findings for a deal, written by the analysis pipeline and read-only here.
func (s *Store) Load(ctx context.Context, dealID string) (datatypes.AnalysisContext, error) {
	if err := ctx.Err(); err != nil {
		return datatypes.AnalysisContext{}, err
	}
	var analysisCtx datatypes.AnalysisContext
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(dealPrefix + dealID + "/analysis"))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &analysisCtx)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return datatypes.AnalysisContext{}, fmt.Errorf("deal %s: %w", dealID, datatypes.ErrDealNotFound)
	}
	if err != nil {
		return datatypes.AnalysisContext{}, fmt.Errorf("load analysis context for %s: %w", dealID, err)
	}
	return analysisCtx, nil
}

// PutAnalysisContext stores a deal's findings. In production the analysis
// pipeline writes these; tests and the demo seed use it directly.
func (s *Store) PutAnalysisContext(ctx context.Context, analysisCtx datatypes.AnalysisContext) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(analysisCtx)
	if err != nil {
		return fmt.Errorf("marshal analysis context: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(dealPrefix+analysisCtx.DealId+"/analysis"), data)
	})
	if err != nil {
		return fmt.Errorf("persist analysis context for %s: %w", analysisCtx.DealId, err)
	}
	return nil
}

// AppendLedgerEntry implements credits.LedgerWriter. Keys embed the
// timestamp and a UUID so entries never collide and iterate in rough time
// order.
func (s *Store) AppendLedgerEntry(ctx context.Context, entry credits.LedgerEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal ledger entry: %w", err)
	}
	key := fmt.Sprintf("%s%s/%s-%s",
		ledgerPrefix, entry.UserId, entry.At.UTC().Format(time.RFC3339Nano), uuid.New().String())
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("append ledger entry for %s: %w", entry.UserId, err)
	}
	return nil
}

// ListLedgerEntries returns a user's ledger entries in key order.
func (s *Store) ListLedgerEntries(ctx context.Context, userID string) ([]credits.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var entries []credits.LedgerEntry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(ledgerPrefix + userID + "/")
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var entry credits.LedgerEntry
				if err := json.Unmarshal(val, &entry); err != nil {
					return err
				}
				entries = append(entries, entry)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list ledger for %s: %w", userID, err)
	}
	return entries, nil
}

var _ credits.LedgerWriter = (*Store)(nil)
var _ session.PersistenceSink = (*Store)(nil)
var _ session.AnalysisResultsProvider = (*Store)(nil)
