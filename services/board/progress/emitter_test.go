// Copyright (C) 2025 Dealdesk Labs (eng@dealdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package progress

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealdesk/boardroom/services/board/datatypes"
)

func drain(t *testing.T, e *Emitter) []datatypes.ProgressEvent {
	t.Helper()
	var got []datatypes.ProgressEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-e.Events():
			if !ok {
				return got
			}
			got = append(got, ev)
		case <-timeout:
			t.Fatal("timed out draining emitter")
		}
	}
}

func TestEmitter_DeliversInOrder(t *testing.T) {
	e := NewEmitter("sess-1")
	for i := 0; i < 50; i++ {
		e.Emit(datatypes.ProgressEvent{
			Type:    datatypes.EventDebateResponse,
			Message: fmt.Sprintf("msg-%d", i),
		})
	}
	e.Close()

	got := drain(t, e)
	require.Len(t, got, 50)
	for i, ev := range got {
		assert.Equal(t, fmt.Sprintf("msg-%d", i), ev.Message)
		assert.Equal(t, "sess-1", ev.SessionId)
		assert.NotEmpty(t, ev.Id)
		assert.NotZero(t, ev.CreatedAt)
	}
}

func TestEmitter_EmitNeverBlocksOnSlowConsumer(t *testing.T) {
	e := NewEmitter("sess-1")
	defer e.Close()

	// Nobody reads Events(). Far more events than the channel buffer must
	// still go through without blocking.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			e.Emit(datatypes.ProgressEvent{Type: datatypes.EventDebateResponse})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on an unread consumer")
	}
	assert.Len(t, e.Log(), 500)
}

func TestEmitter_HashChainVerifies(t *testing.T) {
	e := NewEmitter("sess-1")
	e.Emit(datatypes.ProgressEvent{Type: datatypes.EventSessionStarted})
	e.Emit(datatypes.ProgressEvent{Type: datatypes.EventVotingStarted})
	e.Emit(datatypes.ProgressEvent{Type: datatypes.EventMemberVoted, MemberId: "quant", Choice: "GO"})
	e.Close()
	drain(t, e)

	log := e.Log()
	require.Len(t, log, 3)
	assert.Empty(t, log[0].PrevHash)
	assert.Equal(t, log[0].Hash, log[1].PrevHash)
	assert.Equal(t, log[1].Hash, log[2].PrevHash)
	assert.NoError(t, VerifyChain(log))
}

func TestVerifyChain_DetectsTampering(t *testing.T) {
	e := NewEmitter("sess-1")
	e.Emit(datatypes.ProgressEvent{Type: datatypes.EventSessionStarted})
	e.Emit(datatypes.ProgressEvent{Type: datatypes.EventMemberVoted, MemberId: "quant", Choice: "GO"})
	e.Close()
	drain(t, e)
	log := e.Log()

	edited := make([]datatypes.ProgressEvent, len(log))
	copy(edited, log)
	edited[1].Choice = "NO_GO"
	assert.Error(t, VerifyChain(edited), "content edit must break the hash")

	dropped := []datatypes.ProgressEvent{log[1]}
	assert.Error(t, VerifyChain(dropped), "dropped event must break the chain link")
}

func TestEmitter_CloseDeliversQueuedThenCloses(t *testing.T) {
	e := NewEmitter("sess-1")
	for i := 0; i < 100; i++ {
		e.Emit(datatypes.ProgressEvent{Type: datatypes.EventDebateResponse})
	}
	e.Close()

	got := drain(t, e)
	assert.Len(t, got, 100)

	// Closed channel stays closed, emits after Close are dropped.
	e.Emit(datatypes.ProgressEvent{Type: datatypes.EventError})
	assert.Len(t, e.Log(), 100)
	e.Close()
}
