// Copyright (C) 2025 Dealdesk Labs (eng@dealdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package members

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

	"github.com/dealdesk/boardroom/services/board/datatypes"
	"github.com/dealdesk/boardroom/services/llm"
)

// scriptedClient returns a canned reply, error, or hang per prompt prefix.
type scriptedClient struct {
	reply string
	err   error
	hang  bool

	mu    sync.Mutex
	calls []string
}

func (c *scriptedClient) Generate(ctx context.Context, system, prompt string, _ llm.GenerationParams) (string, error) {
	c.mu.Lock()
	c.calls = append(c.calls, prompt)
	c.mu.Unlock()
	if c.hang {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

func member(id string) datatypes.BoardMember {
	return datatypes.BoardMember{Id: id, DisplayName: id, Provider: "test", Persona: "You are " + id + "."}
}

func newTestPool(t *testing.T, timeout time.Duration, clients map[string]*scriptedClient) *Pool {
	t.Helper()
	var slots []Slot
	for id, c := range clients {
		slots = append(slots, Slot{Member: member(id), Caller: c})
	}
	pool, err := NewPool(slots, timeout)
	require.NoError(t, err)
	return pool
}

func TestNewPool_Validation(t *testing.T) {
	_, err := NewPool(nil, time.Second)
	assert.ErrorContains(t, err, "empty")

	_, err = NewPool([]Slot{{Member: member("a")}}, time.Second)
	assert.ErrorContains(t, err, "no model client")

	c := &scriptedClient{reply: "ok"}
	_, err = NewPool([]Slot{
		{Member: member("a"), Caller: c},
		{Member: member("a"), Caller: c},
	}, time.Second)
	assert.ErrorContains(t, err, "duplicate")
}

func TestCallAll_SettlesEveryMember(t *testing.T) {
	clients := map[string]*scriptedClient{
		"skeptic":  {reply: "risk analysis"},
		"operator": {reply: "ops analysis"},
		"quant":    {err: errors.New("rate limited")},
	}
	pool := newTestPool(t, 5*time.Second, clients)

	live := []datatypes.BoardMember{member("skeptic"), member("operator"), member("quant")}
	prompts := map[string]string{}
	for _, m := range live {
		prompts[m.Id] = "analyze for " + m.Id
	}

	results := pool.CallAll(context.Background(), live, prompts, nil)

	require.Len(t, results, 3, "barrier must wait for the full set")
	assert.Equal(t, "risk analysis", results["skeptic"].Text)
	assert.False(t, results["skeptic"].Failed())
	assert.True(t, results["quant"].Failed())
	assert.False(t, results["quant"].Timeout)

	// Each member got its own prompt, prefixed with its persona upstream.
	assert.Equal(t, []string{"analyze for operator"}, clients["operator"].calls)
}

func TestCallAll_TimeoutSettlesAsFailure(t *testing.T) {
	clients := map[string]*scriptedClient{
		"skeptic": {reply: "fast"},
		"quant":   {hang: true},
	}
	pool := newTestPool(t, 50*time.Millisecond, clients)

	live := []datatypes.BoardMember{member("skeptic"), member("quant")}
	prompts := map[string]string{"skeptic": "p", "quant": "p"}

	start := time.Now()
	results := pool.CallAll(context.Background(), live, prompts, nil)

	require.Len(t, results, 2)
	assert.False(t, results["skeptic"].Failed())
	assert.True(t, results["quant"].Failed())
	assert.True(t, results["quant"].Timeout)
	assert.Less(t, time.Since(start), 2*time.Second, "timeout must bound the barrier")
}

func TestCallAll_OneFailureDoesNotCancelSiblings(t *testing.T) {
	clients := map[string]*scriptedClient{
		"a": {err: errors.New("provider down")},
		"b": {reply: "fine"},
		"c": {reply: "also fine"},
	}
	pool := newTestPool(t, time.Second, clients)

	live := []datatypes.BoardMember{member("a"), member("b"), member("c")}
	prompts := map[string]string{"a": "p", "b": "p", "c": "p"}

	results := pool.CallAll(context.Background(), live, prompts, nil)
	assert.True(t, results["a"].Failed())
	assert.Equal(t, "fine", results["b"].Text)
	assert.Equal(t, "also fine", results["c"].Text)
}

func TestCallAll_OnSettledFiresOncePerMember(t *testing.T) {
	clients := map[string]*scriptedClient{}
	live := make([]datatypes.BoardMember, 0, 4)
	prompts := map[string]string{}
	for i := 0; i < 4; i++ {
		id := fmt.Sprintf("m%d", i)
		clients[id] = &scriptedClient{reply: "reply from " + id}
		live = append(live, member(id))
		prompts[id] = "p"
	}
	pool := newTestPool(t, time.Second, clients)

	var mu sync.Mutex
	settled := map[string]int{}
	pool.CallAll(context.Background(), live, prompts, func(memberID string, res CallResult) {
		mu.Lock()
		settled[memberID]++
		mu.Unlock()
		assert.True(t, strings.HasPrefix(res.Text, "reply from "))
	})

	require.Len(t, settled, 4)
	for id, n := range settled {
		assert.Equal(t, 1, n, "member %s settled more than once", id)
	}
}

func TestCallAll_SkipsMembersWithoutPrompt(t *testing.T) {
	clients := map[string]*scriptedClient{
		"a": {reply: "x"},
		"b": {reply: "y"},
	}
	pool := newTestPool(t, time.Second, clients)

	results := pool.CallAll(context.Background(),
		[]datatypes.BoardMember{member("a"), member("b")},
		map[string]string{"a": "p"}, nil)

	assert.Len(t, results, 1)
	assert.Empty(t, clients["b"].calls)
}

func TestCallAll_EmptyReplyIsFailure(t *testing.T) {
	pool := newTestPool(t, time.Second, map[string]*scriptedClient{"a": {reply: ""}})
	results := pool.CallAll(context.Background(),
		[]datatypes.BoardMember{member("a")}, map[string]string{"a": "p"}, nil)
	assert.True(t, results["a"].Failed())
}

func TestRoster_PreservesOrder(t *testing.T) {
	c := &scriptedClient{reply: "ok"}
	slots := []Slot{
		{Member: member("skeptic"), Caller: c},
		{Member: member("operator"), Caller: c},
		{Member: member("quant"), Caller: c},
	}
	pool, err := NewPool(slots, time.Second)
	require.NoError(t, err)

	roster := pool.Roster()
	require.Len(t, roster, 3)
	assert.Equal(t, "skeptic", roster[0].Id)
	assert.Equal(t, "operator", roster[1].Id)
	assert.Equal(t, "quant", roster[2].Id)

	m, ok := pool.Member("quant")
	assert.True(t, ok)
	assert.Equal(t, "quant", m.Id)
	_, ok = pool.Member("ghost")
	assert.False(t, ok)
}
