// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/LeonardoPohl/DPS-2-Nitocris/clog"
	"github.com/LeonardoPohl/DPS-2-Nitocris/codec"
)

func newTestSession() *Session {
	return &Session{
		CLogger:   clog.New("test "),
		cfg:       Config{Timeout: time.Second},
		codec:     codec.Gob{},
		chunkSize: 1,
		workers:   make(map[string]*worker),
		inFlight:  make(map[uint32]inFlightEntry),
		attempts:  make(map[uint32]int),
		completed: make(map[uint32][]byte),
	}
}

func TestHandleReadyEnqueuesKnownWorker(t *testing.T) {
	s := newTestSession()
	s.workers["w1"] = &worker{id: "w1", state: Connecting}

	s.handleReady("w1")

	assert.Equal(t, []string{"w1"}, s.ready)
	assert.Equal(t, Ready, s.workers["w1"].state)
}

func TestHandleReadyIgnoresUnknownWorker(t *testing.T) {
	s := newTestSession()
	s.handleReady("ghost")
	assert.Empty(t, s.ready)
}

func TestPopReadySkipsStaleEntries(t *testing.T) {
	s := newTestSession()
	s.workers["w2"] = &worker{id: "w2", state: Ready}
	// "w1" was queued but has since disconnected: its registry entry is gone.
	s.ready = []string{"w1", "w2"}

	id, ok := s.popReady()
	assert.True(t, ok)
	assert.Equal(t, "w2", id)
	assert.Empty(t, s.ready)
}

func TestPopReadyEmptyQueue(t *testing.T) {
	s := newTestSession()
	_, ok := s.popReady()
	assert.False(t, ok)
}

func TestOnDisconnectRemovesFromRegistryAndReadyQueue(t *testing.T) {
	s := newTestSession()
	s.workers["w1"] = &worker{id: "w1", state: Ready}
	s.ready = []string{"w1"}

	s.onDisconnect("w1")

	_, exists := s.workers["w1"]
	assert.False(t, exists)
	assert.Empty(t, s.ready)
}

func TestOnDisconnectLeavesInFlightEntriesForTimeoutSweep(t *testing.T) {
	s := newTestSession()
	s.workers["w1"] = &worker{id: "w1", state: Busy, inFlightCount: 1}
	s.inFlight[0] = inFlightEntry{workerID: "w1", task: Task{Index: 0}}

	s.onDisconnect("w1")

	_, stillInFlight := s.inFlight[0]
	assert.True(t, stillInFlight, "in-flight entries must survive a disconnect until reclaimed by timeout")
}
