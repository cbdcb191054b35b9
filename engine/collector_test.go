// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoPohl/DPS-2-Nitocris/codec"
)

func encodeResult(t *testing.T, index uint32, payload []byte) []byte {
	t.Helper()
	raw, err := (codec.Gob{}).EncodeResult(codec.Result{Index: index, Payload: payload})
	require.NoError(t, err)
	return raw
}

func TestHandleResultCompletesTaskAndFreesWorker(t *testing.T) {
	s := newTestSession()
	s.workers["w1"] = &worker{id: "w1", state: Busy, inFlightCount: 1}
	s.inFlight[3] = inFlightEntry{workerID: "w1", task: Task{Index: 3}, attempts: 1}

	s.handleResult("w1", encodeResult(t, 3, []byte("9")))

	assert.Equal(t, []byte("9"), s.completed[3])
	_, stillInFlight := s.inFlight[3]
	assert.False(t, stillInFlight)
	assert.Equal(t, []string{"w1"}, s.ready, "worker with no remaining in-flight tasks rejoins ready")
	assert.Equal(t, Ready, s.workers["w1"].state)
}

func TestHandleResultKeepsWorkerBusyIfOtherTasksOutstanding(t *testing.T) {
	s := newTestSession()
	s.workers["w1"] = &worker{id: "w1", state: Busy, inFlightCount: 2}
	s.inFlight[1] = inFlightEntry{workerID: "w1", task: Task{Index: 1}}
	s.inFlight[2] = inFlightEntry{workerID: "w1", task: Task{Index: 2}}

	s.handleResult("w1", encodeResult(t, 1, []byte("a")))

	assert.Empty(t, s.ready, "worker still has an outstanding task and must not rejoin ready")
	assert.Equal(t, 1, s.workers["w1"].inFlightCount)
}

func TestHandleResultDropsLateDuplicate(t *testing.T) {
	s := newTestSession()
	s.workers["w1"] = &worker{id: "w1", state: Ready}

	// No in-flight entry for index 5: this is a late/duplicate result.
	s.handleResult("w1", encodeResult(t, 5, []byte("stale")))

	_, completed := s.completed[5]
	assert.False(t, completed)
	assert.Empty(t, s.ready)
}

func TestHandleResultCreditsActualSenderNotStaleEntryOwner(t *testing.T) {
	s := newTestSession()
	// Task 7 was originally dispatched to A, timed out, and reassigned to B:
	// the in-flight entry now names B, but A's stale reply for index 7
	// arrives first.
	s.workers["A"] = &worker{id: "A", state: Ready}
	s.workers["B"] = &worker{id: "B", state: Busy, inFlightCount: 1}
	s.inFlight[7] = inFlightEntry{workerID: "B", task: Task{Index: 7}}

	s.handleResult("A", encodeResult(t, 7, []byte("late-but-first")))

	assert.Equal(t, []byte("late-but-first"), s.completed[7])
	assert.Equal(t, []string{"A"}, s.ready, "the worker that actually replied (A) rejoins ready")
	assert.Equal(t, Busy, s.workers["B"].state, "B is still genuinely computing and must not be touched")
	assert.Equal(t, 1, s.workers["B"].inFlightCount)
}

func TestHandleResultIgnoresMalformedPayload(t *testing.T) {
	s := newTestSession()
	s.inFlight[0] = inFlightEntry{workerID: "w1", task: Task{Index: 0}}

	s.handleResult("w1", []byte("not a gob stream"))

	_, stillInFlight := s.inFlight[0]
	assert.True(t, stillInFlight, "a malformed result must not disturb the in-flight table")
}
