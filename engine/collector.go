// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

package engine

// handleResult implements spec.md §4.4. A result for an index with no
// matching in-flight entry is a late duplicate (the task already timed out
// and was reassigned, or already completed) and is silently dropped, which
// is what makes the engine idempotent on duplicate delivery (spec.md §4.3
// "Duplicate results").
//
// Step 3's "the worker" is the sender of this result message (workerID),
// not necessarily entry.workerID: if the task timed out and was reassigned
// before this (stale) reply arrived, entry.workerID now names the new
// assignee, which is still busy computing and must not be credited with
// workerID's completion. Crediting the wrong worker would double-book the
// reassignee mid-computation while leaving the worker that actually just
// replied stuck and never returned to ready.
func (s *Session) handleResult(workerID string, raw []byte) {
	result, err := s.codec.DecodeResult(raw)
	if err != nil {
		s.Errorf("Failed decoding result from worker %s: %v", workerID, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.inFlight[result.Index]
	if !ok {
		return // late duplicate or already-completed index
	}
	delete(s.inFlight, result.Index)

	if w, ok := s.workers[workerID]; ok {
		w.inFlightCount--
		if w.inFlightCount <= 0 {
			w.inFlightCount = 0
			w.state = Ready
			s.ready = append(s.ready, workerID)
		}
	}

	s.completed[result.Index] = result.Payload
}
