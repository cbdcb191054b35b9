// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/LeonardoPohl/DPS-2-Nitocris/codec"
	"github.com/LeonardoPohl/DPS-2-Nitocris/wire"
)

// sweepInterval throttles the timeout sweep to at most once per real-time
// second, per spec.md §4.3 step 2.
const sweepInterval = time.Second

// run drives the dispatch loop's main tick until all work is done, ctx is
// canceled, or a fatal error (e.g. a MaxAttempts breach) occurs. This is the
// hardest part of the system and the reason the repository exists (spec.md
// §4.3's own words about the component it transcribes).
func (s *Session) run(ctx context.Context) error {
	lastSweep := time.Time{}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		s.mu.Lock()
		done := len(s.pending) == 0 && len(s.inFlight) == 0 && len(s.unqueued) == 0
		s.mu.Unlock()
		if done {
			return nil
		}

		s.drainDispatch()

		if now := time.Now(); now.Sub(lastSweep) >= sweepInterval {
			if err := s.sweepTimeouts(now); err != nil {
				return err
			}
			lastSweep = now
		}

		s.refillPending()

		time.Sleep(idleYield)
	}
}

// drainDispatch implements spec.md §4.3 step 1: while there is a full chunk
// of pending work, or the tail of all remaining work sits in pending, assign
// chunks to ready workers in FIFO order.
func (s *Session) drainDispatch() {
	for {
		s.mu.Lock()
		shouldDispatch := len(s.pending) >= s.chunkSize ||
			(len(s.unqueued) == 0 && len(s.pending) > 0)
		if !shouldDispatch {
			s.mu.Unlock()
			return
		}

		id, ok := s.popReady()
		if !ok {
			s.mu.Unlock()
			return // no ready worker available this tick; retry next tick
		}

		n := s.chunkSize
		if n > len(s.pending) {
			n = len(s.pending)
		}
		tasks := append([]Task(nil), s.pending[:n]...)
		s.pending = s.pending[n:]

		w := s.workers[id]
		now := time.Now()
		deadline := now.Add(s.cfg.Timeout)
		for _, t := range tasks {
			attempts := s.attempts[t.Index] + 1
			s.attempts[t.Index] = attempts
			s.inFlight[t.Index] = inFlightEntry{workerID: id, task: t, deadline: deadline, attempts: attempts}
		}
		w.inFlightCount += len(tasks)
		w.state = Busy
		s.mu.Unlock()

		for _, t := range tasks {
			s.sendTask(id, t)
		}
	}
}

// sendTask encodes and sends a single task to the named worker. A send
// failure (the connection is already broken) is swallowed per spec.md
// §4.3: the in-flight entry remains and the timeout sweep will reclaim it.
func (s *Session) sendTask(workerID string, t Task) {
	payload, err := s.codec.EncodeTask(codec.Task{Index: t.Index, Payload: t.Payload})
	if err != nil {
		s.Errorf("Failed encoding task %d: %v", t.Index, err)
		return
	}
	s.transport.SendTo(workerID, wire.NewData(payload))
}

// sweepTimeouts implements spec.md §4.3 step 2: any in-flight entry past its
// deadline is reclaimed, pushed to the tail of unqueued for redispatch, and
// a warning is logged. Returns a fatal error if MaxAttempts is configured
// and a task has now exceeded it (expansion, spec.md §9).
func (s *Session) sweepTimeouts(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for idx, entry := range s.inFlight {
		if now.Before(entry.deadline) {
			continue
		}

		delete(s.inFlight, idx)
		if w, ok := s.workers[entry.workerID]; ok {
			w.inFlightCount--
			if w.inFlightCount <= 0 {
				w.inFlightCount = 0
			}
		}

		if s.cfg.MaxAttempts > 0 && entry.attempts >= s.cfg.MaxAttempts {
			return fmt.Errorf("engine: task %d exceeded max attempts (%d)", idx, s.cfg.MaxAttempts)
		}

		s.Warnf("Task %d timed out on worker %s (attempt %d); requeuing", idx, entry.workerID, entry.attempts)
		s.unqueued = append(s.unqueued, Task{Index: entry.task.Index, Payload: entry.task.Payload})
	}
	return nil
}

// refillPending implements spec.md §4.3 step 3: top pending up from unqueued
// until it holds a full chunk or unqueued is drained.
func (s *Session) refillPending() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.pending) < s.chunkSize && len(s.unqueued) > 0 {
		s.pending = append(s.pending, s.unqueued[0])
		s.unqueued = s.unqueued[1:]
	}
}
