// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

package engine

import (
	"github.com/LeonardoPohl/DPS-2-Nitocris/transport"
	"github.com/LeonardoPohl/DPS-2-Nitocris/wire"
)

// onConnect registers a newly connected worker, and — once the session has
// a function blob to hand out — forwards it and enters the worker into the
// ready queue immediately, per spec.md §4.2: a worker joins the ready queue
// "on connect (after f is sent)" without waiting for an explicit ready
// signal. A worker connecting before any session is active is recorded
// Connecting and only reaches Ready once start hands it the function.
//
// The send to the transport must complete before the worker is added to
// ready, and both must happen inside the same s.mu critical section:
// otherwise the concurrently running dispatch loop could pop this worker
// out of ready and dispatch it a task before the function was ever handed
// to the transport, violating the "function before any task" guarantee of
// spec.md §5 (invariant 4).
func (s *Session) onConnect(conn *transport.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := &worker{id: conn.ID, address: conn.Address, state: Connecting}
	s.workers[conn.ID] = w
	if s.active {
		conn.Send(wire.NewFunction(s.fBlob))
		w.state = Ready
		s.ready = append(s.ready, conn.ID)
	}
}

// onDisconnect marks a worker Gone and removes it from the registry and
// ready queue. Any in-flight entries it held are left untouched: per
// DESIGN.md's resolution of Open Question 1, they are reclaimed only by the
// ordinary timeout sweep, not eagerly on disconnect. This keeps the
// disconnect path branch-free and matches the original implementation's
// _on_client_lost, which never walks outstanding work on loss of a client.
func (s *Session) onDisconnect(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w, ok := s.workers[id]; ok {
		w.state = Gone
	}
	delete(s.workers, id)
	s.removeFromReady(id)
}

// onMessage routes an inbound worker envelope to the appropriate handler.
// Any type other than ready/result is not meaningful on this side of the
// channel and is ignored, per spec.md §7's "malformed or unexpected message"
// handling.
func (s *Session) onMessage(id string, env wire.Envelope) {
	switch env.Type {
	case wire.Ready:
		s.handleReady(id)
	case wire.Result:
		s.handleResult(id, env.Value)
	}
}

// handleReady marks a worker Ready and enqueues it for assignment. A worker
// that reports ready more than once (e.g. a duplicate or delayed signal)
// is enqueued again unconditionally, mirroring the original implementation's
// _on_message, which never deduplicates ready signals; a harmless double
// assignment at worst issues one extra task to a worker that finishes its
// first job very quickly.
func (s *Session) handleReady(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workers[id]
	if !ok {
		return // worker already gone; stale signal, drop
	}
	w.state = Ready
	s.ready = append(s.ready, id)
}

// removeFromReady drops every queued occurrence of id from the ready queue.
// Must be called with s.mu held.
func (s *Session) removeFromReady(id string) {
	if len(s.ready) == 0 {
		return
	}
	kept := s.ready[:0]
	for _, r := range s.ready {
		if r != id {
			kept = append(kept, r)
		}
	}
	s.ready = kept
}

// popReady removes and returns the oldest ready worker ID whose registry
// entry still exists, skipping (and discarding) stale entries left behind
// by disconnects. Must be called with s.mu held.
func (s *Session) popReady() (string, bool) {
	for len(s.ready) > 0 {
		id := s.ready[0]
		s.ready = s.ready[1:]
		if _, ok := s.workers[id]; ok {
			return id, true
		}
	}
	return "", false
}
