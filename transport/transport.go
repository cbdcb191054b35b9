// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

// Package transport implements the worker-facing bidirectional message
// channel from spec.md §6: a WebSocket listener that frames JSON envelopes
// (see package wire) and notifies a Listener's callbacks on connect,
// disconnect, and message arrival.
package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/LeonardoPohl/DPS-2-Nitocris/clog"
	"github.com/LeonardoPohl/DPS-2-Nitocris/wire"
)

// Listener accepts worker WebSocket connections on a single TCP port and
// dispatches connect/message/disconnect events to the callbacks configured
// on it. All callbacks are invoked from per-connection goroutines; the
// caller is responsible for synchronizing access to any shared state they
// touch (the engine package guards this with a session mutex).
type Listener struct {
	*clog.CLogger

	OnConnect    func(conn *Conn)
	OnDisconnect func(id string)
	OnMessage    func(id string, env wire.Envelope)

	upgrader websocket.Upgrader
	server   *http.Server

	mu    sync.Mutex
	conns map[string]*Conn
}

// NewListener creates a Listener. Set OnConnect/OnDisconnect/OnMessage
// before calling Start.
func NewListener(log *clog.CLogger) *Listener {
	return &Listener{
		CLogger:  log,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		conns:    make(map[string]*Conn),
	}
}

// Start binds the listener to the given port and begins accepting
// connections in the background. It returns once the listener is bound, or
// an error if binding fails (surfaced to the caller as a session-start
// failure per spec.md §7).
func (l *Listener) Start(port int) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", l.handleUpgrade)

	ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return fmt.Errorf("transport: failed to bind port %d: %w", port, err)
	}

	l.server = &http.Server{Handler: mux}
	l.Printf("Transport listening on ws://%s", ln.Addr())

	go func() {
		if err := l.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			l.Errorf("Transport server exited: %v", err)
		}
	}()

	return nil
}

func (l *Listener) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.Errorf("Failed upgrading connection from %s: %v", r.RemoteAddr, err)
		return
	}

	id := uuid.NewString()
	conn := newConn(id, r.RemoteAddr, ws)

	l.mu.Lock()
	l.conns[id] = conn
	l.mu.Unlock()

	l.Printf("Worker connected: %s (%s)", id, conn.Address)

	go conn.writePump()
	if l.OnConnect != nil {
		l.OnConnect(conn)
	}

	conn.readPump(func(connID string, env wire.Envelope) {
		if l.OnMessage != nil {
			l.OnMessage(connID, env)
		}
	})

	// readPump returned: the connection is gone.
	l.mu.Lock()
	delete(l.conns, id)
	l.mu.Unlock()

	l.Printf("Worker disconnected: %s", id)
	if l.OnDisconnect != nil {
		l.OnDisconnect(id)
	}
}

// SendTo delivers env to the single connection identified by id. It reports
// false if no such connection exists or the send was dropped (full buffer or
// closed connection); callers treat both the same way, leaving recovery to
// the dispatch engine's timeout sweep.
func (l *Listener) SendTo(id string, env wire.Envelope) bool {
	l.mu.Lock()
	c, ok := l.conns[id]
	l.mu.Unlock()
	if !ok {
		return false
	}
	return c.Send(env)
}

// Broadcast sends env to every currently connected worker, best-effort.
func (l *Listener) Broadcast(env wire.Envelope) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.conns {
		c.Send(env)
	}
}

// Shutdown gracefully closes all connections and stops accepting new ones.
func (l *Listener) Shutdown(ctx context.Context) {
	if l.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := l.server.Shutdown(shutdownCtx); err != nil {
		l.Errorf("Transport shutdown error: %v", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.conns {
		c.Close()
	}
}
