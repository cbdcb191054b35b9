// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

package transport

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/LeonardoPohl/DPS-2-Nitocris/wire"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 64
)

// Conn is one worker's bidirectional connection, identified by a stable ID
// assigned at connect time. Reads are delivered to the Listener's OnMessage
// callback from a dedicated read-pump goroutine; writes are funneled through
// a buffered channel drained by a dedicated write-pump goroutine so that a
// slow or dead peer cannot block the caller of Send.
type Conn struct {
	ID      string
	Address string

	ws   *websocket.Conn
	send chan wire.Envelope

	closeOnce sync.Once
	closed    chan struct{}
}

func newConn(id, address string, ws *websocket.Conn) *Conn {
	return &Conn{
		ID:      id,
		Address: address,
		ws:      ws,
		send:    make(chan wire.Envelope, sendBuffer),
		closed:  make(chan struct{}),
	}
}

// Send enqueues an envelope for delivery. It never blocks: if the send
// buffer is full or the connection is already closed, the message is
// dropped and false is returned. Per spec, a dropped send due to a broken
// connection is swallowed by the caller; the in-flight bookkeeping (if any)
// is reclaimed by the dispatch engine's timeout sweep instead.
func (c *Conn) Send(env wire.Envelope) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

// Close shuts down the connection and its write pump. Safe to call more than
// once and from any goroutine.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
}

// writePump drains the send channel onto the underlying websocket connection
// until the connection is closed. Run in its own goroutine per connection.
func (c *Conn) writePump() {
	for {
		select {
		case <-c.closed:
			return
		case env := <-c.send:
			raw, err := env.Marshal()
			if err != nil {
				continue // malformed outgoing message, drop
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, raw); err != nil {
				c.Close()
				return
			}
		}
	}
}

// readPump reads incoming text frames, decodes them as wire envelopes, and
// invokes onMessage for each. It returns (and the connection is considered
// gone) on the first read error, including a clean close from the peer.
func (c *Conn) readPump(onMessage func(id string, env wire.Envelope)) {
	defer c.Close()
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		env, err := wire.Unmarshal(raw)
		if err != nil {
			continue // malformed message from worker: dropped, per spec §7
		}
		onMessage(c.ID, env)
	}
}
