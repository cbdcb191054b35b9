// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/LeonardoPohl/DPS-2-Nitocris/assets"
	"github.com/LeonardoPohl/DPS-2-Nitocris/clog"
	"github.com/LeonardoPohl/DPS-2-Nitocris/codec"
	"github.com/LeonardoPohl/DPS-2-Nitocris/transport"
	"github.com/LeonardoPohl/DPS-2-Nitocris/wire"
)

// Session is the coordinator's single long-lived object hosting one dispatch
// session at a time (spec.md §2). Construct one with New and reuse it across
// successive Map calls; each call runs the full
// Idle -> Starting -> Running -> Draining -> Idle lifecycle of spec.md §4.5.
type Session struct {
	*clog.CLogger

	cfg   Config
	codec codec.Codec

	transport *transport.Listener
	assets    *assets.Server

	// mu guards every field below: the dispatch loop goroutine and the
	// transport's per-connection read-pump goroutines all acquire it, per
	// the mutex-guarded-state option of spec.md §5.
	mu    sync.Mutex
	state sessionState

	active    bool
	fBlob     []byte
	nTotal    int
	chunkSize int

	pending  []Task // FIFO awaiting dispatch to a worker
	unqueued []Task // FIFO awaiting entry into pending

	inFlight map[uint32]inFlightEntry
	attempts map[uint32]int // per-index dispatch count, survives across retries

	completed map[uint32][]byte

	workers map[string]*worker
	ready   []string // FIFO of ready worker IDs
}

// New constructs a Session ready for repeated use with Map. Zero-valued
// Config fields are replaced by spec.md §6's defaults.
func New(cfg Config) *Session {
	cfg = cfg.WithDefaults()
	return &Session{
		CLogger: clog.New("coordinator "),
		cfg:     cfg,
		codec:   codec.Gob{},
		state:   stateIdle,
	}
}

// WithCodec overrides the default Gob codec used to serialize Task/Result
// tuples for the wire. Must be called before the first Map call.
func (s *Session) WithCodec(c codec.Codec) *Session {
	s.codec = c
	return s
}

// Map distributes f over inputs across connected (and later-connecting)
// workers, returning a slice of length len(inputs) whose element i is the
// result for inputs[i]. It blocks until every index is completed, the
// session stalls forever waiting for workers (by design, per spec.md §7), or
// ctx is canceled.
//
// f is never interpreted by Map: it is an opaque blob broadcast verbatim to
// workers. inputs are likewise opaque payloads, already enumerated by the
// caller.
func (s *Session) Map(ctx context.Context, f []byte, inputs [][]byte, chunkSize int) ([][]byte, error) {
	if chunkSize < 1 {
		return nil, fmt.Errorf("engine: chunk_size must be >= 1, got %d", chunkSize)
	}

	if err := s.start(f, inputs, chunkSize); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- s.run(ctx) }()

	err := <-runDone

	results := s.drain()

	s.shutdown(ctx)

	if err != nil {
		return nil, err
	}
	return results, nil
}

// start initializes session state (Idle -> Starting -> Running) and binds
// the transport and asset servers. Errors here abort the call without
// running the dispatch loop, per spec.md §4.5/§7.
func (s *Session) start(f []byte, inputs [][]byte, chunkSize int) error {
	s.mu.Lock()
	s.state = stateStarting
	s.fBlob = f
	s.nTotal = len(inputs)
	s.pending = nil
	s.unqueued = make([]Task, len(inputs))
	for i, payload := range inputs {
		s.unqueued[i] = Task{Index: uint32(i), Payload: payload}
	}
	s.inFlight = make(map[uint32]inFlightEntry)
	s.attempts = make(map[uint32]int)
	s.completed = make(map[uint32][]byte)
	s.workers = make(map[string]*worker)
	s.ready = nil
	s.chunkSize = chunkSize
	s.mu.Unlock()

	s.transport = transport.NewListener(clog.New("transport "))
	s.transport.OnConnect = s.onConnect
	s.transport.OnDisconnect = s.onDisconnect
	s.transport.OnMessage = s.onMessage

	if err := s.transport.Start(s.cfg.TransportPort); err != nil {
		s.mu.Lock()
		s.state = stateIdle
		s.mu.Unlock()
		return err
	}

	s.assets = assets.NewServer(clog.New("assets "), s.cfg.Packages, s.cfg.AssetDir)
	if err := s.assets.Start(s.cfg.AssetPort); err != nil {
		s.transport.Shutdown(context.Background())
		s.mu.Lock()
		s.state = stateIdle
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.active = true
	s.state = stateRunning
	// Workers that connected before this session went active were parked in
	// Connecting by onConnect; now that f is known, admit them to the ready
	// queue exactly as a freshly connecting worker would be (spec.md §4.2).
	// The function must be handed to the transport before the worker is
	// enqueued into ready: the dispatch loop is only serialized against this
	// method by s.mu, so if the enqueue happened first, drainDispatch could
	// pop the worker and send it a task before it ever saw the function
	// blob, violating the "function before any task" guarantee of spec.md
	// §5. Sending per-worker (rather than one Broadcast call after
	// unlocking) keeps the send and the enqueue inside the same critical
	// section.
	for id, w := range s.workers {
		if w.state == Connecting {
			s.transport.SendTo(id, wire.NewFunction(f))
			w.state = Ready
			s.ready = append(s.ready, id)
		}
	}
	s.mu.Unlock()

	return nil
}

// drain reads the completed map, sorts by index, and assembles the ordered
// result slice. Indices with no completed entry (possible only if the
// dispatch loop ended early, on cancellation or a MaxAttempts breach) are
// left as nil.
func (s *Session) drain() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([][]byte, s.nTotal)
	indices := make([]int, 0, len(s.completed))
	for idx := range s.completed {
		indices = append(indices, int(idx))
	}
	sort.Ints(indices)
	for _, idx := range indices {
		results[idx] = s.completed[uint32(idx)]
	}
	return results
}

// shutdown tears down the transport and asset servers and resets session
// state to Idle (Draining -> Idle, spec.md §4.5). Teardown errors are logged
// but never fail the call, since results are already computed.
func (s *Session) shutdown(ctx context.Context) {
	s.mu.Lock()
	s.state = stateDraining
	s.active = false
	s.mu.Unlock()

	s.transport.Shutdown(ctx)
	s.assets.Shutdown(ctx)

	s.mu.Lock()
	s.state = stateIdle
	s.mu.Unlock()

	s.Printf("Session drained")
}

// idleYield bounds every suspension point in the dispatch loop, per the
// conservative 1ms bound in spec.md §5.
const idleYield = time.Millisecond
