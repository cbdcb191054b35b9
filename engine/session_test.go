// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

package engine

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoPohl/DPS-2-Nitocris/codec"
	"github.com/LeonardoPohl/DPS-2-Nitocris/funcs"
	"github.com/LeonardoPohl/DPS-2-Nitocris/wire"
)

// portCounter is a simple incrementing allocator so each end-to-end test in this
// file binds its own pair of ports without colliding with its neighbors.
var portCounter = struct {
	mu   sync.Mutex
	next int
}{next: 18800}

func nextPorts() (transport, asset int) {
	portCounter.mu.Lock()
	defer portCounter.mu.Unlock()
	transport = portCounter.next
	asset = portCounter.next + 1
	portCounter.next += 2
	return
}

// connectFakeWorker dials the session's transport listener and, in the
// background, resolves the function blob against the bundled registry and
// answers every data message with its computed result. If respond is false,
// data messages are read but never answered, simulating a worker that has
// hung or died without dropping the TCP connection, to exercise the dispatch
// engine's timeout/retry path.
func connectFakeWorker(t *testing.T, port int, respond bool) *websocket.Conn {
	t.Helper()

	var conn *websocket.Conn
	var err error
	addr := fmt.Sprintf("ws://127.0.0.1:%d/", port)

	require.Eventually(t, func() bool {
		conn, _, err = websocket.DefaultDialer.Dial(addr, nil)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond, "worker could not connect: %v", err)

	reg := funcs.NewRegistry()
	go func() {
		var fn funcs.Func
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			env, err := wire.Unmarshal(raw)
			if err != nil {
				continue
			}
			switch env.Type {
			case wire.Function:
				if f, ok := reg.ByName(string(env.Value)); ok {
					fn = f
				}
			case wire.Data:
				if !respond || fn == nil {
					continue
				}
				task, err := (codec.Gob{}).DecodeTask(env.Value)
				if err != nil {
					continue
				}
				output, _ := fn.Call(task.Payload)
				result, err := (codec.Gob{}).EncodeResult(codec.Result{Index: task.Index, Payload: output})
				if err != nil {
					continue
				}
				raw, err := wire.NewResult(result).Marshal()
				if err != nil {
					continue
				}
				_ = conn.WriteMessage(websocket.TextMessage, raw)
			}
		}
	}()

	return conn
}

func squareInputs(n int) [][]byte {
	inputs := make([][]byte, n)
	for i := 0; i < n; i++ {
		inputs[i] = []byte(strconv.Itoa(i + 1))
	}
	return inputs
}

func TestMapSquareSingleWorkerLargeChunk(t *testing.T) {
	transportPort, assetPort := nextPorts()
	session := New(Config{TransportPort: transportPort, AssetPort: assetPort, Timeout: 2 * time.Second})

	n := 200
	inputs := squareInputs(n)

	resultsCh := make(chan [][]byte, 1)
	errCh := make(chan error, 1)
	go func() {
		results, err := session.Map(context.Background(), []byte("square"), inputs, 100)
		resultsCh <- results
		errCh <- err
	}()

	worker := connectFakeWorker(t, transportPort, true)
	defer worker.Close()

	select {
	case err := <-errCh:
		require.NoError(t, err)
		results := <-resultsCh
		require.Len(t, results, n)
		for i, r := range results {
			want := strconv.Itoa((i + 1) * (i + 1))
			assert.Equal(t, want, string(r), "index %d", i)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Map did not complete in time")
	}
}

func TestMapThreeWorkersStaggeredChunkOne(t *testing.T) {
	transportPort, assetPort := nextPorts()
	session := New(Config{TransportPort: transportPort, AssetPort: assetPort, Timeout: 2 * time.Second})

	n := 30
	inputs := squareInputs(n)

	resultsCh := make(chan [][]byte, 1)
	errCh := make(chan error, 1)
	go func() {
		results, err := session.Map(context.Background(), []byte("square"), inputs, 1)
		resultsCh <- results
		errCh <- err
	}()

	w1 := connectFakeWorker(t, transportPort, true)
	defer w1.Close()
	time.Sleep(50 * time.Millisecond)
	w2 := connectFakeWorker(t, transportPort, true)
	defer w2.Close()
	time.Sleep(50 * time.Millisecond)
	w3 := connectFakeWorker(t, transportPort, true)
	defer w3.Close()

	select {
	case err := <-errCh:
		require.NoError(t, err)
		results := <-resultsCh
		require.Len(t, results, n)
		for i, r := range results {
			want := strconv.Itoa((i + 1) * (i + 1))
			assert.Equal(t, want, string(r), "index %d", i)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Map did not complete in time")
	}
}

func TestMapEmptyInput(t *testing.T) {
	transportPort, assetPort := nextPorts()
	session := New(Config{TransportPort: transportPort, AssetPort: assetPort, Timeout: 2 * time.Second})

	resultsCh := make(chan [][]byte, 1)
	errCh := make(chan error, 1)
	go func() {
		results, err := session.Map(context.Background(), []byte("square"), nil, 1)
		resultsCh <- results
		errCh <- err
	}()

	select {
	case err := <-errCh:
		require.NoError(t, err)
		results := <-resultsCh
		assert.Empty(t, results)
	case <-time.After(2 * time.Second):
		t.Fatal("Map with empty input did not return promptly; it should require no worker at all")
	}
}

func TestMapRecoversFromTimeout(t *testing.T) {
	transportPort, assetPort := nextPorts()
	session := New(Config{
		TransportPort: transportPort,
		AssetPort:     assetPort,
		Timeout:       200 * time.Millisecond,
	})

	inputs := squareInputs(1)

	resultsCh := make(chan [][]byte, 1)
	errCh := make(chan error, 1)
	go func() {
		results, err := session.Map(context.Background(), []byte("square"), inputs, 1)
		resultsCh <- results
		errCh <- err
	}()

	// A worker that never answers: its task will be reclaimed by the
	// deadline sweep and redispatched.
	deadWorker := connectFakeWorker(t, transportPort, false)
	defer deadWorker.Close()

	time.Sleep(300 * time.Millisecond)

	goodWorker := connectFakeWorker(t, transportPort, true)
	defer goodWorker.Close()

	select {
	case err := <-errCh:
		require.NoError(t, err)
		results := <-resultsCh
		require.Len(t, results, 1)
		assert.Equal(t, "1", string(results[0]))
	case <-time.After(10 * time.Second):
		t.Fatal("Map did not recover from a timed-out task in time")
	}
}

func TestMapFailsFastOnBadChunkSize(t *testing.T) {
	transportPort, assetPort := nextPorts()
	session := New(Config{TransportPort: transportPort, AssetPort: assetPort})

	_, err := session.Map(context.Background(), []byte("square"), squareInputs(1), 0)
	assert.Error(t, err)
}
