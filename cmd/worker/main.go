// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

/*
Starts a specific number of worker components that connect to a coordinator's
transport port, resolve the dispatched function blob against a local function
registry, and execute tasks assigned to them.

For usage details, run worker with the command line flag -h or --help.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/LeonardoPohl/DPS-2-Nitocris/clog"
	"github.com/LeonardoPohl/DPS-2-Nitocris/codec"
	"github.com/LeonardoPohl/DPS-2-Nitocris/funcs"
	"github.com/LeonardoPohl/DPS-2-Nitocris/wire"
)

const (
	defaultWorkers = 10  // default number of workers
	maxWorkers     = 100 // maximum number of workers
)

var log = clog.New("worker ")

func main() {
	var address string
	var help, verbose bool

	flag.Usage = usage
	flag.StringVar(&address, "a", "localhost:7700", "host:port of coordinator's transport listener")
	flag.BoolVar(&help, "h", false, "Show usage information")
	flag.BoolVar(&verbose, "l", false, "Show logging output (for debugging)")
	flag.Parse()

	if flag.Arg(1) != "" || help {
		usage()
		os.Exit(0)
	}

	if verbose {
		clog.Enable()
	}

	count, err := strconv.Atoi(flag.Arg(0))
	if err != nil && flag.Arg(0) == "" {
		count = defaultWorkers
	} else if err != nil || count < 1 || count > maxWorkers {
		fmt.Printf("Number of workers must be between 1 and %d\n", maxWorkers)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Printf("Terminating workers on signal %v...\n", sig)
		cancel()
	}()

	fmt.Printf("Starting %d workers connecting to %s...\n", count, address)

	var wg sync.WaitGroup
	for i := 0; i < count; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			runWorker(ctx, n, address)
		}(i)
	}
	wg.Wait()
}

// runWorker dials the coordinator and services function/data messages until
// ctx is canceled or the connection is lost, reconnecting with a short
// backoff in the latter case so that transient coordinator restarts or
// session boundaries don't require a fresh process.
func runWorker(ctx context.Context, n int, address string) {
	u := url.URL{Scheme: "ws", Host: address, Path: "/"}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := serveOnce(ctx, n, u.String()); err != nil {
			log.Printf("worker %d: %v; retrying in 1s", n, err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func serveOnce(ctx context.Context, n int, addr string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	log.Printf("worker %d: connected to %s", n, addr)

	registry := funcs.NewRegistry()
	var fn funcs.Func
	var c codec.Codec = codec.Gob{}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		env, err := wire.Unmarshal(raw)
		if err != nil {
			continue // malformed message: dropped
		}

		switch env.Type {
		case wire.Function:
			name := string(env.Value)
			f, ok := registry.ByName(name)
			if !ok {
				log.Printf("worker %d: unknown function %q", n, name)
				continue
			}
			fn = f

		case wire.Data:
			if fn == nil {
				continue // task arrived before (or without) a resolvable function
			}
			task, err := c.DecodeTask(env.Value)
			if err != nil {
				log.Printf("worker %d: failed decoding task: %v", n, err)
				continue
			}

			output, err := fn.Call(task.Payload)
			if err != nil {
				log.Printf("worker %d: computation error on task %d: %v", n, task.Index, err)
				output = nil
			}

			result, err := c.EncodeResult(codec.Result{Index: task.Index, Payload: output})
			if err != nil {
				log.Printf("worker %d: failed encoding result: %v", n, err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, mustMarshal(wire.NewResult(result))); err != nil {
				return fmt.Errorf("write result: %w", err)
			}
		}
	}
}

func mustMarshal(env wire.Envelope) []byte {
	raw, err := env.Marshal()
	if err != nil {
		panic(err) // Envelope always marshals: no unsupported field types
	}
	return raw
}

func usage() {
	fmt.Printf(`usage: worker [-h|--help] [-l] [-a address] [count]

Starts the given number of worker components (default %d, maximum %d),
each connecting to a coordinator's transport listener at address.

Flags:
`, defaultWorkers, maxWorkers)
	flag.PrintDefaults()
}
