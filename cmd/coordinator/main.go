// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

/*
Starts a coordinator that maps one of the bundled functions over a list of
inputs taken from the command line, dispatching tasks to a pool of connected
workers and printing the ordered results.

For usage details, run coordinator with the command line flag -h or --help.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/LeonardoPohl/DPS-2-Nitocris/clog"
	"github.com/LeonardoPohl/DPS-2-Nitocris/engine"
	"github.com/LeonardoPohl/DPS-2-Nitocris/funcs"
)

func main() {
	var transportPort, assetPort, chunkSize, timeoutSeconds, maxAttempts int
	var verbose, help bool

	flag.Usage = usage
	flag.IntVar(&transportPort, "t", engine.DefaultTransportPort, "port the worker-facing transport listens on")
	flag.IntVar(&assetPort, "a", engine.DefaultAssetPort, "port the asset/package HTTP server listens on")
	flag.IntVar(&chunkSize, "c", engine.DefaultChunkSize, "tasks assigned to a worker per dispatch decision")
	flag.IntVar(&timeoutSeconds, "s", engine.DefaultTimeoutSeconds, "per-task timeout, in seconds")
	flag.IntVar(&maxAttempts, "m", 0, "maximum dispatch attempts per task before failing (0 = unbounded)")
	flag.BoolVar(&help, "h", false, "Show usage information")
	flag.BoolVar(&verbose, "l", false, "Show logging output (for debugging)")
	flag.Parse()

	name := flag.Arg(0)
	if help || name == "" {
		usage()
		os.Exit(0)
	}

	if verbose {
		clog.Enable()
	}

	reg := funcs.NewRegistry()
	if _, ok := reg.ByName(name); !ok {
		fmt.Printf("Unknown computation %q. Known: %v\n", name, reg.Names())
		os.Exit(1)
	}

	inputs, err := expandInputs(name, flag.Args()[1:])
	if err != nil {
		fmt.Printf("Failed preparing inputs: %v\n", err)
		os.Exit(1)
	}

	cfg := engine.Config{
		TransportPort: transportPort,
		AssetPort:     assetPort,
		Timeout:       time.Duration(timeoutSeconds) * time.Second,
		MaxAttempts:   maxAttempts,
	}
	session := engine.New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Printf("Terminating coordinator on signal %v...\n", sig)
		cancel()
	}()

	fmt.Printf("Starting a coordinator to compute %s over %d inputs...\n", name, len(inputs))

	results, err := session.Map(ctx, []byte(name), inputs, chunkSize)
	if err != nil {
		fmt.Printf("Computation failed: %v\n", err)
		os.Exit(1)
	}

	for i, r := range results {
		fmt.Printf("%d: %s\n", i, r)
	}
}

// expandInputs builds one task payload per argument for the square and
// factorial demos (each argument is already the decimal input), or expands
// glob arguments into files and splits each into paragraphs for the
// wordfreq demo (one task payload per paragraph), using doublestar for glob
// expansion since Go's stdlib path/filepath.Glob does not support "**".
func expandInputs(name string, args []string) ([][]byte, error) {
	if name != "wordfreq" {
		inputs := make([][]byte, len(args))
		for i, a := range args {
			inputs[i] = []byte(a)
		}
		return inputs, nil
	}

	var inputs [][]byte
	for _, pattern := range args {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("expanding glob %q: %w", pattern, err)
		}
		for _, path := range matches {
			content, err := os.ReadFile(filepath.Clean(path))
			if err != nil {
				return nil, fmt.Errorf("reading %q: %w", path, err)
			}
			for _, paragraph := range strings.Split(string(content), "\n\n") {
				if strings.TrimSpace(paragraph) == "" {
					continue
				}
				inputs = append(inputs, []byte(paragraph))
			}
		}
	}
	return inputs, nil
}

func usage() {
	fmt.Printf(`usage: coordinator [-h|--help] [-l] [-t port] [-a port] [-c chunkSize] [-s timeoutSeconds] [-m maxAttempts] computation [arguments...]

Starts a coordinator for one of the bundled computations, mapped over the
given command-line inputs.

The following computations are predefined:

`)
	printComputations()
	fmt.Println("\nFlags:")
	flag.PrintDefaults()
}

func printComputations() {
	reg := funcs.NewRegistry()
	for _, n := range reg.Names() {
		fmt.Printf("  %s\n", n)
	}
}
