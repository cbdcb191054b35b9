// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

// Package funcs provides a lookup registry of named pure functions A -> B
// that a worker can execute once it has resolved a dispatched function blob
// to one of its entries.
//
// Go has no runtime equivalent of Python's cloudpickle: a worker cannot
// deserialize and execute an arbitrary closure shipped as bytes. Instead a
// function blob is the plain name of a registered Func, and a worker
// resolves it against its local Registry; the blob carries no construction
// arguments. The coordinator never interprets the blob; this is purely a
// worker-side convention.
package funcs

import (
	"slices"

	"github.com/LeonardoPohl/DPS-2-Nitocris/funcs/factorial"
	"github.com/LeonardoPohl/DPS-2-Nitocris/funcs/square"
	"github.com/LeonardoPohl/DPS-2-Nitocris/funcs/wordfreq"
)

// Func is a pure unary computation A -> B, identified by a stable name.
type Func interface {
	// Name uniquely identifies the function for lookup in a Registry.
	Name() string

	// Call invokes the function on the given opaque input, returning opaque
	// output. An error indicates the input could not be decoded or the
	// computation itself failed; the caller treats it as empty output data
	// (a worker-side computational error, per spec).
	Call(input []byte) (output []byte, err error)
}

// Registry manages named functions for lookup by coordinators (to validate a
// name exists) and workers (to resolve a dispatched function blob).
type Registry struct {
	funcs map[string]Func
}

// NewRegistry returns a Registry with all bundled demonstration functions
// pre-registered.
func NewRegistry() *Registry {
	r := &Registry{funcs: make(map[string]Func)}
	r.Register(square.Func{})
	r.Register(factorial.Func{})
	r.Register(wordfreq.Func{})
	return r
}

// Register adds or replaces the given function under its Name.
func (r *Registry) Register(f Func) {
	r.funcs[f.Name()] = f
}

// ByName looks up a registered function; the second return value is false if
// no function of that name is registered.
func (r *Registry) ByName(name string) (Func, bool) {
	f, ok := r.funcs[name]
	return f, ok
}

// Names returns the names of all registered functions, ascending.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
