// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

// Package codec defines the pluggable serialization boundary between the
// dispatch engine and the wire: a Codec turns a (index, payload) task or
// result tuple into an opaque byte blob and back. The engine never looks
// inside the bytes a Codec produces or consumes.
package codec

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Task is the unit of dispatch: an input's position in the caller's original
// sequence plus its already-opaque serialized payload.
type Task struct {
	Index   uint32
	Payload []byte
}

// Result is a task's index paired with the opaque serialized output produced
// by a worker.
type Result struct {
	Index   uint32
	Payload []byte
}

// Codec serializes and deserializes Task and Result tuples for transmission
// on the wire. Implementations must not assume any particular structure of
// Payload; it is opaque application data.
type Codec interface {
	EncodeTask(t Task) ([]byte, error)
	DecodeTask(raw []byte) (Task, error)
	EncodeResult(r Result) ([]byte, error)
	DecodeResult(raw []byte) (Result, error)
}

// Gob is the default Codec, using encoding/gob — a Go-only binary encoding
// format well suited to encoding fixed-shape tuples without a schema.
type Gob struct{}

var _ Codec = Gob{}

func (Gob) EncodeTask(t Task) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(t); err != nil {
		return nil, fmt.Errorf("codec: encode task: %w", err)
	}
	return buf.Bytes(), nil
}

func (Gob) DecodeTask(raw []byte) (Task, error) {
	var t Task
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&t); err != nil {
		return Task{}, fmt.Errorf("codec: decode task: %w", err)
	}
	return t, nil
}

func (Gob) EncodeResult(r Result) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, fmt.Errorf("codec: encode result: %w", err)
	}
	return buf.Bytes(), nil
}

func (Gob) DecodeResult(raw []byte) (Result, error) {
	var r Result
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&r); err != nil {
		return Result{}, fmt.Errorf("codec: decode result: %w", err)
	}
	return r, nil
}
