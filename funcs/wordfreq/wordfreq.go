// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

// Package wordfreq provides a demonstration Func that counts the frequency
// of occurrence of words in a single paragraph of UTF-8 text, adapted from
// the teacher's wf Computation. Splitting a corpus into per-paragraph tasks
// and expanding file globs is left to the caller (see cmd/coordinator, which
// uses doublestar to expand glob arguments into files); this Func is the
// per-task unary computation only, since this system has no separate
// accumulation step — callers sum the per-task maps themselves.
package wordfreq

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rivo/uniseg"
)

// Frequency maps a normalized word to its number of occurrences. It is
// transmitted in gob encoding, a Go-only binary encoding format.
type Frequency = map[string]int

// Func counts word frequencies in a paragraph of UTF-8 text.
type Func struct{}

func (Func) Name() string { return "wordfreq" }

func (Func) Call(input []byte) ([]byte, error) {
	freq := countWords(input)

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(freq); err != nil {
		return nil, fmt.Errorf("wordfreq: encode result: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode decodes the gob-encoded Frequency produced by Call, for callers
// that need to accumulate per-task results themselves.
func Decode(output []byte) (Frequency, error) {
	var freq Frequency
	if err := gob.NewDecoder(bytes.NewReader(output)).Decode(&freq); err != nil {
		return nil, fmt.Errorf("wordfreq: decode result: %w", err)
	}
	return freq, nil
}

func countWords(p []byte) Frequency {
	ignoreWord := func(w []byte) bool {
		for len(w) > 0 {
			r, size := utf8.DecodeRune(w)
			if unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsControl(r) {
				w = w[size:]
				continue
			}
			return false
		}
		return true
	}

	freq := make(Frequency)
	state := -1
	var word []byte
	for len(p) > 0 {
		word, p, state = uniseg.FirstWord(p, state)
		if ignoreWord(word) {
			continue
		}
		freq[strings.ToLower(string(word))]++
	}
	return freq
}
