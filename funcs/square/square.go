// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

// Package square provides a demonstration Func that squares an integer,
// transmitted in UTF-8 encoded binary serialization format as in the
// teacher's factorial demo.
package square

import (
	"fmt"
	"strconv"
)

// Func squares a base-10 integer given as its decimal string representation.
type Func struct{}

func (Func) Name() string { return "square" }

func (Func) Call(input []byte) ([]byte, error) {
	n, err := strconv.ParseInt(string(input), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("square: invalid integer input %q: %w", input, err)
	}
	return []byte(strconv.FormatInt(n*n, 10)), nil
}
