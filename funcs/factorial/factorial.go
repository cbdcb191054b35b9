// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

// Package factorial provides a demonstration Func that computes n! for a
// non-negative integer n, adapted from the teacher's fac Computation down to
// a single unary call since this system has no accumulation step.
package factorial

import (
	"fmt"
	"math/big"
	"strconv"
)

// Func computes the factorial of a non-negative integer given as its
// decimal string representation.
type Func struct{}

func (Func) Name() string { return "factorial" }

func (Func) Call(input []byte) ([]byte, error) {
	n, err := strconv.ParseUint(string(input), 10, 0)
	if err != nil {
		return nil, fmt.Errorf("factorial: one non-negative integer required, got %q: %w", input, err)
	}

	result := big.NewInt(1)
	for i := uint64(2); i <= n; i++ {
		result.Mul(result, big.NewInt(int64(i)))
	}
	return []byte(result.String()), nil
}
