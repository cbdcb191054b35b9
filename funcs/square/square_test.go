// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

package square

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallSquares(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"0", "0"},
		{"1", "1"},
		{"12", "144"},
		{"-5", "25"},
	}

	var f Func
	for _, c := range cases {
		out, err := f.Call([]byte(c.input))
		require.NoError(t, err)
		assert.Equal(t, c.want, string(out))
	}
}

func TestCallRejectsNonInteger(t *testing.T) {
	var f Func
	_, err := f.Call([]byte("not-a-number"))
	assert.Error(t, err)
}

func TestName(t *testing.T) {
	var f Func
	assert.Equal(t, "square", f.Name())
}
