package otp

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_FixedWidthDigits(t *testing.T) {
	g := NewGenerator(5)
	for i := 0; i < 200; i++ {
		code, err := g.Generate()
		require.NoError(t, err)
		require.Len(t, code, 5)
		n, err := strconv.Atoi(code)
		require.NoError(t, err, "non-numeric code %q", code)
		require.Less(t, n, 100000)
	}
}

func TestGenerator_CoversWholeRange(t *testing.T) {
	g := NewGenerator(1)
	seen := map[string]bool{}
	for i := 0; i < 500; i++ {
		code, err := g.Generate()
		require.NoError(t, err)
		seen[code] = true
	}
	assert.Len(t, seen, 10, "every digit including 0 must be reachable")
}
