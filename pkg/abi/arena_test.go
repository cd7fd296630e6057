package abi_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-leafrender/pkg/abi"
)

func TestArena_AllocFree(t *testing.T) {
	arena := abi.NewArena()
	next := uintptr(0)
	addr := func([]byte) uintptr {
		next += 16
		return next
	}

	first, k1 := arena.Alloc(8, addr)
	second, k2 := arena.Alloc(32, addr)
	require.Len(t, first, 8)
	require.Len(t, second, 32)
	assert.NotEqual(t, k1, k2)
	assert.Equal(t, 2, arena.Live())

	arena.Free(k1)
	arena.Free(k1)
	arena.Free(999)
	assert.Equal(t, 1, arena.Live())

	buf, key := arena.Alloc(0, addr)
	assert.Nil(t, buf)
	assert.Zero(t, key)
	assert.Equal(t, 1, arena.Live())
}
