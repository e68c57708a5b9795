package safeconv

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMustToInt(t *testing.T) {
	t.Parallel()

	t.Run("normal_value", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, 42, MustToInt(uint32(42)))
		assert.Equal(t, 42, MustToInt(uint(42)))
	})

	t.Run("zero", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, 0, MustToInt(uint64(0)))
	})

	t.Run("max_int", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, MaxInt, MustToInt(uint(MaxInt)))
	})

	t.Run("overflow_panics", func(t *testing.T) {
		t.Parallel()

		assert.PanicsWithValue(t, "safeconv: unsigned to int overflow", func() {
			MustToInt(uint(MaxInt) + 1)
		})
	})
}

func TestMustStore(t *testing.T) {
	t.Parallel()

	t.Run("uint32", func(t *testing.T) {
		t.Parallel()

		var dst uint32

		MustStore(&dst, 17)
		assert.Equal(t, uint32(17), dst)
	})

	t.Run("uint", func(t *testing.T) {
		t.Parallel()

		var dst uint

		MustStore(&dst, 9)
		assert.Equal(t, uint(9), dst)
	})

	t.Run("negative_panics", func(t *testing.T) {
		t.Parallel()

		var dst uint32

		assert.PanicsWithValue(t, "safeconv: negative int to unsigned conversion", func() {
			MustStore(&dst, -1)
		})
	})

	t.Run("too_large_panics", func(t *testing.T) {
		t.Parallel()

		var dst uint16

		assert.PanicsWithValue(t, "safeconv: int to unsigned out of bounds", func() {
			MustStore(&dst, math.MaxUint16+1)
		})
	})
}
