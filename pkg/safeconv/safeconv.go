// Package safeconv provides safe integer type conversion functions that panic on overflow.
// Tree-sitter reports byte offsets and points as unsigned integers.
package safeconv

// MaxInt is the maximum value for int type (platform-dependent).
const MaxInt = int(^uint(0) >> 1)

// Unsigned is any unsigned integer type a binding may use for offsets.
type Unsigned interface {
	~uint | ~uint16 | ~uint32 | ~uint64
}

// MustToInt converts an unsigned value to int, panics on overflow.
// Use only when overflow is logically impossible.
func MustToInt[T Unsigned](v T) int {
	if uint64(v) > uint64(MaxInt) {
		panic("safeconv: unsigned to int overflow")
	}

	return int(v)
}

// MustStore writes v into dst, panics if v is negative or does not fit.
// Use only when bounds violations are logically impossible.
func MustStore[T Unsigned](dst *T, v int) {
	if v < 0 {
		panic("safeconv: negative int to unsigned conversion")
	}

	out := T(v)
	if uint64(out) != uint64(v) {
		panic("safeconv: int to unsigned out of bounds")
	}

	*dst = out
}
