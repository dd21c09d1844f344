package hide

import "math"

// reverse complements d and mirrors its bits across the width of T. It is
// its own inverse.
func reverse[T ~uint8 | ~uint32 | ~uint64](d T, width int) T {
	v := ^d
	r := v
	s := width - 1
	for v >>= 1; v != 0; v >>= 1 {
		r <<= 1
		r |= v & 1
		s--
	}
	r <<= s
	return r
}

func ReverseByte(d uint8) uint8 { return reverse(d, 8) }

func ReverseInt32(d int32) int32 { return int32(reverse(uint32(d), 32)) }

func ReverseInt64(d int64) int64 { return int64(reverse(uint64(d), 64)) }

// ReverseFloat32 applies ReverseInt32 to the bit pattern of d.
func ReverseFloat32(d float32) float32 {
	return math.Float32frombits(uint32(ReverseInt32(int32(math.Float32bits(d)))))
}

// ReverseFloat64 applies ReverseInt64 to the bit pattern of d.
func ReverseFloat64(d float64) float64 {
	return math.Float64frombits(uint64(ReverseInt64(int64(math.Float64bits(d)))))
}

// Mask applies the position-dependent payload mask in place. Applying it
// twice restores the input.
func Mask(data []byte) {
	for i := range data {
		data[i] ^= byte(i) ^ 0xAA
	}
}
