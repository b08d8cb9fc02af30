package octree

import (
	"math"
)

// The traversal keeps positions as float32 values in [1,2). Every such value has the same biased
// exponent (127), so its bit pattern is 0x3F800000 | mantissa and the mantissa is a fixed point
// coordinate with 23 fractional bits. Scale s (a cube of side 2^(s-23)) corresponds to mantissa
// bit s. The helpers below are the only place those bit patterns are touched.

const (
	mantissaBits = 23
	exponentBias = 127
	// maxScale is one past the root scale; reaching it means the ray left the world.
	maxScale = mantissaBits
)

// floatAsUint reinterprets the bits of f.
func floatAsUint(f float32) uint32 {
	return math.Float32bits(f)
}

// uintAsFloat reinterprets u as a float32.
func uintAsFloat(u uint32) float32 {
	return math.Float32frombits(u)
}

// highestDifferingScale returns the index of the highest set bit of differing, i.e.
// floor(log2(differing)), read from the exponent of differing converted to float32. Applied to the
// XOR of two positions it yields the scale of their smallest common ancestor. differing must be
// non-zero. Values of 2^24 and above may round up to the next power of two, which only happens once
// the exponent bits differ, and every such result is already >= maxScale.
func highestDifferingScale(differing uint32) int {
	return int(floatAsUint(float32(differing))>>mantissaBits) - exponentBias
}

// scaleToFloat returns 2^(scale-23), the side of a cube at the given scale, by building the
// exponent directly.
func scaleToFloat(scale int) float32 {
	return uintAsFloat(uint32(scale-mantissaBits+exponentBias) << mantissaBits)
}

// floorToScale clears the mantissa bits below scale, snapping pos to the corner of its cube.
func floorToScale(pos float32, scale int) (float32, uint32) {
	shifted := floatAsUint(pos) >> scale
	return uintAsFloat(shifted << scale), shifted
}
