package audio

import "math"

// volumeToPower maps a linear 0..1 level to the exponent used by
// effects.Volume with Base 2. Unity is 0; levels at or below 0.01 are
// treated as silent by the caller.
func volumeToPower(vol float64) float64 {
	if vol <= 0.01 {
		return -10
	}
	return math.Log2(vol)
}
