package audio

import "math"

const silentBelow = 0.01

// clampVolume limits vol to [0, 1].
func clampVolume(vol float64) float64 {
	if vol < 0 {
		return 0
	}
	if vol > 1 {
		return 1
	}
	return vol
}

// volumeToPower maps a linear 0..1 volume to the base-2 exponent used by
// effects.Volume. 1 is unity gain.
func volumeToPower(vol float64) float64 {
	if vol <= silentBelow {
		return -10
	}
	return math.Log2(vol)
}
