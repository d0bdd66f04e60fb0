package matchmaking

import "math"

// Threshold computes the minimum acceptance score required at elapsed
// wait t (seconds), per spec 4.3. It is monotonically non-increasing
// in t and bounded in [minThreshold, initialThreshold]; expiry is
// enforced separately by the Engine, not by this function.
func Threshold(waitSeconds, initialThreshold, minThreshold, decayRate float64) float64 {
	return math.Max(minThreshold, initialThreshold-decayRate*waitSeconds)
}
