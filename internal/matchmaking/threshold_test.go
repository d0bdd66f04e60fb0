package matchmaking

import "testing"

func TestThresholdMonotonicAndBounded(t *testing.T) {
	const initial, min, decay = 8.0, 3.0, 0.05
	prev := Threshold(0, initial, min, decay)
	if prev != initial {
		t.Errorf("threshold(0) = %f, want %f", prev, initial)
	}
	for tSec := 1.0; tSec <= 200; tSec++ {
		cur := Threshold(tSec, initial, min, decay)
		if cur > prev {
			t.Fatalf("threshold not monotonically non-increasing at t=%f: prev=%f cur=%f", tSec, prev, cur)
		}
		if cur < min || cur > initial {
			t.Fatalf("threshold(%f) = %f out of bounds [%f, %f]", tSec, cur, min, initial)
		}
		prev = cur
	}
}

func TestThresholdReachesMinAt100Seconds(t *testing.T) {
	const initial, min, decay = 8.0, 3.0, 0.05
	got := Threshold(100, initial, min, decay)
	if got != min {
		t.Errorf("threshold(100) = %f, want %f", got, min)
	}
}
