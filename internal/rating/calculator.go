// Package rating implements the pure Elo-style rating update of spec
// section 4.1. It never fails except on validation and has no
// dependency on the store, clock, or any other component.
package rating

import (
	"fmt"
	"math"

	"github.com/duelqueue/backend/internal/apperr"
)

// Outcome is the result of a finished match from A's perspective.
type Outcome int

const (
	AWins Outcome = iota
	BWins
	Draw
)

// DefaultKFactor is the standard K-factor; config.Load defaults
// K_FACTOR to the same value (32).
const DefaultKFactor = 32

// Expected returns A's expected score against B under the standard
// logistic Elo curve (spec 4.1).
func Expected(ratingA, ratingB int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(ratingB-ratingA)/400.0))
}

// OutcomeFromScore derives an Outcome from a final score pair,
// rejecting negative scores (spec 4.1).
func OutcomeFromScore(scoreA, scoreB int) (Outcome, error) {
	if scoreA < 0 || scoreB < 0 {
		return 0, apperr.Validationf(fmt.Sprintf("negative score: %d-%d", scoreA, scoreB))
	}
	switch {
	case scoreA > scoreB:
		return AWins, nil
	case scoreB > scoreA:
		return BWins, nil
	default:
		return Draw, nil
	}
}

// actualScores maps an Outcome to the (Sa, Sb) actual-score pair.
func actualScores(o Outcome) (float64, float64) {
	switch o {
	case AWins:
		return 1, 0
	case BWins:
		return 0, 1
	default:
		return 0.5, 0.5
	}
}

// Update computes the post-match ratings for A and B. Ratings are
// clamped at 0 on the low end and uncapped above; the delta is
// rounded half-to-even before it is applied (spec 4.1).
func Update(ratingA, ratingB int, outcome Outcome, kFactor int) (newA, newB int) {
	ea := Expected(ratingA, ratingB)
	eb := 1 - ea
	sa, sb := actualScores(outcome)

	deltaA := math.RoundToEven(float64(kFactor) * (sa - ea))
	deltaB := math.RoundToEven(float64(kFactor) * (sb - eb))

	newA = clamp(ratingA + int(deltaA))
	newB = clamp(ratingB + int(deltaB))
	return newA, newB
}

func clamp(r int) int {
	if r < 0 {
		return 0
	}
	return r
}
