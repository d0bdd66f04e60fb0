package rating

import "testing"

func TestUpdateSymmetricWin(t *testing.T) {
	// S1: P1=1000, P2=1000, score [11,5] -> P1=1016, P2=984.
	outcome, err := OutcomeFromScore(11, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	newA, newB := Update(1000, 1000, outcome, 32)
	if newA != 1016 || newB != 984 {
		t.Errorf("got (%d, %d), want (1016, 984)", newA, newB)
	}
}

func TestUpdateUpset(t *testing.T) {
	// S2: P1=1200, P2=1000, score [5,11] -> P1=1176, P2=1024.
	outcome, err := OutcomeFromScore(5, 11)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	newA, newB := Update(1200, 1000, outcome, 32)
	if newA != 1176 || newB != 1024 {
		t.Errorf("got (%d, %d), want (1176, 1024)", newA, newB)
	}
}

func TestUpdateDrawEqualRatings(t *testing.T) {
	// S3: P1=1100, P2=1100, draw -> unchanged.
	outcome, err := OutcomeFromScore(10, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	newA, newB := Update(1100, 1100, outcome, 32)
	if newA != 1100 || newB != 1100 {
		t.Errorf("got (%d, %d), want (1100, 1100)", newA, newB)
	}
}

func TestUpdateConservation(t *testing.T) {
	// Property 5: |deltaA + deltaB| <= 1 for any single match.
	cases := []struct{ ra, rb, sa, sb int }{
		{1000, 1400, 3, 7},
		{1200, 1000, 5, 11},
		{1500, 1500, 1, 1},
		{800, 2000, 0, 1},
	}
	for _, c := range cases {
		outcome, err := OutcomeFromScore(c.sa, c.sb)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		newA, newB := Update(c.ra, c.rb, outcome, 32)
		deltaSum := (newA - c.ra) + (newB - c.rb)
		if deltaSum > 1 || deltaSum < -1 {
			t.Errorf("ra=%d rb=%d: delta sum %d out of [-1,1]", c.ra, c.rb, deltaSum)
		}
	}
}

func TestOutcomeFromScoreRejectsNegative(t *testing.T) {
	if _, err := OutcomeFromScore(-1, 3); err == nil {
		t.Error("expected error for negative score")
	}
}

func TestUpdateClampsAtZero(t *testing.T) {
	outcome, _ := OutcomeFromScore(0, 20)
	newA, _ := Update(5, 2000, outcome, 32)
	if newA < 0 {
		t.Errorf("rating clamped below zero: %d", newA)
	}
}
