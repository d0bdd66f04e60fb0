package matchmaking

import "testing"

func TestScoreAreaIsolation(t *testing.T) {
	a := Snapshot{Rating: 1000, Preferences: []float64{0, 0}, Area: "NA"}
	b := Snapshot{Rating: 1000, Preferences: []float64{0, 0}, Area: "EU"}
	if _, ok := Score(a, b, 0, 0, 50, 5); ok {
		t.Error("expected incompatible areas to report ok=false")
	}
}

func TestScoreIdenticalTicketsIsIdeal(t *testing.T) {
	a := Snapshot{Rating: 1000, Preferences: []float64{0, 0}, Area: "NA"}
	b := Snapshot{Rating: 1000, Preferences: []float64{0, 0}, Area: "NA"}
	s, ok := Score(a, b, 0, 0, 50, 5)
	if !ok {
		t.Fatal("expected compatible pair")
	}
	if s < 9.99 {
		t.Errorf("expected near-ideal score for identical tickets, got %f", s)
	}
}

func TestScoreDecaysWithSkillGap(t *testing.T) {
	// S4 at t=0: P1=1000, P2=1400, skill subscore ~2, well below
	// weighted threshold territory.
	a := Snapshot{Rating: 1000, Preferences: nil, Area: "NA"}
	b := Snapshot{Rating: 1400, Preferences: nil, Area: "NA"}
	s0, ok := Score(a, b, 0, 0, 50, 5)
	if !ok {
		t.Fatal("expected compatible pair")
	}
	s60, ok := Score(a, b, 60, 60, 50, 5)
	if !ok {
		t.Fatal("expected compatible pair")
	}
	if s60 <= s0 {
		t.Errorf("expected score to improve as skill tolerance relaxes: s0=%f s60=%f", s0, s60)
	}
}

func TestScoreWaitBalancePenalizesImbalance(t *testing.T) {
	a := Snapshot{Rating: 1000, Preferences: nil, Area: "NA"}
	b := Snapshot{Rating: 1000, Preferences: nil, Area: "NA"}
	balanced, _ := Score(a, b, 10, 10, 50, 5)
	imbalanced, _ := Score(a, b, 0, 40, 50, 5)
	if imbalanced >= balanced {
		t.Errorf("expected imbalanced wait to score lower: balanced=%f imbalanced=%f", balanced, imbalanced)
	}
}
