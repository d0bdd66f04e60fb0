package matchmaking

import (
	"context"
	"testing"
	"time"

	"github.com/duelqueue/backend/internal/apperr"
	"github.com/duelqueue/backend/internal/models"
)

type fakeStore struct {
	inFlight   map[int64]bool
	bindErr    map[int64]error
	bound      []int64
	searchings int
}

func newFakeStore() *fakeStore {
	return &fakeStore{inFlight: map[int64]bool{}, bindErr: map[int64]error{}}
}

func (f *fakeStore) ListWaiting(ctx context.Context, area string, excludePlayerID, excludeTicketID int64) ([]*models.Ticket, error) {
	return nil, nil
}

func (f *fakeStore) IsInFlight(ctx context.Context, ticketID int64) bool {
	return f.inFlight[ticketID]
}

func (f *fakeStore) MarkInFlight(ctx context.Context, ticketID int64) bool {
	if f.inFlight[ticketID] {
		return false
	}
	f.inFlight[ticketID] = true
	return true
}

func (f *fakeStore) ClearInFlight(ctx context.Context, ticketID int64) {
	delete(f.inFlight, ticketID)
}

func (f *fakeStore) TryBind(ctx context.Context, ticketAID, ticketBID int64) (*models.Match, error) {
	if err, ok := f.bindErr[ticketBID]; ok {
		return nil, err
	}
	f.bound = append(f.bound, ticketBID)
	return &models.Match{}, nil
}

func (f *fakeStore) Expire(ctx context.Context, ticketID int64, reason string) error {
	return nil
}

func (f *fakeStore) PublishSearching(ctx context.Context, ticketID int64, threshold float64, candidates int, waited float64) {
	f.searchings++
}

func ticketWithRating(id, userID int64, rating int, createdAt time.Time) *models.Ticket {
	return &models.Ticket{
		ID:        id,
		UserID:    userID,
		Area:      "default",
		Snapshot:  models.Snapshot{Rating: rating, Preferences: []float64{0.5, 0.5}},
		CreatedAt: createdAt,
	}
}

func engineForTest(s ticketStore) *Engine {
	return &Engine{
		store: s,
		cfg: EngineConfig{
			BaseTolerance:  50,
			SkillRelaxRate: 5,
		},
	}
}

// Among equally-compatible candidates, rankEligible orders by longest
// minimum wait first (spec 4.4 step 6). Self has waited 60s, so both
// wait gaps (30s and 59s) exceed 20s and the wait-balance subscore is 0
// for each; with equal ratings and preferences both candidates score
// exactly 8.0.
func TestRankEligiblePrefersLongerWaitOnTie(t *testing.T) {
	e := engineForTest(newFakeStore())
	self := Snapshot{Rating: 1000, Preferences: []float64{0.5, 0.5}, Area: "default"}
	ticket := ticketWithRating(1, 10, 1000, time.Now().Add(-60*time.Second))

	longWaiter := ticketWithRating(2, 20, 1000, time.Now().Add(-30*time.Second))
	shortWaiter := ticketWithRating(3, 30, 1000, time.Now().Add(-1*time.Second))

	eligible := e.rankEligible(context.Background(), self, ticket, []*models.Ticket{shortWaiter, longWaiter}, 60, 0)

	if len(eligible) != 2 {
		t.Fatalf("expected 2 eligible candidates, got %d", len(eligible))
	}
	if eligible[0].ticket.ID != longWaiter.ID {
		t.Errorf("expected longer-waiting ticket %d first, got %d", longWaiter.ID, eligible[0].ticket.ID)
	}
}

// rankEligible skips a candidate currently marked in-flight by another
// worker, even when it would otherwise be the best match.
func TestRankEligibleSkipsInFlightCandidate(t *testing.T) {
	fs := newFakeStore()
	fs.inFlight[2] = true
	e := engineForTest(fs)

	self := Snapshot{Rating: 1000, Preferences: []float64{0.5, 0.5}, Area: "default"}
	ticket := ticketWithRating(1, 10, 1000, time.Now())
	candidate := ticketWithRating(2, 20, 1000, time.Now())

	eligible := e.rankEligible(context.Background(), self, ticket, []*models.Ticket{candidate}, 5, 0)
	if len(eligible) != 0 {
		t.Errorf("expected in-flight candidate to be excluded, got %d eligible", len(eligible))
	}
}

// attemptBind falls through to the next candidate when TryBind reports
// a lost race (Conflict), and stops on the first success.
func TestAttemptBindFallsThroughOnConflict(t *testing.T) {
	fs := newFakeStore()
	fs.bindErr[2] = apperr.Conflictf("ticket no longer waiting")
	e := engineForTest(fs)

	eligible := []eligibleCandidate{
		{ticket: ticketWithRating(2, 20, 1000, time.Now())},
		{ticket: ticketWithRating(3, 30, 1000, time.Now())},
	}

	consecutive := 0
	bound, err := e.attemptBind(context.Background(), 1, eligible, &consecutive)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bound {
		t.Fatalf("expected a successful bind after the first candidate's conflict")
	}
	if len(fs.bound) != 1 || fs.bound[0] != 3 {
		t.Errorf("expected ticket 3 to be bound, got %v", fs.bound)
	}
}

// attemptBind surfaces a non-Conflict error immediately rather than
// trying further candidates.
func TestAttemptBindSurfacesOperationalError(t *testing.T) {
	fs := newFakeStore()
	fs.bindErr[2] = apperr.Operationalf("store unreachable", nil)
	e := engineForTest(fs)

	eligible := []eligibleCandidate{
		{ticket: ticketWithRating(2, 20, 1000, time.Now())},
		{ticket: ticketWithRating(3, 30, 1000, time.Now())},
	}

	consecutive := 0
	bound, err := e.attemptBind(context.Background(), 1, eligible, &consecutive)
	if bound {
		t.Fatalf("did not expect a bind on operational error")
	}
	if err == nil {
		t.Fatalf("expected an error to be surfaced")
	}
	if len(fs.bound) != 0 {
		t.Errorf("did not expect any bind to occur, got %v", fs.bound)
	}
}
