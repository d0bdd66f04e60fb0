package session

import (
	"context"
	"testing"
	"time"

	"github.com/duelqueue/backend/internal/config"
	"github.com/duelqueue/backend/internal/models"
	"github.com/duelqueue/backend/internal/store"
)

type fakeStore struct {
	player      *models.Player
	ticketID    int64
	events      chan store.TicketEvent
	cancelCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		player:   &models.Player{ID: 1, ExternalID: "user-1", Rating: 1000, Area: "default"},
		ticketID: 42,
		events:   make(chan store.TicketEvent, 4),
	}
}

func (f *fakeStore) GetPlayerByExternalID(ctx context.Context, externalID string) (*models.Player, error) {
	return f.player, nil
}

func (f *fakeStore) CreateTicket(ctx context.Context, playerID int64, snapshot models.Snapshot, area string) (*models.Ticket, error) {
	return &models.Ticket{ID: f.ticketID, UserID: playerID, Area: area, Snapshot: snapshot}, nil
}

func (f *fakeStore) WatchTicket(ctx context.Context, ticketID int64) (<-chan store.TicketEvent, func()) {
	return f.events, func() {}
}

func (f *fakeStore) Cancel(ctx context.Context, ticketID int64) (store.CancelResult, error) {
	f.cancelCalls++
	return store.Cancelled, nil
}

func (f *fakeStore) StartMatch(ctx context.Context, playerA, playerB *models.Player) (*models.Match, error) {
	return &models.Match{ExternalID: "match-1"}, nil
}

func (f *fakeStore) CancelMatch(ctx context.Context, matchExternalID string) error {
	return nil
}

func (f *fakeStore) FinishMatch(ctx context.Context, matchExternalID string, scoreA, scoreB, kFactor int) (*store.FinishResult, error) {
	return &store.FinishResult{RatingBeforeA: 1000, RatingBeforeB: 1000, RatingAfterA: 1016, RatingAfterB: 984}, nil
}

type fakeEngine struct {
	ran chan *models.Ticket
}

func (e *fakeEngine) Run(ctx context.Context, ticket *models.Ticket) {
	if e.ran != nil {
		e.ran <- ticket
	}
	<-ctx.Done()
}

func facadeForTest(fs *fakeStore, fe *fakeEngine) *Facade {
	return &Facade{store: fs, engine: fe, cfg: &config.Config{KFactor: 32}}
}

// Enqueue returns as soon as a terminal event arrives on the ticket's
// watch channel, reporting the status and match id.
func TestEnqueueReturnsOnTerminalEvent(t *testing.T) {
	fs := newFakeStore()
	f := facadeForTest(fs, &fakeEngine{})
	fs.events <- store.TicketEvent{Type: store.EventMatched, MatchID: "match-1"}

	result, err := f.Enqueue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != store.EventMatched || result.MatchID != "match-1" {
		t.Errorf("expected matched/match-1, got %v/%v", result.Status, result.MatchID)
	}
}

// Enqueue ignores non-terminal searching ticks and keeps waiting.
func TestEnqueueIgnoresSearchingEvents(t *testing.T) {
	fs := newFakeStore()
	f := facadeForTest(fs, &fakeEngine{})
	fs.events <- store.TicketEvent{Type: store.EventSearching, Threshold: 8}
	fs.events <- store.TicketEvent{Type: store.EventExpired}

	result, err := f.Enqueue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != store.EventExpired {
		t.Errorf("expected expired, got %v", result.Status)
	}
}

// Stream forwards every event to send, including searching ticks, and
// stops after the terminal one.
func TestStreamForwardsAllEventsUntilTerminal(t *testing.T) {
	fs := newFakeStore()
	f := facadeForTest(fs, &fakeEngine{})
	fs.events <- store.TicketEvent{Type: store.EventSearching}
	fs.events <- store.TicketEvent{Type: store.EventSearching}
	fs.events <- store.TicketEvent{Type: store.EventCancelled}

	var received []store.EventType
	err := f.Stream(context.Background(), "user-1", func(ev store.TicketEvent) error {
		received = append(received, ev.Type)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(received) != 3 || received[2] != store.EventCancelled {
		t.Errorf("expected 3 events ending in cancelled, got %v", received)
	}
}

// Stream treats context cancellation before a terminal event as client
// disconnect, cancelling the ticket.
func TestStreamCancelsTicketOnDisconnect(t *testing.T) {
	fs := newFakeStore()
	f := facadeForTest(fs, &fakeEngine{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.Stream(ctx, "user-1", func(ev store.TicketEvent) error { return nil })
	}()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Stream did not return after context cancellation")
	}
	if fs.cancelCalls != 1 {
		t.Errorf("expected ticket to be cancelled once, got %d", fs.cancelCalls)
	}
}

func TestFinishMatchReturnsRatingDeltas(t *testing.T) {
	fs := newFakeStore()
	f := facadeForTest(fs, &fakeEngine{})

	result, err := f.FinishMatch(context.Background(), "match-1", 1, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.RatingAfterA != 1016 || result.RatingAfterB != 984 {
		t.Errorf("unexpected rating deltas: %+v", result)
	}
}
