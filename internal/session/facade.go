// Package session implements the Session Facade (spec 4.6): the
// per-request lifecycle wrapper around the Store and Engine that
// backs every HTTP endpoint in spec 6.
package session

import (
	"context"
	"log"

	"github.com/duelqueue/backend/internal/apperr"
	"github.com/duelqueue/backend/internal/config"
	"github.com/duelqueue/backend/internal/matchmaking"
	"github.com/duelqueue/backend/internal/models"
	"github.com/duelqueue/backend/internal/store"
)

// facadeStore is the subset of the Store the Facade drives. Declaring
// it here (rather than depending on *store.Store directly) lets tests
// exercise the terminal-event and disconnect-handling logic against a
// fake instead of a live database and Redis.
type facadeStore interface {
	GetPlayerByExternalID(ctx context.Context, externalID string) (*models.Player, error)
	CreateTicket(ctx context.Context, playerID int64, snapshot models.Snapshot, area string) (*models.Ticket, error)
	WatchTicket(ctx context.Context, ticketID int64) (<-chan store.TicketEvent, func())
	Cancel(ctx context.Context, ticketID int64) (store.CancelResult, error)
	StartMatch(ctx context.Context, playerA, playerB *models.Player) (*models.Match, error)
	CancelMatch(ctx context.Context, matchExternalID string) error
	FinishMatch(ctx context.Context, matchExternalID string, scoreA, scoreB, kFactor int) (*store.FinishResult, error)
}

// engineRunner is the subset of the Engine the Facade drives.
type engineRunner interface {
	Run(ctx context.Context, ticket *models.Ticket)
}

// Facade wraps the Store and Engine for one external request.
type Facade struct {
	store  facadeStore
	engine engineRunner
	cfg    *config.Config
}

func New(s *store.Store, e *matchmaking.Engine, cfg *config.Config) *Facade {
	return &Facade{store: s, engine: e, cfg: cfg}
}

// Result is the terminal outcome of a blocking or streaming match
// request (spec 4.6, 7): MATCHED with a match id, or EXPIRED/CANCELLED.
type Result struct {
	Status  store.EventType
	MatchID string
}

// createTicket resolves externalUserID to a player and opens a WAITING
// ticket for it. It does not start the Engine: the caller must
// subscribe via WatchTicket before starting the poll loop, otherwise an
// immediate first-tick bind can publish its terminal event before
// anyone is listening for it.
func (f *Facade) createTicket(ctx context.Context, externalUserID string) (*models.Ticket, error) {
	player, err := f.store.GetPlayerByExternalID(ctx, externalUserID)
	if err != nil {
		return nil, err
	}

	snapshot := models.Snapshot{Rating: player.Rating, Preferences: player.Preferences.Preferences}
	return f.store.CreateTicket(ctx, player.ID, snapshot, player.Area)
}

// Enqueue implements the blocking match request of spec 4.6: create
// a ticket, run the Engine, and await a terminal transition.
func (f *Facade) Enqueue(ctx context.Context, externalUserID string) (*Result, error) {
	ticket, err := f.createTicket(ctx, externalUserID)
	if err != nil {
		return nil, err
	}

	events, cancel := f.store.WatchTicket(ctx, ticket.ID)
	defer cancel()

	go f.engine.Run(context.Background(), ticket)

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil, apperr.Operationalf("ticket event stream closed unexpectedly", nil)
			}
			if ev.IsTerminal() {
				return &Result{Status: ev.Type, MatchID: ev.MatchID}, nil
			}
		case <-ctx.Done():
			// Server-side wall clock expired before a terminal event
			// arrived; the Engine's own timeout handling still owns
			// expiry, this is only a caller-side safety net.
			return nil, apperr.Operationalf("match request cancelled", ctx.Err())
		}
	}
}

// Stream implements the streaming match request of spec 4.6: forward
// every searching tick and the terminal event to send, until the
// stream's terminal event closes it. A client disconnect (ctx done
// before a terminal event) is treated as cancellation.
func (f *Facade) Stream(ctx context.Context, externalUserID string, send func(store.TicketEvent) error) error {
	ticket, err := f.createTicket(ctx, externalUserID)
	if err != nil {
		return err
	}

	events, cancel := f.store.WatchTicket(context.Background(), ticket.ID)
	defer cancel()

	go f.engine.Run(context.Background(), ticket)

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return apperr.Operationalf("ticket event stream closed unexpectedly", nil)
			}
			if err := send(ev); err != nil {
				f.cancelOnDisconnect(ticket.ID)
				return err
			}
			if ev.IsTerminal() {
				return nil
			}
		case <-ctx.Done():
			f.cancelOnDisconnect(ticket.ID)
			return nil
		}
	}
}

func (f *Facade) cancelOnDisconnect(ticketID int64) {
	// Use a detached context: the request context is already done.
	if _, err := f.store.Cancel(context.Background(), ticketID); err != nil {
		log.Printf("[SESSION] cancel-on-disconnect failed for ticket %d: %v", ticketID, err)
	}
}

// StartMatch is the externally-driven alternative to Engine binding
// (spec 4.6): both players must be unqueued.
func (f *Facade) StartMatch(ctx context.Context, externalA, externalB string) (*models.Match, error) {
	playerA, err := f.store.GetPlayerByExternalID(ctx, externalA)
	if err != nil {
		return nil, err
	}
	playerB, err := f.store.GetPlayerByExternalID(ctx, externalB)
	if err != nil {
		return nil, err
	}
	return f.store.StartMatch(ctx, playerA, playerB)
}

// CancelMatch delegates to the store's cancel_match.
func (f *Facade) CancelMatch(ctx context.Context, matchExternalID string) error {
	return f.store.CancelMatch(ctx, matchExternalID)
}

// FinishMatch delegates to the store's finish_match and returns the
// rating deltas.
func (f *Facade) FinishMatch(ctx context.Context, matchExternalID string, scoreA, scoreB int) (*store.FinishResult, error) {
	return f.store.FinishMatch(ctx, matchExternalID, scoreA, scoreB, f.cfg.KFactor)
}
