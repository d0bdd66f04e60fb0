package matchmaking

import (
	"context"
	"log"
	"math"
	"sort"
	"time"

	"github.com/duelqueue/backend/internal/apperr"
	"github.com/duelqueue/backend/internal/models"
	"github.com/duelqueue/backend/internal/store"
)

// maxConsecutiveStoreErrors is the "three consecutive transient store
// errors" limit of spec 4.4, after which the ticket expires with a
// store-error reason.
const maxConsecutiveStoreErrors = 3

// EngineConfig is the Engine's slice of the immutable Config value
// (spec 9: no global mutable state, config passed at construction).
type EngineConfig struct {
	Timeout          time.Duration
	PollInterval     time.Duration
	InitialThreshold float64
	MinThreshold     float64
	DecayRate        float64
	BaseTolerance    float64
	SkillRelaxRate   float64
}

// ticketStore is the subset of the Store the Engine drives. Declaring
// it here (rather than depending on *store.Store directly) lets tests
// exercise the poll loop and tie-break ordering against a fake.
type ticketStore interface {
	ListWaiting(ctx context.Context, area string, excludePlayerID, excludeTicketID int64) ([]*models.Ticket, error)
	IsInFlight(ctx context.Context, ticketID int64) bool
	MarkInFlight(ctx context.Context, ticketID int64) bool
	ClearInFlight(ctx context.Context, ticketID int64)
	TryBind(ctx context.Context, ticketAID, ticketBID int64) (*models.Match, error)
	Expire(ctx context.Context, ticketID int64, reason string) error
	PublishSearching(ctx context.Context, ticketID int64, threshold float64, candidates int, waited float64)
}

// Engine is the Matchmaker Engine (spec 4.4): one goroutine per
// WAITING ticket, each repeatedly attempting to bind the ticket to the
// best currently-eligible opponent until it is bound or expired.
type Engine struct {
	store ticketStore
	cfg   EngineConfig
}

func NewEngine(s *store.Store, cfg EngineConfig) *Engine {
	return &Engine{store: s, cfg: cfg}
}

type eligibleCandidate struct {
	ticket     *models.Ticket
	score      float64
	minWait    float64
	ratingDiff float64
}

// Run polls for ticket until it is bound, expired (timeout or repeated
// store errors), or ctx is done. It is the loop body described in spec
// 4.4. Run does not read the ticket's own status: after a cancellation
// every bind attempt returns Conflict, and the loop ends at the timeout,
// where Expire finds the ticket already terminal. The Session Facade
// starts Run with a background context, so client disconnect and
// server shutdown do not end it.
func (e *Engine) Run(ctx context.Context, ticket *models.Ticket) {
	ticketID := ticket.ID
	createdAt := ticket.CreatedAt
	consecutiveErrors := 0

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}

		waited := time.Since(createdAt).Seconds()
		if waited >= e.cfg.Timeout.Seconds() {
			if err := e.store.Expire(ctx, ticketID, "timeout"); err != nil {
				log.Printf("[ENGINE] ticket %d: expire on timeout failed: %v", ticketID, err)
			}
			return
		}

		threshold := Threshold(waited, e.cfg.InitialThreshold, e.cfg.MinThreshold, e.cfg.DecayRate)

		candidates, err := e.store.ListWaiting(ctx, ticket.Area, ticket.UserID, ticketID)
		if err != nil {
			if e.absorbError(ctx, ticketID, &consecutiveErrors, err) {
				return
			}
			if !e.sleep(ctx, ticker) {
				return
			}
			continue
		}
		consecutiveErrors = 0

		self := Snapshot{Rating: ticket.Snapshot.Rating, Preferences: ticket.Snapshot.Preferences, Area: ticket.Area}
		eligible := e.rankEligible(ctx, self, ticket, candidates, waited, threshold)

		e.store.PublishSearching(ctx, ticketID, threshold, len(eligible), waited)

		if len(eligible) == 0 {
			if !e.sleep(ctx, ticker) {
				return
			}
			continue
		}

		bound, err := e.attemptBind(ctx, ticketID, eligible, &consecutiveErrors)
		if bound {
			return
		}
		if err != nil && e.absorbError(ctx, ticketID, &consecutiveErrors, err) {
			return
		}
		if !e.sleep(ctx, ticker) {
			return
		}
	}
}

// rankEligible scores every candidate against self, discards those
// below threshold or in a different area, and orders the survivors by
// spec 4.4 step 6's tie-break.
func (e *Engine) rankEligible(ctx context.Context, self Snapshot, ticket *models.Ticket, candidates []*models.Ticket, waitSelf, threshold float64) []eligibleCandidate {
	var eligible []eligibleCandidate
	for _, c := range candidates {
		if e.store.IsInFlight(ctx, c.ID) {
			continue
		}
		candSnap := Snapshot{Rating: c.Snapshot.Rating, Preferences: c.Snapshot.Preferences, Area: c.Area}
		waitCand := time.Since(c.CreatedAt).Seconds()
		s, ok := Score(self, candSnap, waitSelf, waitCand, e.cfg.BaseTolerance, e.cfg.SkillRelaxRate)
		if !ok || s < threshold {
			continue
		}
		eligible = append(eligible, eligibleCandidate{
			ticket:     c,
			score:      s,
			minWait:    math.Min(waitSelf, waitCand),
			ratingDiff: math.Abs(float64(ticket.Snapshot.Rating - c.Snapshot.Rating)),
		})
	}

	sort.Slice(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.minWait != b.minWait {
			return a.minWait > b.minWait
		}
		if a.ratingDiff != b.ratingDiff {
			return a.ratingDiff < b.ratingDiff
		}
		return a.ticket.ID < b.ticket.ID
	})
	return eligible
}

// attemptBind tries each eligible candidate in tie-break order until
// one binds or the list is exhausted (spec 4.4 step 7).
func (e *Engine) attemptBind(ctx context.Context, ticketID int64, eligible []eligibleCandidate, consecutiveErrors *int) (bool, error) {
	for _, cand := range eligible {
		if !e.store.MarkInFlight(ctx, cand.ticket.ID) {
			continue
		}
		_, err := e.store.TryBind(ctx, ticketID, cand.ticket.ID)
		e.store.ClearInFlight(ctx, cand.ticket.ID)
		if err == nil {
			*consecutiveErrors = 0
			return true, nil
		}
		if apperr.Is(err, apperr.Conflict) {
			// Lost the race for this candidate; try the next one this tick.
			continue
		}
		return false, err
	}
	return false, nil
}

// absorbError applies spec 4.4's failure handling: a transient error
// triggers backoff and retry, and three consecutive ones expire the
// ticket with a store-error reason.
func (e *Engine) absorbError(ctx context.Context, ticketID int64, consecutiveErrors *int, err error) bool {
	*consecutiveErrors++
	log.Printf("[ENGINE] ticket %d: store error (%d/%d): %v", ticketID, *consecutiveErrors, maxConsecutiveStoreErrors, err)
	if *consecutiveErrors >= maxConsecutiveStoreErrors {
		if expErr := e.store.Expire(ctx, ticketID, "store-error"); expErr != nil {
			log.Printf("[ENGINE] ticket %d: expire on store-error failed: %v", ticketID, expErr)
		}
		return true
	}
	return false
}

// sleep waits for the next tick or for ctx to end, returning false if
// the loop should stop.
func (e *Engine) sleep(ctx context.Context, ticker *time.Ticker) bool {
	select {
	case <-ctx.Done():
		return false
	case <-ticker.C:
		return true
	}
}
