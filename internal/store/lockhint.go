package store

import (
	"context"
	"fmt"
	"time"
)

// inFlightTTL bounds how long a candidate-exclusion marker survives a
// worker crash mid-bind.
const inFlightTTL = 5 * time.Second

func inFlightKey(ticketID int64) string {
	return fmt.Sprintf("mm:inflight:%d", ticketID)
}

// MarkInFlight is a best-effort optimization for spec 4.4 step 3
// ("excluding any the store marks as already-locked by a concurrent
// worker is an optimization, not required for correctness"). It never
// participates in the actual binding decision — TryBind's row locks
// are the only source of correctness — so a Redis outage here just
// costs a few wasted candidate attempts, never a double-bind.
func (s *Store) MarkInFlight(ctx context.Context, ticketID int64) bool {
	ok, err := s.rdb.SetNX(ctx, inFlightKey(ticketID), 1, inFlightTTL).Result()
	if err != nil {
		// Redis unavailable: proceed as if unmarked: the Engine will
		// still only succeed through TryBind's transactional check.
		return true
	}
	return ok
}

// ClearInFlight releases the marker once a bind attempt resolves.
func (s *Store) ClearInFlight(ctx context.Context, ticketID int64) {
	s.rdb.Del(ctx, inFlightKey(ticketID))
}

// IsInFlight reports whether ticketID currently carries a marker,
// letting a candidate query skip it without contending for the store
// transaction (spec 4.4 step 3).
func (s *Store) IsInFlight(ctx context.Context, ticketID int64) bool {
	n, err := s.rdb.Exists(ctx, inFlightKey(ticketID)).Result()
	if err != nil {
		return false
	}
	return n > 0
}
