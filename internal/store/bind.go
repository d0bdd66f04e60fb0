package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/duelqueue/backend/internal/apperr"
	"github.com/duelqueue/backend/internal/models"
	"github.com/duelqueue/backend/internal/rating"
)

func orderAsc(a, b int64) (lo, hi int64) {
	if a <= b {
		return a, b
	}
	return b, a
}

// lockedTicket is the subset of a ticket row read under FOR UPDATE
// during binding.
type lockedTicket struct {
	ID     int64
	UserID int64
	Status models.TicketStatus
}

// TryBind is the binding protocol of spec 4.4/4.5: lock both ticket
// rows in ascending ticket-id order, re-verify both are WAITING,
// insert a match row, flip both tickets to MATCHED. It is serializable
// with respect to any other TryBind, Cancel, or Expire touching the
// same rows because all of them take the row lock before mutating.
func (s *Store) TryBind(ctx context.Context, ticketAID, ticketBID int64) (*models.Match, error) {
	lo, hi := orderAsc(ticketAID, ticketBID)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, apperr.Operationalf("begin tx failed", err)
	}
	defer tx.Rollback()

	loRow, err := lockTicketForUpdate(ctx, tx, lo)
	if err != nil {
		return nil, err
	}
	hiRow, err := lockTicketForUpdate(ctx, tx, hi)
	if err != nil {
		return nil, err
	}

	if loRow.Status != models.TicketWaiting || hiRow.Status != models.TicketWaiting {
		return nil, apperr.Conflictf("ticket no longer waiting")
	}

	// Recover original (a, b) identity regardless of lock order.
	ticketARow, ticketBRow := loRow, hiRow
	if loRow.ID != ticketAID {
		ticketARow, ticketBRow = hiRow, loRow
	}

	// A/B on the match row is the lower player id, per spec 3.
	playerLo, playerHi := orderAsc(ticketARow.UserID, ticketBRow.UserID)
	ticketForPlayerLo, ticketForPlayerHi := ticketARow.ID, ticketBRow.ID
	if ticketARow.UserID != playerLo {
		ticketForPlayerLo, ticketForPlayerHi = ticketBRow.ID, ticketARow.ID
	}

	m := &models.Match{
		ExternalID: uuid.New().String(),
		UserAID:    playerLo,
		UserBID:    playerHi,
		TicketAID:  ticketForPlayerLo,
		TicketBID:  ticketForPlayerHi,
		Status:     models.MatchActive,
	}

	row := tx.QueryRowContext(ctx, `
		INSERT INTO match_tx (external_id, user_a_id, user_b_id, ticket_a_id, ticket_b_id, status)
		VALUES ($1, $2, $3, $4, $5, 'ACTIVE')
		RETURNING id, created_at
	`, m.ExternalID, m.UserAID, m.UserBID, m.TicketAID, m.TicketBID)
	if err := row.Scan(&m.ID, &m.CreatedAt); err != nil {
		return nil, apperr.Operationalf("insert match failed", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE mm_ticket SET status = 'MATCHED', bound_match_id = $1 WHERE id IN ($2, $3)
	`, m.ID, m.TicketAID, m.TicketBID); err != nil {
		return nil, apperr.Operationalf("bind tickets failed", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Operationalf("commit bind failed", err)
	}

	ev := TicketEvent{Type: EventMatched, MatchID: m.ExternalID}
	s.publish(ctx, m.TicketAID, ev)
	s.publish(ctx, m.TicketBID, ev)

	return m, nil
}

func lockTicketForUpdate(ctx context.Context, tx *sqlx.Tx, ticketID int64) (lockedTicket, error) {
	var t lockedTicket
	err := tx.QueryRowContext(ctx, `SELECT id, user_id, status FROM mm_ticket WHERE id = $1 FOR UPDATE`, ticketID).
		Scan(&t.ID, &t.UserID, &t.Status)
	if err == sql.ErrNoRows {
		return t, apperr.Conflictf("ticket not found")
	}
	if err != nil {
		return t, apperr.Operationalf("lock ticket failed", err)
	}
	return t, nil
}

// CancelMatch transitions an ACTIVE match to CANCELLED and both bound
// tickets to CANCELLED, atomically (spec 4.5, 5).
func (s *Store) CancelMatch(ctx context.Context, matchExternalID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Operationalf("begin tx failed", err)
	}
	defer tx.Rollback()

	var matchID, ticketAID, ticketBID int64
	var status models.MatchStatus
	err = tx.QueryRowContext(ctx, `
		SELECT id, status, ticket_a_id, ticket_b_id FROM match_tx WHERE external_id = $1 FOR UPDATE
	`, matchExternalID).Scan(&matchID, &status, &ticketAID, &ticketBID)
	if err == sql.ErrNoRows {
		return apperr.NotFoundf("match not found")
	}
	if err != nil {
		return apperr.Operationalf("lock match failed", err)
	}
	if status != models.MatchActive {
		return apperr.Conflictf("match not active")
	}

	if _, err := tx.ExecContext(ctx, `UPDATE match_tx SET status = 'CANCELLED' WHERE id = $1`, matchID); err != nil {
		return apperr.Operationalf("cancel match failed", err)
	}
	lo, hi := orderAsc(ticketAID, ticketBID)
	if _, err := tx.ExecContext(ctx, `
		UPDATE mm_ticket SET status = 'CANCELLED' WHERE id IN ($1, $2)
	`, lo, hi); err != nil {
		return apperr.Operationalf("cancel bound tickets failed", err)
	}

	if err := tx.Commit(); err != nil {
		return apperr.Operationalf("commit cancel match failed", err)
	}

	ev := TicketEvent{Type: EventCancelled}
	s.publish(ctx, ticketAID, ev)
	s.publish(ctx, ticketBID, ev)
	return nil
}

// FinishResult carries the rating deltas spec 4.5's finish_match
// contract returns.
type FinishResult struct {
	RatingBeforeA int
	RatingBeforeB int
	RatingAfterA  int
	RatingAfterB  int
}

// FinishMatch transitions an ACTIVE match to FINISHED, applying the
// rating calculator to both players in the same transaction that
// records the score (spec 4.5). Calling it again on an already
// FINISHED match is idempotent: it replays the stored deltas instead
// of recomputing them (spec 7), rather than erroring.
func (s *Store) FinishMatch(ctx context.Context, matchExternalID string, scoreA, scoreB, kFactor int) (*FinishResult, error) {
	if scoreA < 0 || scoreB < 0 {
		return nil, apperr.Validationf("invalid score")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, apperr.Operationalf("begin tx failed", err)
	}
	defer tx.Rollback()

	var matchID, userAID, userBID int64
	var status models.MatchStatus
	var existingBeforeA, existingBeforeB, existingAfterA, existingAfterB sql.NullInt64
	err = tx.QueryRowContext(ctx, `
		SELECT id, status, user_a_id, user_b_id, rating_before_a, rating_before_b, rating_after_a, rating_after_b
		FROM match_tx WHERE external_id = $1 FOR UPDATE
	`, matchExternalID).Scan(&matchID, &status, &userAID, &userBID,
		&existingBeforeA, &existingBeforeB, &existingAfterA, &existingAfterB)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFoundf("match not found")
	}
	if err != nil {
		return nil, apperr.Operationalf("lock match failed", err)
	}

	if status == models.MatchFinished {
		return &FinishResult{
			RatingBeforeA: int(existingBeforeA.Int64),
			RatingBeforeB: int(existingBeforeB.Int64),
			RatingAfterA:  int(existingAfterA.Int64),
			RatingAfterB:  int(existingAfterB.Int64),
		}, nil
	}
	if status != models.MatchActive {
		return nil, apperr.Conflictf("match not active")
	}

	lo, hi := orderAsc(userAID, userBID)
	ratings := map[int64]int{}
	for _, id := range []int64{lo, hi} {
		var r int
		if err := tx.QueryRowContext(ctx, `SELECT rating FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&r); err != nil {
			return nil, apperr.Operationalf("lock player failed", err)
		}
		ratings[id] = r
	}

	ratingBeforeA := ratings[userAID]
	ratingBeforeB := ratings[userBID]

	outcome, err := rating.OutcomeFromScore(scoreA, scoreB)
	if err != nil {
		return nil, err
	}
	ratingAfterA, ratingAfterB := rating.Update(ratingBeforeA, ratingBeforeB, outcome, kFactor)

	if _, err := tx.ExecContext(ctx, `UPDATE users SET rating = $1 WHERE id = $2`, ratingAfterA, userAID); err != nil {
		return nil, apperr.Operationalf("update rating a failed", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE users SET rating = $1 WHERE id = $2`, ratingAfterB, userBID); err != nil {
		return nil, apperr.Operationalf("update rating b failed", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE match_tx
		SET status = 'FINISHED', score_a = $1, score_b = $2,
		    rating_before_a = $3, rating_before_b = $4,
		    rating_after_a = $5, rating_after_b = $6,
		    finished_at = NOW()
		WHERE id = $7
	`, scoreA, scoreB, ratingBeforeA, ratingBeforeB, ratingAfterA, ratingAfterB, matchID); err != nil {
		return nil, apperr.Operationalf("finish match failed", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Operationalf("commit finish match failed", err)
	}

	return &FinishResult{
		RatingBeforeA: ratingBeforeA,
		RatingBeforeB: ratingBeforeB,
		RatingAfterA:  ratingAfterA,
		RatingAfterB:  ratingAfterB,
	}, nil
}

// StartMatch is the externally-driven alternative to Engine binding
// (spec 4.6): both players must be unqueued (spec 9, open question b).
// Both tickets and the match row are created in one transaction;
// relying on mm_ticket's unique partial index to reject either player
// already having a non-terminal ticket avoids a separate check-then-act
// race.
func (s *Store) StartMatch(ctx context.Context, playerA, playerB *models.Player) (*models.Match, error) {
	if playerA.ID == playerB.ID {
		return nil, apperr.Validationf("cannot match a player against themselves")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, apperr.Operationalf("begin tx failed", err)
	}
	defer tx.Rollback()

	ticketAID, err := insertMatchedTicket(ctx, tx, playerA)
	if err != nil {
		return nil, err
	}
	ticketBID, err := insertMatchedTicket(ctx, tx, playerB)
	if err != nil {
		return nil, err
	}

	playerLo, playerHi := orderAsc(playerA.ID, playerB.ID)
	ticketForLo, ticketForHi := ticketAID, ticketBID
	if playerA.ID != playerLo {
		ticketForLo, ticketForHi = ticketBID, ticketAID
	}

	m := &models.Match{
		ExternalID: uuid.New().String(),
		UserAID:    playerLo,
		UserBID:    playerHi,
		TicketAID:  ticketForLo,
		TicketBID:  ticketForHi,
		Status:     models.MatchActive,
	}
	row := tx.QueryRowContext(ctx, `
		INSERT INTO match_tx (external_id, user_a_id, user_b_id, ticket_a_id, ticket_b_id, status)
		VALUES ($1, $2, $3, $4, $5, 'ACTIVE')
		RETURNING id, created_at
	`, m.ExternalID, m.UserAID, m.UserBID, m.TicketAID, m.TicketBID)
	if err := row.Scan(&m.ID, &m.CreatedAt); err != nil {
		return nil, apperr.Operationalf("insert match failed", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE mm_ticket SET bound_match_id = $1 WHERE id IN ($2, $3)
	`, m.ID, ticketAID, ticketBID); err != nil {
		return nil, apperr.Operationalf("bind tickets failed", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Operationalf("commit start match failed", err)
	}
	return m, nil
}

func insertMatchedTicket(ctx context.Context, tx *sqlx.Tx, p *models.Player) (int64, error) {
	snapshot := models.Snapshot{Rating: p.Rating, Preferences: p.Preferences.Preferences}
	var ticketID int64
	row := tx.QueryRowContext(ctx, `
		INSERT INTO mm_ticket (external_id, user_id, status, area, snapshot)
		VALUES ($1, $2, 'MATCHED', $3, $4)
		RETURNING id
	`, uuid.New().String(), p.ID, p.Area, snapshot)
	if err := row.Scan(&ticketID); err != nil {
		if isUniqueViolation(err) {
			return 0, apperr.Conflictf("player already queued")
		}
		return 0, apperr.Operationalf("create matched ticket failed", err)
	}
	return ticketID, nil
}
