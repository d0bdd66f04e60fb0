// Package store is the only component permitted to touch persistent
// state (spec 4.5, the Ticket Store Adapter). It owns a bounded sqlx
// connection pool and a Redis client used both for watch_ticket
// pub/sub and as a best-effort candidate-exclusion optimization; the
// Engine's correctness never depends on Redis, only on the
// transactional locking done here.
package store

import (
	"context"
	"database/sql"
	"log"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/duelqueue/backend/internal/apperr"
	"github.com/duelqueue/backend/internal/models"
)

// Store is the Ticket Store Adapter.
type Store struct {
	db  *sqlx.DB
	rdb *redis.Client
}

// New constructs a Store over an already-connected database pool and
// Redis client.
func New(db *sqlx.DB, rdb *redis.Client) *Store {
	return &Store{db: db, rdb: rdb}
}

func isUniqueViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code.Name() == "unique_violation"
}

// CreateTicket inserts a new WAITING ticket for player, failing with
// Conflict if a non-terminal ticket already exists for them (enforced
// by the unique partial index on mm_ticket, spec 4.5).
func (s *Store) CreateTicket(ctx context.Context, playerID int64, snapshot models.Snapshot, area string) (*models.Ticket, error) {
	t := &models.Ticket{
		ExternalID: uuid.New().String(),
		UserID:     playerID,
		Status:     models.TicketWaiting,
		Area:       area,
		Snapshot:   snapshot,
	}

	row := s.db.QueryRowxContext(ctx, `
		INSERT INTO mm_ticket (external_id, user_id, status, area, snapshot)
		VALUES ($1, $2, 'WAITING', $3, $4)
		RETURNING id, created_at
	`, t.ExternalID, t.UserID, t.Area, t.Snapshot)

	if err := row.Scan(&t.ID, &t.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.Conflictf("player already has a non-terminal ticket")
		}
		return nil, apperr.Operationalf("create ticket failed", err)
	}
	return t, nil
}

// ReadTicket loads one ticket by its internal id.
func (s *Store) ReadTicket(ctx context.Context, ticketID int64) (*models.Ticket, error) {
	var t models.Ticket
	err := s.db.GetContext(ctx, &t, `SELECT * FROM mm_ticket WHERE id = $1`, ticketID)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFoundf("ticket not found")
	}
	if err != nil {
		return nil, apperr.Operationalf("read ticket failed", err)
	}
	return &t, nil
}

// GetTicketByExternalID resolves a client-facing ticket id.
func (s *Store) GetTicketByExternalID(ctx context.Context, externalID string) (*models.Ticket, error) {
	var t models.Ticket
	err := s.db.GetContext(ctx, &t, `SELECT * FROM mm_ticket WHERE external_id = $1`, externalID)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFoundf("ticket not found")
	}
	if err != nil {
		return nil, apperr.Operationalf("read ticket failed", err)
	}
	return &t, nil
}

// GetPlayerByExternalID resolves a client-supplied user_id to the
// internal player row. Account creation is out of scope for this
// core (spec 1); an unknown id is a Not-Found.
func (s *Store) GetPlayerByExternalID(ctx context.Context, externalID string) (*models.Player, error) {
	var p models.Player
	err := s.db.GetContext(ctx, &p, `SELECT * FROM users WHERE external_id = $1`, externalID)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFoundf("unknown user")
	}
	if err != nil {
		return nil, apperr.Operationalf("read player failed", err)
	}
	return &p, nil
}

// ListWaiting returns WAITING tickets in area, excluding the focal
// player and ticket. No ordering is guaranteed and the snapshot may be
// stale by the time the Engine acts on it (spec 4.5).
func (s *Store) ListWaiting(ctx context.Context, area string, excludePlayerID, excludeTicketID int64) ([]*models.Ticket, error) {
	var tickets []*models.Ticket
	err := s.db.SelectContext(ctx, &tickets, `
		SELECT * FROM mm_ticket
		WHERE status = 'WAITING' AND area = $1 AND user_id <> $2 AND id <> $3
	`, area, excludePlayerID, excludeTicketID)
	if err != nil {
		return nil, apperr.Operationalf("list waiting failed", err)
	}
	return tickets, nil
}

// CancelResult is the outcome of Cancel (spec 4.5).
type CancelResult int

const (
	Cancelled CancelResult = iota
	AlreadyTerminal
	AlreadyMatched
)

// Cancel transitions a WAITING ticket to CANCELLED. Only WAITING ->
// CANCELLED is permitted here; a MATCHED ticket must be cancelled via
// CancelMatch (spec 4.5, 5).
func (s *Store) Cancel(ctx context.Context, ticketID int64) (CancelResult, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, apperr.Operationalf("begin tx failed", err)
	}
	defer tx.Rollback()

	var status models.TicketStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM mm_ticket WHERE id = $1 FOR UPDATE`, ticketID).Scan(&status)
	if err == sql.ErrNoRows {
		return 0, apperr.NotFoundf("ticket not found")
	}
	if err != nil {
		return 0, apperr.Operationalf("lock ticket failed", err)
	}

	switch status {
	case models.TicketWaiting:
		if _, err := tx.ExecContext(ctx, `UPDATE mm_ticket SET status = 'CANCELLED' WHERE id = $1`, ticketID); err != nil {
			return 0, apperr.Operationalf("cancel ticket failed", err)
		}
		if err := tx.Commit(); err != nil {
			return 0, apperr.Operationalf("commit cancel failed", err)
		}
		s.publish(ctx, ticketID, TicketEvent{Type: EventCancelled})
		return Cancelled, nil
	case models.TicketMatched:
		return AlreadyMatched, nil
	default:
		return AlreadyTerminal, nil
	}
}

// Expire transitions a WAITING ticket to EXPIRED; a no-op if the
// ticket is already terminal (spec 4.5).
func (s *Store) Expire(ctx context.Context, ticketID int64, reason string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Operationalf("begin tx failed", err)
	}
	defer tx.Rollback()

	var status models.TicketStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM mm_ticket WHERE id = $1 FOR UPDATE`, ticketID).Scan(&status)
	if err == sql.ErrNoRows {
		return apperr.NotFoundf("ticket not found")
	}
	if err != nil {
		return apperr.Operationalf("lock ticket failed", err)
	}
	if status != models.TicketWaiting {
		return nil
	}

	if _, err := tx.ExecContext(ctx, `UPDATE mm_ticket SET status = 'EXPIRED' WHERE id = $1`, ticketID); err != nil {
		return apperr.Operationalf("expire ticket failed", err)
	}
	if err := tx.Commit(); err != nil {
		return apperr.Operationalf("commit expire failed", err)
	}
	log.Printf("[STORE] ticket %d expired: %s", ticketID, reason)
	s.publish(ctx, ticketID, TicketEvent{Type: EventExpired})
	return nil
}
