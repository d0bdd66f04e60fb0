package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// TicketStatus is the lifecycle state of a Ticket (spec section 3).
type TicketStatus string

const (
	TicketWaiting   TicketStatus = "WAITING"
	TicketMatched   TicketStatus = "MATCHED"
	TicketCancelled TicketStatus = "CANCELLED"
	TicketExpired   TicketStatus = "EXPIRED"
)

// MatchStatus is the lifecycle state of a Match (spec section 3).
type MatchStatus string

const (
	MatchActive    MatchStatus = "ACTIVE"
	MatchFinished  MatchStatus = "FINISHED"
	MatchCancelled MatchStatus = "CANCELLED"
)

// Snapshot is the rating/preference snapshot taken at enqueue time and
// frozen onto the ticket row (spec section 3, Ticket attributes).
// Preference axes are opaque, componentwise-comparable scalars; this
// spec pins no semantics for them beyond that (spec section 9, open
// question a).
type Snapshot struct {
	Rating      int       `json:"rating"`
	Preferences []float64 `json:"preferences"`
}

// Value implements driver.Valuer so Snapshot can be written to a jsonb column.
func (s Snapshot) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner for reading a jsonb column back into Snapshot.
func (s *Snapshot) Scan(src interface{}) error {
	if src == nil {
		*s = Snapshot{}
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("models: cannot scan %T into Snapshot", src)
	}
	return json.Unmarshal(raw, s)
}

// Player is the long-lived account the matchmaking core mutates only
// through the rating-update path (spec section 3, Player).
type Player struct {
	ID          int64     `db:"id" json:"-"`
	ExternalID  string    `db:"external_id" json:"user_id"`
	Rating      int       `db:"rating" json:"rating"`
	Area        string    `db:"area" json:"area"`
	Preferences Snapshot  `db:"preferences" json:"-"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Ticket is an ephemeral intent-to-play (spec section 3, Ticket).
type Ticket struct {
	ID           int64        `db:"id" json:"-"`
	ExternalID   string       `db:"external_id" json:"ticket_id"`
	UserID       int64        `db:"user_id" json:"-"`
	Status       TicketStatus `db:"status" json:"status"`
	Area         string       `db:"area" json:"area"`
	Snapshot     Snapshot     `db:"snapshot" json:"-"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	BoundMatchID *int64       `db:"bound_match_id" json:"-"`
}

// Match is a committed pairing of two tickets (spec section 3, Match).
type Match struct {
	ID            int64       `db:"id" json:"-"`
	ExternalID    string      `db:"external_id" json:"match_id"`
	UserAID       int64       `db:"user_a_id" json:"-"`
	UserBID       int64       `db:"user_b_id" json:"-"`
	TicketAID     int64       `db:"ticket_a_id" json:"-"`
	TicketBID     int64       `db:"ticket_b_id" json:"-"`
	Status        MatchStatus `db:"status" json:"status"`
	ScoreA        *int        `db:"score_a" json:"score_a,omitempty"`
	ScoreB        *int        `db:"score_b" json:"score_b,omitempty"`
	RatingBeforeA *int        `db:"rating_before_a" json:"rating_before_a,omitempty"`
	RatingBeforeB *int        `db:"rating_before_b" json:"rating_before_b,omitempty"`
	RatingAfterA  *int        `db:"rating_after_a" json:"rating_after_a,omitempty"`
	RatingAfterB  *int        `db:"rating_after_b" json:"rating_after_b,omitempty"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
	FinishedAt    *time.Time  `db:"finished_at" json:"finished_at,omitempty"`
}
