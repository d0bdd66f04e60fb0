package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

// EventType enumerates the ticket status transitions and progress
// ticks a watch_ticket subscriber can observe (spec 4.5, 4.6).
type EventType string

const (
	EventSearching EventType = "searching"
	EventMatched   EventType = "matched"
	EventExpired   EventType = "expired"
	EventCancelled EventType = "cancelled"
)

// TicketEvent is one message on a ticket's event channel. Searching
// events are progress ticks emitted by the Engine; the other three are
// the terminal transitions of spec 3's Ticket lifecycle.
type TicketEvent struct {
	Type       EventType `json:"type"`
	Threshold  float64   `json:"threshold"`
	Candidates int       `json:"candidates"`
	Waited     float64   `json:"waited"`
	MatchID    string    `json:"match_id,omitempty"`
}

// IsTerminal reports whether ev closes out the ticket's lifecycle.
func (ev TicketEvent) IsTerminal() bool {
	return ev.Type != EventSearching
}

func channelName(ticketID int64) string {
	return fmt.Sprintf("mm:ticket_events:%d", ticketID)
}

func (s *Store) publish(ctx context.Context, ticketID int64, ev TicketEvent) {
	b, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[STORE] failed to marshal ticket event for %d: %v", ticketID, err)
		return
	}
	if err := s.rdb.Publish(ctx, channelName(ticketID), b).Err(); err != nil {
		log.Printf("[STORE] failed to publish ticket event for %d: %v", ticketID, err)
	}
}

// PublishSearching emits a non-terminal progress tick for ticketID,
// the "searching" event of spec 4.6's streaming match request.
func (s *Store) PublishSearching(ctx context.Context, ticketID int64, threshold float64, candidates int, waited float64) {
	s.publish(ctx, ticketID, TicketEvent{
		Type:       EventSearching,
		Threshold:  threshold,
		Candidates: candidates,
		Waited:     waited,
	})
}

// WatchTicket subscribes to ticketID's event channel (spec 4.5,
// watch_ticket). The returned channel is closed when the caller
// invokes the cancel function or the subscription's context ends; a
// slow consumer drops intermediate "searching" ticks rather than
// blocking the publisher, but terminal events are always attempted.
func (s *Store) WatchTicket(ctx context.Context, ticketID int64) (<-chan TicketEvent, func()) {
	sub := s.rdb.Subscribe(ctx, channelName(ticketID))
	out := make(chan TicketEvent, 8)

	go func() {
		defer close(out)
		ch := sub.Channel()
		for msg := range ch {
			var ev TicketEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("[STORE] failed to unmarshal ticket event for %d: %v", ticketID, err)
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			default:
				if ev.IsTerminal() {
					// Never drop a terminal transition; block briefly for it.
					select {
					case out <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	cancel := func() {
		_ = sub.Close()
	}
	return out, cancel
}
