package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/duelqueue/backend/internal/config"
	"github.com/duelqueue/backend/internal/session"
	"github.com/duelqueue/backend/internal/store"
)

type matchRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// CreateMatch is the blocking match request of spec 6, POST /match: it
// blocks until the ticket reaches a terminal state or the handler's own
// wall-clock limit elapses.
func CreateMatch(f *session.Facade, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req matchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.MatchmakingTimeout+cfg.PollInterval)
		defer cancel()

		result, err := f.Enqueue(ctx, req.UserID)
		if err != nil {
			respondError(c, err)
			return
		}

		switch result.Status {
		case store.EventMatched:
			c.JSON(http.StatusOK, gin.H{"status": "matched", "match_id": result.MatchID})
		case store.EventExpired:
			c.JSON(http.StatusOK, gin.H{"status": "expired"})
		case store.EventCancelled:
			c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
		default:
			c.JSON(http.StatusOK, gin.H{"status": string(result.Status)})
		}
	}
}

// StreamMatch is the streaming match request of spec 6, POST
// /match/stream: a text/event-stream of searching ticks followed by one
// terminal event. Client disconnect is detected through the request
// context and treated as cancellation (spec 4.6, 5).
func StreamMatch(f *session.Facade) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req matchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
			return
		}

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")

		streamErr := f.Stream(c.Request.Context(), req.UserID, func(ev store.TicketEvent) error {
			b, err := sseLine(ev)
			if err != nil {
				return err
			}
			if _, err := c.Writer.Write(b); err != nil {
				return err
			}
			c.Writer.Flush()
			return nil
		})
		if streamErr != nil && !c.Writer.Written() {
			// Nothing has been streamed yet, so the failure came before
			// the first event (e.g. unknown user, already queued): report
			// it as a JSON error. After a send failure the client is
			// already gone; nothing further to write.
			c.Header("Content-Type", "application/json; charset=utf-8")
			respondError(c, streamErr)
		}
	}
}

func sseLine(ev store.TicketEvent) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("data: %s\n\n", payload)), nil
}

type startMatchRequest struct {
	UserA string `json:"user_a" binding:"required"`
	UserB string `json:"user_b" binding:"required"`
}

// StartMatch is POST /match/start (spec 6): an externally-driven
// alternative to Engine binding, e.g. a direct invite.
func StartMatch(f *session.Facade) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req startMatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_a and user_b are required"})
			return
		}

		match, err := f.StartMatch(c.Request.Context(), req.UserA, req.UserB)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"match_id": match.ExternalID})
	}
}

type finishMatchRequest struct {
	MatchID string  `json:"match_id" binding:"required"`
	Score   *[2]int `json:"score" binding:"required"`
}

// FinishMatch is POST /match/finish (spec 6): records the outcome and
// returns the rating deltas, idempotently if the match was already
// finished (spec 7).
func FinishMatch(f *session.Facade) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req finishMatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "match_id and score are required"})
			return
		}

		result, err := f.FinishMatch(c.Request.Context(), req.MatchID, req.Score[0], req.Score[1])
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"rating_before": []int{result.RatingBeforeA, result.RatingBeforeB},
			"rating_after":  []int{result.RatingAfterA, result.RatingAfterB},
		})
	}
}

// CancelMatch is GET /match/cancel/{match_id} (spec 6).
func CancelMatch(f *session.Facade) gin.HandlerFunc {
	return func(c *gin.Context) {
		matchID := c.Param("match_id")
		if err := f.CancelMatch(c.Request.Context(), matchID); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}
