package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/duelqueue/backend/internal/apperr"
)

// respondError maps an apperr Kind to the HTTP status spec 7 assigns
// it and writes a JSON error body.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.Validation:
		status = http.StatusBadRequest
	case apperr.Conflict:
		status = http.StatusConflict
	case apperr.NotFound:
		status = http.StatusNotFound
	case apperr.Operational:
		status = http.StatusServiceUnavailable
	case apperr.Transient:
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
