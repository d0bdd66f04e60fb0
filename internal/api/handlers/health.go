package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthCheck implements GET /api/health (spec 6).
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
