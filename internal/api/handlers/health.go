package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

var startTime = time.Now()

const version = "1.2.0-four-player" // Updated with 4-player tables

// HealthCheck returns server health status
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "playcarrom-api",
		"version": version,
		"uptime":  time.Since(startTime).String(),
	})
}
