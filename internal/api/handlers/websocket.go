package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/playcarrom/backend/internal/ws"
)

// HandleGameWebSocket upgrades the connection and hands it to the game hub
func HandleGameWebSocket() gin.HandlerFunc {
	return func(c *gin.Context) {
		ws.HandleWebSocket(c)
	}
}
