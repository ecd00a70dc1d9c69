package api

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tcgvault/messaging/internal/realtime"
)

// checkOrigin admits non-browser clients and browsers on an allowed origin.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || s.cors.allowed(origin)
}

// handleRealtime upgrades to a websocket carrying message.created frames for
// the authenticated user. Browsers cannot set headers on websocket requests,
// so the token may also come from the access_token query parameter.
func (s *Server) handleRealtime(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if token := strings.TrimSpace(c.Query("access_token")); token != "" {
		header = "Bearer " + token
	}
	if strings.TrimSpace(header) == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing authorization header"})
		return
	}

	userID, err := s.verify(header)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("api: correlation=%s websocket upgrade: %v", c.GetString(correlationKey), err)
		return
	}

	conn := realtime.NewConnection(userID, ws)
	s.hub.Register(conn)
	conn.ReadLoop()
}
