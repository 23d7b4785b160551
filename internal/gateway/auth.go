package gateway

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// authGate enforces the shared-secret API key check named in the
// external interface table: a missing or wrong key on any /v1* or
// /v1beta* route is a 401 with a fixed message, regardless of surface.
func (s *Server) authGate(c *gin.Context) {
	apiKey := s.config().APIKey
	if apiKey == "" {
		c.Next()
		return
	}

	presented := bearerToken(c.GetHeader("Authorization"))
	if presented == "" {
		presented = c.GetHeader("x-api-key")
	}
	if presented != apiKey {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API Key"})
		return
	}
	c.Next()
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if strings.HasPrefix(header, prefix) {
		return strings.TrimSpace(strings.TrimPrefix(header, prefix))
	}
	return ""
}
