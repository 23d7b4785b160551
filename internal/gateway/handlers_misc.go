package gateway

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.startedAt).Seconds(),
	})
}

func (s *Server) handleMemory(c *gin.Context) {
	report := s.memory.Snapshot()
	pool := report.Pressure
	c.JSON(http.StatusOK, gin.H{
		"heapUsedMB":   report.HeapUsedMB,
		"peakHeapMB":   report.PeakHeapMB,
		"pressure":     pool.String(),
		"cleanupCount": report.CleanupCount,
		"thresholds": gin.H{
			"lowMB":    report.Thresholds.LowMB,
			"mediumMB": report.Thresholds.MediumMB,
			"highMB":   report.Thresholds.HighMB,
		},
	})
}

var listedModels = []string{
	"gpt-5", "gpt-5-mini", "gpt-4o",
	"claude-opus-4", "claude-sonnet-4", "claude-haiku-4",
	"gemini-3-pro-preview", "gemini-2.5-pro", "gemini-2.5-flash",
}

func (s *Server) handleOpenAIModels(c *gin.Context) {
	data := make([]gin.H, 0, len(listedModels))
	for _, id := range listedModels {
		data = append(data, gin.H{"id": id, "object": "model", "owned_by": "antigravity"})
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": data})
}

func (s *Server) handleGeminiModelsList(c *gin.Context) {
	models := make([]gin.H, 0, len(listedModels))
	for _, id := range listedModels {
		models = append(models, gin.H{"name": "models/" + id, "displayName": id})
	}
	c.JSON(http.StatusOK, gin.H{"models": models})
}

func (s *Server) handleGeminiModelGet(c *gin.Context) {
	name, _ := splitModelAction(c.Param("modelAction"))
	c.JSON(http.StatusOK, gin.H{"name": "models/" + name, "displayName": name})
}

// splitModelAction splits Gemini's combined "model:action" path segment.
func splitModelAction(segment string) (model, action string) {
	for i := len(segment) - 1; i >= 0; i-- {
		if segment[i] == ':' {
			return segment[:i], segment[i+1:]
		}
	}
	return segment, ""
}
