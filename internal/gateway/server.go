// Package gateway implements the HTTP frontend: routing, the API-key
// auth gate, the SSE heartbeat, the 429-only retry wrapper, and
// surface-correct error mapping, wired over the translation and upstream
// packages.
package gateway

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/openrelay/antigravity-gateway/internal/config"
	"github.com/openrelay/antigravity-gateway/internal/memory"
	"github.com/openrelay/antigravity-gateway/internal/quota"
	"github.com/openrelay/antigravity-gateway/internal/rotator"
	"github.com/openrelay/antigravity-gateway/internal/sigcache"
	"github.com/openrelay/antigravity-gateway/internal/upstream"
)

// Server holds every service the frontend delegates to, wired at
// startup rather than reached for as ambient globals.
type Server struct {
	cfgMu sync.RWMutex
	cfg   *config.Config

	rotator  *rotator.Rotator
	upstream *upstream.Client
	quota    *quota.Cache
	sigCache *sigcache.Cache
	memory   *memory.Regulator
	log      *logrus.Logger

	startedAt time.Time
}

// New builds a Server. cfg may be swapped live via SetConfig when the
// config watcher reports a reload.
func New(cfg *config.Config, rot *rotator.Rotator, up *upstream.Client, q *quota.Cache, sig *sigcache.Cache, mem *memory.Regulator, log *logrus.Logger) *Server {
	return &Server{cfg: cfg, rotator: rot, upstream: up, quota: q, sigCache: sig, memory: mem, log: log, startedAt: time.Now()}
}

// SetConfig hot-swaps the configuration snapshot the frontend reads per
// request (API key, retry count, heartbeat interval, etc).
func (s *Server) SetConfig(cfg *config.Config) {
	s.cfgMu.Lock()
	s.cfg = cfg
	s.cfgMu.Unlock()
}

func (s *Server) config() *config.Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// Router builds the gin engine with every route from the external
// interface table wired in.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.handleHealth)
	r.GET("/v1/memory", s.handleMemory)

	v1 := r.Group("/v1", s.authGate)
	v1.GET("/models", s.handleOpenAIModels)
	v1.POST("/chat/completions", s.handleOpenAIChatCompletions)
	v1.POST("/messages", s.handleClaudeMessages)

	// Gemini's :generateContent/:streamGenerateContent action suffix is
	// part of the same path segment as the model id (e.g.
	// "gemini-pro:streamGenerateContent"), so both GET /models/:x and
	// POST /models/:x share one gin param and split on ":" inside the
	// handler.
	v1beta := r.Group("/v1beta", s.authGate)
	v1beta.GET("/models", s.handleGeminiModelsList)
	v1beta.GET("/models/:modelAction", s.handleGeminiModelGet)
	v1beta.POST("/models/:modelAction", s.handleGeminiGenerate)

	return r
}
