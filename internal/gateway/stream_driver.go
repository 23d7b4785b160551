package gateway

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/openrelay/antigravity-gateway/internal/apierrors"
	"github.com/openrelay/antigravity-gateway/internal/store"
	"github.com/openrelay/antigravity-gateway/internal/upstream"
)

// attemptBuilder acquires a credential and builds the upstream request
// body for one attempt.
type attemptBuilder func(ctx context.Context) (cred *store.Credential, model string, body []byte, err error)

// streamCallbacks lets each surface handler plug its own delta
// projection and terminal framing into the shared streaming driver.
type streamCallbacks struct {
	onOpen        func(w *sseWriter, model string)
	onDelta       func(w *sseWriter, d upstream.Delta)
	onComplete    func(w *sseWriter)
	onStreamError func(w *sseWriter, err error)
}

// runStreaming drives one surface's SSE response. It retries 429s (and
// only 429s) up to retryTimes as long as no byte has reached the client
// yet; once the first byte is out, any further error becomes an in-stream
// event via cb.onStreamError instead of an HTTP status change. A
// heartbeat comment is interleaved while waiting on the upstream.
func (s *Server) runStreaming(c *gin.Context, surface string, build attemptBuilder, cb streamCallbacks) {
	cfg := s.config()
	ctx := c.Request.Context()
	ticker := heartbeatTicker(cfg.HeartbeatInterval())
	defer ticker.Stop()

	retryTimes := cfg.RetryTimes
	if retryTimes < 1 {
		retryTimes = 1
	}

	var w *sseWriter
	for attempt := 1; attempt <= retryTimes; attempt++ {
		cred, model, body, err := build(ctx)
		if err != nil {
			writeJSONError(c, surface, err)
			return
		}

		deltaCh, errCh := streamDeltas(ctx, func(onDelta upstream.DeltaFunc) error {
			return s.upstream.Stream(ctx, cred.AccessToken, body, onDelta)
		})

		retryThisAttempt := false
	selectLoop:
		for {
			select {
			case d, ok := <-deltaCh:
				if !ok {
					deltaCh = nil
					continue
				}
				s.recordSignatures(model, d)
				if w == nil {
					w = newSSEWriter(c)
					cb.onOpen(w, model)
				}
				cb.onDelta(w, d)

			case streamErr := <-errCh:
				if streamErr != nil {
					s.log.WithField("surface", surface).Warnf("upstream stream error: %v", streamErr)
					if apierrors.IsRateLimited(streamErr) {
						s.noteRateLimited(cred, model)
						if w == nil && attempt < retryTimes {
							retryThisAttempt = true
							break selectLoop
						}
					}
					if w == nil {
						writeJSONError(c, surface, streamErr)
						return
					}
					cb.onStreamError(w, streamErr)
					return
				}
				if w == nil {
					w = newSSEWriter(c)
					cb.onOpen(w, model)
				}
				cb.onComplete(w)
				return

			case <-ticker.C:
				if w != nil {
					w.WriteComment("heartbeat")
				}

			case <-ctx.Done():
				return
			}
		}
		if !retryThisAttempt {
			return
		}
	}
}
