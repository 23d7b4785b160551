package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openrelay/antigravity-gateway/internal/upstream"
)

// sseWriter frames one outbound SSE connection. It sets the headers named
// in the external interface table and disables write buffering hints for
// proxies sitting in front of the gateway.
type sseWriter struct {
	c       *gin.Context
	flusher http.Flusher
}

func newSSEWriter(c *gin.Context) *sseWriter {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	flusher, _ := c.Writer.(http.Flusher)
	return &sseWriter{c: c, flusher: flusher}
}

func (w *sseWriter) flush() {
	if w.flusher != nil {
		w.flusher.Flush()
	}
}

// WriteData writes a bare `data: <payload>\n\n` frame (OpenAI, Gemini).
func (w *sseWriter) WriteData(payload []byte) {
	fmt.Fprintf(w.c.Writer, "data: %s\n\n", payload)
	w.flush()
}

// WriteNamedEvent writes the `event: <name>\ndata: <payload>\n\n` form
// Claude's stream uses.
func (w *sseWriter) WriteNamedEvent(name string, payload []byte) {
	fmt.Fprintf(w.c.Writer, "event: %s\ndata: %s\n\n", name, payload)
	w.flush()
}

// WriteComment writes a comment-prefixed line, used for heartbeats.
func (w *sseWriter) WriteComment(comment string) {
	fmt.Fprintf(w.c.Writer, ": %s\n\n", comment)
	w.flush()
}

// WriteDoneLine writes OpenAI's literal stream terminator.
func (w *sseWriter) WriteDoneLine() {
	fmt.Fprint(w.c.Writer, "data: [DONE]\n\n")
	w.flush()
}

// streamDeltas launches produce in its own goroutine and relays each
// delta it reports, in arrival order, over the returned channel; the
// second channel receives exactly one value (produce's returned error,
// possibly nil) once produce returns, then both channels are closed.
// Because the channels are unbuffered, at most one of them is ever ready
// at a time, which preserves strict delta-then-completion ordering for
// the select loop in each handler.
func streamDeltas(ctx context.Context, produce func(onDelta upstream.DeltaFunc) error) (<-chan upstream.Delta, <-chan error) {
	deltas := make(chan upstream.Delta)
	done := make(chan error, 1)
	go func() {
		defer close(deltas)
		defer close(done)
		err := produce(func(d upstream.Delta) {
			select {
			case deltas <- d:
			case <-ctx.Done():
			}
		})
		done <- err
	}()
	return deltas, done
}

// heartbeatTicker returns a ticker firing every interval, or a
// never-firing channel if interval is non-positive.
func heartbeatTicker(interval time.Duration) *time.Ticker {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return time.NewTicker(interval)
}
