package gateway

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/openrelay/antigravity-gateway/internal/apierrors"
	"github.com/openrelay/antigravity-gateway/internal/store"
	"github.com/openrelay/antigravity-gateway/internal/translator/request"
	"github.com/openrelay/antigravity-gateway/internal/translator/response"
	"github.com/openrelay/antigravity-gateway/internal/upstream"
)

func (s *Server) handleOpenAIChatCompletions(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeJSONError(c, "openai", apierrors.New(http.StatusBadRequest, "failed to read request body"))
		return
	}
	if !gjson.GetBytes(raw, "model").Exists() || !gjson.GetBytes(raw, "messages").IsArray() {
		writeJSONError(c, "openai", apierrors.New(http.StatusBadRequest, "model and messages are required"))
		return
	}
	cfg := s.config()
	id := "chatcmpl-" + requestID()

	build := func(ctx context.Context) (*store.Credential, string, []byte, error) {
		cred, err := s.acquireCredential(ctx)
		if err != nil {
			return nil, "", nil, err
		}
		body, model, err := request.BuildUpstreamRequest(request.OpenAI, raw, request.Context{
			ProjectID:            cred.ProjectID,
			SessionID:            cred.SessionID,
			ConfiguredSystemText: cfg.SystemInstruction,
			SigCache:             s.sigCache,
		})
		if err != nil {
			return nil, "", nil, err
		}
		return cred, model, body, nil
	}

	if !gjson.GetBytes(raw, "stream").Bool() {
		var result *upstream.UnaryResult
		var model string
		err := withRetry(cfg.RetryTimes, func() error {
			cred, m, body, err := build(c.Request.Context())
			if err != nil {
				return err
			}
			model = m
			res, err := s.upstream.Unary(c.Request.Context(), cred.AccessToken, body)
			if err != nil {
				if apierrors.IsRateLimited(err) {
					s.noteRateLimited(cred, model)
				}
				return err
			}
			result = res
			return nil
		})
		if err != nil {
			writeJSONError(c, "openai", err)
			return
		}
		s.recordUnarySignatures(model, result)
		result.Usage = fillUsage(result.Usage, model, raw)
		c.Data(http.StatusOK, "application/json", response.BuildOpenAINonStream(id, model, result))
		return
	}

	var stream *response.OpenAIStream
	var usage upstream.Usage
	var hadToolCalls bool
	var streamModel string

	s.runStreaming(c, "openai", build, streamCallbacks{
		onOpen: func(w *sseWriter, model string) {
			streamModel = model
			stream = response.NewOpenAIStream(id, model)
		},
		onDelta: func(w *sseWriter, d upstream.Delta) {
			if d.Kind == upstream.DeltaUsage {
				usage = d.Usage
				return
			}
			if d.Kind == upstream.DeltaToolCalls {
				hadToolCalls = true
			}
			if chunk := stream.Chunk(d); chunk != nil {
				w.WriteData(chunk)
			}
		},
		onComplete: func(w *sseWriter) {
			w.WriteData(stream.Final(fillUsage(usage, streamModel, raw), hadToolCalls))
			w.WriteDoneLine()
		},
		onStreamError: func(w *sseWriter, err error) {
			// OpenAI defines no in-stream error event shape; end the
			// stream without a terminal chunk.
		},
	})
}
