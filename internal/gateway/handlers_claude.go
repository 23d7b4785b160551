package gateway

import (
	"context"
	"encoding/json"
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

func (s *Server) handleClaudeMessages(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeJSONError(c, "claude", apierrors.New(http.StatusBadRequest, "failed to read request body"))
		return
	}
	if !gjson.GetBytes(raw, "model").Exists() || !gjson.GetBytes(raw, "messages").IsArray() {
		writeJSONError(c, "claude", apierrors.New(http.StatusBadRequest, "model and messages are required"))
		return
	}
	cfg := s.config()
	id := "msg_" + requestID()

	build := func(ctx context.Context) (*store.Credential, string, []byte, error) {
		cred, err := s.acquireCredential(ctx)
		if err != nil {
			return nil, "", nil, err
		}
		body, model, err := request.BuildUpstreamRequest(request.Claude, raw, request.Context{
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
			writeJSONError(c, "claude", err)
			return
		}
		s.recordUnarySignatures(model, result)
		result.Usage = fillUsage(result.Usage, model, raw)
		c.Data(http.StatusOK, "application/json", response.BuildClaudeNonStream(id, model, result, cfg.PassSignatureToClient))
		return
	}

	var stream *response.ClaudeStream

	s.runStreaming(c, "claude", build, streamCallbacks{
		onOpen: func(w *sseWriter, model string) {
			stream = response.NewClaudeStream(id, model, cfg.PassSignatureToClient)
		},
		onDelta: func(w *sseWriter, d upstream.Delta) {
			for _, ev := range stream.OnDelta(d) {
				w.WriteNamedEvent(ev.Name, ev.Data)
			}
		},
		onComplete: func(w *sseWriter) {
			for _, ev := range stream.Complete() {
				w.WriteNamedEvent(ev.Name, ev.Data)
			}
		},
		onStreamError: func(w *sseWriter, err error) {
			payload, _ := json.Marshal(gin.H{
				"type":  "error",
				"error": gin.H{"type": claudeErrorType(apierrors.StatusOf(err)), "message": errorMessage(err)},
			})
			w.WriteNamedEvent("error", payload)
		},
	})
}
