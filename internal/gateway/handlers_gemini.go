package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/openrelay/antigravity-gateway/internal/apierrors"
	"github.com/openrelay/antigravity-gateway/internal/store"
	"github.com/openrelay/antigravity-gateway/internal/translator/request"
	"github.com/openrelay/antigravity-gateway/internal/translator/response"
	"github.com/openrelay/antigravity-gateway/internal/upstream"
)

// handleGeminiGenerate serves both :generateContent and
// :streamGenerateContent. The model name comes from the path, not the
// body, so it is injected before translation.
func (s *Server) handleGeminiGenerate(c *gin.Context) {
	callerModel, action := splitModelAction(c.Param("modelAction"))
	if callerModel == "" {
		writeJSONError(c, "gemini", apierrors.New(http.StatusBadRequest, "model is required"))
		return
	}
	switch action {
	case "generateContent", "streamGenerateContent":
	default:
		writeJSONError(c, "gemini", apierrors.New(http.StatusNotFound, "unknown action "+action))
		return
	}

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeJSONError(c, "gemini", apierrors.New(http.StatusBadRequest, "failed to read request body"))
		return
	}
	if !gjson.GetBytes(raw, "contents").IsArray() {
		writeJSONError(c, "gemini", apierrors.New(http.StatusBadRequest, "contents are required"))
		return
	}
	raw, err = sjson.SetBytes(raw, "model", callerModel)
	if err != nil {
		writeJSONError(c, "gemini", apierrors.New(http.StatusBadRequest, "malformed request body"))
		return
	}
	cfg := s.config()

	build := func(ctx context.Context) (*store.Credential, string, []byte, error) {
		cred, err := s.acquireCredential(ctx)
		if err != nil {
			return nil, "", nil, err
		}
		body, model, err := request.BuildUpstreamRequest(request.Gemini, raw, request.Context{
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

	streaming := action == "streamGenerateContent" || c.Query("alt") == "sse"
	if !streaming {
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
			writeJSONError(c, "gemini", err)
			return
		}
		s.recordUnarySignatures(model, result)
		result.Usage = fillUsage(result.Usage, model, raw)
		c.Data(http.StatusOK, "application/json", response.BuildGeminiNonStream(result, cfg.PassSignatureToClient))
		return
	}

	var stream *response.GeminiStream

	s.runStreaming(c, "gemini", build, streamCallbacks{
		onOpen: func(w *sseWriter, model string) {
			stream = response.NewGeminiStream(cfg.PassSignatureToClient)
		},
		onDelta: func(w *sseWriter, d upstream.Delta) {
			if chunk := stream.Chunk(d); chunk != nil {
				w.WriteData(chunk)
			}
		},
		onComplete: func(w *sseWriter) {
			w.WriteData(stream.Final())
		},
		onStreamError: func(w *sseWriter, err error) {
			payload, _ := json.Marshal(gin.H{
				"error": gin.H{
					"code":    apierrors.StatusOf(err),
					"message": errorMessage(err),
					"status":  geminiErrorStatus(apierrors.StatusOf(err)),
				},
			})
			w.WriteData(payload)
		},
	})
}
