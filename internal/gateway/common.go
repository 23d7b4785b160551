package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/openrelay/antigravity-gateway/internal/apierrors"
	"github.com/openrelay/antigravity-gateway/internal/quota"
	"github.com/openrelay/antigravity-gateway/internal/store"
	"github.com/openrelay/antigravity-gateway/internal/upstream"
)

// acquireCredential asks the rotator for a live credential, surfacing the
// "no available token" error described in the error handling design when
// the pool is exhausted.
func (s *Server) acquireCredential(ctx context.Context) (*store.Credential, error) {
	cred := s.rotator.GetToken(ctx)
	if cred == nil {
		return nil, apierrors.ErrNoAvailableToken
	}
	return cred, nil
}

// withRetry runs call, which is expected to acquire a credential and
// perform exactly one upstream attempt. A 429 is retried up to
// retryTimes total attempts; any other error, or a still-429 on the last
// attempt, is returned as-is.
func withRetry(retryTimes int, call func() error) error {
	if retryTimes < 1 {
		retryTimes = 1
	}
	var lastErr error
	for attempt := 0; attempt < retryTimes; attempt++ {
		lastErr = call()
		if lastErr == nil {
			return nil
		}
		if !apierrors.IsRateLimited(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// requestID mints a fresh identifier for logging and response envelopes.
func requestID() string { return uuid.NewString() }

// recordSignatures feeds thought signatures carried on upstream deltas
// into the signature cache, keyed by the resolved upstream model, so the
// next request for that model can thread them back into history.
func (s *Server) recordSignatures(model string, d upstream.Delta) {
	switch d.Kind {
	case upstream.DeltaReasoning:
		s.sigCache.PutThinking(model, d.ThoughtSignature)
	case upstream.DeltaToolCalls:
		for _, tc := range d.ToolCalls {
			s.sigCache.PutToolCall(model, tc.ThoughtSignature)
		}
	}
}

// recordUnarySignatures does the same for a fully parsed unary result.
func (s *Server) recordUnarySignatures(model string, result *upstream.UnaryResult) {
	s.sigCache.PutThinking(model, result.ReasoningSignature)
	for _, tc := range result.ToolCalls {
		s.sigCache.PutToolCall(model, tc.ThoughtSignature)
	}
}

// noteRateLimited records a zero-remaining quota snapshot for the
// credential that just saw a 429. This is bookkeeping only — the rotator
// does not penalize the credential for rate limits.
func (s *Server) noteRateLimited(cred *store.Credential, model string) {
	if cred == nil {
		return
	}
	s.quota.Update(cred.RefreshToken, map[string]quota.ModelQuota{
		model: {Remaining: 0, ResetTime: time.Now().UTC().Add(time.Hour).Format(time.RFC3339)},
	})
}

// fillUsage substitutes a local tokenizer estimate for the prompt-token
// count when the upstream omitted usage entirely.
func fillUsage(u upstream.Usage, model string, inbound []byte) upstream.Usage {
	if u.PromptTokens > 0 || u.TotalTokens > 0 {
		return u
	}
	est := quota.EstimatePromptTokens(model, inbound)
	u.PromptTokens = est
	u.TotalTokens = est + u.CompletionTokens
	return u
}

// writeJSONError maps err to the surface-correct non-streaming error
// envelope and HTTP status. OpenAI and Gemini share a status-coded JSON
// body shape distinct from Claude's.
func writeJSONError(c *gin.Context, surface string, err error) {
	status := apierrors.StatusOf(err)
	message := errorMessage(err)

	switch surface {
	case "claude":
		c.JSON(status, gin.H{"type": "error", "error": gin.H{"type": claudeErrorType(status), "message": message}})
	case "gemini":
		c.JSON(status, gin.H{"error": gin.H{"code": status, "message": message, "status": geminiErrorStatus(status)}})
	default:
		c.JSON(status, gin.H{"error": gin.H{"message": message, "type": openAIErrorType(status), "code": status}})
	}
}

func errorMessage(err error) string {
	if se, ok := err.(*apierrors.StatusError); ok && se != nil {
		if se.IsUpstream {
			if msg := extractUpstreamMessage(se.RawBody); msg != "" {
				return msg
			}
		}
		return se.Message
	}
	return err.Error()
}

func openAIErrorType(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "invalid_request_error"
	case http.StatusTooManyRequests:
		return "rate_limit_error"
	case http.StatusInternalServerError:
		return "server_error"
	default:
		return "invalid_request_error"
	}
}

func claudeErrorType(status int) string {
	switch status {
	case http.StatusTooManyRequests:
		return "rate_limit_error"
	case http.StatusUnauthorized:
		return "authentication_error"
	case http.StatusBadRequest:
		return "invalid_request_error"
	default:
		return "api_error"
	}
}

func geminiErrorStatus(status int) string {
	switch status {
	case http.StatusTooManyRequests:
		return "RESOURCE_EXHAUSTED"
	case http.StatusUnauthorized:
		return "UNAUTHENTICATED"
	case http.StatusBadRequest:
		return "INVALID_ARGUMENT"
	default:
		return "INTERNAL"
	}
}
