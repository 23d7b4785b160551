package gateway

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/openrelay/antigravity-gateway/internal/antigravity"
	"github.com/openrelay/antigravity-gateway/internal/config"
	"github.com/openrelay/antigravity-gateway/internal/memory"
	"github.com/openrelay/antigravity-gateway/internal/quota"
	"github.com/openrelay/antigravity-gateway/internal/rotator"
	"github.com/openrelay/antigravity-gateway/internal/sigcache"
	"github.com/openrelay/antigravity-gateway/internal/store"
	"github.com/openrelay/antigravity-gateway/internal/upstream"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// sseLine wraps a candidates fragment in the upstream envelope shape.
func sseLine(fragment string) string {
	return "data: " + fragment + "\n\n"
}

func newTestGateway(t *testing.T, cfg *config.Config, upstreamHandler http.Handler) *gin.Engine {
	t.Helper()

	backend := httptest.NewServer(upstreamHandler)
	t.Cleanup(backend.Close)

	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "accounts.json"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if err := st.Add(&store.Credential{
		RefreshToken: "rt-0",
		AccessToken:  "at-0",
		ExpiresIn:    3600,
		Timestamp:    time.Now().UnixMilli(),
		Enable:       true,
		HasQuota:     true,
		ProjectID:    "proj-0",
	}); err != nil {
		t.Fatalf("add credential: %v", err)
	}

	q, err := quota.Open(filepath.Join(dir, "quotas.json"))
	if err != nil {
		t.Fatalf("open quota: %v", err)
	}
	t.Cleanup(q.Close)

	oauth := antigravity.NewClient(nil)
	rot := rotator.New(st, oauth, cfg)
	up := upstream.NewClientWithBaseURL(nil, backend.URL)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	srv := New(cfg, rot, up, q, sigcache.New(), memory.New(cfg.MemoryHighMB), logger)
	return srv.Router()
}

func emptyUpstream() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unexpected call", http.StatusTeapot)
	})
}

func TestHealth(t *testing.T) {
	router := newTestGateway(t, config.Default(), emptyUpstream())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := gjson.Get(rec.Body.String(), "status").String(); got != "ok" {
		t.Errorf("status field = %q, want ok", got)
	}
}

func TestAuthGate(t *testing.T) {
	cfg := config.Default()
	cfg.APIKey = "secret"
	router := newTestGateway(t, cfg, emptyUpstream())

	// No key.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no key: status = %d, want 401", rec.Code)
	}
	if got := gjson.Get(rec.Body.String(), "error").String(); got != "Invalid API Key" {
		t.Errorf("error = %q, want Invalid API Key", got)
	}

	// Bearer form.
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req.Header.Set("Authorization", "Bearer secret")
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("bearer: status = %d, want 200", rec.Code)
	}

	// x-api-key form.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req.Header.Set("x-api-key", "secret")
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("x-api-key: status = %d, want 200", rec.Code)
	}

	// Health stays open.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health: status = %d, want 200 without a key", rec.Code)
	}
}

func TestOpenAIStreamWire(t *testing.T) {
	upstreamStub := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "streamGenerateContent") {
			http.Error(w, "wrong endpoint", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseLine(`{"response":{"candidates":[{"content":{"parts":[{"text":"he"}]}}]}}`))
		fmt.Fprint(w, sseLine(`{"response":{"candidates":[{"content":{"parts":[{"text":"llo"}]}}]}}`))
		fmt.Fprint(w, sseLine(`{"response":{"usageMetadata":{"promptTokenCount":1,"candidatesTokenCount":2,"totalTokenCount":3}}}`))
	})
	router := newTestGateway(t, config.Default(), upstreamStub)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(`{"model":"gpt-5","stream":true,"messages":[{"role":"user","content":"hi"}]}`))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("content-type = %q, want text/event-stream", got)
	}

	var payloads []string
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		if strings.HasPrefix(line, "data: ") {
			payloads = append(payloads, strings.TrimPrefix(line, "data: "))
		}
	}
	if len(payloads) != 4 {
		t.Fatalf("data lines = %d (%v), want 2 content + final + [DONE]", len(payloads), payloads)
	}
	if got := gjson.Get(payloads[0], "choices.0.delta.content").String(); got != "he" {
		t.Errorf("chunk 0 = %q, want he", got)
	}
	if got := gjson.Get(payloads[1], "choices.0.delta.content").String(); got != "llo" {
		t.Errorf("chunk 1 = %q, want llo", got)
	}
	final := payloads[2]
	if got := gjson.Get(final, "choices.0.finish_reason").String(); got != "stop" {
		t.Errorf("finish_reason = %q, want stop", got)
	}
	if got := gjson.Get(final, "usage.total_tokens").Int(); got != 3 {
		t.Errorf("usage.total_tokens = %d, want 3", got)
	}
	if payloads[3] != "[DONE]" {
		t.Errorf("terminator = %q, want [DONE]", payloads[3])
	}
}

func TestClaudeStreamEventFraming(t *testing.T) {
	upstreamStub := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseLine(`{"response":{"candidates":[{"content":{"parts":[{"text":"let me think","thought":true}]}}]}}`))
		fmt.Fprint(w, sseLine(`{"response":{"candidates":[{"content":{"parts":[{"text":"Hello"}]}}]}}`))
		fmt.Fprint(w, sseLine(`{"response":{"usageMetadata":{"candidatesTokenCount":5}}}`))
	})
	router := newTestGateway(t, config.Default(), upstreamStub)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/messages",
		strings.NewReader(`{"model":"claude-sonnet-4","stream":true,"max_tokens":100,"messages":[{"role":"user","content":"hi"}]}`))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var names []string
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		if strings.HasPrefix(line, "event: ") {
			names = append(names, strings.TrimPrefix(line, "event: "))
		}
	}
	want := []string{
		"message_start",
		"content_block_start",
		"content_block_delta",
		"content_block_stop",
		"content_block_start",
		"content_block_delta",
		"content_block_stop",
		"message_delta",
		"message_stop",
	}
	if len(names) != len(want) {
		t.Fatalf("events = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("event %d = %s, want %s", i, names[i], want[i])
		}
	}
}

func TestGeminiStreamToolCallWire(t *testing.T) {
	upstreamStub := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseLine(`{"response":{"candidates":[{"content":{"parts":[{"functionCall":{"id":"t1","name":"lookup","args":{"q":"x"}}}]}}]}}`))
		fmt.Fprint(w, sseLine(`{"response":{"usageMetadata":{"promptTokenCount":1,"candidatesTokenCount":1,"totalTokenCount":2}}}`))
	})
	router := newTestGateway(t, config.Default(), upstreamStub)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1beta/models/gemini-2.5-flash:streamGenerateContent",
		strings.NewReader(`{"contents":[{"role":"user","parts":[{"text":"look up x"}]}]}`))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var payloads []string
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		if strings.HasPrefix(line, "data: ") {
			payloads = append(payloads, strings.TrimPrefix(line, "data: "))
		}
	}
	if len(payloads) != 2 {
		t.Fatalf("data lines = %d, want tool chunk + final", len(payloads))
	}
	fc := gjson.Get(payloads[0], "candidates.0.content.parts.0.functionCall")
	if fc.Get("name").String() != "lookup" || fc.Get("args.q").String() != "x" {
		t.Errorf("functionCall = %s, want lookup with parsed args", fc.Raw)
	}
	if got := gjson.Get(payloads[1], "candidates.0.finishReason").String(); got != "STOP" {
		t.Errorf("finishReason = %q, want STOP", got)
	}
	if got := gjson.Get(payloads[1], "usageMetadata.totalTokenCount").Int(); got != 2 {
		t.Errorf("totalTokenCount = %d, want 2", got)
	}
}

func TestGeminiUnary(t *testing.T) {
	upstreamStub := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":generateContent") {
			http.Error(w, "wrong endpoint", http.StatusNotFound)
			return
		}
		fmt.Fprint(w, `{"response":{"candidates":[{"content":{"parts":[{"text":"hi there"}]}}],"usageMetadata":{"promptTokenCount":2,"candidatesTokenCount":3,"totalTokenCount":5}}}`)
	})
	router := newTestGateway(t, config.Default(), upstreamStub)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1beta/models/gemini-2.5-flash:generateContent",
		strings.NewReader(`{"contents":[{"role":"user","parts":[{"text":"hello"}]}]}`))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if got := gjson.Get(body, "candidates.0.content.parts.0.text").String(); got != "hi there" {
		t.Errorf("text = %q, want hi there", got)
	}
}

func TestRetryOn429ThenSuccess(t *testing.T) {
	attempts := 0
	upstreamStub := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			http.Error(w, `{"error":{"message":"slow down"}}`, http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"response":{"candidates":[{"content":{"parts":[{"text":"ok"}]}}],"usageMetadata":{"promptTokenCount":1,"candidatesTokenCount":1,"totalTokenCount":2}}}`)
	})
	router := newTestGateway(t, config.Default(), upstreamStub)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(`{"model":"gpt-5","messages":[{"role":"user","content":"hi"}]}`))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if attempts != 2 {
		t.Errorf("upstream attempts = %d, want 2 (one 429 retry)", attempts)
	}
	if got := gjson.Get(rec.Body.String(), "choices.0.message.content").String(); got != "ok" {
		t.Errorf("content = %q, want ok", got)
	}
}

func TestNon429FailsFast(t *testing.T) {
	attempts := 0
	upstreamStub := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, `{"error":{"message":"bad project"}}`, http.StatusForbidden)
	})
	router := newTestGateway(t, config.Default(), upstreamStub)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(`{"model":"gpt-5","messages":[{"role":"user","content":"hi"}]}`))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want upstream 403 passed through", rec.Code)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (non-429 errors fail fast)", attempts)
	}
	if got := gjson.Get(rec.Body.String(), "error.message").String(); got != "bad project" {
		t.Errorf("error message = %q, want extracted upstream message", got)
	}
}

func TestNoAvailableToken(t *testing.T) {
	cfg := config.Default()

	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "accounts.json"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	q, err := quota.Open(filepath.Join(dir, "quotas.json"))
	if err != nil {
		t.Fatalf("open quota: %v", err)
	}
	defer q.Close()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	rot := rotator.New(st, antigravity.NewClient(nil), cfg)
	srv := New(cfg, rot, upstream.NewClient(nil), q, sigcache.New(), memory.New(cfg.MemoryHighMB), logger)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(`{"model":"gpt-5","messages":[{"role":"user","content":"hi"}]}`))
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if got := gjson.Get(rec.Body.String(), "error.message").String(); got != "no available token" {
		t.Errorf("message = %q, want no available token", got)
	}
}

func TestValidationErrors(t *testing.T) {
	router := newTestGateway(t, config.Default(), emptyUpstream())

	tests := []struct {
		name string
		path string
		body string
	}{
		{"openai missing messages", "/v1/chat/completions", `{"model":"gpt-5"}`},
		{"claude missing model", "/v1/messages", `{"messages":[]}`},
		{"gemini missing contents", "/v1beta/models/gemini-2.5-flash:generateContent", `{}`},
	}
	for _, tc := range tests {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, tc.path, strings.NewReader(tc.body)))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tc.name, rec.Code)
		}
	}
}

func TestMemoryEndpoint(t *testing.T) {
	router := newTestGateway(t, config.Default(), emptyUpstream())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/memory", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !gjson.Get(body, "pressure").Exists() || !gjson.Get(body, "thresholds.highMB").Exists() {
		t.Errorf("memory report missing fields: %s", body)
	}
}

func TestSplitModelAction(t *testing.T) {
	t.Parallel()

	model, action := splitModelAction("gemini-2.5-flash:streamGenerateContent")
	if model != "gemini-2.5-flash" || action != "streamGenerateContent" {
		t.Errorf("split = (%q, %q)", model, action)
	}
	model, action = splitModelAction("gemini-2.5-flash")
	if model != "gemini-2.5-flash" || action != "" {
		t.Errorf("split without action = (%q, %q)", model, action)
	}
}
