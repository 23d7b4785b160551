package upstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/openrelay/antigravity-gateway/internal/antigravity"
	"github.com/openrelay/antigravity-gateway/internal/apierrors"
)

// Client performs the streaming and unary calls against the antigravity
// backend for a single credential's access token.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient builds a Client. A nil httpClient gets a client with no
// request timeout, matching the gateway's unbounded-generation posture for
// chat routes.
func NewClient(httpClient *http.Client) *Client {
	return NewClientWithBaseURL(httpClient, antigravity.BaseURL)
}

// NewClientWithBaseURL builds a Client pointed at an alternate base URL
// (tests stand in an httptest server here).
func NewClientWithBaseURL(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{httpClient: httpClient, baseURL: baseURL}
}

// DeltaFunc is invoked once per parsed delta, in arrival order.
type DeltaFunc func(Delta)

// Stream POSTs body to the streaming endpoint and invokes onDelta for
// every parsed SSE line until EOS or ctx is cancelled.
func (c *Client) Stream(ctx context.Context, accessToken string, body []byte, onDelta DeltaFunc) error {
	resp, err := c.post(ctx, c.baseURL+antigravity.StreamPath, accessToken, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readUpstreamError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}
		delta, ok := parseDelta(gjson.Parse(payload))
		if !ok {
			continue
		}
		onDelta(delta)
	}
	return scanner.Err()
}

// UnaryResult is the fully assembled non-streaming response.
type UnaryResult struct {
	Content            string
	ReasoningContent   string
	ReasoningSignature string
	ToolCalls          []ToolCall
	Usage              Usage
}

// Unary POSTs body to the non-streaming endpoint and returns the fully
// parsed result.
func (c *Client) Unary(ctx context.Context, accessToken string, body []byte) (*UnaryResult, error) {
	resp, err := c.post(ctx, c.baseURL+antigravity.UnaryPath, accessToken, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apierrors.Upstream(resp.StatusCode, raw)
	}
	return parseUnary(gjson.ParseBytes(raw)), nil
}

func (c *Client) post(ctx context.Context, url, accessToken string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("User-Agent", antigravity.UserAgent)
	return c.httpClient.Do(req)
}

func readUpstreamError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return apierrors.Upstream(resp.StatusCode, raw)
}

// parseDelta maps one antigravity streaming line into the typed union,
// returning ok=false for lines that carry none of the four known shapes
// (e.g. bare acks).
func parseDelta(line gjson.Result) (Delta, bool) {
	candidate := line.Get("response.candidates.0")
	if !candidate.Exists() {
		candidate = line.Get("candidates.0")
	}

	if usage := line.Get("response.usageMetadata"); usage.Exists() {
		return Delta{Kind: DeltaUsage, Usage: parseUsage(usage)}, true
	}
	if usage := line.Get("usageMetadata"); usage.Exists() {
		return Delta{Kind: DeltaUsage, Usage: parseUsage(usage)}, true
	}

	parts := candidate.Get("content.parts").Array()
	for _, part := range parts {
		if fc := part.Get("functionCall"); fc.Exists() {
			args, _ := json.Marshal(fc.Get("args").Value())
			return Delta{
				Kind: DeltaToolCalls,
				ToolCalls: []ToolCall{{
					ID:               fc.Get("id").String(),
					Name:             fc.Get("name").String(),
					Arguments:        string(args),
					ThoughtSignature: part.Get("thoughtSignature").String(),
				}},
			}, true
		}
		if part.Get("thought").Bool() {
			return Delta{
				Kind:             DeltaReasoning,
				ReasoningContent: part.Get("text").String(),
				ThoughtSignature: part.Get("thoughtSignature").String(),
			}, true
		}
		if text := part.Get("text"); text.Exists() {
			return Delta{Kind: DeltaContent, Content: text.String()}, true
		}
	}
	return Delta{}, false
}

func parseUsage(usage gjson.Result) Usage {
	return Usage{
		PromptTokens:     int(usage.Get("promptTokenCount").Int()),
		CompletionTokens: int(usage.Get("candidatesTokenCount").Int()),
		TotalTokens:      int(usage.Get("totalTokenCount").Int()),
	}
}

func parseUnary(body gjson.Result) *UnaryResult {
	result := &UnaryResult{}
	candidate := body.Get("response.candidates.0")
	if !candidate.Exists() {
		candidate = body.Get("candidates.0")
	}
	var content, reasoning strings.Builder
	for _, part := range candidate.Get("content.parts").Array() {
		if fc := part.Get("functionCall"); fc.Exists() {
			args, _ := json.Marshal(fc.Get("args").Value())
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:               fc.Get("id").String(),
				Name:             fc.Get("name").String(),
				Arguments:        string(args),
				ThoughtSignature: part.Get("thoughtSignature").String(),
			})
			continue
		}
		if part.Get("thought").Bool() {
			reasoning.WriteString(part.Get("text").String())
			if sig := part.Get("thoughtSignature").String(); sig != "" {
				result.ReasoningSignature = sig
			}
			continue
		}
		content.WriteString(part.Get("text").String())
	}
	result.Content = content.String()
	result.ReasoningContent = reasoning.String()

	usage := body.Get("response.usageMetadata")
	if !usage.Exists() {
		usage = body.Get("usageMetadata")
	}
	result.Usage = parseUsage(usage)
	return result
}
