package antigravity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/openrelay/antigravity-gateway/internal/apierrors"
	"golang.org/x/oauth2"
)

// RefreshResult carries the fields the rotator needs to persist after a
// successful token refresh.
type RefreshResult struct {
	AccessToken string
	ExpiresIn   int64
	Timestamp   int64
}

// Client performs OAuth refresh and project discovery against the
// antigravity/Google backend.
type Client struct {
	httpClient *http.Client
}

// NewClient builds a Client using httpClient, or a default client with a
// generous timeout if none is provided.
func NewClient(httpClient *http.Client) *Client {
	if httpClient != nil {
		return &Client{httpClient: httpClient}
	}
	return &Client{httpClient: &http.Client{Timeout: 30 * time.Second}}
}

// RefreshAccessToken exchanges refreshToken for a new access token via the
// standard OAuth2 refresh grant.
//
// On a 400 or 403 response the returned error is an *apierrors.StatusError
// carrying that status, which the rotator uses to decide whether to
// disable the credential.
func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", ClientID)
	form.Set("client_secret", ClientSecret)
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apierrors.Upstream(resp.StatusCode, body)
	}

	var tok oauth2.Token
	var raw struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("antigravity: decode refresh response: %w", err)
	}
	tok.AccessToken = raw.AccessToken
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("antigravity: refresh response missing access_token")
	}
	return &RefreshResult{
		AccessToken: tok.AccessToken,
		ExpiresIn:   raw.ExpiresIn,
		Timestamp:   time.Now().UnixMilli(),
	}, nil
}

// FetchProjectID discovers the cloudaicompanion project id for accessToken
// via loadCodeAssist, onboarding the user when no project is yet
// provisioned.
func (c *Client) FetchProjectID(ctx context.Context, accessToken string) (string, error) {
	loadBody := map[string]any{
		"metadata": map[string]string{
			"ideType":    "ANTIGRAVITY",
			"platform":   "PLATFORM_UNSPECIFIED",
			"pluginType": "GEMINI",
		},
	}
	raw, resp, err := c.postJSON(ctx, accessToken, BaseURL+LoadCodeAssist, loadBody)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", apierrors.Upstream(resp.StatusCode, raw)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("antigravity: decode loadCodeAssist: %w", err)
	}
	if id := projectIDFromLoadResponse(decoded); id != "" {
		return id, nil
	}

	tierID := defaultTier(decoded)
	return c.onboardUser(ctx, accessToken, tierID)
}

func (c *Client) onboardUser(ctx context.Context, accessToken, tierID string) (string, error) {
	body := map[string]any{
		"tierId": tierID,
		"metadata": map[string]string{
			"ideType":    "ANTIGRAVITY",
			"platform":   "PLATFORM_UNSPECIFIED",
			"pluginType": "GEMINI",
		},
	}
	const maxAttempts = 5
	for attempt := 0; attempt < maxAttempts; attempt++ {
		raw, resp, err := c.postJSON(ctx, accessToken, BaseURL+OnboardUser, body)
		if err != nil {
			return "", err
		}
		if resp.StatusCode != http.StatusOK {
			return "", apierrors.Upstream(resp.StatusCode, raw)
		}
		var decoded struct {
			Done     bool `json:"done"`
			Response struct {
				CloudAICompanionProject json.RawMessage `json:"cloudaicompanionProject"`
			} `json:"response"`
		}
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return "", fmt.Errorf("antigravity: decode onboardUser: %w", err)
		}
		if decoded.Done {
			if id := extractProjectID(decoded.Response.CloudAICompanionProject); id != "" {
				return id, nil
			}
			return "", fmt.Errorf("antigravity: onboardUser completed without a project id")
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return "", fmt.Errorf("antigravity: onboardUser did not complete after %d attempts", maxAttempts)
}

func (c *Client) postJSON(ctx context.Context, accessToken, url string, body any) ([]byte, *http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(payload)))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	return raw, resp, nil
}

func projectIDFromLoadResponse(decoded map[string]any) string {
	switch v := decoded["cloudaicompanionProject"].(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		if id, ok := v["id"].(string); ok {
			return strings.TrimSpace(id)
		}
	}
	return ""
}

func defaultTier(decoded map[string]any) string {
	tiers, ok := decoded["allowedTiers"].([]any)
	if !ok {
		return "legacy-tier"
	}
	for _, raw := range tiers {
		tier, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if isDefault, _ := tier["isDefault"].(bool); isDefault {
			if id, ok := tier["id"].(string); ok && strings.TrimSpace(id) != "" {
				return strings.TrimSpace(id)
			}
		}
	}
	return "legacy-tier"
}

func extractProjectID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return strings.TrimSpace(asString)
	}
	var asObject struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &asObject); err == nil {
		return strings.TrimSpace(asObject.ID)
	}
	return ""
}

// SynthesizeProjectID generates a placeholder project id for configurations
// that opt out of discovery.
func SynthesizeProjectID() string {
	return "antigravity-" + strconv.FormatInt(time.Now().UnixNano(), 36)
}
