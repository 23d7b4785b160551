// Package antigravity provides the OAuth2 and project-discovery calls
// needed to keep a credential usable against the antigravity upstream.
package antigravity

// OAuth client credentials baked into every antigravity client. These are
// public client identifiers for a native-app OAuth flow, not secrets that
// gate access.
const (
	ClientID     = "1071006060591-tmhssin2h21lcre235vtolojh4g403ep.apps.googleusercontent.com"
	ClientSecret = "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"
)

// OAuth2 and upstream API endpoints.
const (
	TokenEndpoint = "https://oauth2.googleapis.com/token"

	BaseURL        = "https://daily-cloudcode-pa.sandbox.googleapis.com"
	APIVersion     = "v1internal"
	StreamPath     = "/v1internal:streamGenerateContent"
	UnaryPath      = "/v1internal:generateContent"
	ModelsPath     = "/v1internal:fetchAvailableModels"
	LoadCodeAssist = "/v1internal:loadCodeAssist"
	OnboardUser    = "/v1internal:onboardUser"

	UserAgent = "antigravity/1.104.0 windows/amd64"
)
