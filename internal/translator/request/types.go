// Package request builds the upstream antigravity request body from any
// of the three inbound surfaces (OpenAI, Claude, Gemini), applying the
// shared post-processing steps — function-call ID threading, thought-part
// stitching, system-instruction merge, tool conversion, and envelope
// wrapping — once the dialect-specific front end has produced a common
// contents list.
package request

import "encoding/json"

// Part is one fragment of a Content's parts array, in the upstream
// antigravity (Gemini-like) shape. Exactly one of Text/FunctionCall/
// FunctionResponse/InlineData is meaningfully populated per part, except
// that Thought+ThoughtSignature may accompany Text.
type Part struct {
	Text             string            `json:"text,omitempty"`
	Thought          bool              `json:"thought,omitempty"`
	ThoughtSignature string            `json:"thoughtSignature,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
	InlineData       *InlineData       `json:"inlineData,omitempty"`
}

// IsStandaloneSignature reports whether p carries only a thought
// signature with no accompanying text, thought flag, or call/response —
// the shape some SDKs emit when they split the signature out of the
// thinking block it belongs to.
func (p Part) IsStandaloneSignature() bool {
	return p.ThoughtSignature != "" && !p.Thought && p.Text == "" &&
		p.FunctionCall == nil && p.FunctionResponse == nil && p.InlineData == nil
}

// FunctionCall is a model-issued tool invocation.
type FunctionCall struct {
	ID               string          `json:"id,omitempty"`
	Name             string          `json:"name"`
	Args             json.RawMessage `json:"args,omitempty"`
	ThoughtSignature string          `json:"thoughtSignature,omitempty"`
}

// FunctionResponse is the caller's answer to a prior FunctionCall.
type FunctionResponse struct {
	ID       string          `json:"id,omitempty"`
	Name     string          `json:"name,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
}

// InlineData carries a base64-encoded media part (e.g. an image).
type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Content is one turn of conversation history, role "user" or "model".
type Content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// Tool is one callable function definition, dialect-agnostic.
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// Build is the dialect-agnostic output of a front end, ready for shared
// post-processing.
type Build struct {
	Contents   []Content
	Tools      []Tool
	SystemText string
}
