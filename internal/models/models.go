// Package models resolves the model ids callers name on the three inbound
// surfaces to the concrete upstream antigravity model id, and reports
// which of those support a thinking configuration.
package models

import "strings"

// entry pairs an upstream model id with whether it accepts a thinking
// configuration.
type entry struct {
	upstreamID string
	thinking   bool
}

// aliases maps inbound-facing model ids (as named by OpenAI- and
// Claude-style clients) to their upstream antigravity equivalent. Gemini
// callers already name upstream ids directly and pass through unchanged.
var aliases = map[string]entry{
	"gpt-5":           {upstreamID: "gemini-3-pro-preview", thinking: true},
	"gpt-5-mini":      {upstreamID: "gemini-3-pro-preview-low", thinking: true},
	"gpt-4o":          {upstreamID: "gemini-2.5-pro", thinking: false},
	"claude-opus-4":   {upstreamID: "claude-opus-4.5", thinking: true},
	"claude-sonnet-4": {upstreamID: "claude-sonnet-4.5", thinking: true},
	"claude-haiku-4":  {upstreamID: "claude-haiku-4.5", thinking: false},
}

var known = map[string]entry{
	"gemini-3-pro-preview":     {upstreamID: "gemini-3-pro-preview", thinking: true},
	"gemini-3-pro-preview-low": {upstreamID: "gemini-3-pro-preview-low", thinking: true},
	"gemini-2.5-pro":           {upstreamID: "gemini-2.5-pro", thinking: true},
	"gemini-2.5-flash":         {upstreamID: "gemini-2.5-flash", thinking: false},
	"claude-opus-4.5":          {upstreamID: "claude-opus-4.5", thinking: true},
	"claude-sonnet-4.5":        {upstreamID: "claude-sonnet-4.5", thinking: true},
	"claude-haiku-4.5":         {upstreamID: "claude-haiku-4.5", thinking: false},
}

// Resolve returns the concrete upstream model id for a caller-supplied
// model name, defaulting to the name itself when it is already an
// upstream id (or unrecognized — the upstream will reject it if invalid).
func Resolve(callerModel string) string {
	if e, ok := aliases[callerModel]; ok {
		return e.upstreamID
	}
	if e, ok := known[callerModel]; ok {
		return e.upstreamID
	}
	return callerModel
}

// SupportsThinking reports whether the resolved upstream model accepts a
// thinkingConfig at all.
func SupportsThinking(upstreamModel string) bool {
	if e, ok := known[upstreamModel]; ok {
		return e.thinking
	}
	return strings.Contains(upstreamModel, "pro")
}
