// Package params collapses the three inbound generation-parameter shapes
// (OpenAI, Claude, Gemini) into one internal shape and projects that shape
// back onto the upstream antigravity generationConfig.
package params

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Normalized is the single internal generation-parameter shape every
// inbound surface collapses to.
type Normalized struct {
	MaxTokens      int
	Temperature    float64
	HasTemperature bool
	TopP           float64
	HasTopP        bool
	TopK           int
	HasTopK        bool
	ThinkingBudget int
	HasThinking    bool
}

var reasoningEffortBudgets = map[string]int{
	"low":    1024,
	"medium": 16000,
	"high":   32000,
}

// FromOpenAI reads max_tokens/temperature/top_p/top_k plus either
// thinking_budget or reasoning_effort from an OpenAI-shaped request body.
func FromOpenAI(body gjson.Result) Normalized {
	n := Normalized{MaxTokens: int(body.Get("max_tokens").Int())}
	if v := body.Get("temperature"); v.Exists() {
		n.Temperature, n.HasTemperature = v.Float(), true
	}
	if v := body.Get("top_p"); v.Exists() {
		n.TopP, n.HasTopP = v.Float(), true
	}
	if v := body.Get("top_k"); v.Exists() {
		n.TopK, n.HasTopK = int(v.Int()), true
	}
	if v := body.Get("thinking_budget"); v.Exists() {
		n.ThinkingBudget, n.HasThinking = int(v.Int()), true
	} else if v := body.Get("reasoning_effort"); v.Exists() {
		if budget, ok := reasoningEffortBudgets[strings.ToLower(v.String())]; ok {
			n.ThinkingBudget, n.HasThinking = budget, true
		}
	}
	return n
}

// FromClaude reads max_tokens/temperature/top_p/top_k plus the
// thinking.type/thinking.budget_tokens pair from a Claude-shaped body.
func FromClaude(body gjson.Result) Normalized {
	n := Normalized{MaxTokens: int(body.Get("max_tokens").Int())}
	if v := body.Get("temperature"); v.Exists() {
		n.Temperature, n.HasTemperature = v.Float(), true
	}
	if v := body.Get("top_p"); v.Exists() {
		n.TopP, n.HasTopP = v.Float(), true
	}
	if v := body.Get("top_k"); v.Exists() {
		n.TopK, n.HasTopK = int(v.Int()), true
	}
	thinking := body.Get("thinking")
	if thinking.Exists() {
		switch thinking.Get("type").String() {
		case "enabled":
			n.ThinkingBudget, n.HasThinking = int(thinking.Get("budget_tokens").Int()), true
		case "disabled":
			n.ThinkingBudget, n.HasThinking = 0, true
		}
	}
	return n
}

// FromGemini reads maxOutputTokens/temperature/topP/topK plus
// thinkingConfig.thinkingBudget (forced to 0 when includeThoughts=false)
// from a Gemini-shaped generationConfig object.
func FromGemini(generationConfig gjson.Result) Normalized {
	n := Normalized{MaxTokens: int(generationConfig.Get("maxOutputTokens").Int())}
	if v := generationConfig.Get("temperature"); v.Exists() {
		n.Temperature, n.HasTemperature = v.Float(), true
	}
	if v := generationConfig.Get("topP"); v.Exists() {
		n.TopP, n.HasTopP = v.Float(), true
	}
	if v := generationConfig.Get("topK"); v.Exists() {
		n.TopK, n.HasTopK = int(v.Int()), true
	}
	thinkingConfig := generationConfig.Get("thinkingConfig")
	if thinkingConfig.Exists() {
		if v := thinkingConfig.Get("thinkingBudget"); v.Exists() {
			n.ThinkingBudget, n.HasThinking = int(v.Int()), true
		}
		if includeThoughts := thinkingConfig.Get("includeThoughts"); includeThoughts.Exists() && !includeThoughts.Bool() {
			n.ThinkingBudget, n.HasThinking = 0, true
		}
	}
	return n
}

// UpstreamGenerationConfig is the projected shape sent to the antigravity
// upstream.
type UpstreamGenerationConfig struct {
	TopP            *float64
	TopK            *int
	Temperature     *float64
	CandidateCount  int
	MaxOutputTokens int
	IncludeThoughts bool
	ThinkingBudget  int
}

// Project converts n into the upstream generationConfig shape. modelID is
// the resolved upstream model id; thinkingSupported reports whether that
// model accepts a thinking configuration at all. When modelID names a
// Claude model and thinking is enabled, topP is omitted to satisfy an
// upstream constraint.
func Project(n Normalized, modelID string, thinkingSupported bool) UpstreamGenerationConfig {
	cfg := UpstreamGenerationConfig{
		CandidateCount:  1,
		MaxOutputTokens: n.MaxTokens,
	}
	if n.HasTemperature {
		t := n.Temperature
		cfg.Temperature = &t
	}
	if n.HasTopK {
		k := n.TopK
		cfg.TopK = &k
	}

	thinkingEnabled := thinkingSupported && n.HasThinking && n.ThinkingBudget > 0
	cfg.ThinkingBudget = n.ThinkingBudget
	cfg.IncludeThoughts = thinkingEnabled

	omitTopP := strings.Contains(strings.ToLower(modelID), "claude") && thinkingEnabled
	if n.HasTopP && !omitTopP {
		p := n.TopP
		cfg.TopP = &p
	}
	return cfg
}
