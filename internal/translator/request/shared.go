package request

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/openrelay/antigravity-gateway/internal/params"
	"github.com/openrelay/antigravity-gateway/internal/sigcache"
)

// ThreadFunctionCallIDs walks contents in order, assigning a fresh id to
// every functionCall part that lacks one, then assigning the matching id
// (in the same order) to functionResponse parts that lack one. This
// recovers pairing for SDKs that omit ids on one or both sides.
func ThreadFunctionCallIDs(contents []Content) {
	var pendingIDs []string
	for i := range contents {
		if contents[i].Role != "model" {
			continue
		}
		for j := range contents[i].Parts {
			fc := contents[i].Parts[j].FunctionCall
			if fc == nil {
				continue
			}
			if fc.ID == "" {
				fc.ID = uuid.NewString()
			}
			pendingIDs = append(pendingIDs, fc.ID)
		}
	}

	idx := 0
	for i := range contents {
		if contents[i].Role != "user" {
			continue
		}
		for j := range contents[i].Parts {
			fr := contents[i].Parts[j].FunctionResponse
			if fr == nil || fr.ID != "" {
				continue
			}
			if idx < len(pendingIDs) {
				fr.ID = pendingIDs[idx]
				idx++
			}
		}
	}
}

// StitchThoughtParts implements the thought-signature threading rules: it
// merges a standalone signature part into the first unsigned thought part
// (or injects a placeholder thought part carrying the cached reasoning
// signature when the message has none), then spends any remaining
// standalone signature parts on functionCall parts lacking a signature,
// falling back to the cached tool signature for any that are left over.
// It is a no-op when thinkingSupported is false.
func StitchThoughtParts(contents []Content, thinkingSupported bool, cache *sigcache.Cache, model string) {
	if !thinkingSupported {
		return
	}
	cachedReasoning, _ := cache.GetThinking(model)
	cachedTool, _ := cache.GetToolCall(model)

	for i := range contents {
		if contents[i].Role != "model" {
			continue
		}
		stitchMessage(&contents[i], cachedReasoning, cachedTool)
	}
}

func stitchMessage(content *Content, cachedReasoning, cachedTool string) {
	parts := content.Parts

	thoughtIdx := -1
	standaloneIdx := -1
	for i, p := range parts {
		if thoughtIdx == -1 && p.Thought && p.ThoughtSignature == "" {
			thoughtIdx = i
		}
		if standaloneIdx == -1 && p.IsStandaloneSignature() {
			standaloneIdx = i
		}
	}

	hasThought := false
	for _, p := range parts {
		if p.Thought {
			hasThought = true
			break
		}
	}

	switch {
	case thoughtIdx >= 0 && standaloneIdx >= 0:
		parts[thoughtIdx].ThoughtSignature = parts[standaloneIdx].ThoughtSignature
		parts = append(parts[:standaloneIdx], parts[standaloneIdx+1:]...)
	case !hasThought:
		placeholder := Part{Thought: true, Text: "", ThoughtSignature: cachedReasoning}
		parts = append([]Part{placeholder}, parts...)
	}

	var remainingStandalone []int
	for i, p := range parts {
		if p.IsStandaloneSignature() {
			remainingStandalone = append(remainingStandalone, i)
		}
	}
	consumeAt := 0
	var keep []Part
	consumed := make(map[int]bool)
	for i := range parts {
		if fc := parts[i].FunctionCall; fc != nil && fc.ThoughtSignature == "" {
			if consumeAt < len(remainingStandalone) {
				fc.ThoughtSignature = parts[remainingStandalone[consumeAt]].ThoughtSignature
				consumed[remainingStandalone[consumeAt]] = true
				consumeAt++
			} else {
				fc.ThoughtSignature = cachedTool
			}
		}
	}
	for i, p := range parts {
		if consumed[i] {
			continue
		}
		keep = append(keep, p)
	}
	content.Parts = keep
}

// MergeSystemInstruction concatenates the process-wide configured system
// instruction in front of any caller-supplied system text, returning the
// composite wrapped in a role=user systemInstruction Content (or nil if
// both are empty).
func MergeSystemInstruction(configured, callerSupplied string) *Content {
	composite := configured
	if callerSupplied != "" {
		if composite != "" {
			composite += "\n"
		}
		composite += callerSupplied
	}
	if composite == "" {
		return nil
	}
	return &Content{Role: "user", Parts: []Part{{Text: composite}}}
}

// UpstreamTool and ToolConfig are the upstream antigravity tool-calling
// shapes produced by ConvertTools.
type UpstreamTool struct {
	FunctionDeclarations []UpstreamFunctionDeclaration `json:"functionDeclarations"`
}

type UpstreamFunctionDeclaration struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type ToolConfig struct {
	FunctionCallingConfig FunctionCallingConfig `json:"functionCallingConfig"`
}

type FunctionCallingConfig struct {
	Mode string `json:"mode"`
}

// ConvertTools rewrites the dialect-agnostic Tool list into the upstream
// antigravity schema, defaulting toolConfig's mode to VALIDATED when any
// tools are present.
func ConvertTools(tools []Tool) ([]UpstreamTool, *ToolConfig) {
	if len(tools) == 0 {
		return nil, nil
	}
	decls := make([]UpstreamFunctionDeclaration, len(tools))
	for i, t := range tools {
		decls[i] = UpstreamFunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		}
	}
	return []UpstreamTool{{FunctionDeclarations: decls}}, &ToolConfig{
		FunctionCallingConfig: FunctionCallingConfig{Mode: "VALIDATED"},
	}
}

// InnerRequest is the upstream "request" object nested inside the
// envelope.
type InnerRequest struct {
	Contents          []Content            `json:"contents"`
	SystemInstruction *Content             `json:"systemInstruction,omitempty"`
	Tools             []UpstreamTool       `json:"tools,omitempty"`
	ToolConfig        *ToolConfig          `json:"toolConfig,omitempty"`
	GenerationConfig  generationConfigJSON `json:"generationConfig"`
	SessionID         string               `json:"sessionId,omitempty"`
}

type generationConfigJSON struct {
	TopP            *float64 `json:"topP,omitempty"`
	TopK            *int     `json:"topK,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	CandidateCount  int      `json:"candidateCount"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	ThinkingConfig  struct {
		IncludeThoughts bool `json:"includeThoughts"`
		ThinkingBudget  int  `json:"thinkingBudget"`
	} `json:"thinkingConfig"`
}

// Envelope is the top-level body sent to the antigravity upstream.
type Envelope struct {
	Project   string       `json:"project"`
	RequestID string       `json:"requestId"`
	Request   InnerRequest `json:"request"`
	Model     string       `json:"model"`
	UserAgent string       `json:"userAgent"`
}

// BuildEnvelope assembles the final upstream request body from a fully
// post-processed Build plus the resolved model/project/session context.
func BuildEnvelope(build Build, systemInstruction *Content, projectID, model, sessionID string, gen params.UpstreamGenerationConfig) ([]byte, error) {
	tools, toolConfig := ConvertTools(build.Tools)

	genJSON := generationConfigJSON{
		TopP:            gen.TopP,
		TopK:            gen.TopK,
		Temperature:     gen.Temperature,
		CandidateCount:  gen.CandidateCount,
		MaxOutputTokens: gen.MaxOutputTokens,
	}
	genJSON.ThinkingConfig.IncludeThoughts = gen.IncludeThoughts
	genJSON.ThinkingConfig.ThinkingBudget = gen.ThinkingBudget

	env := Envelope{
		Project:   projectID,
		RequestID: uuid.NewString(),
		Request: InnerRequest{
			Contents:          build.Contents,
			SystemInstruction: systemInstruction,
			Tools:             tools,
			ToolConfig:        toolConfig,
			GenerationConfig:  genJSON,
			SessionID:         sessionID,
		},
		Model:     model,
		UserAgent: "antigravity",
	}
	return json.Marshal(env)
}
