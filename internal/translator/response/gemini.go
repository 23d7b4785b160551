package response

import (
	"encoding/json"

	"github.com/openrelay/antigravity-gateway/internal/upstream"
)

// GeminiStream projects upstream deltas into Gemini streamGenerateContent
// chunks. Like the OpenAI projection it is essentially stateless; the
// only carried state is the running usage total emitted in the final
// chunk.
type GeminiStream struct {
	PassSignature bool
	usage         upstream.Usage
}

// NewGeminiStream starts a Gemini stream.
func NewGeminiStream(passSignature bool) *GeminiStream {
	return &GeminiStream{PassSignature: passSignature}
}

type geminiPart struct {
	Text             string          `json:"text,omitempty"`
	Thought          bool            `json:"thought,omitempty"`
	ThoughtSignature string          `json:"thoughtSignature,omitempty"`
	FunctionCall     *geminiFuncCall `json:"functionCall,omitempty"`
}

type geminiFuncCall struct {
	Name string `json:"name"`
	Args any    `json:"args"`
}

type geminiChunk struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata *geminiUsage      `json:"usageMetadata,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
	Index        int           `json:"index"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// Chunk projects one upstream delta into a candidates[0].content.parts
// fragment. Usage deltas are absorbed and folded into Final.
func (s *GeminiStream) Chunk(d upstream.Delta) []byte {
	var part geminiPart
	switch d.Kind {
	case upstream.DeltaContent:
		part = geminiPart{Text: d.Content}
	case upstream.DeltaReasoning:
		part = geminiPart{Text: d.ReasoningContent, Thought: true}
		if s.PassSignature {
			part.ThoughtSignature = d.ThoughtSignature
		}
	case upstream.DeltaToolCalls:
		tc := d.ToolCalls[0]
		var args any
		_ = json.Unmarshal([]byte(tc.Arguments), &args)
		part = geminiPart{FunctionCall: &geminiFuncCall{Name: tc.Name, Args: args}}
	case upstream.DeltaUsage:
		s.usage = d.Usage
		return nil
	}
	chunk := geminiChunk{Candidates: []geminiCandidate{{Content: geminiContent{Role: "model", Parts: []geminiPart{part}}, Index: 0}}}
	out, _ := json.Marshal(chunk)
	return out
}

// Final emits the terminal chunk. finishReason is always "STOP" in this
// mapping, even when the completion was a tool call.
func (s *GeminiStream) Final() []byte {
	chunk := geminiChunk{
		Candidates: []geminiCandidate{{
			Content:      geminiContent{Role: "model", Parts: []geminiPart{}},
			FinishReason: "STOP",
			Index:        0,
		}},
		UsageMetadata: &geminiUsage{
			PromptTokenCount:     s.usage.PromptTokens,
			CandidatesTokenCount: s.usage.CompletionTokens,
			TotalTokenCount:      s.usage.TotalTokens,
		},
	}
	out, _ := json.Marshal(chunk)
	return out
}

// BuildGeminiNonStream assembles a single generateContent response from a
// fully parsed unary result.
func BuildGeminiNonStream(result *upstream.UnaryResult, passSignature bool) []byte {
	var parts []geminiPart
	if result.ReasoningContent != "" {
		p := geminiPart{Text: result.ReasoningContent, Thought: true}
		if passSignature {
			p.ThoughtSignature = result.ReasoningSignature
		}
		parts = append(parts, p)
	}
	if result.Content != "" {
		parts = append(parts, geminiPart{Text: result.Content})
	}
	for _, tc := range result.ToolCalls {
		var args any
		_ = json.Unmarshal([]byte(tc.Arguments), &args)
		parts = append(parts, geminiPart{FunctionCall: &geminiFuncCall{Name: tc.Name, Args: args}})
	}
	chunk := geminiChunk{
		Candidates: []geminiCandidate{{
			Content:      geminiContent{Role: "model", Parts: parts},
			FinishReason: "STOP",
			Index:        0,
		}},
		UsageMetadata: &geminiUsage{
			PromptTokenCount:     result.Usage.PromptTokens,
			CandidatesTokenCount: result.Usage.CompletionTokens,
			TotalTokenCount:      result.Usage.TotalTokens,
		},
	}
	out, _ := json.Marshal(chunk)
	return out
}
