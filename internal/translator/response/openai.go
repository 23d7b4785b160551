// Package response converts upstream antigravity deltas (and unary
// results) into the wire events each of the three inbound surfaces
// expects, owning the per-surface streaming state machines.
package response

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/openrelay/antigravity-gateway/internal/upstream"
)

// OpenAIStream projects upstream deltas into OpenAI
// chat.completion.chunk events. Each delta maps to exactly one chunk; the
// only state carried across calls is the running tool-call index and the
// fields that must stay stable across a stream (id, model, created).
type OpenAIStream struct {
	ID            string
	Model         string
	Created       int64
	ToolCallIndex int
}

// NewOpenAIStream starts a stream identified by id for model, stamped
// with the current time.
func NewOpenAIStream(id, model string) *OpenAIStream {
	return &OpenAIStream{ID: id, Model: model, Created: time.Now().Unix()}
}

type openAIChunk struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []openAIChoice `json:"choices"`
	Usage   *openAIUsage   `json:"usage,omitempty"`
}

type openAIChoice struct {
	Index        int         `json:"index"`
	Delta        openAIDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason"`
}

type openAIDelta struct {
	Content          string                `json:"content,omitempty"`
	ReasoningContent string                `json:"reasoning_content,omitempty"`
	ToolCalls        []openAIToolCallDelta `json:"tool_calls,omitempty"`
}

type openAIToolCallDelta struct {
	Index    int                 `json:"index"`
	ID       string              `json:"id,omitempty"`
	Type     string              `json:"type,omitempty"`
	Function openAIFunctionDelta `json:"function"`
}

type openAIFunctionDelta struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Chunk projects one upstream delta into a chat.completion.chunk. Usage
// deltas are absorbed silently here; the final usage is emitted from
// Final, called once the upstream requester signals completion.
func (s *OpenAIStream) Chunk(d upstream.Delta) []byte {
	delta := openAIDelta{}
	switch d.Kind {
	case upstream.DeltaContent:
		delta.Content = d.Content
	case upstream.DeltaReasoning:
		delta.ReasoningContent = d.ReasoningContent
	case upstream.DeltaToolCalls:
		for _, tc := range d.ToolCalls {
			delta.ToolCalls = append(delta.ToolCalls, openAIToolCallDelta{
				Index:    s.ToolCallIndex,
				ID:       callID(tc.ID),
				Type:     "function",
				Function: openAIFunctionDelta{Name: tc.Name, Arguments: tc.Arguments},
			})
			s.ToolCallIndex++
		}
	case upstream.DeltaUsage:
		return nil
	}
	chunk := openAIChunk{
		ID: s.ID, Object: "chat.completion.chunk", Created: s.Created, Model: s.Model,
		Choices: []openAIChoice{{Index: 0, Delta: delta, FinishReason: nil}},
	}
	out, _ := json.Marshal(chunk)
	return out
}

// Final emits the terminal chunk carrying finish_reason and usage. Call
// once after the last delta.
func (s *OpenAIStream) Final(usage upstream.Usage, hadToolCalls bool) []byte {
	reason := "stop"
	if hadToolCalls {
		reason = "tool_calls"
	}
	chunk := openAIChunk{
		ID: s.ID, Object: "chat.completion.chunk", Created: s.Created, Model: s.Model,
		Choices: []openAIChoice{{Index: 0, Delta: openAIDelta{}, FinishReason: &reason}},
		Usage: &openAIUsage{
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
			TotalTokens:      usage.TotalTokens,
		},
	}
	out, _ := json.Marshal(chunk)
	return out
}

// BuildOpenAINonStream assembles a single chat.completion response from a
// fully parsed unary result.
func BuildOpenAINonStream(id, model string, result *upstream.UnaryResult) []byte {
	hasTools := len(result.ToolCalls) > 0
	reason := "stop"
	if hasTools {
		reason = "tool_calls"
	}
	delta := openAIDelta{Content: result.Content, ReasoningContent: result.ReasoningContent}
	for _, tc := range result.ToolCalls {
		delta.ToolCalls = append(delta.ToolCalls, openAIToolCallDelta{
			Index:    len(delta.ToolCalls),
			ID:       callID(tc.ID),
			Type:     "function",
			Function: openAIFunctionDelta{Name: tc.Name, Arguments: tc.Arguments},
		})
	}
	type nonStreamChoice struct {
		Index        int         `json:"index"`
		Message      openAIDelta `json:"message"`
		FinishReason string      `json:"finish_reason"`
	}
	out := struct {
		ID      string            `json:"id"`
		Object  string            `json:"object"`
		Created int64             `json:"created"`
		Model   string            `json:"model"`
		Choices []nonStreamChoice `json:"choices"`
		Usage   openAIUsage       `json:"usage"`
	}{
		ID: id, Object: "chat.completion", Created: time.Now().Unix(), Model: model,
		Choices: []nonStreamChoice{{Index: 0, Message: delta, FinishReason: reason}},
		Usage: openAIUsage{
			PromptTokens:     result.Usage.PromptTokens,
			CompletionTokens: result.Usage.CompletionTokens,
			TotalTokens:      result.Usage.TotalTokens,
		},
	}
	data, _ := json.Marshal(out)
	return data
}

// callID returns id, minting one when the upstream omitted it.
func callID(id string) string {
	if id != "" {
		return id
	}
	return "call_" + uuid.NewString()
}
