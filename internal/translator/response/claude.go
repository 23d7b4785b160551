package response

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/openrelay/antigravity-gateway/internal/upstream"
)

// blockCursor tracks which kind of content block, if any, is currently
// open on the Claude stream.
type blockCursor int

const (
	cursorNone blockCursor = iota
	cursorThinking
	cursorText
)

// Event is one named SSE event for the Claude wire format: `event: <Name>
// \ndata: <Data>\n\n`.
type Event struct {
	Name string
	Data []byte
}

// ClaudeStream drives the block-cursor protocol described for Claude
// streaming: an explicit state machine over {none, thinking, text} plus
// transient tool_use emissions, with strictly increasing, contiguous
// block indices.
type ClaudeStream struct {
	ID            string
	Model         string
	PassSignature bool

	started      bool
	cursor       blockCursor
	index        int
	hadToolUse   bool
	outputTokens int
}

// NewClaudeStream starts a Claude stream identified by id for model.
func NewClaudeStream(id, model string, passSignature bool) *ClaudeStream {
	return &ClaudeStream{ID: id, Model: model, PassSignature: passSignature}
}

func (s *ClaudeStream) maybeSignature(sig string) string {
	if !s.PassSignature {
		return ""
	}
	return sig
}

func (s *ClaudeStream) messageStart() Event {
	s.started = true
	payload, _ := json.Marshal(map[string]any{
		"type": "message_start",
		"message": map[string]any{
			"id":          s.ID,
			"type":        "message",
			"role":        "assistant",
			"model":       s.Model,
			"content":     []any{},
			"stop_reason": nil,
			"usage":       map[string]int{"input_tokens": 0, "output_tokens": 0},
		},
	})
	return Event{Name: "message_start", Data: payload}
}

func blockEvent(name string, index int, fields map[string]any) Event {
	fields["index"] = index
	payload, _ := json.Marshal(fields)
	return Event{Name: name, Data: payload}
}

// OnDelta feeds one upstream delta into the state machine, returning the
// ordered events it produces (zero or more). Usage deltas do not produce
// events directly; their totals are folded into the terminal Complete
// call by the caller.
func (s *ClaudeStream) OnDelta(d upstream.Delta) []Event {
	var events []Event
	if !s.started {
		events = append(events, s.messageStart())
	}

	switch d.Kind {
	case upstream.DeltaReasoning:
		if s.cursor != cursorThinking {
			events = append(events, s.closeOpenBlock()...)
			fields := map[string]any{"type": "content_block_start", "content_block": map[string]any{
				"type": "thinking", "thinking": "",
			}}
			if sig := s.maybeSignature(d.ThoughtSignature); sig != "" {
				fields["content_block"].(map[string]any)["signature"] = sig
			}
			events = append(events, blockEvent("content_block_start", s.index, fields))
			s.cursor = cursorThinking
		}
		deltaFields := map[string]any{"type": "content_block_delta", "delta": map[string]any{
			"type": "thinking_delta", "thinking": d.ReasoningContent,
		}}
		if sig := s.maybeSignature(d.ThoughtSignature); sig != "" {
			deltaFields["delta"].(map[string]any)["signature"] = sig
		}
		events = append(events, blockEvent("content_block_delta", s.index, deltaFields))

	case upstream.DeltaContent:
		if s.cursor != cursorText {
			events = append(events, s.closeOpenBlock()...)
			events = append(events, blockEvent("content_block_start", s.index, map[string]any{
				"type": "content_block_start", "content_block": map[string]any{"type": "text", "text": ""},
			}))
			s.cursor = cursorText
		}
		events = append(events, blockEvent("content_block_delta", s.index, map[string]any{
			"type": "content_block_delta", "delta": map[string]any{"type": "text_delta", "text": d.Content},
		}))

	case upstream.DeltaToolCalls:
		events = append(events, s.closeOpenBlock()...)
		s.hadToolUse = true
		for _, tc := range d.ToolCalls {
			startFields := map[string]any{"type": "content_block_start", "content_block": map[string]any{
				"type": "tool_use", "id": toolUseID(tc.ID), "name": tc.Name, "input": map[string]any{},
			}}
			events = append(events, blockEvent("content_block_start", s.index, startFields))
			events = append(events, blockEvent("content_block_delta", s.index, map[string]any{
				"type": "content_block_delta", "delta": map[string]any{"type": "input_json_delta", "partial_json": tc.Arguments},
			}))
			events = append(events, blockEvent("content_block_stop", s.index, map[string]any{"type": "content_block_stop"}))
			s.index++
		}
		s.cursor = cursorNone

	case upstream.DeltaUsage:
		s.outputTokens = d.Usage.CompletionTokens
	}
	return events
}

// closeOpenBlock emits content_block_stop for the currently open block
// (if any) and advances the index, without resetting cursor (callers set
// the new cursor themselves).
func (s *ClaudeStream) closeOpenBlock() []Event {
	if s.cursor == cursorNone {
		return nil
	}
	ev := blockEvent("content_block_stop", s.index, map[string]any{"type": "content_block_stop"})
	s.index++
	s.cursor = cursorNone
	return []Event{ev}
}

// Complete closes any open block and emits the terminal message_delta and
// message_stop events.
func (s *ClaudeStream) Complete() []Event {
	events := s.closeOpenBlock()

	stopReason := "end_turn"
	if s.hadToolUse {
		stopReason = "tool_use"
	}
	deltaPayload, _ := json.Marshal(map[string]any{
		"type":  "message_delta",
		"delta": map[string]any{"stop_reason": stopReason},
		"usage": map[string]int{"output_tokens": s.outputTokens},
	})
	events = append(events, Event{Name: "message_delta", Data: deltaPayload})

	stopPayload, _ := json.Marshal(map[string]any{"type": "message_stop"})
	events = append(events, Event{Name: "message_stop", Data: stopPayload})
	return events
}

// BuildClaudeNonStream assembles a single Messages response from a fully
// parsed unary result, ordering blocks thinking -> text -> tool_use.
func BuildClaudeNonStream(id, model string, result *upstream.UnaryResult, passSignature bool) []byte {
	var content []map[string]any
	if result.ReasoningContent != "" {
		block := map[string]any{"type": "thinking", "thinking": result.ReasoningContent}
		if passSignature && result.ReasoningSignature != "" {
			block["signature"] = result.ReasoningSignature
		}
		content = append(content, block)
	}
	if result.Content != "" {
		content = append(content, map[string]any{"type": "text", "text": result.Content})
	}
	stopReason := "end_turn"
	for _, tc := range result.ToolCalls {
		stopReason = "tool_use"
		var input any
		_ = json.Unmarshal([]byte(tc.Arguments), &input)
		content = append(content, map[string]any{"type": "tool_use", "id": toolUseID(tc.ID), "name": tc.Name, "input": input})
	}

	out := map[string]any{
		"id": id, "type": "message", "role": "assistant", "model": model,
		"content": content, "stop_reason": stopReason,
		"usage": map[string]int{
			"input_tokens":  result.Usage.PromptTokens,
			"output_tokens": result.Usage.CompletionTokens,
		},
	}
	data, _ := json.Marshal(out)
	return data
}

// toolUseID returns id, minting one when the upstream omitted it (Claude
// clients require every tool_use block to carry an id).
func toolUseID(id string) string {
	if id != "" {
		return id
	}
	return "toolu_" + uuid.NewString()
}
