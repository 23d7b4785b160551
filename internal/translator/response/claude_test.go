package response

import (
	"testing"

	"github.com/tidwall/gjson"

	"github.com/openrelay/antigravity-gateway/internal/upstream"
)

func collectEvents(s *ClaudeStream, deltas []upstream.Delta) []Event {
	var events []Event
	for _, d := range deltas {
		events = append(events, s.OnDelta(d)...)
	}
	events = append(events, s.Complete()...)
	return events
}

func eventNames(events []Event) []string {
	names := make([]string, len(events))
	for i, ev := range events {
		names[i] = ev.Name
	}
	return names
}

func TestClaudeStreamThinkingThenText(t *testing.T) {
	t.Parallel()

	s := NewClaudeStream("msg_1", "claude-sonnet-4", false)
	events := collectEvents(s, []upstream.Delta{
		{Kind: upstream.DeltaReasoning, ReasoningContent: "let me think"},
		{Kind: upstream.DeltaReasoning, ReasoningContent: "."},
		{Kind: upstream.DeltaContent, Content: "Hello"},
		{Kind: upstream.DeltaUsage, Usage: upstream.Usage{CompletionTokens: 5}},
	})

	want := []string{
		"message_start",
		"content_block_start",
		"content_block_delta",
		"content_block_delta",
		"content_block_stop",
		"content_block_start",
		"content_block_delta",
		"content_block_stop",
		"message_delta",
		"message_stop",
	}
	names := eventNames(events)
	if len(names) != len(want) {
		t.Fatalf("events = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("event %d = %s, want %s (full: %v)", i, names[i], want[i], names)
		}
	}

	// Thinking block at index 0, text block at index 1.
	thinkingStart := gjson.ParseBytes(events[1].Data)
	if thinkingStart.Get("index").Int() != 0 || thinkingStart.Get("content_block.type").String() != "thinking" {
		t.Errorf("first block = %s, want thinking at index 0", events[1].Data)
	}
	firstDelta := gjson.ParseBytes(events[2].Data)
	if got := firstDelta.Get("delta.thinking").String(); got != "let me think" {
		t.Errorf("thinking delta = %q, want full text", got)
	}
	textStart := gjson.ParseBytes(events[5].Data)
	if textStart.Get("index").Int() != 1 || textStart.Get("content_block.type").String() != "text" {
		t.Errorf("second block = %s, want text at index 1", events[5].Data)
	}
	textDelta := gjson.ParseBytes(events[6].Data)
	if got := textDelta.Get("delta.text").String(); got != "Hello" {
		t.Errorf("text delta = %q, want Hello", got)
	}

	msgDelta := gjson.ParseBytes(events[8].Data)
	if got := msgDelta.Get("delta.stop_reason").String(); got != "end_turn" {
		t.Errorf("stop_reason = %q, want end_turn", got)
	}
	if got := msgDelta.Get("usage.output_tokens").Int(); got != 5 {
		t.Errorf("output_tokens = %d, want 5", got)
	}
}

func TestClaudeStreamToolUse(t *testing.T) {
	t.Parallel()

	s := NewClaudeStream("msg_1", "claude-sonnet-4", false)
	events := collectEvents(s, []upstream.Delta{
		{Kind: upstream.DeltaContent, Content: "calling"},
		{Kind: upstream.DeltaToolCalls, ToolCalls: []upstream.ToolCall{
			{ID: "toolu_1", Name: "lookup", Arguments: `{"q":"x"}`},
		}},
	})

	want := []string{
		"message_start",
		"content_block_start", // text
		"content_block_delta",
		"content_block_stop",
		"content_block_start", // tool_use
		"content_block_delta",
		"content_block_stop",
		"message_delta",
		"message_stop",
	}
	names := eventNames(events)
	if len(names) != len(want) {
		t.Fatalf("events = %v, want %v", names, want)
	}

	toolStart := gjson.ParseBytes(events[4].Data)
	if toolStart.Get("content_block.type").String() != "tool_use" ||
		toolStart.Get("content_block.id").String() != "toolu_1" ||
		toolStart.Get("content_block.name").String() != "lookup" {
		t.Errorf("tool_use start = %s, want id and name", events[4].Data)
	}
	toolDelta := gjson.ParseBytes(events[5].Data)
	if toolDelta.Get("delta.type").String() != "input_json_delta" ||
		toolDelta.Get("delta.partial_json").String() != `{"q":"x"}` {
		t.Errorf("tool_use delta = %s, want full input_json_delta", events[5].Data)
	}

	msgDelta := gjson.ParseBytes(events[7].Data)
	if got := msgDelta.Get("delta.stop_reason").String(); got != "tool_use" {
		t.Errorf("stop_reason = %q, want tool_use", got)
	}
}

func TestClaudeStreamIndicesContiguous(t *testing.T) {
	t.Parallel()

	s := NewClaudeStream("msg_1", "claude-sonnet-4", false)
	events := collectEvents(s, []upstream.Delta{
		{Kind: upstream.DeltaReasoning, ReasoningContent: "a"},
		{Kind: upstream.DeltaContent, Content: "b"},
		{Kind: upstream.DeltaToolCalls, ToolCalls: []upstream.ToolCall{
			{Name: "one", Arguments: `{}`},
			{Name: "two", Arguments: `{}`},
		}},
	})

	next := 0
	for _, ev := range events {
		if ev.Name != "content_block_start" {
			continue
		}
		idx := int(gjson.ParseBytes(ev.Data).Get("index").Int())
		if idx != next {
			t.Fatalf("block index = %d, want %d (strictly increasing, contiguous)", idx, next)
		}
		next++
	}
	if next != 4 {
		t.Errorf("block count = %d, want 4 (thinking, text, tool, tool)", next)
	}
}

func TestClaudeSignaturePassthroughGate(t *testing.T) {
	t.Parallel()

	delta := upstream.Delta{Kind: upstream.DeltaReasoning, ReasoningContent: "x", ThoughtSignature: "sig"}

	hidden := NewClaudeStream("msg_1", "m", false)
	for _, ev := range hidden.OnDelta(delta) {
		if gjson.ParseBytes(ev.Data).Get("delta.signature").Exists() ||
			gjson.ParseBytes(ev.Data).Get("content_block.signature").Exists() {
			t.Error("signatures must be stripped when passthrough is disabled")
		}
	}

	shown := NewClaudeStream("msg_2", "m", true)
	var sawSignature bool
	for _, ev := range shown.OnDelta(delta) {
		if gjson.ParseBytes(ev.Data).Get("delta.signature").String() == "sig" {
			sawSignature = true
		}
	}
	if !sawSignature {
		t.Error("signatures must pass through when enabled")
	}
}

func TestBuildClaudeNonStreamBlockOrder(t *testing.T) {
	t.Parallel()

	result := &upstream.UnaryResult{
		Content:            "answer",
		ReasoningContent:   "thought",
		ReasoningSignature: "sig",
		ToolCalls:          []upstream.ToolCall{{ID: "toolu_1", Name: "lookup", Arguments: `{"q":"x"}`}},
		Usage:              upstream.Usage{PromptTokens: 3, CompletionTokens: 9},
	}
	root := gjson.ParseBytes(BuildClaudeNonStream("msg_1", "claude-sonnet-4", result, true))

	blocks := root.Get("content").Array()
	if len(blocks) != 3 {
		t.Fatalf("content blocks = %d, want thinking, text, tool_use", len(blocks))
	}
	if blocks[0].Get("type").String() != "thinking" || blocks[0].Get("signature").String() != "sig" {
		t.Errorf("block 0 = %s, want signed thinking", blocks[0].Raw)
	}
	if blocks[1].Get("type").String() != "text" || blocks[1].Get("text").String() != "answer" {
		t.Errorf("block 1 = %s, want text", blocks[1].Raw)
	}
	if blocks[2].Get("type").String() != "tool_use" || blocks[2].Get("input.q").String() != "x" {
		t.Errorf("block 2 = %s, want tool_use with parsed input", blocks[2].Raw)
	}
	if got := root.Get("stop_reason").String(); got != "tool_use" {
		t.Errorf("stop_reason = %q, want tool_use", got)
	}
	if got := root.Get("usage.output_tokens").Int(); got != 9 {
		t.Errorf("output_tokens = %d, want 9", got)
	}
}
