package response

import (
	"testing"

	"github.com/tidwall/gjson"

	"github.com/openrelay/antigravity-gateway/internal/upstream"
)

func TestOpenAIStreamContentOnly(t *testing.T) {
	t.Parallel()

	s := NewOpenAIStream("chatcmpl-1", "gpt-5")

	first := gjson.ParseBytes(s.Chunk(upstream.Delta{Kind: upstream.DeltaContent, Content: "he"}))
	if got := first.Get("object").String(); got != "chat.completion.chunk" {
		t.Errorf("object = %q, want chat.completion.chunk", got)
	}
	if got := first.Get("choices.0.delta.content").String(); got != "he" {
		t.Errorf("first delta = %q, want he", got)
	}
	if first.Get("choices.0.finish_reason").Type != gjson.Null {
		t.Error("non-terminal chunk must carry finish_reason null")
	}

	second := gjson.ParseBytes(s.Chunk(upstream.Delta{Kind: upstream.DeltaContent, Content: "llo"}))
	if got := second.Get("choices.0.delta.content").String(); got != "llo" {
		t.Errorf("second delta = %q, want llo", got)
	}

	if s.Chunk(upstream.Delta{Kind: upstream.DeltaUsage}) != nil {
		t.Error("usage deltas must not produce a chunk")
	}

	final := gjson.ParseBytes(s.Final(upstream.Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3}, false))
	if got := final.Get("choices.0.finish_reason").String(); got != "stop" {
		t.Errorf("finish_reason = %q, want stop", got)
	}
	if final.Get("choices.0.delta.content").Exists() {
		t.Error("terminal chunk delta must be empty")
	}
	if got := final.Get("usage.total_tokens").Int(); got != 3 {
		t.Errorf("usage.total_tokens = %d, want 3", got)
	}
}

func TestOpenAIStreamToolCalls(t *testing.T) {
	t.Parallel()

	s := NewOpenAIStream("chatcmpl-1", "gpt-5")
	chunk := gjson.ParseBytes(s.Chunk(upstream.Delta{
		Kind: upstream.DeltaToolCalls,
		ToolCalls: []upstream.ToolCall{
			{ID: "t1", Name: "lookup", Arguments: `{"q":"x"}`},
			{Name: "fetch", Arguments: `{}`},
		},
	}))

	calls := chunk.Get("choices.0.delta.tool_calls").Array()
	if len(calls) != 2 {
		t.Fatalf("tool_calls = %d, want 2", len(calls))
	}
	if calls[0].Get("index").Int() != 0 || calls[1].Get("index").Int() != 1 {
		t.Error("tool_calls must be indexed in order")
	}
	if got := calls[0].Get("id").String(); got != "t1" {
		t.Errorf("first id = %q, want t1", got)
	}
	if calls[1].Get("id").String() == "" {
		t.Error("missing upstream id must be minted")
	}
	if got := calls[0].Get("function.arguments").String(); got != `{"q":"x"}` {
		t.Errorf("arguments = %q, want raw JSON string", got)
	}

	final := gjson.ParseBytes(s.Final(upstream.Usage{}, true))
	if got := final.Get("choices.0.finish_reason").String(); got != "tool_calls" {
		t.Errorf("finish_reason = %q, want tool_calls", got)
	}
}

func TestOpenAIReasoningDelta(t *testing.T) {
	t.Parallel()

	s := NewOpenAIStream("chatcmpl-1", "gpt-5")
	chunk := gjson.ParseBytes(s.Chunk(upstream.Delta{Kind: upstream.DeltaReasoning, ReasoningContent: "thinking..."}))
	if got := chunk.Get("choices.0.delta.reasoning_content").String(); got != "thinking..." {
		t.Errorf("reasoning_content = %q, want thinking...", got)
	}
}

func TestBuildOpenAINonStream(t *testing.T) {
	t.Parallel()

	result := &upstream.UnaryResult{
		Content:          "hello",
		ReasoningContent: "let me think",
		ToolCalls:        []upstream.ToolCall{{ID: "t1", Name: "lookup", Arguments: `{"q":"x"}`}},
		Usage:            upstream.Usage{PromptTokens: 5, CompletionTokens: 7, TotalTokens: 12},
	}
	root := gjson.ParseBytes(BuildOpenAINonStream("chatcmpl-1", "gpt-5", result))

	if got := root.Get("object").String(); got != "chat.completion" {
		t.Errorf("object = %q, want chat.completion", got)
	}
	if got := root.Get("choices.0.message.content").String(); got != "hello" {
		t.Errorf("content = %q, want hello", got)
	}
	if got := root.Get("choices.0.finish_reason").String(); got != "tool_calls" {
		t.Errorf("finish_reason = %q, want tool_calls", got)
	}
	if got := root.Get("usage.prompt_tokens").Int(); got != 5 {
		t.Errorf("prompt_tokens = %d, want 5", got)
	}
}
