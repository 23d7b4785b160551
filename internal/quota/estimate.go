package quota

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tiktoken-go/tokenizer"
)

// EstimatePromptTokens approximates the prompt-token count for an inbound
// chat body when the upstream omitted usage. It walks the text the three
// surfaces carry (OpenAI messages, Claude messages/system, Gemini
// contents) and counts tokens with a model-appropriate codec. Returns 0
// when nothing countable is found or the codec is unavailable.
func EstimatePromptTokens(model string, payload []byte) int {
	if len(payload) == 0 {
		return 0
	}
	enc, err := codecFor(model)
	if err != nil {
		return 0
	}

	root := gjson.ParseBytes(payload)
	var segments []string

	for _, msg := range root.Get("messages").Array() {
		collectContent(msg.Get("content"), &segments)
	}
	collectContent(root.Get("system"), &segments)
	for _, content := range root.Get("contents").Array() {
		for _, part := range content.Get("parts").Array() {
			addIfNotEmpty(&segments, part.Get("text").String())
		}
	}
	for _, sysPart := range root.Get("systemInstruction.parts").Array() {
		addIfNotEmpty(&segments, sysPart.Get("text").String())
	}

	joined := strings.TrimSpace(strings.Join(segments, "\n"))
	if joined == "" {
		return 0
	}
	ids, _, err := enc.Encode(joined)
	if err != nil {
		return 0
	}
	return len(ids)
}

// collectContent handles the bare-string and typed-block content shapes
// OpenAI and Claude share.
func collectContent(content gjson.Result, segments *[]string) {
	if !content.Exists() {
		return
	}
	if content.Type == gjson.String {
		addIfNotEmpty(segments, content.String())
		return
	}
	for _, part := range content.Array() {
		switch part.Get("type").String() {
		case "text", "input_text":
			addIfNotEmpty(segments, part.Get("text").String())
		case "thinking":
			addIfNotEmpty(segments, part.Get("thinking").String())
		case "tool_result":
			collectContent(part.Get("content"), segments)
		}
	}
}

func addIfNotEmpty(segments *[]string, s string) {
	if strings.TrimSpace(s) != "" {
		*segments = append(*segments, s)
	}
}

// codecFor picks a tokenizer codec by model-id prefix. Non-OpenAI ids get
// the o200k base, which is close enough for a best-effort estimate.
func codecFor(model string) (tokenizer.Codec, error) {
	sanitized := strings.ToLower(strings.TrimSpace(model))
	switch {
	case strings.HasPrefix(sanitized, "gpt-4o"):
		return tokenizer.ForModel(tokenizer.GPT4o)
	case strings.HasPrefix(sanitized, "gpt-4"):
		return tokenizer.ForModel(tokenizer.GPT4)
	case strings.HasPrefix(sanitized, "gpt-3"):
		return tokenizer.ForModel(tokenizer.GPT35Turbo)
	default:
		return tokenizer.Get(tokenizer.O200kBase)
	}
}
