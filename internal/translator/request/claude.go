package request

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// FromClaude parses an Anthropic Messages request body into the shared
// Build shape.
func FromClaude(rawJSON []byte) Build {
	root := gjson.ParseBytes(rawJSON)

	var build Build
	build.SystemText = claudeSystemText(root.Get("system"))

	for _, msg := range root.Get("messages").Array() {
		role := upstreamRole(msg.Get("role").String())
		content := msg.Get("content")

		if content.Type == gjson.String {
			build.Contents = append(build.Contents, Content{Role: role, Parts: []Part{{Text: content.String()}}})
			continue
		}

		var parts []Part
		for _, block := range content.Array() {
			switch block.Get("type").String() {
			case "text":
				parts = append(parts, Part{Text: block.Get("text").String()})
			case "thinking":
				parts = append(parts, Part{
					Thought:          true,
					Text:             block.Get("thinking").String(),
					ThoughtSignature: block.Get("signature").String(),
				})
			case "tool_use":
				input := block.Get("input")
				parts = append(parts, Part{FunctionCall: &FunctionCall{
					ID:   block.Get("id").String(),
					Name: block.Get("name").String(),
					Args: json.RawMessage(nonEmptyRaw(input.Raw)),
				}})
			case "tool_result":
				parts = append(parts, Part{FunctionResponse: &FunctionResponse{
					ID:       block.Get("tool_use_id").String(),
					Response: toolResultResponse(block),
				}})
			case "image":
				source := block.Get("source")
				parts = append(parts, Part{InlineData: &InlineData{
					MimeType: source.Get("media_type").String(),
					Data:     source.Get("data").String(),
				}})
			}
		}
		if len(parts) > 0 {
			build.Contents = append(build.Contents, Content{Role: role, Parts: parts})
		}
	}

	for _, tool := range root.Get("tools").Array() {
		build.Tools = append(build.Tools, Tool{
			Name:        tool.Get("name").String(),
			Description: tool.Get("description").String(),
			Parameters:  json.RawMessage(nonEmptyRaw(tool.Get("input_schema").Raw)),
		})
	}

	return build
}

func upstreamRole(claudeRole string) string {
	if claudeRole == "assistant" {
		return "model"
	}
	return "user"
}

func claudeSystemText(system gjson.Result) string {
	if system.Type == gjson.String {
		return system.String()
	}
	var parts []string
	for _, block := range system.Array() {
		if text := block.Get("text").String(); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}

func toolResultResponse(block gjson.Result) json.RawMessage {
	content := block.Get("content")
	if content.Type == gjson.String {
		out, _ := json.Marshal(map[string]string{"result": content.String()})
		return out
	}
	var text strings.Builder
	for _, part := range content.Array() {
		if part.Get("type").String() == "text" {
			text.WriteString(part.Get("text").String())
		}
	}
	out, _ := json.Marshal(map[string]string{"result": text.String()})
	return out
}

func nonEmptyRaw(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "{}"
	}
	return raw
}
