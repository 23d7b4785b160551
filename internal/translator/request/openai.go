package request

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// FromOpenAI parses an OpenAI Chat Completions request body into the
// shared Build shape. System and developer messages are concatenated (in
// order) into SystemText rather than placed in Contents.
func FromOpenAI(rawJSON []byte) Build {
	root := gjson.ParseBytes(rawJSON)

	var build Build
	var systemParts []string
	callIDToName := map[string]string{}

	for _, msg := range root.Get("messages").Array() {
		role := msg.Get("role").String()
		switch role {
		case "system", "developer":
			if text := msg.Get("content").String(); text != "" {
				systemParts = append(systemParts, text)
			}
		case "user":
			build.Contents = append(build.Contents, Content{Role: "user", Parts: []Part{{Text: messageText(msg)}}})
		case "assistant":
			var parts []Part
			if text := messageText(msg); text != "" {
				parts = append(parts, Part{Text: text})
			}
			for _, tc := range msg.Get("tool_calls").Array() {
				id := tc.Get("id").String()
				name := tc.Get("function.name").String()
				callIDToName[id] = name
				parts = append(parts, Part{FunctionCall: &FunctionCall{
					ID:   id,
					Name: name,
					Args: jsonArgs(tc.Get("function.arguments").String()),
				}})
			}
			if len(parts) > 0 {
				build.Contents = append(build.Contents, Content{Role: "model", Parts: parts})
			}
		case "tool":
			id := msg.Get("tool_call_id").String()
			response, _ := json.Marshal(map[string]string{"result": msg.Get("content").String()})
			build.Contents = append(build.Contents, Content{Role: "user", Parts: []Part{{
				FunctionResponse: &FunctionResponse{ID: id, Name: callIDToName[id], Response: response},
			}}})
		}
	}

	for _, tool := range root.Get("tools").Array() {
		fn := tool.Get("function")
		build.Tools = append(build.Tools, Tool{
			Name:        fn.Get("name").String(),
			Description: fn.Get("description").String(),
			Parameters:  json.RawMessage(fn.Get("parameters").Raw),
		})
	}

	build.SystemText = strings.Join(systemParts, "\n")
	return build
}

// messageText extracts plain text from an OpenAI message whose content is
// either a bare string or an array of {type:"text", text:...} parts.
func messageText(msg gjson.Result) string {
	content := msg.Get("content")
	if content.Type == gjson.String {
		return content.String()
	}
	var parts []string
	for _, part := range content.Array() {
		if part.Get("type").String() == "text" {
			parts = append(parts, part.Get("text").String())
		}
	}
	return strings.Join(parts, "")
}

func jsonArgs(raw string) json.RawMessage {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return json.RawMessage("{}")
	}
	if !json.Valid([]byte(raw)) {
		return json.RawMessage("{}")
	}
	return json.RawMessage(raw)
}
