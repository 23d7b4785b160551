package request

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// FromGemini parses a Gemini generateContent request body into the
// shared Build shape. Contents are already in the upstream-like shape, so
// this is mostly a structural decode rather than a dialect rewrite.
func FromGemini(rawJSON []byte) Build {
	root := gjson.ParseBytes(rawJSON)

	var build Build
	for _, content := range root.Get("contents").Array() {
		role := content.Get("role").String()
		if role == "" {
			role = "user"
		}
		var parts []Part
		for _, part := range content.Get("parts").Array() {
			parts = append(parts, geminiPart(part))
		}
		build.Contents = append(build.Contents, Content{Role: role, Parts: parts})
	}

	if sysParts := root.Get("systemInstruction.parts").Array(); len(sysParts) > 0 {
		build.SystemText = sysParts[0].Get("text").String()
	}

	for _, tool := range root.Get("tools").Array() {
		for _, fn := range tool.Get("functionDeclarations").Array() {
			build.Tools = append(build.Tools, Tool{
				Name:        fn.Get("name").String(),
				Description: fn.Get("description").String(),
				Parameters:  json.RawMessage(nonEmptyRaw(fn.Get("parameters").Raw)),
			})
		}
	}

	return build
}

func geminiPart(part gjson.Result) Part {
	if fc := part.Get("functionCall"); fc.Exists() {
		return Part{FunctionCall: &FunctionCall{
			Name:             fc.Get("name").String(),
			Args:             json.RawMessage(nonEmptyRaw(fc.Get("args").Raw)),
			ThoughtSignature: part.Get("thoughtSignature").String(),
		}}
	}
	if fr := part.Get("functionResponse"); fr.Exists() {
		return Part{FunctionResponse: &FunctionResponse{
			Name:     fr.Get("name").String(),
			Response: json.RawMessage(nonEmptyRaw(fr.Get("response").Raw)),
		}}
	}
	if inline := part.Get("inlineData"); inline.Exists() {
		return Part{InlineData: &InlineData{
			MimeType: inline.Get("mimeType").String(),
			Data:     inline.Get("data").String(),
		}}
	}
	return Part{
		Text:             part.Get("text").String(),
		Thought:          part.Get("thought").Bool(),
		ThoughtSignature: part.Get("thoughtSignature").String(),
	}
}
