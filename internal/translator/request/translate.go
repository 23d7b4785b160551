package request

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/openrelay/antigravity-gateway/internal/models"
	"github.com/openrelay/antigravity-gateway/internal/params"
	"github.com/openrelay/antigravity-gateway/internal/sigcache"
)

// Surface names which inbound dialect a request arrived on.
type Surface int

const (
	OpenAI Surface = iota
	Claude
	Gemini
)

// Context carries the per-request values the shared pipeline needs beyond
// the raw inbound body.
type Context struct {
	ProjectID            string
	SessionID            string
	ConfiguredSystemText string
	SigCache             *sigcache.Cache
}

// BuildUpstreamRequest runs a complete surface-to-upstream translation:
// dialect-specific parsing, function-call ID threading, thought-part
// stitching, system-instruction merge, tool conversion, and envelope
// wrapping. It returns the marshaled upstream body and the resolved
// upstream model id.
func BuildUpstreamRequest(surface Surface, rawJSON []byte, ctx Context) ([]byte, string, error) {
	callerModel := gjson.GetBytes(rawJSON, "model").String()
	if callerModel == "" {
		return nil, "", fmt.Errorf("request translator: missing model")
	}
	upstreamModel := models.Resolve(callerModel)
	thinkingSupported := models.SupportsThinking(upstreamModel)

	var build Build
	var normalized params.Normalized

	switch surface {
	case OpenAI:
		build = FromOpenAI(rawJSON)
		normalized = params.FromOpenAI(gjson.ParseBytes(rawJSON))
	case Claude:
		build = FromClaude(rawJSON)
		normalized = params.FromClaude(gjson.ParseBytes(rawJSON))
	case Gemini:
		build = FromGemini(rawJSON)
		normalized = params.FromGemini(gjson.GetBytes(rawJSON, "generationConfig"))
	default:
		return nil, "", fmt.Errorf("request translator: unknown surface")
	}

	ThreadFunctionCallIDs(build.Contents)
	StitchThoughtParts(build.Contents, thinkingSupported, ctx.SigCache, upstreamModel)
	systemInstruction := MergeSystemInstruction(ctx.ConfiguredSystemText, build.SystemText)

	generationConfig := params.Project(normalized, upstreamModel, thinkingSupported)

	body, err := BuildEnvelope(build, systemInstruction, ctx.ProjectID, upstreamModel, ctx.SessionID, generationConfig)
	if err != nil {
		return nil, "", err
	}
	return body, upstreamModel, nil
}
