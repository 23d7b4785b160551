package gateway

import "github.com/tidwall/gjson"

// extractUpstreamMessage pulls error.message out of an upstream error
// body, if the upstream encoded one in that shape.
func extractUpstreamMessage(rawBody []byte) string {
	if len(rawBody) == 0 {
		return ""
	}
	msg := gjson.GetBytes(rawBody, "error.message")
	if msg.Exists() {
		return msg.String()
	}
	return ""
}
