package reasoning

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Extract runs the scanner over one complete text blob, start to finish,
// including the final flush. Unlike the mid-stream path a trailing partial
// marker has no more input to wait for, so it resolves as literal text.
func (m Markers) Extract(text string) (visible, reasoning string) {
	split, st := m.Advance(State{}, text)
	tail := m.Flush(st)
	return split.Visible + tail.Visible, split.Reasoning + tail.Reasoning
}

// RewriteBody applies the extraction to every choices.*.message.content of a
// complete (non-streamed) completion response. The visible text replaces
// content (JSON null when the whole message was reasoning), and reasoning
// populates message.reasoning_content when non-empty. Both halves are
// whitespace-trimmed, matching what clients of the upstream expect from a
// whole message. Every other field passes through untouched.
//
// A body that is not valid JSON, or whose choices carry no text content, is
// returned unchanged with an error so the caller can log and relay the
// original bytes.
func RewriteBody(payload []byte, markers Markers) ([]byte, error) {
	if !gjson.ValidBytes(payload) {
		return payload, errors.New("reasoning: response body is not valid JSON")
	}
	choices := gjson.GetBytes(payload, "choices")
	if !choices.IsArray() {
		return payload, errors.New("reasoning: response body has no choices array")
	}

	out := payload
	var rewriteErr error
	choices.ForEach(func(key, choice gjson.Result) bool {
		content := choice.Get("message.content")
		if !content.Exists() || content.Type != gjson.String {
			return true
		}
		visible, reasoning := markers.Extract(content.String())
		visible = strings.TrimSpace(visible)
		reasoning = strings.TrimSpace(reasoning)

		msg := "choices." + key.String() + ".message"
		if reasoning != "" {
			out, rewriteErr = sjson.SetBytes(out, msg+".reasoning_content", reasoning)
			if rewriteErr != nil {
				return false
			}
		}
		if reasoning != "" && visible == "" {
			out, rewriteErr = sjson.SetBytes(out, msg+".content", nil)
		} else {
			out, rewriteErr = sjson.SetBytes(out, msg+".content", visible)
		}
		return rewriteErr == nil
	})
	if rewriteErr != nil {
		return payload, rewriteErr
	}
	return out, nil
}
