package reasoning

import (
	"encoding/json"
	"errors"
	"sort"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Session owns the scanner state for one streamed response. One Session
// exists per in-flight request and is never shared, so no locking is needed.
// Each choice in the stream carries its own state: parallel completions
// (n > 1) split their markers independently.
type Session struct {
	markers Markers
	states  map[int]*State

	// metadata from the last rewritten chunk, used to shape the trailing
	// flush chunk on normal stream completion.
	lastID      string
	lastObject  string
	lastCreated int64
	lastModel   string
}

// NewSession starts a stream session using the given marker pair.
func NewSession(markers Markers) *Session {
	return &Session{markers: markers, states: make(map[int]*State)}
}

func (s *Session) state(choice int) *State {
	st, ok := s.states[choice]
	if !ok {
		st = &State{}
		s.states[choice] = st
	}
	return st
}

// RewriteChunk rewrites one decoded stream payload in place: every
// choices.*.delta.content is split by the scanner, the visible delta replaces
// content, and a non-empty reasoning delta is attached as
// delta.reasoning_content. All fields the rewrite does not touch pass through
// byte-for-byte. Payloads without a content delta (role preludes, tool_calls,
// usage chunks) are returned unchanged.
//
// A payload that is not valid JSON yields an error; the caller drops that
// single frame and the stream continues.
func (s *Session) RewriteChunk(payload []byte) ([]byte, error) {
	if !gjson.ValidBytes(payload) {
		return nil, errors.New("reasoning: stream chunk is not valid JSON")
	}
	root := gjson.ParseBytes(payload)
	s.rememberMeta(root)

	choices := root.Get("choices")
	if !choices.IsArray() {
		return payload, nil
	}

	out := payload
	var rewriteErr error
	choices.ForEach(func(key, choice gjson.Result) bool {
		content := choice.Get("delta.content")
		if !content.Exists() || content.Type != gjson.String {
			return true
		}
		// Upstreams deliver n>1 completions as separate chunks whose choices
		// array holds one element with a varying "index" field, so the array
		// position alone cannot identify the choice.
		idx := int(key.Int())
		if v := choice.Get("index"); v.Exists() {
			idx = int(v.Int())
		}
		st := s.state(idx)
		split, next := s.markers.Advance(*st, content.String())
		*st = next

		delta := "choices." + key.String() + ".delta"
		out, rewriteErr = applyDeltaSplit(out, delta, split)
		return rewriteErr == nil
	})
	if rewriteErr != nil {
		return nil, rewriteErr
	}
	return out, nil
}

// Flush resolves all per-choice scanner states at normal end of stream and,
// when any held-back text remains, returns one final chunk carrying it.
// Returns nil when nothing was held. Callers emit the chunk before
// forwarding the terminal sentinel; on abnormal termination they simply do
// not call Flush and the held bytes are discarded.
func (s *Session) Flush() ([]byte, error) {
	indexes := make([]int, 0, len(s.states))
	for idx := range s.states {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	var choices []map[string]any
	for _, idx := range indexes {
		st := s.states[idx]
		split := s.markers.Flush(*st)
		*st = State{}
		if split.empty() {
			continue
		}
		// A flush split carries text on exactly one side: the held-back
		// prefix belonged to whichever side the scanner was on.
		delta := map[string]any{}
		if split.Visible != "" {
			delta["content"] = split.Visible
		} else {
			delta["content"] = nil
			delta["reasoning_content"] = split.Reasoning
		}
		choices = append(choices, map[string]any{
			"index":         idx,
			"delta":         delta,
			"finish_reason": nil,
		})
	}
	if len(choices) == 0 {
		return nil, nil
	}
	return json.Marshal(map[string]any{
		"id":      s.lastID,
		"object":  s.lastObject,
		"created": s.lastCreated,
		"model":   s.lastModel,
		"choices": choices,
	})
}

func (s *Session) rememberMeta(root gjson.Result) {
	if v := root.Get("id"); v.Exists() {
		s.lastID = v.String()
	}
	if v := root.Get("object"); v.Exists() {
		s.lastObject = v.String()
	}
	if v := root.Get("created"); v.Exists() {
		s.lastCreated = v.Int()
	}
	if v := root.Get("model"); v.Exists() {
		s.lastModel = v.String()
	}
}

// applyDeltaSplit writes a Split into the delta object at path.
//   - both halves empty (the fragment was all marker or held-back bytes):
//     the content field is removed so no spurious empty delta reaches the
//     client, everything else in the event is untouched
//   - reasoning consumed the whole fragment: content becomes JSON null
//   - otherwise content carries the visible delta and reasoning_content is
//     attached only when non-empty
func applyDeltaSplit(payload []byte, path string, split Split) ([]byte, error) {
	var err error
	switch {
	case split.empty():
		payload, err = sjson.DeleteBytes(payload, path+".content")
	case split.Visible == "":
		payload, err = sjson.SetBytes(payload, path+".content", nil)
	default:
		payload, err = sjson.SetBytes(payload, path+".content", split.Visible)
	}
	if err != nil {
		return nil, err
	}
	if split.Reasoning != "" {
		payload, err = sjson.SetBytes(payload, path+".reasoning_content", split.Reasoning)
		if err != nil {
			return nil, err
		}
	}
	return payload, nil
}

