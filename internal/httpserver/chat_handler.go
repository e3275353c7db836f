package httpserver

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/thinkgate/thinkgate/internal/ledger"
	"github.com/thinkgate/thinkgate/internal/reasoning"
	"github.com/thinkgate/thinkgate/internal/sse"
)

const chatCompletionsPath = "/v1/chat/completions"

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	reqStart := time.Now()
	if s.upstream == nil {
		s.respondError(w, http.StatusServiceUnavailable, errors.New("upstream client unavailable"))
		return
	}

	body, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	if !gjson.ValidBytes(body) {
		s.respondError(w, http.StatusBadRequest, errors.New("request body is not valid JSON"))
		return
	}
	if s.effort != "" && !gjson.GetBytes(body, "reasoning_effort").Exists() {
		body, err = sjson.SetBytes(body, "reasoning_effort", s.effort)
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, err)
			return
		}
	}

	model := gjson.GetBytes(body, "model").String()
	stream := gjson.GetBytes(body, "stream").Bool()
	markers := s.profiles.For(model)
	streamID := uuid.NewString()

	headers := proxyHeaders(r.Header)
	headers.Set("Content-Type", "application/json")
	if stream {
		headers.Set("Accept", "text/event-stream")
	}

	resp, err := s.upstream.Do(r.Context(), http.MethodPost, chatCompletionsPath, r.URL.RawQuery, headers, bytes.NewReader(body))
	if err != nil {
		s.respondError(w, http.StatusBadGateway, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.relayVerbatim(w, resp)
		s.logf("chat.completions status=%d model=%s total_ms=%d", resp.StatusCode, model, time.Since(reqStart).Milliseconds())
		return
	}

	if stream {
		s.streamCompletion(w, r, resp, markers, model, streamID, reqStart)
		return
	}
	s.completeOnce(w, r, resp, markers, model, streamID, reqStart)
}

// streamCompletion relays the upstream SSE stream, splitting reasoning
// markup out of every content delta as it passes through.
func (s *Server) streamCompletion(w http.ResponseWriter, r *http.Request, resp *http.Response, markers reasoning.Markers, model, streamID string, reqStart time.Time) {
	if _, ok := w.(http.Flusher); !ok {
		s.respondError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/event-stream; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(resp.StatusCode)

	dec := sse.NewDecoder(resp.Body)
	out := sse.NewWriter(w)
	session := reasoning.NewSession(markers)
	var prompt, completion int64

	for {
		ev, err := dec.Next()
		if err != nil {
			// Upstream closed without the terminal sentinel: the client
			// stream just ends, held-back bytes are discarded.
			if !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
				s.debugf("chat.stream read aborted stream=%s: %v", streamID, err)
			}
			break
		}
		if ev.Done {
			// Resolve any marker prefix still held back before closing.
			if tail, ferr := session.Flush(); ferr == nil && tail != nil {
				if werr := out.WriteData(tail); werr != nil {
					return
				}
			}
			_ = out.WriteDone()
			break
		}
		if ev.Data == nil {
			if werr := out.WriteRaw(ev.Raw); werr != nil {
				return
			}
			continue
		}
		captureUsage(ev.Data, &prompt, &completion)
		rewritten, rerr := session.RewriteChunk(ev.Data)
		if rerr != nil {
			// One bad frame never aborts the stream.
			s.logf("chat.stream dropping frame stream=%s: %v", streamID, rerr)
			continue
		}
		if werr := out.WriteData(rewritten); werr != nil {
			// Client went away; stop reading from upstream.
			return
		}
	}

	s.recordUsage(r.Context(), streamID, model, "chat.completions.stream", prompt, completion)
	s.logf("chat.completions.stream model=%s stream=%s total_ms=%d", model, streamID, time.Since(reqStart).Milliseconds())
}

// completeOnce transforms a whole non-streamed response body.
func (s *Server) completeOnce(w http.ResponseWriter, r *http.Request, resp *http.Response, markers reasoning.Markers, model, streamID string, reqStart time.Time) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		s.respondError(w, http.StatusBadGateway, err)
		return
	}
	rewritten, err := reasoning.RewriteBody(body, markers)
	if err != nil {
		// Unexpected shape: relay the upstream body untouched.
		s.logf("chat.completions response not rewritten model=%s: %v", model, err)
		rewritten = body
	}

	prompt := gjson.GetBytes(body, "usage.prompt_tokens").Int()
	completion := gjson.GetBytes(body, "usage.completion_tokens").Int()
	s.recordUsage(r.Context(), streamID, model, "chat.completions", prompt, completion)

	copyResponseHeaders(w, resp)
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(rewritten)
	s.logf("chat.completions model=%s total_ms=%d", model, time.Since(reqStart).Milliseconds())
}

// relayVerbatim copies an upstream response through unchanged.
func (s *Server) relayVerbatim(w http.ResponseWriter, resp *http.Response) {
	copyResponseHeaders(w, resp)
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

// captureUsage remembers token counts from a usage-bearing stream chunk.
// Most upstreams send usage only on the final chunk; later values win.
func captureUsage(payload []byte, prompt, completion *int64) {
	usage := gjson.GetBytes(payload, "usage")
	if !usage.IsObject() {
		return
	}
	if v := usage.Get("prompt_tokens"); v.Exists() {
		*prompt = v.Int()
	}
	if v := usage.Get("completion_tokens"); v.Exists() {
		*completion = v.Int()
	}
}

func (s *Server) recordUsage(ctx context.Context, streamID, model, endpoint string, prompt, completion int64) {
	if s.ledger == nil || (prompt == 0 && completion == 0) {
		return
	}
	entry := ledger.Entry{
		StreamID:         streamID,
		Model:            model,
		Endpoint:         endpoint,
		PromptTokens:     prompt,
		CompletionTokens: completion,
	}
	if err := s.ledger.Record(ctx, entry); err != nil {
		s.debugf("ledger record failed model=%s: %v", model, err)
	}
}
