// Package sse frames and deframes text/event-stream payloads. It is purely
// about wire framing: what the data payloads mean is the caller's business.
package sse

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DoneSentinel is the literal terminal payload closing an OpenAI-style
// completion stream. It is not JSON and is relayed verbatim, never decoded.
const DoneSentinel = "[DONE]"

// Event is one decoded frame.
type Event struct {
	// Data is the joined payload of the frame's data fields, nil for frames
	// carrying no data field (comments, bare event lines, pings).
	Data []byte
	// Raw is the frame exactly as read, including its blank-line delimiter,
	// for verbatim relay of frames the proxy does not rewrite.
	Raw string
	// Done marks the terminal sentinel frame.
	Done bool
}

// Decoder reads blank-line-delimited frames from an upstream byte stream.
// Frames split across network reads are buffered until their delimiter
// arrives; Next never returns a partial frame.
type Decoder struct {
	r *bufio.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next complete frame. It returns io.EOF once the stream is
// exhausted; a frame truncated by EOF is returned first, then io.EOF on the
// following call.
func (d *Decoder) Next() (Event, error) {
	var raw strings.Builder
	var data []byte
	hasData := false
	seenField := false

	for {
		line, err := d.r.ReadString('\n')
		if line != "" {
			raw.WriteString(line)
		}
		trimmed := strings.TrimRight(line, "\r\n")
		if err != nil {
			if errors.Is(err, io.EOF) {
				if trimmed != "" {
					consumeField(trimmed, &data, &hasData)
					seenField = true
				}
				if seenField {
					return buildEvent(raw.String(), data, hasData), nil
				}
				return Event{}, io.EOF
			}
			return Event{}, err
		}
		if trimmed == "" {
			if !seenField {
				// stray blank line between frames
				raw.Reset()
				continue
			}
			return buildEvent(raw.String(), data, hasData), nil
		}
		consumeField(trimmed, &data, &hasData)
		seenField = true
	}
}

// consumeField folds one non-blank line into the pending frame. Only data
// fields feed the decoded payload; anything else rides along in Raw.
func consumeField(line string, data *[]byte, hasData *bool) {
	value, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return
	}
	value = strings.TrimPrefix(value, " ")
	if *hasData {
		*data = append(*data, '\n')
	}
	*data = append(*data, value...)
	*hasData = true
}

func buildEvent(raw string, data []byte, hasData bool) Event {
	ev := Event{Raw: raw}
	if !hasData {
		return ev
	}
	if strings.TrimSpace(string(data)) == DoneSentinel {
		ev.Done = true
		return ev
	}
	ev.Data = data
	return ev
}

// Writer re-encodes frames toward the client, flushing after every frame so
// deltas are delivered as they are produced.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
}

// NewWriter wraps an http.ResponseWriter (or any io.Writer; flushing is a
// no-op when the writer cannot flush).
func NewWriter(w io.Writer) *Writer {
	sw := &Writer{w: w}
	if f, ok := w.(http.Flusher); ok {
		sw.flusher = f
	}
	return sw
}

// WriteData emits one data frame: tag prefix, payload, blank-line delimiter.
// A payload containing newlines (a decoded multi-line data field) becomes one
// data line per segment, mirroring how the decoder joined them.
func (w *Writer) WriteData(payload []byte) error {
	for _, segment := range strings.Split(string(payload), "\n") {
		if _, err := fmt.Fprintf(w.w, "data: %s\n", segment); err != nil {
			return err
		}
	}
	if _, err := io.WriteString(w.w, "\n"); err != nil {
		return err
	}
	w.flush()
	return nil
}

// WriteRaw relays a frame exactly as it was received, restoring the
// delimiter if EOF truncated it.
func (w *Writer) WriteRaw(raw string) error {
	if raw == "" {
		return nil
	}
	if !strings.HasSuffix(raw, "\n\n") && !strings.HasSuffix(raw, "\r\n\r\n") {
		raw = strings.TrimRight(raw, "\r\n") + "\n\n"
	}
	if _, err := io.WriteString(w.w, raw); err != nil {
		return err
	}
	w.flush()
	return nil
}

// WriteDone emits the terminal sentinel frame.
func (w *Writer) WriteDone() error {
	return w.WriteData([]byte(DoneSentinel))
}

func (w *Writer) flush() {
	if w.flusher != nil {
		w.flusher.Flush()
	}
}
