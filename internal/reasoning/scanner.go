package reasoning

import (
	"errors"
	"strings"
)

// Markers is the literal pair delimiting a reasoning block inside model
// output text. Matching is byte-exact and case-sensitive.
type Markers struct {
	Start string
	End   string
}

// DefaultMarkers returns the <think> pair emitted by most reasoning models.
func DefaultMarkers() Markers {
	return Markers{Start: "<think>", End: "</think>"}
}

// Validate rejects marker pairs the scanner cannot disambiguate.
func (m Markers) Validate() error {
	if m.Start == "" || m.End == "" {
		return errors.New("reasoning: markers must be non-empty")
	}
	if m.Start == m.End {
		return errors.New("reasoning: start and end markers must differ")
	}
	return nil
}

// Split is the per-fragment scanner output. Character order from the input is
// preserved in both halves; the marker literals appear in neither.
type Split struct {
	Visible   string
	Reasoning string
}

func (s Split) empty() bool { return s.Visible == "" && s.Reasoning == "" }

// State is the scanner position carried between fragments of one response.
//
// The pair (inside, pending) encodes the three scanner phases:
//
//	pending == ""           -> Outside (inside=false) or Inside (inside=true)
//	pending != ""           -> PartialMarker: pending is a strict non-empty
//	                           prefix of the marker awaited on the `inside`
//	                           side, held back until confirmed or refuted.
//
// The zero value is the initial Outside state.
type State struct {
	inside  bool
	pending string
}

// Inside reports whether the scanner is currently within a reasoning block.
func (st State) Inside() bool { return st.inside }

// Pending returns the held-back marker prefix, empty unless a marker is
// split across a fragment boundary.
func (st State) Pending() string { return st.pending }

// Advance scans one fragment and splits it into visible and reasoning
// deltas. Any text held back by a previous partial marker match is re-scanned
// together with the new fragment, so a marker split across fragment
// boundaries at any position resolves identically to an unsplit one.
//
// While Outside only the start marker is matched; while Inside only the end
// marker is. A start marker seen while already Inside is therefore literal
// reasoning text: blocks do not nest or restart.
func (m Markers) Advance(st State, input string) (Split, State) {
	var visible, reasoning strings.Builder

	text := st.pending + input
	st.pending = ""
	for text != "" {
		marker := m.Start
		if st.inside {
			marker = m.End
		}
		if idx := strings.Index(text, marker); idx >= 0 {
			emit(&visible, &reasoning, st.inside, text[:idx])
			text = text[idx+len(marker):]
			st.inside = !st.inside
			continue
		}
		// No full marker in the remaining text. Hold back the longest
		// suffix that is still a strict prefix of the awaited marker and
		// emit everything before it.
		keep := prefixOverlap(text, marker)
		emit(&visible, &reasoning, st.inside, text[:len(text)-keep])
		st.pending = text[len(text)-keep:]
		break
	}
	return Split{Visible: visible.String(), Reasoning: reasoning.String()}, st
}

// Flush resolves the scanner at end of input. A held partial-marker prefix
// will never be completed, so it is literal text belonging to the side the
// scanner was on before the partial match began. Text already inside an
// unterminated block was emitted as reasoning fragment by fragment, so
// nothing else remains to recover.
func (m Markers) Flush(st State) Split {
	if st.pending == "" {
		return Split{}
	}
	if st.inside {
		return Split{Reasoning: st.pending}
	}
	return Split{Visible: st.pending}
}

func emit(visible, reasoning *strings.Builder, inside bool, text string) {
	if inside {
		reasoning.WriteString(text)
		return
	}
	visible.WriteString(text)
}

// prefixOverlap returns the length of the longest suffix of text that is a
// strict prefix of marker. Bounded by len(marker)-1, so the held-back buffer
// can never grow past the marker itself.
func prefixOverlap(text, marker string) int {
	max := len(marker) - 1
	if max > len(text) {
		max = len(text)
	}
	for k := max; k > 0; k-- {
		if text[len(text)-k:] == marker[:k] {
			return k
		}
	}
	return 0
}
