package reasoning

import (
	"strings"
	"testing"
)

func scanAll(t *testing.T, m Markers, fragments []string) (string, string) {
	t.Helper()
	var visible, reasoning strings.Builder
	var st State
	for _, frag := range fragments {
		var split Split
		split, st = m.Advance(st, frag)
		visible.WriteString(split.Visible)
		reasoning.WriteString(split.Reasoning)
	}
	tail := m.Flush(st)
	visible.WriteString(tail.Visible)
	reasoning.WriteString(tail.Reasoning)
	return visible.String(), reasoning.String()
}

func TestAdvanceWholeText(t *testing.T) {
	m := DefaultMarkers()
	split, st := m.Advance(State{}, "Hello <think>pondering</think> world")
	if split.Visible != "Hello  world" {
		t.Fatalf("unexpected visible %q", split.Visible)
	}
	if split.Reasoning != "pondering" {
		t.Fatalf("unexpected reasoning %q", split.Reasoning)
	}
	if st.Inside() || st.Pending() != "" {
		t.Fatalf("scanner should end outside with empty buffer, got %+v", st)
	}
}

func TestAdvanceMarkerSplitAcrossFragments(t *testing.T) {
	m := Markers{Start: "<start>", End: "</end>"}
	fragments := []string{"Hel", "lo <sta", "rt>thinking</e", "nd> world"}
	visible, reasoning := scanAll(t, m, fragments)
	if visible != "Hello  world" {
		t.Fatalf("unexpected visible %q", visible)
	}
	if reasoning != "thinking" {
		t.Fatalf("unexpected reasoning %q", reasoning)
	}
}

func TestAdvanceUntaggedTextPassesThrough(t *testing.T) {
	m := DefaultMarkers()
	visible, reasoning := scanAll(t, m, []string{"plain ", "text, no ", "markup at all"})
	if visible != "plain text, no markup at all" {
		t.Fatalf("unexpected visible %q", visible)
	}
	if reasoning != "" {
		t.Fatalf("expected no reasoning, got %q", reasoning)
	}
}

func TestAdvanceUnterminatedBlock(t *testing.T) {
	m := DefaultMarkers()
	visible, reasoning := scanAll(t, m, []string{"before <think>never ", "closed"})
	if visible != "before " {
		t.Fatalf("unexpected visible %q", visible)
	}
	if reasoning != "never closed" {
		t.Fatalf("unexpected reasoning %q", reasoning)
	}
}

func TestAdvanceNestedStartIsLiteral(t *testing.T) {
	m := DefaultMarkers()
	visible, reasoning := scanAll(t, m, []string{"<think>outer <think> inner</think>tail"})
	if visible != "tail" {
		t.Fatalf("unexpected visible %q", visible)
	}
	if reasoning != "outer <think> inner" {
		t.Fatalf("unexpected reasoning %q", reasoning)
	}
}

func TestAdvanceFalsePartialMarker(t *testing.T) {
	m := DefaultMarkers()
	// "<thin" looks like a start marker until the "g" refutes it.
	visible, reasoning := scanAll(t, m, []string{"a <thin", "g of beauty"})
	if visible != "a <thing of beauty" {
		t.Fatalf("unexpected visible %q", visible)
	}
	if reasoning != "" {
		t.Fatalf("expected no reasoning, got %q", reasoning)
	}
}

func TestFlushEmitsHeldPrefixOnCurrentSide(t *testing.T) {
	m := DefaultMarkers()

	_, st := m.Advance(State{}, "text <thi")
	if st.Pending() != "<thi" {
		t.Fatalf("expected pending %q, got %q", "<thi", st.Pending())
	}
	tail := m.Flush(st)
	if tail.Visible != "<thi" || tail.Reasoning != "" {
		t.Fatalf("unexpected flush outside block: %+v", tail)
	}

	_, st = m.Advance(State{}, "<think>deep thought</th")
	if !st.Inside() || st.Pending() != "</th" {
		t.Fatalf("expected inside with pending %q, got %+v", "</th", st)
	}
	tail = m.Flush(st)
	if tail.Reasoning != "</th" || tail.Visible != "" {
		t.Fatalf("unexpected flush inside block: %+v", tail)
	}
}

// Splitting the same text at every possible boundary must always produce the
// same result as scanning it whole.
func TestAdvanceChunkInvariance(t *testing.T) {
	m := DefaultMarkers()
	texts := []string{
		"Hello <think>pondering</think> world",
		"<think>only reasoning</think>",
		"no markup here",
		"a<think>b</think>c<think>d</think>e",
		"ends partial <thin",
		"<think>unterminated reasoning",
		"<<think>>double brackets</think>!",
	}
	for _, text := range texts {
		wantVisible, wantReasoning := m.Extract(text)
		for cut := 0; cut <= len(text); cut++ {
			for cut2 := cut; cut2 <= len(text); cut2++ {
				visible, reasoning := scanAll(t, m, []string{text[:cut], text[cut:cut2], text[cut2:]})
				if visible != wantVisible || reasoning != wantReasoning {
					t.Fatalf("split %q at %d,%d: got (%q,%q) want (%q,%q)",
						text, cut, cut2, visible, reasoning, wantVisible, wantReasoning)
				}
			}
		}
	}
}

func TestAdvanceSingleCharMarkers(t *testing.T) {
	m := Markers{Start: "[", End: "]"}
	visible, reasoning := scanAll(t, m, []string{"a[b]c", "[", "d", "]", "e"})
	if visible != "ace" {
		t.Fatalf("unexpected visible %q", visible)
	}
	if reasoning != "bd" {
		t.Fatalf("unexpected reasoning %q", reasoning)
	}
}

func TestValidateRejectsBadMarkers(t *testing.T) {
	if err := (Markers{Start: "", End: "x"}).Validate(); err == nil {
		t.Fatal("expected error for empty start marker")
	}
	if err := (Markers{Start: "x", End: "x"}).Validate(); err == nil {
		t.Fatal("expected error for identical markers")
	}
	if err := DefaultMarkers().Validate(); err != nil {
		t.Fatalf("default markers should validate: %v", err)
	}
}

func TestPrefixOverlap(t *testing.T) {
	cases := []struct {
		text, marker string
		want         int
	}{
		{"abc<th", "<think>", 3},
		{"abc", "<think>", 0},
		{"<think", "<think>", 6},
		{"x<think>", "<think>", 0}, // full marker is never a strict prefix
		{"", "<think>", 0},
		{"aa", "ab", 1},
	}
	for _, tc := range cases {
		if got := prefixOverlap(tc.text, tc.marker); got != tc.want {
			t.Fatalf("prefixOverlap(%q,%q)=%d want %d", tc.text, tc.marker, got, tc.want)
		}
	}
}
