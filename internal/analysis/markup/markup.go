// Package markup splits character replies into speech, thought and action
// runs and paces their reveal for streaming clients.
//
// Replies mark internal thoughts with parentheses and physical actions with
// square brackets. Both delimiters are kept in the segment text so that the
// concatenation of all segments reproduces the reply byte for byte.
package markup

import "strings"

// Kind classifies a run of reply text.
type Kind string

const (
	Normal  Kind = "normal"
	Thought Kind = "thought"
	Action  Kind = "action"
)

// Segment is one classified run of a reply.
type Segment struct {
	Text string `json:"text"`
	Kind Kind   `json:"kind"`
}

// Parse scans text left to right. At every position a thought is tried
// before an action; anything that matches neither joins the current normal
// run. A thought is "(" up to the first ")" on the same line, an action is
// "[" up to the first "]" with at least one character in between.
// Unterminated delimiters stay normal text. Empty input yields nil.
func Parse(text string) []Segment {
	var segments []Segment
	normalStart := 0

	flush := func(end int) {
		if end > normalStart {
			segments = append(segments, Segment{Text: text[normalStart:end], Kind: Normal})
		}
	}

	for i := 0; i < len(text); {
		end, kind := matchAt(text, i)
		if kind == Normal {
			i++
			continue
		}
		flush(i)
		segments = append(segments, Segment{Text: text[i:end], Kind: kind})
		i = end
		normalStart = i
	}
	flush(len(text))

	return segments
}

// matchAt reports the end offset and kind of a delimited run starting at i,
// or Normal when none starts there. Delimiters are ASCII, so scanning bytes
// never splits a multi-byte rune.
func matchAt(text string, i int) (int, Kind) {
	switch text[i] {
	case '(':
		for j := i + 1; j < len(text); j++ {
			switch text[j] {
			case ')':
				return j + 1, Thought
			case '\n', '\r':
				return 0, Normal
			case 0xE2:
				if isLineSeparator(text[j:]) {
					return 0, Normal
				}
			}
		}
	case '[':
		j := strings.IndexByte(text[i+1:], ']')
		if j > 0 {
			return i + 1 + j + 1, Action
		}
	}
	return 0, Normal
}

// isLineSeparator reports whether s starts with U+2028 or U+2029.
func isLineSeparator(s string) bool {
	return strings.HasPrefix(s, "\u2028") || strings.HasPrefix(s, "\u2029")
}

// Plain joins segments back into the original reply.
func Plain(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteString(s.Text)
	}
	return b.String()
}
