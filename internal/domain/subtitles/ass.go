// Package subtitles renders timed transcript segments as ASS subtitles.
package subtitles

import (
	"fmt"
	"strings"
	"time"

	"github.com/forPelevin/dubstudio/internal/types"
)

const (
	charBudget = 42
	wordBudget = 9
)

type event struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// RenderASS renders segs as a full-timeline ASS script. Segments longer than
// one line are split into several events and the segment's span is shared
// between them in proportion to their length. Segments without text or with
// an empty span are skipped. ok is false when nothing was rendered.
func RenderASS(segs []types.Segment) (script string, ok bool) {
	var events []event
	for _, s := range segs {
		events = append(events, segmentEvents(s)...)
	}
	if len(events) == 0 {
		return "", false
	}

	var b strings.Builder
	b.WriteString(assHeader())
	b.WriteString("\n\n[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	for _, ev := range events {
		fmt.Fprintf(&b, "Dialogue: 0,%s,%s,Dub,,0,0,0,,%s\n", assTime(ev.Start), assTime(ev.End), ev.Text)
	}
	return b.String(), true
}

func segmentEvents(s types.Segment) []event {
	start, end := dur(s.Start), dur(s.End)
	if end <= start {
		return nil
	}
	lines := packWords(strings.Fields(sanitizeASS(s.Text)))
	if len(lines) == 0 {
		return nil
	}

	total := 0
	for _, ln := range lines {
		total += len([]rune(ln))
	}
	span := end - start
	out := make([]event, 0, len(lines))
	at, seen := start, 0
	for i, ln := range lines {
		seen += len([]rune(ln))
		next := start + time.Duration(int64(span)*int64(seen)/int64(total))
		if i == len(lines)-1 {
			next = end
		}
		out = append(out, event{Start: at, End: next, Text: ln})
		at = next
	}
	return out
}

// packWords groups words into lines of at most charBudget runes and
// wordBudget words. A single word longer than charBudget gets its own line.
func packWords(words []string) []string {
	var (
		out []string
		cur []string
		n   int
	)
	for _, w := range words {
		wl := len([]rune(w))
		next := n + wl
		if n > 0 {
			next++
		}
		if len(cur) > 0 && (len(cur) >= wordBudget || next > charBudget) {
			out = append(out, strings.Join(cur, " "))
			cur, n = nil, 0
			next = wl
		}
		cur = append(cur, w)
		n = next
	}
	if len(cur) > 0 {
		out = append(out, strings.Join(cur, " "))
	}
	return out
}

func assHeader() string {
	return strings.TrimSpace(`
[Script Info]
ScriptType: v4.00+
PlayResX: 1920
PlayResY: 1080
ScaledBorderAndShadow: yes

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Dub, Inter, 56, &H00FFFFFF, &H00FFFFFF, &H00000000, &H64000000, 0,0,0,0,100,100,0,0,1,3,1,2, 60,60,60,1
`)
}

func assTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hs := int(d / time.Hour)
	d -= time.Duration(hs) * time.Hour
	ms := int(d / time.Minute)
	d -= time.Duration(ms) * time.Minute
	s := int(d / time.Second)
	d -= time.Duration(s) * time.Second
	cs := int(d / (10 * time.Millisecond))
	return fmt.Sprintf("%d:%02d:%02d.%02d", hs, ms, s, cs)
}

func sanitizeASS(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "{", "(")
	s = strings.ReplaceAll(s, "}", ")")
	return strings.TrimSpace(s)
}

func dur(sec float64) time.Duration { return time.Duration(sec * float64(time.Second)) }
