package subtitles

import (
	"strings"
	"testing"
	"time"

	"github.com/forPelevin/dubstudio/internal/types"
)

func TestRenderASS_OneEventPerShortSegment(t *testing.T) {
	ass, ok := RenderASS([]types.Segment{
		{Start: 0, End: 1.5, Text: " Hello world "},
		{Start: 1.5, End: 3, Text: "Second {line}"},
	})
	if !ok {
		t.Fatal("expected a script")
	}
	if !strings.HasPrefix(ass, "[Script Info]") {
		t.Fatalf("missing header:\n%s", ass)
	}
	for _, want := range []string{
		"Dialogue: 0,0:00:00.00,0:00:01.50,Dub,,0,0,0,,Hello world\n",
		"Dialogue: 0,0:00:01.50,0:00:03.00,Dub,,0,0,0,,Second (line)\n",
	} {
		if !strings.Contains(ass, want) {
			t.Fatalf("missing %q in:\n%s", want, ass)
		}
	}
}

func TestRenderASS_SplitsLongSegment(t *testing.T) {
	text := "one two three four five six seven eight nine ten eleven twelve"
	ass, ok := RenderASS([]types.Segment{{Start: 2, End: 8, Text: text}})
	if !ok {
		t.Fatal("expected a script")
	}
	if got := strings.Count(ass, "Dialogue:"); got != 2 {
		t.Fatalf("events = %d, want 2:\n%s", got, ass)
	}
	if !strings.Contains(ass, "Dialogue: 0,0:00:02.00,") || !strings.Contains(ass, ",0:00:08.00,Dub") {
		t.Fatalf("segment span not preserved:\n%s", ass)
	}
}

func TestRenderASS_SkipsEmpty(t *testing.T) {
	if _, ok := RenderASS(nil); ok {
		t.Fatal("expected no script for no segments")
	}
	if _, ok := RenderASS([]types.Segment{{Start: 1, End: 1, Text: "x"}, {Start: 0, End: 1, Text: "  "}}); ok {
		t.Fatal("expected no script for empty segments")
	}
}

func TestPackWords_Budgets(t *testing.T) {
	long := strings.Repeat("x", 50)
	got := packWords([]string{"a", long, "b"})
	if len(got) != 3 || got[1] != long {
		t.Fatalf("unexpected lines %q", got)
	}
	words := strings.Fields("1 2 3 4 5 6 7 8 9 10")
	if got := packWords(words); len(got) != 2 || got[1] != "10" {
		t.Fatalf("word budget not applied: %q", got)
	}
}

func TestAssTime_Format(t *testing.T) {
	got := assTime(61*time.Second + 234*time.Millisecond)
	if got != "0:01:01.23" {
		t.Fatalf("unexpected assTime: %s", got)
	}
	if got := assTime(-time.Second); got != "0:00:00.00" {
		t.Fatalf("negative durations clamp to zero, got %s", got)
	}
}
