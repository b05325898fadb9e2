package textkit

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestShortenUnderLimit(t *testing.T) {
	t.Parallel()
	in := "short message"
	if got := Shorten(in, MessageLimit); got != in {
		t.Fatalf("Shorten changed a short string: %q", got)
	}
}

func TestShortenCapsAtLimit(t *testing.T) {
	t.Parallel()
	in := strings.Repeat("x", MessageLimit+500)
	got := Shorten(in, MessageLimit)
	if n := utf8.RuneCountInString(got); n != MessageLimit {
		t.Fatalf("rune count = %d, want %d", n, MessageLimit)
	}
}

func TestShortenBalancesFences(t *testing.T) {
	t.Parallel()
	// The closing fence falls past the cut, leaving an odd count inside.
	in := "```" + strings.Repeat("a", MessageLimit+10) + "```"
	got := Shorten(in, MessageLimit)
	if n := utf8.RuneCountInString(got); n != MessageLimit {
		t.Fatalf("rune count = %d, want %d", n, MessageLimit)
	}
	if !strings.HasSuffix(got, Fence) {
		t.Fatalf("truncated code block not closed: ...%q", got[len(got)-6:])
	}
	if strings.Count(got, Fence)%2 != 0 {
		t.Fatalf("fence count still odd: %d", strings.Count(got, Fence))
	}
}

func TestShortenEvenFencesUntouched(t *testing.T) {
	t.Parallel()
	in := "```a```" + strings.Repeat("b", MessageLimit)
	got := Shorten(in, MessageLimit)
	if strings.HasSuffix(got, Fence) {
		t.Fatalf("balanced fences should not force a closing fence: %q", got[len(got)-10:])
	}
	if n := utf8.RuneCountInString(got); n != MessageLimit {
		t.Fatalf("rune count = %d, want %d", n, MessageLimit)
	}
}

func TestShortenMultibyte(t *testing.T) {
	t.Parallel()
	in := strings.Repeat("é", MessageLimit+3)
	got := Shorten(in, MessageLimit)
	if n := utf8.RuneCountInString(got); n != MessageLimit {
		t.Fatalf("rune count = %d, want %d", n, MessageLimit)
	}
	if !utf8.ValidString(got) {
		t.Fatal("invalid UTF-8 after truncation")
	}
}

func TestTruncRunes(t *testing.T) {
	t.Parallel()
	if got := TruncRunes("hello", 10); got != "hello" {
		t.Fatalf("TruncRunes short = %q", got)
	}
	got := TruncRunes("hello world", 8)
	if n := utf8.RuneCountInString(got); n != 8 {
		t.Fatalf("rune count = %d, want 8 (%q)", n, got)
	}
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("expected ellipsis suffix: %q", got)
	}
}
