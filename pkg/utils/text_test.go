package utils

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncate(t *testing.T) {
	if got := Truncate("hello", 10); got != "hello" {
		t.Errorf("short string: got %q", got)
	}
	if got := Truncate("hello world", 5); got != "hello..." {
		t.Errorf("truncated: got %q", got)
	}
	if got := Truncate("hello", 0); got != "hello" {
		t.Errorf("zero maxLen: got %q", got)
	}
}

func TestWordCount(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"   ", 0},
		{"one", 1},
		{"one two three", 3},
		{"  spaced\tout\nwords  ", 3},
	}
	for _, c := range cases {
		if got := WordCount(c.in); got != c.want {
			t.Errorf("WordCount(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestSnippet_StripsMarkdown(t *testing.T) {
	got := Snippet("# Heading\nSome **bold** and *italic* text")
	if strings.Contains(got, "#") || strings.Contains(got, "*") {
		t.Errorf("markdown markers left in snippet: %q", got)
	}
	if !strings.Contains(got, "Heading") || !strings.Contains(got, "bold") {
		t.Errorf("content lost: %q", got)
	}
}

func TestSnippet_CapsLength(t *testing.T) {
	long := strings.Repeat("word ", 200)
	got := Snippet(long)
	if len(got) > 203 {
		t.Errorf("snippet too long: %d bytes", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("expected ellipsis on truncated snippet: %q", got)
	}
}

func TestSnippet_MultibyteSafe(t *testing.T) {
	got := Snippet(strings.Repeat("世", 240))
	if !utf8.ValidString(got) {
		t.Errorf("snippet is not valid UTF-8: %q", got)
	}
	if n := utf8.RuneCountInString(got); n != 203 {
		t.Errorf("snippet runes: got %d, want 200 + ellipsis", n)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("expected ellipsis on truncated snippet: %q", got)
	}
}

func TestSnippet_CollapsesNewlines(t *testing.T) {
	got := Snippet("line one\nline two")
	if strings.Contains(got, "\n") {
		t.Errorf("newline left in snippet: %q", got)
	}
}
