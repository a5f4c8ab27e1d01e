package telegram

import (
	"strings"
	"testing"
)

func TestSplitText(t *testing.T) {
	if got := splitText("short", 10); len(got) != 1 || got[0] != "short" {
		t.Fatalf("splitText short = %v", got)
	}

	s := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	got := splitText(s, 10)
	if len(got) != 2 || got[0] != "aaaaaa" || got[1] != "bbbbbb" {
		t.Fatalf("splitText newline = %q", got)
	}

	got = splitText(strings.Repeat("x", 25), 10)
	if len(got) != 3 || len(got[2]) != 5 {
		t.Fatalf("splitText hard cut = %q", got)
	}
}

func TestNewRequiresToken(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatal("expected error for empty token")
	}
}
