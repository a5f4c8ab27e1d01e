package logx

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	kit "sysmonitor/internal/transport"
)

func TestFormatChatLine(t *testing.T) {
	line := []byte(`{"level":"warn","time":"x","message":"launch failed","pid":12,"comp":"schedule"}` + "\n")
	got := formatChatLine(line)
	want := "[WARN] launch failed\n- comp=schedule\n- pid=12"
	if got != want {
		t.Fatalf("formatChatLine = %q, want %q", got, want)
	}

	if got := formatChatLine([]byte("  not json  ")); got != "not json" {
		t.Fatalf("raw line = %q", got)
	}
}

func TestWriterLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "test"))
	log.Info("hello", Int("n", 3), Err(nil))

	out := buf.String()
	for _, want := range []string{`"comp":"test"`, `"n":3`, `"message":"hello"`, `"caller":"logx_test.go:`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %s", out, want)
		}
	}
	if strings.Contains(out, `"err"`) {
		t.Fatalf("nil error should not be logged: %q", out)
	}
}

func TestZeroLoggerIsNop(t *testing.T) {
	var log Logger
	if !log.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	log.Error("dropped")
}

func TestValidLevel(t *testing.T) {
	for _, s := range []string{"", "info", "WARN", "warning", "trace"} {
		if !ValidLevel(s) {
			t.Fatalf("ValidLevel(%q) = false", s)
		}
	}
	if ValidLevel("loud") {
		t.Fatal("ValidLevel(loud) = true")
	}
}

func TestTelegramSinkForwardsWarnings(t *testing.T) {
	got := make(chan string, 4)
	sender := kit.SenderFunc(func(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) error {
		if to.ChatID != 42 {
			t.Errorf("chat id = %d", to.ChatID)
		}
		got <- text
		return nil
	})

	svc, log := New(Config{
		Level:    "debug",
		Telegram: TelegramConfig{Enabled: true, ChatID: 42, MinLevel: "warn", RatePerSec: 10},
	}, sender)
	t.Cleanup(func() { _ = svc.Close() })

	log.Info("quiet")
	log.Warn("loud", String("k", "v"))

	select {
	case text := <-got:
		if !strings.HasPrefix(text, "[WARN] loud") {
			t.Fatalf("text = %q", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("warning was not forwarded")
	}
	select {
	case text := <-got:
		t.Fatalf("unexpected extra message %q", text)
	case <-time.After(50 * time.Millisecond):
	}
}
