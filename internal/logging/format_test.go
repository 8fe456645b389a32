package logging

import (
	"errors"
	"log/slog"
	"testing"
	"time"
)

func TestConsoleValueQuoting(t *testing.T) {
	cases := []struct {
		value slog.Value
		want  string
	}{
		{slog.StringValue("plain"), "plain"},
		{slog.StringValue(""), `""`},
		{slog.StringValue("video 3.mp4"), `"video 3.mp4"`},
		{slog.StringValue("a=b"), `"a=b"`},
		{slog.IntValue(5), "5"},
		{slog.BoolValue(true), "true"},
		{slog.DurationValue(1500 * time.Millisecond), "1.5s"},
		{slog.AnyValue(errors.New("exit status 1")), `"exit status 1"`},
	}
	for _, tc := range cases {
		if got := consoleValue(tc.value); got != tc.want {
			t.Errorf("consoleValue(%v) = %s, want %s", tc.value, got, tc.want)
		}
	}
}

func TestRawValueNeverQuotes(t *testing.T) {
	if got := rawValue(slog.StringValue("video 3.mp4")); got != "video 3.mp4" {
		t.Fatalf("rawValue = %q", got)
	}
	if got := rawValue(slog.AnyValue(errors.New("boom"))); got != "boom" {
		t.Fatalf("rawValue error = %q", got)
	}
}
