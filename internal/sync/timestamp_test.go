package sync

import (
	"errors"
	"testing"
	"time"

	"github.com/matheus3301/roomchat/internal/bus"
	"github.com/matheus3301/roomchat/internal/fault"
)

func TestParseTimestamp(t *testing.T) {
	base := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		in   string
		want int64
	}{
		{"2024-01-02T03:04:05.123456", base.Add(123456 * time.Microsecond).UnixMilli()},
		{"2024-01-02T03:04:05.123", base.Add(123 * time.Millisecond).UnixMilli()},
		{"2024-01-02T03:04:05", base.UnixMilli()},
		{"2024-01-02T05:04:05+02:00", base.UnixMilli()},
		{"2024-01-02T03:04:05Z", base.UnixMilli()},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimestamp(tt.in)
			if err != nil {
				t.Fatalf("ParseTimestamp(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseTimestampFallback(t *testing.T) {
	for _, in := range []string{"", "yesterday", "2024/01/02 03:04:05"} {
		before := time.Now().UnixMilli()
		got, err := ParseTimestamp(in)
		after := time.Now().UnixMilli()

		if !errors.Is(err, fault.ErrParse) {
			t.Errorf("ParseTimestamp(%q) error = %v, want parse fault", in, err)
		}
		if got < before || got > after {
			t.Errorf("ParseTimestamp(%q) = %d, want now in [%d, %d]", in, got, before, after)
		}
	}
}

func TestLenientTimestamp(t *testing.T) {
	e := NewEngine(testDB(t), bus.New(), nil)
	before := time.Now().UnixMilli()
	if got := e.Timestamp("garbage"); got < before {
		t.Errorf("Timestamp(garbage) = %d, want >= %d", got, before)
	}
}
