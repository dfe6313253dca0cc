package sync

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/roomchat/internal/fault"
)

// Server timestamps are naive UTC with microsecond, millisecond or no
// fraction. Zoned RFC 3339 is accepted as a last resort.
var timestampLayouts = []string{
	"2006-01-02T15:04:05.000000",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
}

// ParseTimestamp converts a server timestamp to epoch milliseconds. On
// failure it returns the current time together with a Parse fault.
func ParseTimestamp(s string) (int64, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UnixMilli(), nil
		}
	}
	return time.Now().UnixMilli(), fault.New(fault.Parse, "parse timestamp", fmt.Sprintf("unrecognised timestamp %q", s))
}

// Timestamp is ParseTimestamp that logs and swallows the failure.
func (e *Engine) Timestamp(s string) int64 {
	ts, err := ParseTimestamp(s)
	if err != nil {
		e.logger.Warn("using local time for message", zap.Error(err))
	}
	return ts
}
