package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// Engine.IO v4 carries Socket.IO v5 packets as text frames: one Engine.IO
// type digit, and for messages ('4') one Socket.IO type digit, followed by
// an optional namespace, ack id and JSON body.
type frameKind int

const (
	frameOpen frameKind = iota + 1
	frameClose
	framePing
	framePong
	frameNoop
	frameConnect
	frameDisconnect
	frameEvent
	frameConnectError
	frameOther
)

// Client-originated frames.
const (
	pongFrame       = "3"
	connectFrame    = "40"
	disconnectFrame = "41"
)

type frame struct {
	kind frameKind
	// body is the JSON after the type digits, namespace and ack id.
	body []byte
}

var errEmptyFrame = errors.New("empty frame")

func decodeFrame(data []byte) (frame, error) {
	if len(data) == 0 {
		return frame{}, errEmptyFrame
	}
	switch data[0] {
	case '0':
		return frame{kind: frameOpen, body: data[1:]}, nil
	case '1':
		return frame{kind: frameClose}, nil
	case '2':
		return frame{kind: framePing}, nil
	case '3':
		return frame{kind: framePong}, nil
	case '6':
		return frame{kind: frameNoop}, nil
	case '4':
	default:
		return frame{}, fmt.Errorf("unknown engine.io packet type %q", data[0])
	}

	if len(data) < 2 {
		return frame{}, fmt.Errorf("truncated socket.io packet %q", data)
	}
	body := skipNamespaceAndAck(data[2:])
	switch data[1] {
	case '0':
		return frame{kind: frameConnect, body: body}, nil
	case '1':
		return frame{kind: frameDisconnect}, nil
	case '2':
		return frame{kind: frameEvent, body: body}, nil
	case '4':
		return frame{kind: frameConnectError, body: body}, nil
	default:
		return frame{kind: frameOther, body: body}, nil
	}
}

// skipNamespaceAndAck drops a "/nsp," prefix and any ack id digits.
func skipNamespaceAndAck(b []byte) []byte {
	if len(b) > 0 && b[0] == '/' {
		for i, c := range b {
			if c == ',' {
				b = b[i+1:]
				break
			}
			if i == len(b)-1 {
				return nil
			}
		}
	}
	i := 0
	for i < len(b) && b[i] >= '0' && b[i] <= '9' {
		i++
	}
	return b[i:]
}

// encodeEvent renders 42["name",payload].
func encodeEvent(name string, payload any) ([]byte, error) {
	body, err := json.Marshal([]any{name, payload})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", name, err)
	}
	return append([]byte("42"), body...), nil
}

// eventName and eventData split a frameEvent body.
func eventName(body []byte) string {
	return gjson.GetBytes(body, "0").String()
}

func eventData(body []byte) gjson.Result {
	return gjson.GetBytes(body, "1")
}

func parseBody(body []byte) gjson.Result {
	return gjson.ParseBytes(body)
}

// heartbeat carries the server's Engine.IO timing from the open packet.
type heartbeat struct {
	interval time.Duration
	timeout  time.Duration
}

func parseOpen(body []byte) heartbeat {
	hb := heartbeat{interval: 25 * time.Second, timeout: 20 * time.Second}
	if v := gjson.GetBytes(body, "pingInterval"); v.Exists() && v.Int() > 0 {
		hb.interval = time.Duration(v.Int()) * time.Millisecond
	}
	if v := gjson.GetBytes(body, "pingTimeout"); v.Exists() && v.Int() > 0 {
		hb.timeout = time.Duration(v.Int()) * time.Millisecond
	}
	return hb
}

// errorText extracts the message of an error payload, which the server sends
// either as {"message": "..."} or as a bare string.
func errorText(v gjson.Result) string {
	switch {
	case v.IsObject():
		if m := v.Get("message"); m.Exists() {
			return m.String()
		}
		return v.Raw
	case v.Type == gjson.String:
		return v.Str
	case v.Exists():
		return v.Raw
	default:
		return "unknown error"
	}
}
