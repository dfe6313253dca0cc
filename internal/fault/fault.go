// Package fault classifies failures the client can hit so callers decide
// between surfacing, queueing and swallowing them.
package fault

import (
	"errors"
	"fmt"
)

// Kind is the fault category.
type Kind int

const (
	// Validation rejects input before any side effect.
	Validation Kind = iota + 1
	// Transport means the realtime channel is not connected or not joined.
	Transport
	// Remote wraps a REST non-2xx status or a network failure.
	Remote
	// Parse marks a malformed timestamp or event payload.
	Parse
	// Storage is an unrecoverable store failure.
	Storage
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Transport:
		return "transport"
	case Remote:
		return "remote"
	case Parse:
		return "parse"
	case Storage:
		return "storage"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels for errors.Is checks against a kind.
var (
	ErrValidation = &Error{Kind: Validation}
	ErrTransport  = &Error{Kind: Transport}
	ErrRemote     = &Error{Kind: Remote}
	ErrParse      = &Error{Kind: Parse}
	ErrStorage    = &Error{Kind: Storage}
)

// Error is a classified failure. Status is only set for Remote faults that
// carried an HTTP response.
type Error struct {
	Kind   Kind
	Op     string
	Status int
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Op != "" && e.Status != 0:
		return fmt.Sprintf("%s: %s error %d: %s", e.Op, e.Kind, e.Status, msg)
	case e.Op != "":
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrRemote) works
// regardless of op or message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds a fault without an underlying cause.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap classifies err under kind. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// HTTP builds a Remote fault for a non-2xx response.
func HTTP(op string, status int, msg string) *Error {
	return &Error{Kind: Remote, Op: op, Status: status, Msg: msg}
}

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return 0, false
}
