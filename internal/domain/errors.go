package domain

import (
	"errors"
	"fmt"
)

var (
	ErrPatternMismatch  = errors.New("timestamp does not match /Date(<millis><+|-><hhmm>)/")
	ErrNumericOverflow  = errors.New("timestamp milliseconds out of range")
	ErrMalformedPayload = errors.New("malformed page payload")

	ErrSessionExists   = errors.New("session already exists")
	ErrTooManySessions = errors.New("too many sessions")
	ErrRegistryStopped = errors.New("session registry stopped")
	ErrNotBootstrapped = errors.New("poller has not completed bootstrap")
)

// DecodeKind classifies why a page payload could not be decoded.
type DecodeKind int

const (
	DecodeMalformed DecodeKind = iota
	DecodePatternMismatch
	DecodeNumericOverflow
)

func (k DecodeKind) String() string {
	switch k {
	case DecodePatternMismatch:
		return "pattern_mismatch"
	case DecodeNumericOverflow:
		return "numeric_overflow"
	default:
		return "malformed"
	}
}

// DecodeError reports a payload that could not be turned into a Page.
type DecodeError struct {
	Kind  DecodeKind
	Input string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Input != "" {
		return fmt.Sprintf("decode %s %q: %v", e.Kind, e.Input, e.Err)
	}
	return fmt.Sprintf("decode %s: %v", e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is lets errors.Is match a DecodeError against the sentinel of its kind.
func (e *DecodeError) Is(target error) bool {
	switch target {
	case ErrPatternMismatch:
		return e.Kind == DecodePatternMismatch
	case ErrNumericOverflow:
		return e.Kind == DecodeNumericOverflow
	case ErrMalformedPayload:
		return e.Kind == DecodeMalformed
	}
	return false
}

// FetchKind distinguishes a failure to reach the upstream from a failure to understand it.
type FetchKind int

const (
	FetchTransport FetchKind = iota
	FetchDecode
)

func (k FetchKind) String() string {
	if k == FetchDecode {
		return "decode"
	}
	return "transport"
}

// FetchError is returned by the page source for any failed page.
type FetchError struct {
	Kind FetchKind
	Page int
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch page %d (%s): %v", e.Page, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsTransport reports whether err is a FetchError caused by the transport.
func IsTransport(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == FetchTransport
}

// IsDecode reports whether err is a FetchError caused by an undecodable payload.
func IsDecode(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == FetchDecode
}
