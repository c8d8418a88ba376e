package protocol

import (
	"fmt"
	"strings"
	"time"
)

// HandshakeTimeoutError: the device did not answer within the window.
// Received holds any partial bytes that did arrive.
type HandshakeTimeoutError struct {
	Stage    string
	Timeout  time.Duration
	Received []byte
}

func (e *HandshakeTimeoutError) Error() string {
	msg := fmt.Sprintf("%s: no response within %s", e.Stage, e.Timeout)
	if len(e.Received) > 0 {
		msg += fmt.Sprintf(" (received % X)", e.Received)
	}
	return msg
}

// HandshakeRejectedError: the device answered with the Fail token.
// Diagnostic is the text it emitted afterwards.
type HandshakeRejectedError struct {
	Stage      string
	Diagnostic string
}

func (e *HandshakeRejectedError) Error() string {
	return withDiagnostic(fmt.Sprintf("%s: rejected by device", e.Stage), e.Diagnostic)
}

// UnexpectedResponseError: two bytes arrived but they were neither Ack nor Fail.
type UnexpectedResponseError struct {
	Stage      string
	Raw        []byte
	Diagnostic string
}

func (e *UnexpectedResponseError) Error() string {
	return withDiagnostic(fmt.Sprintf("%s: unexpected response % X", e.Stage, e.Raw), e.Diagnostic)
}

// MalformedResponseError: a directory listing chunk was not valid JSON.
type MalformedResponseError struct {
	Chunk string
	Err   error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed listing chunk %q: %v", e.Chunk, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// ProtocolFramingError: the stream did not begin with the expected marker.
type ProtocolFramingError struct {
	Stage      string
	Raw        []byte
	Diagnostic string
}

func (e *ProtocolFramingError) Error() string {
	return withDiagnostic(fmt.Sprintf("%s: bad framing % X", e.Stage, e.Raw), e.Diagnostic)
}

func withDiagnostic(msg, diag string) string {
	diag = strings.TrimSpace(diag)
	if diag == "" {
		return msg
	}
	return msg + ": " + diag
}
