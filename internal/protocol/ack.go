package protocol

import (
	"fmt"
	"time"
)

// AckStatus classifies the two bytes read after a request.
type AckStatus int

const (
	AckOK AckStatus = iota
	AckFail
	AckUnexpected
	AckTimeout
)

func (s AckStatus) String() string {
	switch s {
	case AckOK:
		return "ack"
	case AckFail:
		return "fail"
	case AckUnexpected:
		return "unexpected"
	default:
		return "timeout"
	}
}

// AckResult carries the status and whatever raw bytes were read.
type AckResult struct {
	Status AckStatus
	Raw    []byte
}

// awaitAck waits up to timeout for exactly two bytes and classifies them.
// Only an exact Ack is success.
func awaitAck(t Transport, timeout time.Duration) (AckResult, error) {
	buf := make([]byte, 2)
	n, err := t.Read(buf, timeout)
	if err != nil {
		return AckResult{}, err
	}
	raw := buf[:n]
	if n < 2 {
		return AckResult{Status: AckTimeout, Raw: raw}, nil
	}
	switch IdentifyBytes(raw) {
	case TokenAck:
		return AckResult{Status: AckOK, Raw: raw}, nil
	case TokenFail:
		return AckResult{Status: AckFail, Raw: raw}, nil
	default:
		return AckResult{Status: AckUnexpected, Raw: raw}, nil
	}
}

// ackError turns a non-Ack result into its typed error, attaching the
// device's trailing diagnostic text.
func ackError(stage string, res AckResult, timeout time.Duration, diagnostic []byte) error {
	switch res.Status {
	case AckOK:
		return nil
	case AckFail:
		return &HandshakeRejectedError{Stage: stage, Diagnostic: string(diagnostic)}
	case AckUnexpected:
		return &UnexpectedResponseError{Stage: stage, Raw: res.Raw, Diagnostic: string(diagnostic)}
	case AckTimeout:
		received := append(append([]byte{}, res.Raw...), diagnostic...)
		return &HandshakeTimeoutError{Stage: stage, Timeout: timeout, Received: received}
	}
	return fmt.Errorf("%s: unknown ack status %d", stage, res.Status)
}
