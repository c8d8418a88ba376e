package protocol

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Frame builds a big-endian request payload. Multi-byte integers are written
// most significant byte first, strings are NUL terminated.
type Frame struct {
	b []byte
}

func NewFrame(capacity int) *Frame {
	if capacity < 0 {
		capacity = 0
	}
	return &Frame{b: make([]byte, 0, capacity)}
}

func (f *Frame) Bytes() []byte { return f.b }

func (f *Frame) Len() int { return len(f.b) }

func (f *Frame) Token(t Token) *Frame {
	return f.U16(t.Wire())
}

func (f *Frame) U8(v byte) *Frame {
	f.b = append(f.b, v)
	return f
}

func (f *Frame) U16(v uint16) *Frame {
	f.b = binary.BigEndian.AppendUint16(f.b, v)
	return f
}

func (f *Frame) U32(v uint32) *Frame {
	f.b = binary.BigEndian.AppendUint32(f.b, v)
	return f
}

// CString appends s followed by a NUL byte.
func (f *Frame) CString(s string) *Frame {
	f.b = append(f.b, s...)
	f.b = append(f.b, 0)
	return f
}

// validateWirePath rejects strings the firmware cannot receive as a
// NUL-terminated path.
func validateWirePath(p string) error {
	if strings.IndexByte(p, 0) >= 0 {
		return fmt.Errorf("path %q contains a NUL byte", p)
	}
	return nil
}

// Checksum is the 16-bit byte sum the firmware verifies after a transfer.
func Checksum(data []byte) uint16 {
	var sum uint16
	for _, b := range data {
		sum += uint16(b)
	}
	return sum
}
