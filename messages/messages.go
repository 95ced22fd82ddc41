package messages

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// A transfer is framed as one header followed by exactly Size raw bytes:
//
//	| name length (u32) | name (UTF-8) | file size (u64) |
//
// All integers are big endian. There is no trailer, no checksum and no
// response from the receiver.

const (
	nameLenSize  = 4
	fileSizeSize = 8

	// MaxNameLen bounds the name length a receiver accepts when the caller
	// does not ask for a tighter limit.
	MaxNameLen = 4096
)

// Header announces the file that follows on the stream.
type Header struct {
	Name string
	Size uint64
}

func GetHeader(name string, size uint64) *Header {
	return &Header{Name: name, Size: size}
}

// HeaderLen returns the encoded length of a header carrying name.
func HeaderLen(name string) int {
	return nameLenSize + len(name) + fileSizeSize
}

func (h *Header) validate(maxNameLen int) error {
	if len(h.Name) == 0 {
		return &ProtocolError{Reason: "empty file name", Err: ErrInvalidName}
	}
	if len(h.Name) > maxNameLen {
		return &ProtocolError{Reason: fmt.Sprintf("file name length %d exceeds %d", len(h.Name), maxNameLen), Err: ErrInvalidName}
	}
	if !utf8.ValidString(h.Name) || strings.IndexByte(h.Name, 0) >= 0 {
		return &ProtocolError{Reason: fmt.Sprintf("file name %q is not valid UTF-8 text", h.Name), Err: ErrInvalidName}
	}
	return nil
}

// MarshalBinary encodes the header. The payload is not part of it.
func (h *Header) MarshalBinary() ([]byte, error) {
	if err := h.validate(MaxNameLen); err != nil {
		return nil, err
	}
	buf := make([]byte, HeaderLen(h.Name))
	binary.BigEndian.PutUint32(buf[:nameLenSize], uint32(len(h.Name)))
	copy(buf[nameLenSize:], h.Name)
	binary.BigEndian.PutUint64(buf[nameLenSize+len(h.Name):], h.Size)
	return buf, nil
}

// UnmarshalBinary decodes a complete header. Trailing bytes are an error so
// that payload bytes can never be mistaken for header fields.
func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) == 0 {
		return &ProtocolError{Reason: "no header received", Err: ErrNoHeader}
	}
	if len(data) < nameLenSize {
		return &ProtocolError{Reason: fmt.Sprintf("header of %d bytes is too short", len(data)), Err: ErrTruncatedHeader}
	}
	nameLen := int(binary.BigEndian.Uint32(data[:nameLenSize]))
	if nameLen == 0 || nameLen > MaxNameLen {
		return &ProtocolError{Reason: fmt.Sprintf("invalid file name length %d", nameLen), Err: ErrInvalidName}
	}
	if len(data) != nameLenSize+nameLen+fileSizeSize {
		return &ProtocolError{Reason: fmt.Sprintf("header length %d does not match name length %d", len(data), nameLen), Err: ErrTruncatedHeader}
	}
	parsed := Header{
		Name: string(data[nameLenSize : nameLenSize+nameLen]),
		Size: binary.BigEndian.Uint64(data[nameLenSize+nameLen:]),
	}
	if err := parsed.validate(MaxNameLen); err != nil {
		return err
	}
	*h = parsed
	return nil
}

var (
	ErrNoHeader        = errors.New("no header received")
	ErrTruncatedHeader = errors.New("truncated header")
	ErrInvalidName     = errors.New("invalid file name")
)

// ProtocolError reports a missing or malformed header.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Reason
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
