package messages

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ReadHeader reads exactly one header from r and nothing more, so the next
// byte read from r is the first payload byte. Names longer than maxNameLen
// are rejected before they are read; maxNameLen <= 0 means MaxNameLen.
// The bytes read are decoded with Header.UnmarshalBinary.
func ReadHeader(r io.Reader, maxNameLen int) (*Header, error) {
	if maxNameLen <= 0 || maxNameLen > MaxNameLen {
		maxNameLen = MaxNameLen
	}

	var lenBuf [nameLenSize]byte
	n, err := io.ReadFull(r, lenBuf[:])
	if err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return nil, &ProtocolError{Reason: "no header received", Err: ErrNoHeader}
		}
		return nil, truncated("name length", err)
	}

	nameLen := int(binary.BigEndian.Uint32(lenBuf[:]))
	if nameLen == 0 || nameLen > maxNameLen {
		return nil, &ProtocolError{Reason: fmt.Sprintf("invalid file name length %d (max %d)", nameLen, maxNameLen), Err: ErrInvalidName}
	}

	// name and size are read together, the size field has a fixed width
	buf := make([]byte, nameLenSize+nameLen+fileSizeSize)
	copy(buf, lenBuf[:])
	if _, err := io.ReadFull(r, buf[nameLenSize:]); err != nil {
		return nil, truncated("name and size", err)
	}

	h := new(Header)
	if err := h.UnmarshalBinary(buf); err != nil {
		return nil, err
	}
	return h, nil
}

func truncated(field string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &ProtocolError{Reason: "connection closed while reading " + field, Err: ErrTruncatedHeader}
	}
	return fmt.Errorf("error reading %s: %w", field, err)
}
