package messages

import (
	"fmt"
	"io"
)

// Send writes the header in a single write. Payload bytes must only be
// written after Send returned successfully.
func (h *Header) Send(w io.Writer) error {
	buf, err := h.MarshalBinary()
	if err != nil {
		return fmt.Errorf("error encoding header: %w", err)
	}
	_, err = w.Write(buf)
	if err != nil {
		return fmt.Errorf("error sending header: %w", err)
	}
	return nil
}
