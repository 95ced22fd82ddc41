package server

import (
	"errors"
	"fmt"
)

// ErrPathEscapes is wrapped in a ProtocolError when a file name resolves to a
// path outside the save directory.
var ErrPathEscapes = errors.New("file name escapes the save directory")

// IncompleteTransferError is a soft failure: the peer stopped sending before
// Expected bytes arrived. The partial file stays on disk.
type IncompleteTransferError struct {
	Path     string
	Expected uint64
	Received uint64
	// Err is the read error that ended the transfer, nil on a clean close.
	Err error
}

func (e *IncompleteTransferError) Error() string {
	msg := fmt.Sprintf("incomplete transfer of %s: received %d of %d bytes", e.Path, e.Received, e.Expected)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *IncompleteTransferError) Unwrap() error {
	return e.Err
}

// IOError reports a filesystem failure on the receiving side.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
