package server

import (
	"errors"
	"io"
	"net"
	"os"
	"time"

	"github.com/google/uuid"

	"gitlab.lrz.de/protocol-design-sose-2022-team-0/tcpft/logger"
	"gitlab.lrz.de/protocol-design-sose-2022-team-0/tcpft/messages"
)

// Receiver stores exactly one file per connection in SaveDir.
// It implements core.ConnectionHandler.
type Receiver struct {
	SaveDir    string
	BufferSize int
	// IdleTimeout is the deadline for each read from the socket, zero means
	// a stalled client can hold the connection forever.
	IdleTimeout time.Duration
}

// Result describes a stored (possibly partial) file.
type Result struct {
	Path     string
	Expected uint64
	Received uint64
}

// HandleConnection implements core.ConnectionHandler.
// Failures are logged, nothing is ever sent back to the peer.
func (r *Receiver) HandleConnection(conn net.Conn) {
	defer conn.Close()

	log := logger.With("transfer_id", uuid.NewString(), "remote_addr", conn.RemoteAddr().String())
	log.Info("Connection accepted")

	start := time.Now()
	res, err := r.Receive(conn)

	var incomplete *IncompleteTransferError
	var protoErr *messages.ProtocolError
	var ioErr *IOError
	switch {
	case err == nil:
		log.Info("File received", "path", res.Path, "bytes", res.Received, "duration", time.Since(start))
	case errors.As(err, &incomplete):
		log.Warn("Incomplete transfer, partial file kept",
			"path", incomplete.Path,
			"expected", incomplete.Expected,
			"received", incomplete.Received,
			"error", incomplete.Err)
	case errors.As(err, &protoErr):
		log.Error("Invalid transfer header", "error", err)
	case errors.As(err, &ioErr):
		log.Error("Could not store file", "op", ioErr.Op, "path", ioErr.Path, "error", ioErr.Err)
	default:
		log.Error("Transfer failed", "error", err)
	}
}

// Receive reads one header and its payload from conn and writes the payload
// to a new file. It does not close conn.
// On an *IncompleteTransferError the returned Result describes the partial
// file.
func (r *Receiver) Receive(conn net.Conn) (*Result, error) {
	bufferSize := r.BufferSize
	if bufferSize <= 0 {
		bufferSize = 4096
	}

	r.extendDeadline(conn)
	header, err := messages.ReadHeader(conn, bufferSize)
	if err != nil {
		return nil, err
	}

	f, path, err := createDestination(r.SaveDir, header.Name)
	if err != nil {
		return nil, err
	}
	res := &Result{Path: path, Expected: header.Size}

	buf := make([]byte, bufferSize)
	copyErr := r.copyPayload(conn, f, res, buf)
	if err := f.Close(); err != nil && copyErr == nil {
		copyErr = &IOError{Op: "close", Path: path, Err: err}
	}
	return res, copyErr
}

// copyPayload streams res.Expected bytes from conn into f, reading at most
// min(len(buf), remaining) bytes at a time.
func (r *Receiver) copyPayload(conn net.Conn, f *os.File, res *Result, buf []byte) error {
	for res.Received < res.Expected {
		n := len(buf)
		if remaining := res.Expected - res.Received; remaining < uint64(n) {
			n = int(remaining)
		}

		r.extendDeadline(conn)
		read, err := conn.Read(buf[:n])
		if read > 0 {
			if _, werr := f.Write(buf[:read]); werr != nil {
				return &IOError{Op: "write", Path: res.Path, Err: werr}
			}
			res.Received += uint64(read)
		}
		if err != nil {
			if res.Received == res.Expected {
				break
			}
			if errors.Is(err, io.EOF) {
				err = nil
			}
			return &IncompleteTransferError{Path: res.Path, Expected: res.Expected, Received: res.Received, Err: err}
		}
	}
	return nil
}

func (r *Receiver) extendDeadline(conn net.Conn) {
	if r.IdleTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(r.IdleTimeout))
	}
}
