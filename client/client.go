package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gitlab.lrz.de/protocol-design-sose-2022-team-0/tcpft/messages"
	"gitlab.lrz.de/protocol-design-sose-2022-team-0/tcpft/throttle"
)

// ErrFileNotFound is returned before any connection is made when the file to
// send does not exist or is not a regular file.
var ErrFileNotFound = errors.New("file not found")

// TransferError wraps a failure after the file was found: dialing, sending
// or reading the local file.
type TransferError struct {
	Op  string
	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer failed (%s): %v", e.Op, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

type Config struct {
	// ChunkSize is the size of each payload write.
	ChunkSize int
	// DialTimeout bounds connection setup, zero means no timeout.
	DialTimeout time.Duration
	// Rate limits the upload in bytes per second, zero means unlimited.
	Rate float64
	// Progress is called after every chunk with the bytes sent so far.
	Progress func(sent, total int64)
}

var DefaultConfig = Config{
	ChunkSize:   4096,
	DialTimeout: 10 * time.Second,
}

// SendFile connects to the server at address:port and streams filePath to
// it: one header with the base name and size, then the content. The server
// never answers, so success only means every byte was handed to the
// connection. It returns the number of payload bytes sent.
func SendFile(ctx context.Context, address string, port int, filePath string, cfg *Config) (int64, error) {
	if cfg == nil {
		cfg = &DefaultConfig
	}
	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultConfig.ChunkSize
	}

	// check the file before touching the network
	info, err := os.Stat(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("%w: %s", ErrFileNotFound, filePath)
	}
	if err != nil {
		return 0, &TransferError{Op: "stat", Err: err}
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%w: %s is not a regular file", ErrFileNotFound, filePath)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return 0, &TransferError{Op: "open", Err: err}
	}
	defer file.Close()

	conn, err := messages.CreateClientSocket(ctx, address, port, cfg.DialTimeout)
	if err != nil {
		return 0, &TransferError{Op: "dial", Err: err}
	}
	defer conn.Close()

	// abort blocked writes when ctx is cancelled
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	w := throttle.Wrap(ctx, conn, cfg.Rate)

	total := info.Size()
	header := messages.GetHeader(filepath.Base(filePath), uint64(total))
	if err := header.Send(w); err != nil {
		return 0, &TransferError{Op: "header", Err: ctxErr(ctx, err)}
	}

	// never send more than the header announced, even if the file grows
	src := io.LimitReader(file, total)
	var sent int64
	buf := make([]byte, chunkSize)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return sent, &TransferError{Op: "payload", Err: ctxErr(ctx, err)}
			}
			sent += int64(n)
			if cfg.Progress != nil {
				cfg.Progress(sent, total)
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return sent, &TransferError{Op: "read", Err: rerr}
		}
	}

	return sent, nil
}

// ctxErr prefers the cancellation cause over the deadline error it caused.
func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w (%v)", ctx.Err(), err)
	}
	return err
}
