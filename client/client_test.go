package client

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.lrz.de/protocol-design-sose-2022-team-0/tcpft/messages"
)

type received struct {
	header  *messages.Header
	payload []byte
	err     error
}

// startSink accepts one connection and reads one transfer from it.
func startSink(t *testing.T) (int, chan received) {
	ln, err := messages.CreateServerSocket("127.0.0.1", 0, 5)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	result := make(chan received, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			result <- received{err: err}
			return
		}
		defer conn.Close()
		h, err := messages.ReadHeader(conn, 4096)
		if err != nil {
			result <- received{err: err}
			return
		}
		payload, err := io.ReadAll(conn)
		result <- received{header: h, payload: payload, err: err}
	}()
	return ln.Addr().(*net.TCPAddr).Port, result
}

func writeRandomFile(t *testing.T, name string, size int) (string, []byte) {
	data := make([]byte, size)
	_, err := rand.Read(data)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path, data
}

func TestSendFile(t *testing.T) {
	port, result := startSink(t)
	path, data := writeRandomFile(t, "payload.bin", 0x2345)

	var calls int
	var lastSent int64
	cfg := DefaultConfig
	cfg.ChunkSize = 1000
	cfg.Progress = func(sent, total int64) {
		calls++
		lastSent = sent
		assert.Equal(t, int64(len(data)), total)
	}

	sent, err := SendFile(context.Background(), "127.0.0.1", port, path, &cfg)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), sent)
	assert.Equal(t, 10, calls, "one progress call per chunk")
	assert.Equal(t, sent, lastSent)

	r := <-result
	require.NoError(t, r.err)
	assert.Equal(t, "payload.bin", r.header.Name)
	assert.Equal(t, uint64(len(data)), r.header.Size)
	assert.Equal(t, data, r.payload)
}

func TestSendEmptyFile(t *testing.T) {
	port, result := startSink(t)
	path, _ := writeRandomFile(t, "empty", 0)

	sent, err := SendFile(context.Background(), "127.0.0.1", port, path, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sent)

	r := <-result
	require.NoError(t, r.err)
	assert.Equal(t, uint64(0), r.header.Size)
	assert.Empty(t, r.payload)
}

func TestSendFileNotFound(t *testing.T) {
	port, result := startSink(t)

	_, err := SendFile(context.Background(), "127.0.0.1", port, filepath.Join(t.TempDir(), "missing.txt"), nil)
	assert.ErrorIs(t, err, ErrFileNotFound)
	var terr *TransferError
	assert.False(t, errors.As(err, &terr))

	select {
	case r := <-result:
		t.Fatalf(`No connection expected, sink got %+v`, r)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSendDirectory(t *testing.T) {
	_, err := SendFile(context.Background(), "127.0.0.1", 1, t.TempDir(), nil)
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestSendConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	path, _ := writeRandomFile(t, "a.txt", 10)
	_, err = SendFile(context.Background(), "127.0.0.1", port, path, nil)

	var terr *TransferError
	require.True(t, errors.As(err, &terr), "expected TransferError, got %v", err)
	assert.Equal(t, "dial", terr.Op)
}

func TestSendCancelled(t *testing.T) {
	port, _ := startSink(t)
	path, _ := writeRandomFile(t, "slow.bin", 64*1024)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	cfg := DefaultConfig
	cfg.Rate = 1024

	_, err := SendFile(ctx, "127.0.0.1", port, path, &cfg)
	var terr *TransferError
	require.True(t, errors.As(err, &terr), "expected TransferError, got %v", err)
	assert.Equal(t, "payload", terr.Op)
}
