package throttle_test

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.lrz.de/protocol-design-sose-2022-team-0/tcpft/throttle"
)

func TestWrapUnlimited(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	conn := throttle.Wrap(context.Background(), a, 0)
	assert.Same(t, a, conn, "no rate should not wrap the connection")
}

func TestThrottledConnPassesAllBytes(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()

	conn := throttle.Wrap(context.Background(), a, 1024)
	_, ok := conn.(*throttle.ThrottledConn)
	require.True(t, ok)

	data := bytes.Repeat([]byte("0123456789abcdef"), 200) // 3200 bytes, larger than burst
	done := make(chan []byte)
	go func() {
		got, _ := io.ReadAll(b)
		done <- got
	}()

	start := time.Now()
	n, err := conn.Write(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	conn.Close()

	assert.Equal(t, data, <-done)
	// the first burst is free, the remaining ~2176 bytes need about two seconds
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
}

func TestThrottledConnCancel(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	go io.Copy(io.Discard, b)

	ctx, cancel := context.WithCancel(context.Background())
	conn := throttle.Wrap(ctx, a, 10)
	cancel()

	_, err := conn.Write([]byte("payload"))
	assert.Error(t, err)
}
