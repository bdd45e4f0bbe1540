package emc

import (
	"bufio"
	"context"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/pior/emc/internal/testutils"
	"github.com/stretchr/testify/require"
)

func createListener(t testing.TB, handler func(conn net.Conn)) string {
	// Start a simple test server
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to start test server: %v", err)
	}

	t.Cleanup(func() {
		listener.Close()
	})

	// Accept connections in background
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}

			go func(c net.Conn) {
				defer c.Close()

				if handler != nil {
					handler(c)
				}
			}(conn)
		}
	}()

	return listener.Addr().String()
}

// lineResponder answers each request line with the next canned response.
// Data blocks of storage commands are skipped.
func lineResponder(responses ...string) func(conn net.Conn) {
	return func(conn net.Conn) {
		reader := bufio.NewReader(conn)
		for _, response := range responses {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			if isStorageCommand(line) {
				if _, err := reader.ReadString('\n'); err != nil {
					return
				}
			}
			if _, err := conn.Write([]byte(response)); err != nil {
				return
			}
		}
		// Hold the connection until the client closes it.
		_, _ = reader.ReadByte()
	}
}

func isStorageCommand(line string) bool {
	verb, _, _ := strings.Cut(line, " ")
	switch verb {
	case "set", "add", "replace", "append", "prepend", "cas":
		return true
	}
	return false
}

// newMockClient returns a client over a chunked mock connection.
func newMockClient(chunks ...string) (*Client, *testutils.ConnectionMock) {
	mock := testutils.NewConnectionMock(chunks...)
	return NewClientWithConn(mock, Config{}), mock
}

// memcachedAddr returns the address of a live memcached, or skips the test.
func memcachedAddr(t testing.TB) string {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	addr := os.Getenv("MEMCACHED_ADDR")
	if addr == "" {
		addr = "127.0.0.1:11211"
	}

	conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
	if err != nil {
		t.Skipf("memcached not available at %s: %v", addr, err)
	}
	_ = conn.Close()

	return addr
}

// newIntegrationClient connects to a live memcached and flushes it.
func newIntegrationClient(t testing.TB) *Client {
	t.Helper()

	client := NewClient(memcachedAddr(t), Config{})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.FlushAll(ctx, 0, false))

	return client
}
