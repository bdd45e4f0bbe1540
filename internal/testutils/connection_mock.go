package testutils

import (
	"bytes"
	"io"
	"net"
	"sync"
	"time"
)

// ConnectionMock is a mock implementation of net.Conn for testing.
//
// Each response chunk is delivered by a separate Read call (split further if
// the caller's buffer is smaller), which lets tests control exactly where the
// transport cuts the byte stream.
type ConnectionMock struct {
	mu       sync.Mutex
	chunks   [][]byte
	writeBuf bytes.Buffer
	readErr  error
	writeErr error

	reads  int
	writes int
	closed bool
}

// NewConnectionMock creates a new mock connection with pre-configured response chunks
func NewConnectionMock(chunks ...string) *ConnectionMock {
	m := &ConnectionMock{}
	for _, c := range chunks {
		m.chunks = append(m.chunks, []byte(c))
	}
	return m
}

// AddChunks queues more response chunks.
func (m *ConnectionMock) AddChunks(chunks ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		m.chunks = append(m.chunks, []byte(c))
	}
}

// FailReads makes Read return err once the queued chunks are drained.
func (m *ConnectionMock) FailReads(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

// FailWrites makes every Write return err.
func (m *ConnectionMock) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

func (m *ConnectionMock) Read(b []byte) (n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reads++
	if len(m.chunks) == 0 {
		if m.readErr != nil {
			return 0, m.readErr
		}
		return 0, io.EOF
	}

	n = copy(b, m.chunks[0])
	if n < len(m.chunks[0]) {
		m.chunks[0] = m.chunks[0][n:]
	} else {
		m.chunks = m.chunks[1:]
	}
	return n, nil
}

func (m *ConnectionMock) Write(b []byte) (n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.writes++
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	return m.writeBuf.Write(b)
}

func (m *ConnectionMock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *ConnectionMock) LocalAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0}
}

func (m *ConnectionMock) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 11211}
}

func (m *ConnectionMock) SetDeadline(t time.Time) error      { return nil }
func (m *ConnectionMock) SetReadDeadline(t time.Time) error  { return nil }
func (m *ConnectionMock) SetWriteDeadline(t time.Time) error { return nil }

// GetWrittenRequest returns the raw request bytes written to the mock connection
func (m *ConnectionMock) GetWrittenRequest() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeBuf.String()
}

// ReadCalls returns how many times Read was called.
func (m *ConnectionMock) ReadCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// WriteCalls returns how many times Write was called.
func (m *ConnectionMock) WriteCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Pending returns the number of response bytes not yet read.
func (m *ConnectionMock) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, c := range m.chunks {
		total += len(c)
	}
	return total
}

// IsClosed reports whether Close was called.
func (m *ConnectionMock) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
