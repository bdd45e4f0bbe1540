package emc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/pior/emc/text"
)

const (
	// ReadChunkSize is the size of a single transport read while looking for a line terminator.
	ReadChunkSize = 4096

	// MaxLineLength bounds a response line. Memcached lines are short; a
	// longer run without terminator means the peer is not speaking the protocol.
	MaxLineLength = 8192
)

var crlf = []byte(text.CRLF)

// Stream frames a byte-oriented connection into lines and exact-length blocks.
//
// It owns the connection and a read-ahead buffer holding bytes received but
// not yet delivered. Every byte read off the wire is delivered to a caller at
// most once. A Stream has a single reader: it is not safe for concurrent use.
type Stream struct {
	addr   string
	dialer *net.Dialer
	conn   net.Conn

	readAhead []byte
	chunk     []byte

	bytesRead    atomic.Uint64
	bytesWritten atomic.Uint64
}

// NewStream creates a stream that dials addr lazily on first use.
// If dialer is nil, the default net.Dialer is used.
func NewStream(addr string, dialer *net.Dialer) *Stream {
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	return &Stream{
		addr:   addr,
		dialer: dialer,
		chunk:  make([]byte, ReadChunkSize),
	}
}

// NewStreamConn creates a stream over an established connection. Once closed,
// the stream redials the connection's remote address.
func NewStreamConn(conn net.Conn) *Stream {
	return &Stream{
		addr:   conn.RemoteAddr().String(),
		dialer: &net.Dialer{},
		conn:   conn,
		chunk:  make([]byte, ReadChunkSize),
	}
}

// Addr returns the endpoint address.
func (s *Stream) Addr() string {
	return s.addr
}

// Connect establishes the connection. It is a no-op when already connected.
func (s *Stream) Connect(ctx context.Context) error {
	if s.conn != nil {
		return nil
	}

	conn, err := s.dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return text.NewConnectionError("dial", err)
	}

	s.conn = conn
	return nil
}

// Connected reports whether the stream holds a connection.
func (s *Stream) Connected() bool {
	return s.conn != nil
}

func (s *Stream) ensureConnected() error {
	return s.Connect(context.Background())
}

// SetDeadline applies a deadline to the underlying connection. The zero
// time clears it. The stream never sets deadlines on its own.
func (s *Stream) SetDeadline(t time.Time) error {
	if err := s.ensureConnected(); err != nil {
		return err
	}
	return s.conn.SetDeadline(t)
}

// WriteAll writes the whole of p, retrying short writes.
func (s *Stream) WriteAll(p []byte) error {
	if err := s.ensureConnected(); err != nil {
		return err
	}

	for len(p) > 0 {
		n, err := s.conn.Write(p)
		s.bytesWritten.Add(uint64(n))
		if err != nil {
			return text.NewConnectionError("write", err)
		}
		if n == 0 {
			return text.NewConnectionError("write", io.ErrShortWrite)
		}
		p = p[n:]
	}
	return nil
}

// ReadLine returns the next line including its \r\n terminator.
//
// It is satisfied from the read-ahead buffer first, then from transport reads
// of ReadChunkSize bytes. Bytes past the terminator stay in the read-ahead
// buffer. The returned slice is not modified by later reads.
func (s *Stream) ReadLine() ([]byte, error) {
	if err := s.ensureConnected(); err != nil {
		return nil, err
	}

	from := 0
	for {
		line, rest, ok := cutLine(s.readAhead, from)
		if ok {
			s.readAhead = rest
			return line, nil
		}

		if len(s.readAhead) > MaxLineLength {
			return nil, &text.ProtocolError{Line: string(s.readAhead[:64]), Message: "response line too long"}
		}

		// A terminator split across two reads starts at the last buffered byte.
		from = max(len(s.readAhead)-1, 0)

		if err := s.fill(len(s.chunk)); err != nil {
			return nil, err
		}
	}
}

// ReadExact returns exactly n bytes.
//
// The read-ahead buffer is drained first; only the shortfall is then read
// from the transport, directly into the result, so nothing past n is
// consumed from the wire. Buffered bytes beyond n stay buffered.
func (s *Stream) ReadExact(n int) ([]byte, error) {
	if err := s.ensureConnected(); err != nil {
		return nil, err
	}

	if n < 0 {
		return nil, &text.ProtocolError{Message: fmt.Sprintf("negative read length %d", n)}
	}

	if len(s.readAhead) >= n {
		var head []byte
		head, s.readAhead = cutN(s.readAhead, n)
		return head, nil
	}

	out := make([]byte, n)
	have := copy(out, s.readAhead)
	s.readAhead = nil

	got, err := io.ReadFull(s.conn, out[have:])
	s.bytesRead.Add(uint64(got))
	if err != nil {
		// Keep what arrived so no byte is lost to a later caller.
		s.readAhead = out[:have+got]
		return nil, text.NewConnectionError("read", err)
	}

	return out, nil
}

// PeekContains reports whether the next len(token) bytes equal token.
//
// The read-ahead buffer is topped up with only the missing bytes; nothing is
// ever discarded. When consume is true and the token matches, those bytes are
// removed from the buffer. With consume false, repeated calls are idempotent.
func (s *Stream) PeekContains(token []byte, consume bool) (bool, error) {
	if err := s.ensureConnected(); err != nil {
		return false, err
	}

	for len(s.readAhead) < len(token) {
		if err := s.fill(len(token) - len(s.readAhead)); err != nil {
			return false, err
		}
	}

	if !bytes.HasPrefix(s.readAhead, token) {
		return false, nil
	}

	if consume {
		_, s.readAhead = cutN(s.readAhead, len(token))
	}
	return true, nil
}

// Buffered returns the number of read-ahead bytes not yet delivered.
func (s *Stream) Buffered() int {
	return len(s.readAhead)
}

// BytesRead returns the number of bytes received from the transport.
// Safe to call concurrently with stream use.
func (s *Stream) BytesRead() uint64 {
	return s.bytesRead.Load()
}

// BytesWritten returns the number of bytes sent to the transport.
func (s *Stream) BytesWritten() uint64 {
	return s.bytesWritten.Load()
}

// Close closes the connection and drops buffered bytes. The stream can
// reconnect on next use.
func (s *Stream) Close() error {
	s.readAhead = nil
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// fill performs one transport read of at most limit bytes and appends the
// result to the read-ahead buffer.
func (s *Stream) fill(limit int) error {
	limit = min(limit, len(s.chunk))

	n, err := s.conn.Read(s.chunk[:limit])
	if n > 0 {
		s.bytesRead.Add(uint64(n))
		s.readAhead = append(s.readAhead, s.chunk[:n]...)
		return nil
	}
	if err == nil {
		err = io.ErrNoProgress
	}
	return text.NewConnectionError("read", err)
}

// cutLine splits buf after the first \r\n found at or after from.
// line is capacity-limited so appends to rest never alias it.
func cutLine(buf []byte, from int) (line, rest []byte, ok bool) {
	idx := bytes.Index(buf[from:], crlf)
	if idx < 0 {
		return nil, buf, false
	}
	end := from + idx + len(crlf)
	return buf[:end:end], buf[end:], true
}

// cutN splits buf after n bytes. head is capacity-limited.
func cutN(buf []byte, n int) (head, rest []byte) {
	return buf[:n:n], buf[n:]
}
