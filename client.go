package emc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pior/emc/text"
)

// DefaultPipelineFlushSize is the write buffer size past which pipelined
// no-reply commands are sent.
const DefaultPipelineFlushSize = 64 * 1024

var endLine = []byte(text.End + text.CRLF)

// maxRetainedBuffer caps the write buffer kept between commands.
const maxRetainedBuffer = 4 * DefaultPipelineFlushSize

// Config holds configuration for a Client.
type Config struct {
	// Dialer is the net.Dialer used to create the connection.
	// If nil, the default net.Dialer is used.
	Dialer *net.Dialer

	// Pipeline enables buffering of no-reply commands. See SetPipelining.
	Pipeline bool

	// PipelineFlushSize is the buffered byte count that triggers a write of
	// pipelined commands. Zero means DefaultPipelineFlushSize.
	PipelineFlushSize int

	// NewCircuitBreaker creates a circuit breaker for the server.
	// If nil, no circuit breaker is used.
	NewCircuitBreaker func(serverAddr string) CircuitBreaker
}

// Client speaks the memcached text protocol to one server over one connection.
//
// Commands are serialized: the client is safe to share but only one command
// is on the wire at a time. Every method takes a context; a deadline on it is
// applied to the connection and cancelling it aborts blocked I/O. The client
// never retries.
type Client struct {
	mu     sync.Mutex
	stream *Stream

	pipeline  bool
	flushSize int
	wbuf      []byte

	circuitBreaker CircuitBreaker // nil if not configured
	stats          *clientStatsCollector
}

// NewClient creates a client for the server at addr. The connection is
// established on first use.
func NewClient(addr string, config Config) *Client {
	return newClient(NewStream(addr, config.Dialer), config)
}

// NewClientWithConn creates a client over an established connection.
func NewClientWithConn(conn net.Conn, config Config) *Client {
	return newClient(NewStreamConn(conn), config)
}

func newClient(stream *Stream, config Config) *Client {
	flushSize := config.PipelineFlushSize
	if flushSize <= 0 {
		flushSize = DefaultPipelineFlushSize
	}

	c := &Client{
		stream:    stream,
		pipeline:  config.Pipeline,
		flushSize: flushSize,
		stats:     newClientStatsCollector(),
	}
	if config.NewCircuitBreaker != nil {
		c.circuitBreaker = config.NewCircuitBreaker(stream.Addr())
	}
	return c
}

// Addr returns the server address.
func (c *Client) Addr() string {
	return c.stream.Addr()
}

// Connect establishes the connection ahead of the first command.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream.Connect(ctx)
}

// Close closes the connection. Pipelined commands not yet written are dropped.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wbuf = c.wbuf[:0]
	return c.stream.Close()
}

// ClientStats returns a snapshot of client statistics.
func (c *Client) ClientStats() ClientStats {
	return c.stats.snapshot(c.stream)
}

// CircuitBreakerState returns the breaker state name, "closed" when no
// breaker is configured.
func (c *Client) CircuitBreakerState() string {
	if c.circuitBreaker == nil {
		return "closed"
	}
	return c.circuitBreaker.State().String()
}

// SetPipelining switches pipelining of no-reply commands.
//
// When on, no-reply commands are appended to a write buffer and sent once it
// exceeds the flush size, or ahead of the next command that reads a response.
// Buffered commands are sent in the order they were issued. Turning
// pipelining off does not send what is buffered; use FlushPipeline.
func (c *Client) SetPipelining(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pipeline = on
}

// FlushPipeline sends every buffered command and waits until the server has
// processed them, using a single version round trip.
func (c *Client) FlushPipeline(ctx context.Context) error {
	_, err := c.Version(ctx)
	return err
}

// PendingBytes returns the size of the pipelined commands not yet written.
func (c *Client) PendingBytes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.wbuf)
}

// Set stores an item unconditionally.
func (c *Client) Set(ctx context.Context, item text.Item, exptime int64, noreply bool) error {
	return c.store(ctx, text.VerbSet, item, exptime, noreply)
}

// Add stores an item only if the key is absent. text.ErrStoreFailed otherwise.
func (c *Client) Add(ctx context.Context, item text.Item, exptime int64, noreply bool) error {
	return c.store(ctx, text.VerbAdd, item, exptime, noreply)
}

// Replace stores an item only if the key is present. text.ErrStoreFailed otherwise.
func (c *Client) Replace(ctx context.Context, item text.Item, exptime int64, noreply bool) error {
	return c.store(ctx, text.VerbReplace, item, exptime, noreply)
}

// Append adds item.Value after the existing value.
func (c *Client) Append(ctx context.Context, item text.Item, exptime int64, noreply bool) error {
	return c.store(ctx, text.VerbAppend, item, exptime, noreply)
}

// Prepend adds item.Value before the existing value.
func (c *Client) Prepend(ctx context.Context, item text.Item, exptime int64, noreply bool) error {
	return c.store(ctx, text.VerbPrepend, item, exptime, noreply)
}

func (c *Client) store(ctx context.Context, verb text.Verb, item text.Item, exptime int64, noreply bool) error {
	encode := func(dst []byte) []byte {
		return text.AppendStore(dst, verb, item.Key, item.Flags, exptime, item.Value, noreply)
	}
	return c.do(ctx, verb, noreply, encode, c.expectStored())
}

// CompareAndSwap stores item only if item.CAS still matches the server's
// token. text.ErrCASConflict if the item changed, text.ErrItemNotFound if it
// is gone.
func (c *Client) CompareAndSwap(ctx context.Context, item text.Item, exptime int64, noreply bool) error {
	encode := func(dst []byte) []byte {
		return text.AppendCAS(dst, item.Key, item.Flags, exptime, item.Value, item.CAS, noreply)
	}
	return c.do(ctx, text.VerbCAS, noreply, encode, c.expectStored())
}

// Get retrieves a single item. text.ErrItemNotFound if absent.
func (c *Client) Get(ctx context.Context, key string) (text.Item, error) {
	return c.getOne(ctx, text.VerbGet, key)
}

// Gets retrieves a single item with its CAS token.
func (c *Client) Gets(ctx context.Context, key string) (text.Item, error) {
	return c.getOne(ctx, text.VerbGets, key)
}

func (c *Client) getOne(ctx context.Context, verb text.Verb, key string) (text.Item, error) {
	items, err := c.retrieve(ctx, verb, []string{key})
	if err != nil {
		return text.Item{}, err
	}
	item, ok := items[key]
	if !ok {
		return text.Item{}, text.ErrItemNotFound
	}
	return item, nil
}

// GetMulti retrieves many keys in one command. Absent keys are missing from
// the result.
func (c *Client) GetMulti(ctx context.Context, keys []string) (map[string]text.Item, error) {
	return c.retrieve(ctx, text.VerbGet, keys)
}

// GetsMulti is GetMulti with CAS tokens.
func (c *Client) GetsMulti(ctx context.Context, keys []string) (map[string]text.Item, error) {
	return c.retrieve(ctx, text.VerbGets, keys)
}

func (c *Client) retrieve(ctx context.Context, verb text.Verb, keys []string) (map[string]text.Item, error) {
	items := make(map[string]text.Item, len(keys))

	encode := func(dst []byte) []byte {
		return text.AppendRetrieve(dst, verb, keys)
	}
	read := func() error {
		for {
			line, err := c.stream.ReadLine()
			if err != nil {
				return err
			}
			if text.IsEnd(line) {
				return nil
			}

			header, err := text.ParseValueHeader(line)
			if err != nil {
				return err
			}

			block, err := c.stream.ReadExact(header.Size + len(text.CRLF))
			if err != nil {
				return err
			}
			value, err := text.ParseDataBlock(block)
			if err != nil {
				return err
			}

			items[header.Key] = text.Item{
				Key:   header.Key,
				Flags: header.Flags,
				Value: value,
				CAS:   header.CAS,
			}

			// A block is followed by another VALUE line or END, both at
			// least as long as the END line.
			end, err := c.stream.PeekContains(endLine, true)
			if err != nil {
				return err
			}
			if end {
				return nil
			}
		}
	}

	if err := c.do(ctx, verb, false, encode, read); err != nil {
		return nil, err
	}
	c.stats.recordLookup(len(keys), len(items))
	return items, nil
}

// Delete removes an item. text.ErrItemNotFound if absent.
func (c *Client) Delete(ctx context.Context, key string, noreply bool) error {
	encode := func(dst []byte) []byte {
		return text.AppendDelete(dst, key, noreply)
	}
	return c.do(ctx, text.VerbDelete, noreply, encode, c.expect(text.Deleted))
}

// Incr adds delta to a decimal value and returns the new value as sent by
// the server. Overflow wraps on the server. With noreply the result is "".
func (c *Client) Incr(ctx context.Context, key string, delta uint64, noreply bool) (string, error) {
	return c.arithmetic(ctx, text.VerbIncr, key, delta, noreply)
}

// Decr subtracts delta from a decimal value. The server clamps at zero.
func (c *Client) Decr(ctx context.Context, key string, delta uint64, noreply bool) (string, error) {
	return c.arithmetic(ctx, text.VerbDecr, key, delta, noreply)
}

func (c *Client) arithmetic(ctx context.Context, verb text.Verb, key string, delta uint64, noreply bool) (string, error) {
	var result string

	encode := func(dst []byte) []byte {
		return text.AppendArithmetic(dst, verb, key, delta, noreply)
	}
	read := func() error {
		line, err := c.stream.ReadLine()
		if err != nil {
			return err
		}
		result, err = text.ParseArithmetic(line)
		return err
	}

	if err := c.do(ctx, verb, noreply, encode, read); err != nil {
		return "", err
	}
	return result, nil
}

// Touch updates the expiration time of an item. text.ErrItemNotFound if absent.
func (c *Client) Touch(ctx context.Context, key string, exptime int64, noreply bool) error {
	encode := func(dst []byte) []byte {
		return text.AppendTouch(dst, key, exptime, noreply)
	}
	return c.do(ctx, text.VerbTouch, noreply, encode, c.expect(text.Touched))
}

// FlushAll invalidates every item, after delay seconds when delay > 0.
func (c *Client) FlushAll(ctx context.Context, delay int64, noreply bool) error {
	encode := func(dst []byte) []byte {
		return text.AppendFlushAll(dst, delay, noreply)
	}
	return c.do(ctx, text.VerbFlushAll, noreply, encode, c.expect(text.OK))
}

// Verbosity sets the server log level.
func (c *Client) Verbosity(ctx context.Context, level int, noreply bool) error {
	encode := func(dst []byte) []byte {
		return text.AppendVerbosity(dst, level, noreply)
	}
	return c.do(ctx, text.VerbVerbosity, noreply, encode, c.expect(text.OK))
}

// Stats returns the server statistics, optionally for a group ("slabs",
// "items", "settings"...). Values are kept as raw strings.
func (c *Client) Stats(ctx context.Context, args ...string) (map[string]string, error) {
	stats := make(map[string]string)

	encode := func(dst []byte) []byte {
		return text.AppendSimple(dst, text.VerbStats, args...)
	}
	read := func() error {
		for {
			line, err := c.stream.ReadLine()
			if err != nil {
				return err
			}
			if text.IsEnd(line) {
				return nil
			}
			name, value, err := text.ParseStatLine(line)
			if err != nil {
				return err
			}
			stats[name] = value
		}
	}

	if err := c.do(ctx, text.VerbStats, false, encode, read); err != nil {
		return nil, err
	}
	return stats, nil
}

// Version returns the server version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	var version string

	encode := func(dst []byte) []byte {
		return text.AppendSimple(dst, text.VerbVersion)
	}
	read := func() error {
		line, err := c.stream.ReadLine()
		if err != nil {
			return err
		}
		version, err = text.ParseVersion(line)
		return err
	}

	if err := c.do(ctx, text.VerbVersion, false, encode, read); err != nil {
		return "", err
	}
	return version, nil
}

// Quit asks the server to close the connection, then closes it locally.
// Pipelined commands are written first.
func (c *Client) Quit(ctx context.Context) error {
	encode := func(dst []byte) []byte {
		return text.AppendSimple(dst, text.VerbQuit)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	c.stats.recordCommand(text.VerbQuit)
	c.stats.recordNoReply()

	c.wbuf = encode(c.wbuf)
	err := c.writePending(ctx)
	if closeErr := c.stream.Close(); err == nil {
		err = closeErr
	}
	return err
}

// expect returns a reader accepting exactly one response literal.
func (c *Client) expect(literal string) func() error {
	return func() error {
		line, err := c.stream.ReadLine()
		if err != nil {
			return err
		}
		if text.Is(line, literal) {
			return nil
		}
		return text.Classify(line)
	}
}

// expectStored reads the response of a command carrying a data block.
// A CLIENT_ERROR rejects the command line before the data block is read, so
// the server parses the block as a command of its own and the connection is
// out of step: it is closed.
func (c *Client) expectStored() func() error {
	expect := c.expect(text.Stored)
	return func() error {
		err := expect()
		var clientErr *text.ClientError
		if errors.As(err, &clientErr) {
			_ = c.stream.Close()
		}
		return err
	}
}

// do encodes one command into the write buffer and runs it. No-reply
// commands never read; the others write the buffer and read the response.
func (c *Client) do(ctx context.Context, verb text.Verb, noreply bool, encode func([]byte) []byte, read func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	c.stats.recordCommand(verb)
	c.wbuf = encode(c.wbuf)

	var err error
	if noreply {
		c.stats.recordNoReply()
		if c.pipeline && len(c.wbuf) <= c.flushSize {
			return nil
		}
		err = c.writePending(ctx)
	} else {
		err = c.execRequest(ctx, read)
	}

	if err != nil {
		c.stats.recordError()
	}
	return err
}

// execRequest runs one round trip, through the circuit breaker if configured.
func (c *Client) execRequest(ctx context.Context, read func() error) error {
	defer c.resetBuffer()

	if c.circuitBreaker != nil {
		_, err := c.circuitBreaker.Execute(func() (bool, error) {
			return true, c.execRequestDirect(ctx, read)
		})
		return err
	}

	return c.execRequestDirect(ctx, read)
}

func (c *Client) execRequestDirect(ctx context.Context, read func() error) error {
	err := c.withConn(ctx, func() error {
		if err := c.stream.WriteAll(c.wbuf); err != nil {
			return err
		}
		c.stats.recordRoundTrip()
		return read()
	})
	return c.checkConn(ctx, err)
}

// writePending writes the buffer without reading anything back.
func (c *Client) writePending(ctx context.Context) error {
	defer c.resetBuffer()

	err := c.withConn(ctx, func() error {
		return c.stream.WriteAll(c.wbuf)
	})
	return c.checkConn(ctx, err)
}

// withConn connects if needed and runs fn with ctx bound to the connection:
// its deadline is set on the socket and cancellation interrupts blocked I/O.
func (c *Client) withConn(ctx context.Context, fn func() error) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}

	deadline, _ := ctx.Deadline()
	if err := c.stream.SetDeadline(deadline); err != nil {
		return text.NewConnectionError("deadline", err)
	}

	if ctx.Done() != nil {
		conn := c.stream.conn
		stop := context.AfterFunc(ctx, func() {
			_ = conn.SetDeadline(time.Unix(1, 0))
		})
		defer stop()
	}

	return fn()
}

// checkConn closes the stream after a connection-level failure, so the next
// command starts on a fresh connection. Item-level errors keep it open.
func (c *Client) checkConn(ctx context.Context, err error) error {
	if err == nil || !text.ShouldCloseConnection(err) {
		return err
	}
	_ = c.stream.Close()

	ctxErr := ctx.Err()
	if d, ok := ctx.Deadline(); ok && ctxErr == nil && !time.Now().Before(d) {
		// The connection deadline can fire before the context notices.
		ctxErr = context.DeadlineExceeded
	}
	if ctxErr != nil {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	return err
}

func (c *Client) resetBuffer() {
	if cap(c.wbuf) > maxRetainedBuffer {
		c.wbuf = nil
		return
	}
	c.wbuf = c.wbuf[:0]
}
