// Package text implements the wire format of the memcached text protocol.
//
// It is a pure codec: encoders append a request to a byte slice and parsers
// inspect response lines handed to them by a framing reader. It performs no
// I/O and keeps no state, so higher-level clients can choose their own
// buffering and pipelining strategy.
//
// # Requests
//
//	buf := text.AppendStore(nil, text.VerbSet, "mykey", 0, 0, []byte("hello"), false)
//	// "set mykey 0 0 5\r\nhello\r\n"
//
//	buf = text.AppendRetrieve(buf[:0], text.VerbGet, []string{"k1", "k2"})
//	// "get k1 k2\r\n"
//
// # Responses
//
// Success literals are compared by the caller (text.Is(line, text.Stored)).
// Any other line goes through Classify, which maps it to exactly one error:
//
//   - CLIENT_ERROR <msg>: *ClientError
//   - SERVER_ERROR <msg> and ERROR: *ServerError
//   - NOT_FOUND: ErrItemNotFound
//   - NOT_STORED: ErrStoreFailed
//   - EXISTS: ErrCASConflict
//   - anything else: *ProtocolError
//
// # Limits
//
// Keys are limited to 250 bytes and values to 1MB by a default server. The
// encoders do not check either limit so that the server's own rejection can
// be exercised by tests.
package text
