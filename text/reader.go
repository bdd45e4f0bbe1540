package text

import (
	"bytes"
	"strconv"
)

// Pre-allocated byte slices for comparisons (avoid allocation in hot path)
var (
	crlfBytes         = []byte(CRLF)
	clientErrorPrefix = []byte(ErrorClientPrefix)
	serverErrorPrefix = []byte(ErrorServerPrefix)
	valuePrefix       = []byte(ValuePrefix + " ")
	statPrefix        = []byte(StatPrefix + " ")
	versionPrefix     = []byte(VersionPrefix + " ")
	endBytes          = []byte(End)
)

// Item is a record returned by get or gets.
type Item struct {
	Key   string
	Flags uint32
	Value []byte

	// CAS is the cas unique token, only set by gets.
	CAS uint64
}

// ValueHeader is a parsed "VALUE <key> <flags> <bytes> [<cas unique>]" line.
type ValueHeader struct {
	Key    string
	Flags  uint32
	Size   int
	CAS    uint64
	HasCAS bool
}

// TrimCRLF removes one trailing \r\n (reslice, no allocation).
func TrimCRLF(line []byte) []byte {
	return bytes.TrimSuffix(line, crlfBytes)
}

// Is reports whether line (with or without its terminator) is exactly literal.
func Is(line []byte, literal string) bool {
	return string(TrimCRLF(line)) == literal
}

// IsEnd reports whether line is the END marker.
func IsEnd(line []byte) bool {
	return bytes.Equal(TrimCRLF(line), endBytes)
}

// IsValueHeader reports whether line starts a VALUE block.
func IsValueHeader(line []byte) bool {
	return bytes.HasPrefix(line, valuePrefix)
}

// Classify maps a response line that is not the caller's expected success
// literal to an error. It is total: every line yields exactly one non-nil error.
//
// Match order:
//  1. CLIENT_ERROR [message] -> *ClientError
//  2. SERVER_ERROR [message] -> *ServerError
//  3. exact ERROR -> *ServerError, NOT_FOUND -> ErrItemNotFound,
//     NOT_STORED -> ErrStoreFailed, EXISTS -> ErrCASConflict
//  4. anything else -> *ProtocolError
func Classify(line []byte) error {
	line = TrimCRLF(line)

	if message, ok := cutKeyword(line, clientErrorPrefix); ok {
		return &ClientError{Message: message}
	}

	if message, ok := cutKeyword(line, serverErrorPrefix); ok {
		return &ServerError{Message: message}
	}

	switch string(line) {
	case ErrorGeneric:
		return &ServerError{Message: ErrorGeneric}
	case NotFound:
		return ErrItemNotFound
	case NotStored:
		return ErrStoreFailed
	case Exists:
		return ErrCASConflict
	}

	return &ProtocolError{Line: string(line)}
}

// cutKeyword matches line against keyword alone or followed by a space and
// a message.
func cutKeyword(line, keyword []byte) (string, bool) {
	rest, ok := bytes.CutPrefix(line, keyword)
	if !ok {
		return "", false
	}
	if len(rest) == 0 {
		return "", true
	}
	if rest[0] != ' ' {
		return "", false
	}
	return string(rest[1:]), true
}

// ParseValueHeader parses "VALUE <key> <flags> <bytes> [<cas unique>]".
func ParseValueHeader(line []byte) (ValueHeader, error) {
	var h ValueHeader

	trimmed := TrimCRLF(line)
	if !bytes.HasPrefix(trimmed, valuePrefix) {
		return h, Classify(trimmed)
	}

	fields := bytes.Fields(trimmed[len(valuePrefix):])
	if len(fields) != 3 && len(fields) != 4 {
		return h, &ProtocolError{Line: string(trimmed), Message: "malformed VALUE line"}
	}

	flags, err := strconv.ParseUint(string(fields[1]), 10, 32)
	if err != nil {
		return h, &ProtocolError{Line: string(trimmed), Message: "invalid flags in VALUE line"}
	}

	size, err := strconv.Atoi(string(fields[2]))
	if err != nil || size < 0 {
		return h, &ProtocolError{Line: string(trimmed), Message: "invalid size in VALUE line"}
	}
	if size > MaxDataBlockLength {
		return h, &ProtocolError{Line: string(trimmed), Message: "size in VALUE line exceeds the item size limit"}
	}

	h.Key = string(fields[0])
	h.Flags = uint32(flags)
	h.Size = size

	if len(fields) == 4 {
		h.CAS, err = strconv.ParseUint(string(fields[3]), 10, 64)
		if err != nil {
			return h, &ProtocolError{Line: string(trimmed), Message: "invalid cas in VALUE line"}
		}
		h.HasCAS = true
	}

	return h, nil
}

// ParseDataBlock checks that block is <data>\r\n and returns data.
func ParseDataBlock(block []byte) ([]byte, error) {
	if !bytes.HasSuffix(block, crlfBytes) {
		return nil, &ProtocolError{Line: string(block[max(0, len(block)-8):]), Message: "invalid data block terminator"}
	}
	return block[:len(block)-len(crlfBytes)], nil
}

// ParseStatLine splits "STAT <name> <value>" into exactly three fields.
// The value is kept raw and may contain spaces.
func ParseStatLine(line []byte) (name, value string, err error) {
	trimmed := TrimCRLF(line)
	if !bytes.HasPrefix(trimmed, statPrefix) {
		return "", "", Classify(trimmed)
	}

	rest := trimmed[len(statPrefix):]
	n, v, found := bytes.Cut(rest, []byte(Space))
	if !found || len(n) == 0 {
		return "", "", &ProtocolError{Line: string(trimmed), Message: "malformed STAT line"}
	}

	return string(n), string(v), nil
}

// ParseVersion extracts the version string from "VERSION <string>".
func ParseVersion(line []byte) (string, error) {
	trimmed := TrimCRLF(line)
	if !bytes.HasPrefix(trimmed, versionPrefix) {
		return "", Classify(trimmed)
	}
	return string(bytes.TrimSpace(trimmed[len(versionPrefix):])), nil
}

// ParseArithmetic returns the decimal value of an incr/decr response.
// The digits are passed through verbatim: any 64-bit wraparound is the server's.
func ParseArithmetic(line []byte) (string, error) {
	trimmed := bytes.TrimRight(TrimCRLF(line), Space)
	if len(trimmed) == 0 {
		return "", &ProtocolError{Line: "", Message: "empty incr/decr response"}
	}
	for _, b := range trimmed {
		if b < '0' || b > '9' {
			return "", Classify(trimmed)
		}
	}
	return string(trimmed), nil
}
