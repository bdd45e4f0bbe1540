package text

import (
	"strconv"
)

// Request encoders append the wire form of one command to dst and return the
// extended slice. They never validate keys: oversize or malformed keys are
// sent as-is so the server's CLIENT_ERROR can be observed.

// AppendStore encodes a storage command:
//
//	<verb> <key> <flags> <exptime> <bytes> [noreply]\r\n<data>\r\n
func AppendStore(dst []byte, verb Verb, key string, flags uint32, exptime int64, data []byte, noreply bool) []byte {
	dst = appendStoreHeader(dst, verb, key, flags, exptime, len(data))
	return appendStoreTail(dst, data, noreply)
}

// AppendCAS encodes a cas command:
//
//	cas <key> <flags> <exptime> <bytes> <cas unique> [noreply]\r\n<data>\r\n
func AppendCAS(dst []byte, key string, flags uint32, exptime int64, data []byte, cas uint64, noreply bool) []byte {
	dst = appendStoreHeader(dst, VerbCAS, key, flags, exptime, len(data))
	dst = append(dst, ' ')
	dst = strconv.AppendUint(dst, cas, 10)
	return appendStoreTail(dst, data, noreply)
}

func appendStoreHeader(dst []byte, verb Verb, key string, flags uint32, exptime int64, size int) []byte {
	dst = append(dst, verb...)
	dst = append(dst, ' ')
	dst = append(dst, key...)
	dst = append(dst, ' ')
	dst = strconv.AppendUint(dst, uint64(flags), 10)
	dst = append(dst, ' ')
	dst = strconv.AppendInt(dst, exptime, 10)
	dst = append(dst, ' ')
	return strconv.AppendInt(dst, int64(size), 10)
}

func appendStoreTail(dst []byte, data []byte, noreply bool) []byte {
	dst = appendNoReply(dst, noreply)
	dst = append(dst, CRLF...)
	dst = append(dst, data...)
	return append(dst, CRLF...)
}

// AppendRetrieve encodes get or gets over one or more keys:
//
//	get <key> [<key> ...]\r\n
func AppendRetrieve(dst []byte, verb Verb, keys []string) []byte {
	dst = append(dst, verb...)
	for _, key := range keys {
		dst = append(dst, ' ')
		dst = append(dst, key...)
	}
	return append(dst, CRLF...)
}

// AppendDelete encodes: delete <key> [noreply]\r\n
func AppendDelete(dst []byte, key string, noreply bool) []byte {
	dst = append(dst, VerbDelete...)
	dst = append(dst, ' ')
	dst = append(dst, key...)
	dst = appendNoReply(dst, noreply)
	return append(dst, CRLF...)
}

// AppendArithmetic encodes incr or decr: <verb> <key> <delta> [noreply]\r\n
func AppendArithmetic(dst []byte, verb Verb, key string, delta uint64, noreply bool) []byte {
	dst = append(dst, verb...)
	dst = append(dst, ' ')
	dst = append(dst, key...)
	dst = append(dst, ' ')
	dst = strconv.AppendUint(dst, delta, 10)
	dst = appendNoReply(dst, noreply)
	return append(dst, CRLF...)
}

// AppendTouch encodes: touch <key> <exptime> [noreply]\r\n
func AppendTouch(dst []byte, key string, exptime int64, noreply bool) []byte {
	dst = append(dst, VerbTouch...)
	dst = append(dst, ' ')
	dst = append(dst, key...)
	dst = append(dst, ' ')
	dst = strconv.AppendInt(dst, exptime, 10)
	dst = appendNoReply(dst, noreply)
	return append(dst, CRLF...)
}

// AppendFlushAll encodes: flush_all [delay] [noreply]\r\n
// A zero delay is omitted.
func AppendFlushAll(dst []byte, delay int64, noreply bool) []byte {
	dst = append(dst, VerbFlushAll...)
	if delay > 0 {
		dst = append(dst, ' ')
		dst = strconv.AppendInt(dst, delay, 10)
	}
	dst = appendNoReply(dst, noreply)
	return append(dst, CRLF...)
}

// AppendVerbosity encodes: verbosity <level> [noreply]\r\n
func AppendVerbosity(dst []byte, level int, noreply bool) []byte {
	dst = append(dst, VerbVerbosity...)
	dst = append(dst, ' ')
	dst = strconv.AppendInt(dst, int64(level), 10)
	dst = appendNoReply(dst, noreply)
	return append(dst, CRLF...)
}

// AppendSimple encodes a verb with optional arguments and no payload, e.g.
// "stats", "stats slabs", "version", "quit".
func AppendSimple(dst []byte, verb Verb, args ...string) []byte {
	dst = append(dst, verb...)
	for _, arg := range args {
		dst = append(dst, ' ')
		dst = append(dst, arg...)
	}
	return append(dst, CRLF...)
}

func appendNoReply(dst []byte, noreply bool) []byte {
	if !noreply {
		return dst
	}
	dst = append(dst, ' ')
	return append(dst, NoReply...)
}
