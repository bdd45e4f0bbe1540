package text

import (
	"bytes"
	"strings"
	"testing"
)

func FuzzAppendStore(f *testing.F) {
	f.Add("foo", "hello", uint32(0), int64(0), false)
	f.Add("bar", "", uint32(42), int64(300), true)
	f.Add(strings.Repeat("a", 250), "data\r\nwith crlf", uint32(1<<31), int64(-1), false)

	f.Fuzz(func(t *testing.T, key, value string, flags uint32, exptime int64, noreply bool) {
		if strings.ContainsAny(key, "\r\n") {
			t.Skip("keys never contain line terminators")
		}
		result := AppendStore(nil, VerbSet, key, flags, exptime, []byte(value), noreply)

		if !bytes.HasPrefix(result, []byte("set ")) {
			t.Errorf("Result should start with 'set ': %q", result)
		}
		if !bytes.HasSuffix(result, []byte(value+"\r\n")) {
			t.Errorf("Result should end with the data block: %q", result)
		}

		// The header line is the first line.
		header, _, ok := bytes.Cut(result, []byte("\r\n"))
		if !ok {
			t.Fatalf("Result has no header line: %q", result)
		}
		if noreply != bytes.HasSuffix(header, []byte(" noreply")) {
			t.Errorf("noreply=%v not reflected in %q", noreply, header)
		}
	})
}

func FuzzParseValueHeader(f *testing.F) {
	f.Add([]byte("VALUE foo 0 5\r\n"))
	f.Add([]byte("VALUE foo 42 5 12345\r\n"))
	f.Add([]byte("VALUE foo 4294967296 5\r\n"))
	f.Add([]byte("VALUE foo 0 -1\r\n"))
	f.Add([]byte("VALUE foo 0 9223372036854775807\r\n"))
	f.Add([]byte("END\r\n"))
	f.Add([]byte("SERVER_ERROR out of memory\r\n"))
	f.Add([]byte(""))

	f.Fuzz(func(t *testing.T, line []byte) {
		h, err := ParseValueHeader(line)
		if err != nil {
			return
		}
		if h.Size < 0 || h.Size > MaxDataBlockLength {
			t.Errorf("Out of range size %d parsed from %q", h.Size, line)
		}
		if h.Key == "" {
			t.Errorf("Empty key parsed from %q", line)
		}
	})
}

func FuzzClassify(f *testing.F) {
	f.Add([]byte("ERROR"))
	f.Add([]byte("CLIENT_ERROR bad data chunk"))
	f.Add([]byte("CLIENT_ERRORbad"))
	f.Add([]byte("SERVER_ERROR"))
	f.Add([]byte("NOT_FOUND"))
	f.Add([]byte("STORED"))
	f.Add([]byte{0xff, 0x00})

	f.Fuzz(func(t *testing.T, line []byte) {
		if Classify(line) == nil {
			t.Errorf("Classify(%q) returned nil", line)
		}
	})
}

func FuzzParseArithmetic(f *testing.F) {
	f.Add([]byte("42\r\n"))
	f.Add([]byte("18446744073709551615 \r\n"))
	f.Add([]byte("NOT_FOUND\r\n"))
	f.Add([]byte("\r\n"))

	f.Fuzz(func(t *testing.T, line []byte) {
		value, err := ParseArithmetic(line)
		if err != nil {
			return
		}
		for _, c := range value {
			if c < '0' || c > '9' {
				t.Errorf("Non-digit value %q parsed from %q", value, line)
			}
		}
	})
}
