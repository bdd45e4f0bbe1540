package testutils

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// FakeServer is an in-memory memcached speaking enough of the text protocol
// to drive clients in tests: storage commands, get/gets, delete, incr/decr,
// touch, flush_all, stats, version, verbosity and quit.
type FakeServer struct {
	Addr string

	mu       sync.Mutex
	limit    uint64
	items    map[string]fakeItem
	bytes    uint64
	nextCAS  uint64
	commands map[string]int
	conns    int
}

const (
	maxKeyLength = 250
	maxItemSize  = 1024 * 1024
)

type fakeItem struct {
	flags uint32
	value []byte
	cas   uint64
}

// NewFakeServer starts a server on a random local port, stopped on test cleanup.
func NewFakeServer(t testing.TB) *FakeServer {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to start fake server: %v", err)
	}

	s := &FakeServer{
		Addr:     listener.Addr().String(),
		limit:    64 * 1024 * 1024,
		items:    map[string]fakeItem{},
		commands: map[string]int{},
	}

	t.Cleanup(func() {
		listener.Close()
	})

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.conns++
			s.mu.Unlock()

			go func() {
				defer conn.Close()
				s.serve(conn)
			}()
		}
	}()

	return s
}

// SetLimitMaxBytes changes the memory limit reported by stats.
func (s *FakeServer) SetLimitMaxBytes(limit uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limit = limit
}

// Commands returns how many times verb was received.
func (s *FakeServer) Commands(verb string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commands[verb]
}

// Connections returns the number of accepted connections.
func (s *FakeServer) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

// Len returns the number of stored items.
func (s *FakeServer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Value returns the stored value of key.
func (s *FakeServer) Value(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[key]
	return it.value, ok
}

func (s *FakeServer) serve(conn net.Conn) {
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			fmt.Fprint(w, "ERROR\r\n")
			continue
		}

		verb := fields[0]
		s.mu.Lock()
		s.commands[verb]++
		s.mu.Unlock()

		noreply := fields[len(fields)-1] == "noreply"
		if noreply {
			fields = fields[:len(fields)-1]
		}

		var reply string
		switch verb {
		case "set", "add", "replace", "append", "prepend", "cas":
			reply, err = s.store(r, verb, fields)
			if err != nil {
				return
			}
		case "get", "gets":
			reply = s.get(verb == "gets", fields[1:])
		case "delete":
			reply = s.delete(fields)
		case "incr", "decr":
			reply = s.arith(verb == "incr", fields)
		case "touch":
			reply = s.touch(fields)
		case "flush_all":
			s.mu.Lock()
			s.items = map[string]fakeItem{}
			s.bytes = 0
			s.mu.Unlock()
			reply = "OK\r\n"
		case "verbosity":
			reply = "OK\r\n"
		case "stats":
			reply = s.stats()
		case "version":
			reply = "VERSION 1.6.0-fake\r\n"
		case "quit":
			_ = w.Flush()
			return
		default:
			reply = "ERROR\r\n"
		}

		if !noreply {
			w.WriteString(reply)
		}
		// Replies are written once the client stops sending, like a real
		// server draining a pipeline.
		if r.Buffered() == 0 {
			if err := w.Flush(); err != nil {
				return
			}
		}
	}
}

func (s *FakeServer) store(r *bufio.Reader, verb string, fields []string) (string, error) {
	want := 5
	if verb == "cas" {
		want = 6
	}
	if len(fields) != want {
		return "ERROR\r\n", nil
	}
	flags, err1 := strconv.ParseUint(fields[2], 10, 32)
	size, err2 := strconv.Atoi(fields[4])
	if err1 != nil || err2 != nil || size < 0 || len(fields[1]) > maxKeyLength {
		// Like memcached, the data block is not swallowed.
		return "CLIENT_ERROR bad command line format\r\n", nil
	}

	data := make([]byte, size+2)
	if _, err := io.ReadFull(r, data); err != nil {
		return "", err
	}
	if string(data[size:]) != "\r\n" {
		return "CLIENT_ERROR bad data chunk\r\n", nil
	}
	if size > maxItemSize {
		return "SERVER_ERROR object too large for cache\r\n", nil
	}
	value := data[:size]
	key := fields[1]

	s.mu.Lock()
	defer s.mu.Unlock()

	old, exists := s.items[key]
	switch verb {
	case "add":
		if exists {
			return "NOT_STORED\r\n", nil
		}
	case "replace":
		if !exists {
			return "NOT_STORED\r\n", nil
		}
	case "append", "prepend":
		if !exists {
			return "NOT_STORED\r\n", nil
		}
		if verb == "append" {
			value = append(append([]byte{}, old.value...), value...)
		} else {
			value = append(append([]byte{}, value...), old.value...)
		}
		flags = uint64(old.flags)
	case "cas":
		if !exists {
			return "NOT_FOUND\r\n", nil
		}
		token, err := strconv.ParseUint(fields[5], 10, 64)
		if err != nil {
			return "CLIENT_ERROR bad command line format\r\n", nil
		}
		if token != old.cas {
			return "EXISTS\r\n", nil
		}
	}

	s.put(key, fakeItem{flags: uint32(flags), value: value})
	return "STORED\r\n", nil
}

// put stores an item with a fresh CAS token. s.mu must be held.
func (s *FakeServer) put(key string, it fakeItem) {
	if old, ok := s.items[key]; ok {
		s.bytes -= uint64(len(key) + len(old.value))
	}
	s.nextCAS++
	it.cas = s.nextCAS
	s.items[key] = it
	s.bytes += uint64(len(key) + len(it.value))
}

func (s *FakeServer) get(withCAS bool, keys []string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	for _, key := range keys {
		it, ok := s.items[key]
		if !ok {
			continue
		}
		if withCAS {
			fmt.Fprintf(&b, "VALUE %s %d %d %d\r\n", key, it.flags, len(it.value), it.cas)
		} else {
			fmt.Fprintf(&b, "VALUE %s %d %d\r\n", key, it.flags, len(it.value))
		}
		b.Write(it.value)
		b.WriteString("\r\n")
	}
	b.WriteString("END\r\n")
	return b.String()
}

func (s *FakeServer) delete(fields []string) string {
	if len(fields) != 2 {
		return "ERROR\r\n"
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[fields[1]]
	if !ok {
		return "NOT_FOUND\r\n"
	}
	s.bytes -= uint64(len(fields[1]) + len(it.value))
	delete(s.items, fields[1])
	return "DELETED\r\n"
}

func (s *FakeServer) arith(incr bool, fields []string) string {
	if len(fields) != 3 {
		return "ERROR\r\n"
	}
	delta, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return "CLIENT_ERROR invalid numeric delta argument\r\n"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[fields[1]]
	if !ok {
		return "NOT_FOUND\r\n"
	}
	n, err := strconv.ParseUint(string(it.value), 10, 64)
	if err != nil {
		return "CLIENT_ERROR cannot increment or decrement non-numeric value\r\n"
	}
	switch {
	case incr:
		n += delta
	case delta > n:
		n = 0
	default:
		n -= delta
	}
	it.value = []byte(strconv.FormatUint(n, 10))
	s.put(fields[1], it)
	return string(it.value) + "\r\n"
}

func (s *FakeServer) touch(fields []string) string {
	if len(fields) != 3 {
		return "ERROR\r\n"
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[fields[1]]; !ok {
		return "NOT_FOUND\r\n"
	}
	return "TOUCHED\r\n"
}

func (s *FakeServer) stats() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "STAT pid %d\r\n", 1)
	fmt.Fprintf(&b, "STAT version %s\r\n", "1.6.0-fake")
	fmt.Fprintf(&b, "STAT curr_items %d\r\n", len(s.items))
	fmt.Fprintf(&b, "STAT bytes %d\r\n", s.bytes)
	fmt.Fprintf(&b, "STAT limit_maxbytes %d\r\n", s.limit)
	b.WriteString("END\r\n")
	return b.String()
}
