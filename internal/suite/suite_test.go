package suite

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/pior/emc/internal/logger"
	"github.com/pior/emc/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_FakeServer(t *testing.T) {
	server := testutils.NewFakeServer(t)
	var out bytes.Buffer

	runner := &Runner{Addr: server.Addr, Log: logger.New(&out, logger.LevelInfo, false)}
	result := runner.Run(context.Background(), Cases)

	assert.True(t, result.OK(), "failed: %v\n%s", result.Failed, out.String())
	assert.Len(t, result.Skipped, 4, "slow cases")
	assert.Len(t, result.Passed, len(Cases)-4)
	assert.Contains(t, out.String(), "[runner] SUCCEEDED: add in ")
	assert.Contains(t, out.String(), "[runner] 33 test run: 33 passed, 0 failed, 4 skipped")
	assert.Contains(t, out.String(), "[runner] [test24] 1.6.0-fake")
}

func TestRunner_ReportsFailures(t *testing.T) {
	server := testutils.NewFakeServer(t)
	var out bytes.Buffer

	cases := []Case{
		{Name: "passes", Run: func(ctx context.Context, e *Env) error { return nil }},
		{Name: "fails", Run: func(ctx context.Context, e *Env) error { return errors.New("boom") }},
		{Name: "uses the client", Run: testSetNoReply},
	}

	runner := &Runner{Addr: server.Addr, Log: logger.New(&out, logger.LevelInfo, false)}
	result := runner.Run(context.Background(), cases)

	assert.False(t, result.OK())
	assert.Equal(t, []string{"passes", "uses the client"}, result.Passed)
	assert.Equal(t, []string{"fails"}, result.Failed)
	assert.Contains(t, out.String(), "FAILED: fails in ")
	assert.Contains(t, out.String(), ": boom")
}

func TestRunner_Filter(t *testing.T) {
	server := testutils.NewFakeServer(t)

	runner := &Runner{
		Addr:   server.Addr,
		Filter: func(name string) bool { return strings.HasPrefix(name, "incr") },
	}
	result := runner.Run(context.Background(), Cases)

	assert.Equal(t, []string{"incr", "incr_noreply", "incr_overflow", "incr_over_size"}, result.Passed)
	assert.Empty(t, result.Failed)
}

func TestRunner_StopsWhenCancelled(t *testing.T) {
	server := testutils.NewFakeServer(t)
	ctx, cancel := context.WithCancel(context.Background())

	cases := []Case{
		{Name: "first", Run: func(ctx context.Context, e *Env) error {
			cancel()
			return nil
		}},
		{Name: "second", Run: func(ctx context.Context, e *Env) error { return nil }},
	}

	result := (&Runner{Addr: server.Addr}).Run(ctx, cases)
	assert.Equal(t, []string{"first"}, result.Passed)
	assert.Empty(t, result.Failed)
}

func TestRunner_ServerDown(t *testing.T) {
	runner := &Runner{Addr: "127.0.0.1:1"}
	result := runner.Run(context.Background(), Cases[:2])
	assert.Equal(t, []string{"add", "add_noreply"}, result.Failed)
}

// Runs the whole suite, slow cases included, against a real server.
func TestRunner_Memcached(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	addr := os.Getenv("MEMCACHED_ADDR")
	if addr == "" {
		t.Skip("MEMCACHED_ADDR not set")
	}

	result := (&Runner{Addr: addr, Slow: true}).Run(context.Background(), Cases)
	assert.True(t, result.OK(), "failed: %v", result.Failed)
	require.Empty(t, result.Skipped)
}
