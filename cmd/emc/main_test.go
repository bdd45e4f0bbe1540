package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/pior/emc/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runQuiet(t *testing.T, args ...string) (int, string) {
	var stdout bytes.Buffer
	code := run(append([]string{"-log-level", "none"}, args...), &stdout)
	return code, stdout.String()
}

func TestRun_Version(t *testing.T) {
	server := testutils.NewFakeServer(t)

	code, out := runQuiet(t, "-addr", server.Addr, "version")
	assert.Equal(t, 0, code)
	assert.Equal(t, "1.6.0-fake\n", out)
}

func TestRun_Stats(t *testing.T) {
	server := testutils.NewFakeServer(t)

	code, out := runQuiet(t, "-addr", server.Addr, "stats")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "bytes: 0\ncurr_items: 0\nlimit_maxbytes: 67108864\n")
}

func TestRun_Check(t *testing.T) {
	server := testutils.NewFakeServer(t)

	code, _ := runQuiet(t, "-addr", server.Addr, "check", "-run", "append")
	assert.Equal(t, 0, code)
	assert.Equal(t, 3, server.Commands("append"), "a rejected and an accepted append, then a no-reply one")
}

func TestRun_Stress(t *testing.T) {
	server := testutils.NewFakeServer(t)

	code, _ := runQuiet(t, "-addr", server.Addr, "-workers", "2", "stress", "-loops", "5", "-ops", "set,get")
	assert.Equal(t, 0, code)
	assert.Equal(t, 2+2*5, server.Commands("set"))
	assert.Equal(t, 2*5, server.Commands("get"))
}

func TestRun_FillFromConfigFile(t *testing.T) {
	server := testutils.NewFakeServer(t)
	server.SetLimitMaxBytes(100_000)

	path := filepath.Join(t.TempDir(), "emc.yaml")
	config := "addr: " + server.Addr + "\nworkers: 2\nfill:\n  percentage: 20\n  batch_size: 10\n"
	require.NoError(t, os.WriteFile(path, []byte(config), 0o600))

	code, _ := runQuiet(t, "-config", path, "fill", "-verify")
	assert.Equal(t, 0, code)
	assert.Positive(t, server.Len())
	assert.Positive(t, server.Commands("get"))
}

func TestRun_Errors(t *testing.T) {
	code, _ := runQuiet(t)
	assert.Equal(t, 2, code, "no command")

	code, _ = runQuiet(t, "frobnicate")
	assert.Equal(t, 2, code, "unknown command")

	code, _ = runQuiet(t, "-config", filepath.Join(t.TempDir(), "absent.yaml"), "version")
	assert.Equal(t, 1, code, "missing config file")

	code, _ = runQuiet(t, "-workers", "-1", "version")
	assert.Equal(t, 1, code, "invalid settings")

	code, _ = runQuiet(t, "-addr", "127.0.0.1:1", "version")
	assert.Equal(t, 1, code, "server down")
}
