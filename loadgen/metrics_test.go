package loadgen

import (
	"errors"
	"testing"
	"time"

	"github.com/pior/emc"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	var m Metrics
	m.Record(100, 5000, 10*time.Millisecond)
	m.Record(50, 2500, 5*time.Millisecond)

	assert.Equal(t, Metrics{Units: 2, Items: 150, Bytes: 7500, Busy: 15 * time.Millisecond}, m)
}

func TestReport(t *testing.T) {
	workers := []Metrics{
		{Units: 1, Items: 100, Bytes: 1000, Busy: time.Second, Wall: 2 * time.Second},
		{Units: 3, Items: 300, Bytes: 3000, Busy: time.Second, Wall: 2 * time.Second},
	}
	report := newReport("filler", workers, emc.ClientStats{Sets: 400})
	report.Duration = 2 * time.Second
	report.Interrupted = true
	report.Errors = []WorkerError{{Worker: 2, Err: errors.New("boom")}}

	assert.Equal(t, uint64(4), report.Total.Units)
	assert.Equal(t, uint64(400), report.Total.Items)
	assert.InDelta(t, 200.0, report.ItemRate(), 0.001)
	assert.InDelta(t, 2000.0, report.ByteRate(), 0.001)
	assert.InDelta(t, 50.0, report.Overhead(), 0.001)

	out := report.String()
	assert.Contains(t, out, "filler: 400 items, 4000 bytes in 2s")
	assert.Contains(t, out, "net avg rate: 200 items/s - 2000 bytes/s")
	assert.Contains(t, out, "(50.00% overhead)")
	assert.Contains(t, out, "interrupted")
	assert.Contains(t, out, "worker 2: boom")
}

func TestReport_Empty(t *testing.T) {
	report := newReport("idle", nil, emc.ClientStats{})
	assert.Zero(t, report.ItemRate())
	assert.Zero(t, report.ByteRate())
	assert.Zero(t, report.Overhead())
}
