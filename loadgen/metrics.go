package loadgen

import (
	"fmt"
	"strings"
	"time"

	"github.com/pior/emc"
)

// Metrics is the mutable record of one worker. Only the owning worker writes
// it; the pool reads it after the worker returned.
type Metrics struct {
	Units uint64 // completed units of work
	Items uint64 // items transferred by completed units
	Bytes uint64 // key and value bytes transferred by completed units

	Busy time.Duration // time spent waiting on the server
	Wall time.Duration // time spent in the worker, set by the pool
}

// Record accounts for one completed unit of work.
func (m *Metrics) Record(items, bytes uint64, busy time.Duration) {
	m.Units++
	m.Items += items
	m.Bytes += bytes
	m.Busy += busy
}

// Add returns the sum of two records.
func (m Metrics) Add(o Metrics) Metrics {
	return Metrics{
		Units: m.Units + o.Units,
		Items: m.Items + o.Items,
		Bytes: m.Bytes + o.Bytes,
		Busy:  m.Busy + o.Busy,
		Wall:  m.Wall + o.Wall,
	}
}

// WorkerError is the error that ended one worker.
type WorkerError struct {
	Worker int
	Err    error
}

func (e WorkerError) Error() string {
	return fmt.Sprintf("worker %d: %v", e.Worker, e.Err)
}

func (e WorkerError) Unwrap() error {
	return e.Err
}

// Report is the aggregated outcome of a pool run.
type Report struct {
	Task        string
	Workers     []Metrics
	Total       Metrics
	Errors      []WorkerError
	Duration    time.Duration
	Interrupted bool
	ClientStats emc.ClientStats
}

func newReport(task string, workers []Metrics, stats emc.ClientStats) Report {
	r := Report{Task: task, Workers: workers, ClientStats: stats}
	for _, m := range workers {
		r.Total = r.Total.Add(m)
	}
	return r
}

// ItemRate is the net item rate: items per second spent waiting on the server.
func (r Report) ItemRate() float64 {
	if r.Total.Busy <= 0 {
		return 0
	}
	return float64(r.Total.Items) / r.Total.Busy.Seconds()
}

// ByteRate is the net byte rate.
func (r Report) ByteRate() float64 {
	if r.Total.Busy <= 0 {
		return 0
	}
	return float64(r.Total.Bytes) / r.Total.Busy.Seconds()
}

// Overhead is the share of worker time not spent waiting on the server
// (data generation, scheduling), in percent.
func (r Report) Overhead() float64 {
	if r.Total.Wall <= 0 {
		return 0
	}
	return 100 * float64(r.Total.Wall-r.Total.Busy) / float64(r.Total.Wall)
}

func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d items, %d bytes in %s (net avg rate: %.0f items/s - %.0f bytes/s)",
		r.Task, r.Total.Items, r.Total.Bytes, r.Duration.Round(time.Millisecond), r.ItemRate(), r.ByteRate())
	fmt.Fprintf(&b, "\nspent %.2fs in network io, %.2fs in total (%.2f%% overhead)",
		r.Total.Busy.Seconds(), r.Total.Wall.Seconds(), r.Overhead())
	if r.Interrupted {
		b.WriteString("\ninterrupted")
	}
	for _, e := range r.Errors {
		fmt.Fprintf(&b, "\n%v", e)
	}
	return b.String()
}
