package loadgen

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/pior/emc"
	"github.com/pior/emc/internal/logger"
	"github.com/pior/emc/text"
)

// Filler fills the cache to a percentage of its memory limit.
//
// Each worker writes batches of no-reply sets in pipelined mode, then
// confirms the batch with one round trip. A batch is the unit of work: an
// interrupted batch is not counted.
type Filler struct {
	Percentage float64 // target fill level of limit_maxbytes
	BatchSize  int     // defaults to 100
	KeySize    int     // defaults to 10
	MinValue   int     // defaults to 100
	MaxValue   int     // defaults to 1000

	// Verify reads back one item per batch and compares its fingerprint.
	Verify bool

	Log logger.Logger

	capacity uint64
	start    time.Time
}

var _ Task = (*Filler)(nil)

func (f *Filler) Name() string {
	return "filler"
}

func (f *Filler) Pre(ctx context.Context, client *emc.Client) error {
	if f.BatchSize <= 0 {
		f.BatchSize = 100
	}
	if f.KeySize <= 0 {
		f.KeySize = 10
	}
	if f.MinValue <= 0 {
		f.MinValue = 100
	}
	if f.MaxValue < f.MinValue {
		f.MaxValue = max(f.MinValue, 1000)
	}
	if f.Log == nil {
		f.Log = logger.Nil
	}

	_, capacity, err := fullness(ctx, client)
	if err != nil {
		return err
	}
	f.capacity = capacity
	f.start = time.Now()
	f.Log.Info("filling to ~%.1f%% (of %d bytes)", f.Percentage, capacity)
	return nil
}

func (f *Filler) Work(ctx context.Context, w *Worker) error {
	client := w.Client
	client.SetPipelining(true)
	defer client.SetPipelining(false)

	pct, capacity, err := fullness(ctx, client)
	if err != nil {
		return err
	}

	r := rand.New(rand.NewPCG(uint64(w.ID), uint64(time.Now().UnixNano())))
	rate := 0.0

	for pct < f.Percentage {
		if Cancelled(ctx) {
			return ctx.Err()
		}
		w.Log.Debug("cache is %.2f%% full of %d, inserting %d items (rate: %.0f items/s)",
			pct, capacity, f.BatchSize, rate)

		// Generated ahead of the batch so it is not timed.
		items := make([]text.Item, f.BatchSize)
		for i := range items {
			items[i] = text.Item{Key: RandomKey(f.KeySize), Value: RandomValue(r, f.MinValue, f.MaxValue)}
		}

		start := time.Now()
		var batchBytes uint64
		for _, item := range items {
			if Cancelled(ctx) {
				return ctx.Err()
			}
			if err := client.Set(ctx, item, 0, true); err != nil {
				return err
			}
			batchBytes += uint64(len(item.Key) + len(item.Value))
		}
		if err := client.FlushPipeline(ctx); err != nil {
			return err
		}
		busy := time.Since(start)

		if f.Verify {
			if err := verify(ctx, client, items[r.IntN(len(items))]); err != nil {
				return err
			}
		}

		w.Metrics.Record(uint64(len(items)), batchBytes, busy)
		rate = float64(len(items)) / busy.Seconds()

		pct, _, err = fullness(ctx, client)
		if err != nil {
			return err
		}
	}
	return nil
}

func (f *Filler) Post(ctx context.Context, client *emc.Client, report Report) error {
	pct, _, err := fullness(ctx, client)
	if err != nil {
		return err
	}
	f.Log.Info("done filling, took %.2fs to insert %d items, cache is %.2f%% full",
		time.Since(f.start).Seconds(), report.Total.Items, pct)
	f.Log.Info("%s", report)
	return nil
}

// fullness returns how full the cache is, in percent of limit_maxbytes.
func fullness(ctx context.Context, client *emc.Client) (float64, uint64, error) {
	stats, err := client.Stats(ctx)
	if err != nil {
		return 0, 0, err
	}
	capacity, err := statUint(stats, "limit_maxbytes")
	if err != nil {
		return 0, 0, err
	}
	used, err := statUint(stats, "bytes")
	if err != nil {
		return 0, 0, err
	}
	if capacity == 0 {
		return 100, 0, nil
	}
	return 100 * float64(used) / float64(capacity), capacity, nil
}

func statUint(stats map[string]string, name string) (uint64, error) {
	raw, ok := stats[name]
	if !ok {
		return 0, fmt.Errorf("stat %q missing", name)
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("stat %q: %w", name, err)
	}
	return v, nil
}

// verify reads item back and checks it was stored intact.
func verify(ctx context.Context, client *emc.Client, item text.Item) error {
	got, err := client.Get(ctx, item.Key)
	if err != nil {
		return fmt.Errorf("verifying %s: %w", item.Key, err)
	}
	if Fingerprint(got.Value) != Fingerprint(item.Value) {
		return fmt.Errorf("verifying %s: value mismatch (%d bytes stored, %d read)", item.Key, len(item.Value), len(got.Value))
	}
	return nil
}
