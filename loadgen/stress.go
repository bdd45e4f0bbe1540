package loadgen

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/pior/emc"
	"github.com/pior/emc/internal/logger"
	"github.com/pior/emc/text"
)

// StressOp is one benchmarked request kind.
type StressOp string

const (
	StressSetNoReply StressOp = "set-noreply" // constant key set, no reply
	StressSet        StressOp = "set"         // constant key set
	StressGet        StressOp = "get"         // constant key get
)

// DefaultStressOps is the full stress sequence.
var DefaultStressOps = []StressOp{StressSetNoReply, StressSet, StressGet}

// Stress hammers one key per worker with back-to-back requests and reports
// the request rate of each kind. A request is the unit of work, except for
// set-noreply where the unit is the whole op, confirmed by a flush.
type Stress struct {
	Ops       []StressOp // defaults to DefaultStressOps
	Loops     int        // requests per op and worker, defaults to 100000
	ValueSize int        // defaults to 3

	Log logger.Logger
}

var _ Task = (*Stress)(nil)

func (s *Stress) Name() string {
	return "stress"
}

func (s *Stress) Pre(ctx context.Context, client *emc.Client) error {
	if len(s.Ops) == 0 {
		s.Ops = DefaultStressOps
	}
	if s.Loops <= 0 {
		s.Loops = 100000
	}
	if s.ValueSize <= 0 {
		s.ValueSize = 3
	}
	if s.Log == nil {
		s.Log = logger.Nil
	}
	for _, op := range s.Ops {
		start := time.Now()
		done := 0
		var pendingBusy time.Duration

		for range s.Loops {
			if Cancelled(ctx) {
				return ctx.Err()
			}

			begin := time.Now()
			var err error
			switch op {
			case StressSetNoReply:
				err = w.Client.Set(ctx, item, 0, true)
			case StressSet:
				err = w.Client.Set(ctx, item, 0, false)
			case StressGet:
				_, err = w.Client.Get(ctx, item.Key)
			}
			if err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
			done++

			if op == StressSetNoReply {
				pendingBusy += time.Since(begin)
				continue
			}
			w.Metrics.Record(1, size, time.Since(begin))
		}

		if op == StressSetNoReply {
			// No-reply requests count once the server confirmed it processed
			// them all: the flush is the unit boundary.
			begin := time.Now()
			if err := w.Client.FlushPipeline(ctx); err != nil {
				return err
			}
			n := uint64(done)
			w.Metrics.Record(n, n*size, pendingBusy+time.Since(begin))
		}

		elapsed := time.Since(start)
		w.Log.Info("made %d %s requests in %.2f seconds = %.2f requests/sec",
			done, op, elapsed.Seconds(), float64(done)/elapsed.Seconds())
	}
	return nil
}

func (s *Stress) Post(ctx context.Context, client *emc.Client, report Report) error {
	s.Log.Info("%s", report)
	return nil
}
