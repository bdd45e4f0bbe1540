// Package suite is a protocol correctness suite run against a live server.
//
// Every case gets a fresh client: a case that leaves its connection out of
// sync (an oversize key whose data line the server did not swallow) cannot
// affect the next one.
package suite

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/pior/emc"
	"github.com/pior/emc/internal/logger"
	"github.com/pior/emc/loadgen"
	"github.com/pior/emc/text"
)

// Case is one correctness check.
type Case struct {
	Name string
	// Slow cases wait on server-side expiration.
	Slow bool
	Run  func(ctx context.Context, e *Env) error
}

// Env is what a case runs with.
type Env struct {
	Client *emc.Client
	Log    logger.Logger
	rand   *rand.Rand
}

func (e *Env) key(length int) string {
	return loadgen.RandomKey(length)
}

func (e *Env) value(minSize, maxSize int) []byte {
	return loadgen.RandomValue(e.rand, minSize, maxSize)
}

// Result lists case names by outcome.
type Result struct {
	Passed  []string
	Failed  []string
	Skipped []string
}

// OK reports whether no case failed.
func (r Result) OK() bool {
	return len(r.Failed) == 0
}

func (r Result) String() string {
	return fmt.Sprintf("%d test run: %d passed, %d failed, %d skipped",
		len(r.Passed)+len(r.Failed), len(r.Passed), len(r.Failed), len(r.Skipped))
}

// Runner executes cases one after the other.
type Runner struct {
	Addr   string
	Client emc.Config
	Log    logger.Logger
	Slow   bool // run slow cases
	// Timeout bounds each case. Zero means 30s.
	Timeout time.Duration
	// Filter, when set, selects cases by name.
	Filter func(name string) bool
}

// Run executes cases until all ran or ctx is cancelled.
func (r *Runner) Run(ctx context.Context, cases []Case) Result {
	log := r.Log
	if log == nil {
		log = logger.Nil
	}
	log = log.With("runner")

	var result Result
	for i, c := range cases {
		if ctx.Err() != nil {
			break
		}
		if (c.Slow && !r.Slow) || (r.Filter != nil && !r.Filter(c.Name)) {
			result.Skipped = append(result.Skipped, c.Name)
			continue
		}

		if r.runOne(ctx, i, c, log) {
			result.Passed = append(result.Passed, c.Name)
		} else {
			result.Failed = append(result.Failed, c.Name)
		}
	}

	log.Info("%s", result)
	return result
}

func (r *Runner) runOne(ctx context.Context, id int, c Case, log logger.Logger) bool {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := emc.NewClient(r.Addr, r.Client)
	defer client.Close()

	env := &Env{
		Client: client,
		Log:    log.With(fmt.Sprintf("test%d", id)),
		rand:   rand.New(rand.NewPCG(uint64(id), uint64(time.Now().UnixNano()))),
	}

	log.Info("running test %s", c.Name)
	start := time.Now()
	err := c.Run(ctx, env)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		log.Error("FAILED: %s in %.4fs: %v", c.Name, elapsed, err)
		return false
	}
	log.Info("SUCCEEDED: %s in %.4fs", c.Name, elapsed)
	return true
}

func failf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}

// expectErr checks that err matches target.
func expectErr(err, target error) error {
	if !errors.Is(err, target) {
		return failf("expected %v, got %v", target, err)
	}
	return nil
}

func expectClientError(err error) error {
	var clientErr *text.ClientError
	if !errors.As(err, &clientErr) {
		return failf("expected a client error, got %v", err)
	}
	return nil
}

func expectServerError(err error) error {
	var serverErr *text.ServerError
	if !errors.As(err, &serverErr) {
		return failf("expected a server error, got %v", err)
	}
	return nil
}

// expectValue reads key and compares its value.
func expectValue(ctx context.Context, e *Env, key string, want []byte) error {
	item, err := e.Client.Get(ctx, key)
	if err != nil {
		return failf("get %s: %w", key, err)
	}
	if string(item.Value) != string(want) {
		return failf("get %s: expected %q, got %q", key, abbreviate(want), abbreviate(item.Value))
	}
	return nil
}

func abbreviate(b []byte) string {
	if len(b) > 32 {
		return fmt.Sprintf("%s... (%d bytes)", b[:32], len(b))
	}
	return string(b)
}
