package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/pior/emc"
	"github.com/pior/emc/internal/logger"
	"github.com/pior/emc/internal/promexporter"
	"github.com/pior/emc/internal/settings"
	"github.com/pior/emc/internal/suite"
	"github.com/pior/emc/loadgen"
)

const usage = `usage: emc [flags] <command> [command flags]

Commands:
  check    run the protocol correctness suite
  fill     fill the cache to a percentage of its memory limit
  stress   measure request rates on constant keys
  stats    print server statistics (optionally a group: emc stats settings)
  version  print the server version

Settings are read from -config, then EMC_* environment variables, then flags.

Flags:
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	global := flag.NewFlagSet("emc", flag.ContinueOnError)
	global.Usage = func() {
		fmt.Fprint(global.Output(), usage)
		global.PrintDefaults()
	}
	configPath := global.String("config", "", "config file (yaml, json or toml)")
	global.String("addr", "", "memcached server address (default 127.0.0.1:11211)")
	global.Int("workers", 0, "number of concurrent workers (default 4)")
	global.Duration("timeout", 0, "timeout of each check and one-shot command")
	global.Duration("dial-timeout", 0, "connection timeout (default 5s)")
	global.String("log-level", "", "debug, info, warn or error (default info)")
	global.Bool("color", true, "color log output")
	global.Bool("pipeline", false, "buffer no-reply commands")
	global.String("metrics-addr", "", "serve prometheus metrics on this address")

	if err := global.Parse(args); err != nil {
		return 2
	}
	if global.NArg() == 0 {
		global.Usage()
		return 2
	}

	command, commandArgs := global.Arg(0), global.Args()[1:]

	loader := settings.NewLoader()
	if err := loader.ReadFile(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	loader.BindFlags(global, "")

	var exec func(ctx context.Context, s settings.Settings, log logger.Logger, exporter *promexporter.Exporter) error

	switch command {
	case "check":
		fs := flag.NewFlagSet("check", flag.ContinueOnError)
		slow := fs.Bool("slow", false, "include cases waiting on expiration")
		filter := fs.String("run", "", "only run cases whose name contains this")
		if err := fs.Parse(commandArgs); err != nil {
			return 2
		}
		exec = func(ctx context.Context, s settings.Settings, log logger.Logger, _ *promexporter.Exporter) error {
			return runCheck(ctx, s, log, *slow, *filter)
		}

	case "fill":
		fs := flag.NewFlagSet("fill", flag.ContinueOnError)
		fs.Float64("percentage", 0, "target fill level in percent (default 50)")
		fs.Int("batch-size", 0, "items per pipelined batch (default 100)")
		fs.Int("key-size", 0, "key length (default 10)")
		fs.Int("min-value", 0, "minimum value size (default 100)")
		fs.Int("max-value", 0, "maximum value size (default 1000)")
		fs.Bool("verify", false, "read back one item per batch")
		if err := fs.Parse(commandArgs); err != nil {
			return 2
		}
		loader.BindFlags(fs, "fill")
		exec = func(ctx context.Context, s settings.Settings, log logger.Logger, exporter *promexporter.Exporter) error {
			f := s.Fill
			filler := &loadgen.Filler{
				Percentage: f.Percentage,
				BatchSize:  f.BatchSize,
				KeySize:    f.KeySize,
				MinValue:   f.MinValue,
				MaxValue:   f.MaxValue,
				Verify:     f.Verify,
				Log:        log,
			}
			return runTask(ctx, s, log, exporter, filler)
		}

	case "stress":
		fs := flag.NewFlagSet("stress", flag.ContinueOnError)
		fs.String("ops", "", "comma-separated ops: set-noreply, set, get (default all)")
		fs.Int("loops", 0, "requests per op and worker (default 100000)")
		fs.Int("value-size", 0, "value size (default 3)")
		if err := fs.Parse(commandArgs); err != nil {
			return 2
		}
		loader.BindFlags(fs, "stress")
		exec = func(ctx context.Context, s settings.Settings, log logger.Logger, exporter *promexporter.Exporter) error {
			stress := &loadgen.Stress{
				Loops:     s.Stress.Loops,
				ValueSize: s.Stress.ValueSize,
				Log:       log,
			}
			for _, op := range s.Stress.Ops {
				stress.Ops = append(stress.Ops, loadgen.StressOp(strings.TrimSpace(op)))
			}
			return runTask(ctx, s, log, exporter, stress)
		}

	case "stats":
		exec = func(ctx context.Context, s settings.Settings, _ logger.Logger, _ *promexporter.Exporter) error {
			return oneShot(ctx, s, func(ctx context.Context, client *emc.Client) error {
				stats, err := client.Stats(ctx, commandArgs...)
				if err != nil {
					return err
				}
				names := make([]string, 0, len(stats))
				for name := range stats {
					names = append(names, name)
				}
				slices.Sort(names)
				for _, name := range names {
					fmt.Fprintf(stdout, "%s: %s\n", name, stats[name])
				}
				return nil
			})
		}

	case "version":
		exec = func(ctx context.Context, s settings.Settings, _ logger.Logger, _ *promexporter.Exporter) error {
			return oneShot(ctx, s, func(ctx context.Context, client *emc.Client) error {
				version, err := client.Version(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(stdout, version)
				return nil
			})
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", command)
		global.Usage()
		return 2
	}

	s, err := loader.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	log := s.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var exporter *promexporter.Exporter
	if s.MetricsAddr != "" {
		exporter = promexporter.NewExporter()
		go func() {
			if err := exporter.ServeHTTP(ctx, s.MetricsAddr); err != nil {
				log.Error("metrics server: %v", err)
			}
		}()
		log.Info("serving metrics on http://%s/metrics", s.MetricsAddr)
	}

	if err := exec(ctx, s, log, exporter); err != nil {
		log.Error("%s: %v", command, err)
		return 1
	}
	return 0
}

func runCheck(ctx context.Context, s settings.Settings, log logger.Logger, slow bool, filter string) error {
	runner := &suite.Runner{
		Addr:    s.Addr,
		Client:  s.ClientConfig(),
		Log:     log,
		Slow:    slow,
		Timeout: s.Timeout,
	}
	if filter != "" {
		runner.Filter = func(name string) bool { return strings.Contains(name, filter) }
	}

	result := runner.Run(ctx, suite.Cases)
	if ctx.Err() != nil {
		return errors.New("interrupted")
	}
	if !result.OK() {
		return fmt.Errorf("failed: %s", strings.Join(result.Failed, ", "))
	}
	return nil
}

func runTask(ctx context.Context, s settings.Settings, log logger.Logger, exporter *promexporter.Exporter, task loadgen.Task) error {
	log.Info("%s on %s with %d workers", task.Name(), s.Addr, s.Workers)

	pool := loadgen.NewPool(loadgen.Config{
		Addr:    s.Addr,
		Workers: s.Workers,
		Client:  s.ClientConfig(),
		Logger:  log,
	})

	if exporter != nil {
		watchCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go exporter.WatchPool(watchCtx, pool, time.Second)

		exporter.RunMetrics().SetActive(task.Name(), true)
		defer exporter.RunMetrics().SetActive(task.Name(), false)
	}

	report, err := pool.Run(ctx, task)
	if exporter != nil {
		if err != nil && report.Task == "" {
			exporter.RunMetrics().RecordFailure(task.Name())
		} else {
			exporter.ObserveReport(report)
		}
	}
	if err != nil {
		return err
	}
	if len(report.Errors) > 0 {
		return fmt.Errorf("%d workers failed", len(report.Errors))
	}
	return nil
}

func oneShot(ctx context.Context, s settings.Settings, fn func(ctx context.Context, client *emc.Client) error) error {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	client := emc.NewClient(s.Addr, s.ClientConfig())
	defer client.Close()
	return fn(ctx, client)
}
