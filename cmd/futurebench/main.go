// Command futurebench drives a shepherdpool.Pool and a future.Controller
// through a configurable fork/join workload and reports completion
// timing and final VP counts. It is a demo/bench driver, not a wire
// protocol: the admission-control core has no CLI or network surface of
// its own.
package main

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-future/future"
	"github.com/joeycumines/go-future/shepherdpool"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "futurebench",
		Usage: "exercise the futures admission-control layer and report timing",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "shepherds",
				Usage: "number of shepherd workers",
				Value: 4,
			},
			&cli.IntFlag{
				Name:  "cap",
				Usage: "VP slot cap per shepherd",
				Value: 2,
			},
			&cli.IntFlag{
				Name:  "per-shepherd",
				Usage: "number of futures to fork per shepherd",
				Value: 50,
			},
			&cli.DurationFlag{
				Name:  "work",
				Usage: "simulated work duration per future",
				Value: time.Millisecond,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "zerolog level: debug, info, warn, error, disabled",
				Value: "info",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "futurebench:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	level, err := zerolog.ParseLevel(c.String("log-level"))
	if err != nil {
		return fmt.Errorf("futurebench: %w", err)
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()

	shepherds := c.Int("shepherds")
	vpCap := c.Int("cap")
	perShepherd := c.Int("per-shepherd")
	work := c.Duration("work")

	pool, err := shepherdpool.New(shepherds, shepherdpool.WithLogger(log))
	if err != nil {
		return fmt.Errorf("futurebench: starting pool: %w", err)
	}
	defer func() {
		if err := pool.Close(context.Background()); err != nil {
			log.Warn().Err(err).Msg("futurebench: pool close")
		}
	}()

	ctrl, err := future.New(c.Context, pool, vpCap, future.WithLogger(log))
	if err != nil {
		return fmt.Errorf("futurebench: initializing controller: %w", err)
	}
	defer func() {
		if err := ctrl.Close(context.Background()); err != nil {
			log.Warn().Err(err).Msg("futurebench: controller close")
		}
	}()

	var completed int64
	n := shepherds * perShepherd
	tasks := make([]*future.Task, n)

	start := time.Now()
	for i := 0; i < n; i++ {
		task, err := ctrl.Fork(c.Context, func(ctx context.Context) (any, error) {
			if work > 0 {
				time.Sleep(work)
			}
			atomic.AddInt64(&completed, 1)
			return nil, nil
		})
		if err != nil {
			return fmt.Errorf("futurebench: fork %d: %w", i, err)
		}
		tasks[i] = task
	}

	if _, err := ctrl.JoinAll(c.Context, tasks); err != nil {
		return fmt.Errorf("futurebench: join_all: %w", err)
	}
	elapsed := time.Since(start)

	fmt.Printf("futurebench: %d futures across %d shepherds (cap %d/shepherd), work=%s\n", n, shepherds, vpCap, work)
	fmt.Printf("futurebench: completed=%d elapsed=%s\n", atomic.LoadInt64(&completed), elapsed)

	for s := 0; s < shepherds; s++ {
		count, err := ctrl.VPCount(s)
		if err != nil {
			return fmt.Errorf("futurebench: vp count shepherd %d: %w", s, err)
		}
		fmt.Printf("futurebench: shepherd %d final vp_count=%d\n", s, count)
	}

	return nil
}
