// Command job runs one pipeline job and exits, for cron hosts.
//
//	job <daily-batch|odds-regular|odds-high-freq|result|betting|test>
//
// Exit status is 0 when the job succeeded, was outside its window or was already
// running elsewhere, 1 when it failed and 2 on bad usage.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/kyotei-project/backend/internal/config"
	"github.com/kyotei-project/backend/internal/jobs"
	"github.com/kyotei-project/backend/internal/logger"
	"github.com/kyotei-project/backend/internal/scheduler"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: job <%s>\n", strings.Join(jobs.Names, "|"))
	os.Exit(2)
}

func main() {
	if len(os.Args) != 2 {
		usage()
	}
	name := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}
	logger.Configure(cfg.Log.Level, cfg.Log.File)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := jobs.Bootstrap(ctx, cfg)
	if err != nil {
		logger.Fatal("Bootstrap failed: %v", err)
	}

	outcome, err := rt.Scheduler.RunOnce(ctx, name)
	rt.Close()

	switch {
	case errors.Is(err, scheduler.ErrUnknownJob):
		fmt.Fprintln(os.Stderr, err)
		usage()
	case err != nil:
		logger.Error("Job %s failed: %v", name, err)
		os.Exit(1)
	}
	logger.Info("Job %s finished: %s", name, outcome)
}
