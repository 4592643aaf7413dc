package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/namsral/flag"

	"newspaper/internal/app"
	"newspaper/internal/domain"
	"newspaper/internal/infra/config"
	applog "newspaper/internal/infra/log"
	"newspaper/internal/infra/scheduler"
	"newspaper/internal/usecase/digest"
)

var flTest = flag.Bool("test", false, "create test data and send the digest to the first admin only (TEST)")

func main() {
	flag.Parse()
	os.Exit(run())
}

func run() int {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("send-weekly: не удалось инициализировать зависимости")
		return 1
	}
	defer a.Close()

	if *flTest {
		return runTest(ctx, a.Digest)
	}

	sched := scheduler.New(cfg.Location(), a.Locker, cfg.Digest.LockTTL, applog.Component(logger, "scheduler"))
	return runWeekly(ctx, sched, a.Digest)
}

type digestSender interface {
	Run(ctx context.Context) (digest.Result, error)
	SendTest(ctx context.Context) (domain.User, error)
}

type onceRunner interface {
	RunOnce(ctx context.Context, name string, fn scheduler.Task) error
}

func runTest(ctx context.Context, svc digestSender) int {
	user, err := svc.SendTest(ctx)
	if errors.Is(err, digest.ErrNoAdmin) {
		fmt.Println("No admin user found")
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Test send failed: %v\n", err)
		return 1
	}
	fmt.Printf("Test data created and digest sent to admin %s\n", user.Email)
	return 0
}

func runWeekly(ctx context.Context, runner onceRunner, svc digestSender) int {
	var res digest.Result
	err := runner.RunOnce(ctx, string(domain.JobWeeklyDigest), func(ctx context.Context) error {
		var err error
		res, err = svc.Run(ctx)
		return err
	})
	if errors.Is(err, scheduler.ErrAlreadyRunning) {
		fmt.Println("Weekly newsletter is already running")
		return 1
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Weekly newsletter failed: %v\n", err)
		return 1
	}
	fmt.Printf("Weekly newsletter sent to %d users\n", res.EmailsSent)
	if res.Failures > 0 {
		fmt.Printf("Failed deliveries: %d\n", res.Failures)
	}
	return 0
}
