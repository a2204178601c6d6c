// Command kvn-sim plays a judging panel against a running scoring service
// and verifies the scoreboard it publishes.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/iamofff/kvn-scoring-system/internal/config"
	"github.com/iamofff/kvn-scoring-system/internal/simulate"
	"github.com/iamofff/kvn-scoring-system/pkg/logger"
)

// Default configuration constants.
const (
	defaultTimeout  = 10 * time.Second
	defaultDeadline = 5 * time.Minute
	defaultResubmit = 0.2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := pflag.NewFlagSet("kvn-sim", pflag.ContinueOnError)
	var (
		baseURL       = fs.StringP("url", "u", "http://localhost:9080", "base URL of the scoring service")
		judgePassword = fs.String("judge-password", "", "judge password (default from config)")
		adminPassword = fs.String("admin-password", "", "admin password (default from config)")
		resubmit      = fs.Float64("resubmit", defaultResubmit, "probability that a judge changes a score once")
		rps           = fs.Float64("rate", 0, "client side submissions per second, 0 for unpaced")
		seed          = fs.Uint64("seed", uint64(time.Now().UnixNano()), "random seed")
		timeout       = fs.Duration("timeout", defaultTimeout, "per request timeout")
		deadline      = fs.Duration("deadline", defaultDeadline, "overall run deadline")
		clearFirst    = fs.Bool("clear", false, "clear all scores before starting (needs the admin password)")
		verbose       = fs.BoolP("verbose", "v", false, "log every scoreboard row")
	)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return 1
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}
	log := logger.Named("kvn-sim")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *deadline)
	defer cancel()

	// The scale, scoring policy and passwords come from the same KVN_*
	// configuration the server reads.
	cfg, err := config.Load(ctx)
	if err != nil {
		log.Error(ctx, "failed to load config", logger.Error(err))
		return 1
	}

	simCfg := simulate.Config{
		BaseURL:        *baseURL,
		JudgePassword:  firstNonEmpty(*judgePassword, cfg.JudgePassword),
		AdminPassword:  firstNonEmpty(*adminPassword, cfg.AdminPassword),
		Scale:          cfg.Scale(),
		ScoringOptions: cfg.ScoringOptions(),
		Resubmit:       *resubmit,
		Rate:           *rps,
		Seed:           *seed,
		Timeout:        *timeout,
		Clear:          *clearFirst,
	}

	stats, err := simulate.Run(ctx, simCfg, log)
	if err != nil {
		log.Error(ctx, "simulation failed",
			logger.Error(err),
			logger.Int("submitted", stats.Submitted),
			logger.Any("seed", *seed),
		)
		return 1
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
