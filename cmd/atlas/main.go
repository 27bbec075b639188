package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/atlas-travel/atlas-ledger/cmd/atlas/cli"
	"github.com/atlas-travel/atlas-ledger/internal/accounting/journals"
	"github.com/atlas-travel/atlas-ledger/internal/app"
	"github.com/atlas-travel/atlas-ledger/internal/platform/db"
)

const usage = `usage: atlas <command> [flags]

commands:
  serve                      run the HTTP API (default)
  migrate                    apply pending database migrations
  verify [--from --to --json] re-check journal balance for a date range
  jobs trigger <task>        enqueue a scheduled accounting job now
  jobs retry <transaction>   enqueue a posting retry for one transaction
  jobs stats                 show posting and default queue depth
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	args := os.Args[1:]
	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	switch command {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "migrate":
		err = db.Migrate(cfg.PGDSN, logger)
	case "verify":
		os.Exit(runVerify(ctx, cfg, args, os.Stdout, os.Stderr))
	case "jobs":
		os.Exit(runJobs(ctx, cfg, args, os.Stdout, os.Stderr))
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error(command+" failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func runVerify(ctx context.Context, cfg *app.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts := cli.VerifyOptions{Stdout: stdout, Stderr: stderr}
	fs.StringVar(&opts.From, "from", "", "first posting date (YYYY-MM-DD)")
	fs.StringVar(&opts.To, "to", "", "last posting date (YYYY-MM-DD)")
	fs.BoolVar(&opts.JSONOutput, "json", false, "print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "verify: %v\n", err)
		return 1
	}
	defer pool.Close()
	svc := journals.NewService(journals.NewRepository(pool), nil)
	return cli.VerifyCommand(ctx, svc, opts)
}

func runJobs(ctx context.Context, cfg *app.Config, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	jobsCLI := cli.NewJobsCLI(cfg.QueueRedis())
	defer func() {
		_ = jobsCLI.Close()
	}()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			_, _ = fmt.Fprintln(stderr, "jobs trigger: task name required")
			return 2
		}
		info, err := jobsCLI.Trigger(ctx, args[1])
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs trigger: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
	case "retry":
		if len(args) < 2 {
			_, _ = fmt.Fprintln(stderr, "jobs retry: transaction id required")
			return 2
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || id <= 0 {
			_, _ = fmt.Fprintf(stderr, "jobs retry: invalid transaction id %q\n", args[1])
			return 2
		}
		info, err := jobsCLI.Retry(ctx, id)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs retry: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "enqueued %s as %s\n", info.Type, info.ID)
	case "stats":
		stats, err := jobsCLI.InspectQueues(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs stats: %v\n", err)
			return 1
		}
		for _, s := range stats {
			_, _ = fmt.Fprintf(stdout, "%-8s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
				s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
		}
	default:
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	return 0
}
