package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-identity/cmd/identityctl/cli"
	"github.com/odyssey-erp/odyssey-identity/internal/app"
	"github.com/odyssey-erp/odyssey-identity/internal/platform/db"
	"github.com/odyssey-erp/odyssey-identity/jobs"
	"github.com/odyssey-erp/odyssey-identity/migrations"
)

const usage = `usage: identityctl <command>

commands:
  migrate                 apply database migrations
  jobs trigger <task>     enqueue a maintenance task
  jobs stats              show default queue statistics
  jobs scheduled [-n N]   list scheduled tasks
`

func main() {
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	switch args[0] {
	case "migrate":
		err = runMigrate(ctx, cfg)
	case "jobs":
		err = runJobs(ctx, cfg, args[1:])
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error(args[0], slog.Any("error", err))
		os.Exit(1)
	}
}

func runMigrate(ctx context.Context, cfg *app.Config) error {
	pool, err := db.New(ctx, cfg.PGDSN, 2)
	if err != nil {
		return err
	}
	defer pool.Close()
	return db.Migrate(ctx, pool, migrations.FS)
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("jobs: missing subcommand, tasks: %v", jobs.TaskNames())
	}
	c, err := cli.NewJobsCLI(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		return err
	}
	defer c.Close()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			return fmt.Errorf("jobs trigger: task name required, one of %v", jobs.TaskNames())
		}
		info, err := c.Trigger(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return nil
	case "stats":
		stats, err := c.InspectQueue(ctx)
		if err != nil {
			return err
		}
		return cli.WriteStats(os.Stdout, stats)
	case "scheduled":
		fs := flag.NewFlagSet("scheduled", flag.ContinueOnError)
		size := fs.Int("n", 10, "page size")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		tasks, err := c.ListScheduled(ctx, *size)
		if err != nil {
			return err
		}
		for _, t := range tasks {
			fmt.Printf("%s\t%s\t%s\n", t.ID, t.Type, t.NextProcessAt.Format("2006-01-02T15:04:05Z07:00"))
		}
		return nil
	default:
		return fmt.Errorf("jobs: unknown subcommand %q", args[0])
	}
}
