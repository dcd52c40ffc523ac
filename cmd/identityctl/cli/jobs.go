package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-identity/jobs"
)

// JobsCLI wraps manual management helpers for the identity sweeps.
type JobsCLI struct {
	client    *jobs.Client
	enqueuer  jobs.Enqueuer
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the CLI helpers against the provided Redis options.
func NewJobsCLI(opts asynq.RedisClientOpt) (*JobsCLI, error) {
	client, err := jobs.NewClient(opts)
	if err != nil {
		return nil, err
	}
	return &JobsCLI{client: client, enqueuer: client, inspector: asynq.NewInspector(opts)}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// Trigger enqueues a supported job by name with its default payload.
func (c *JobsCLI) Trigger(ctx context.Context, name string) (*asynq.TaskInfo, error) {
	if c == nil || c.enqueuer == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	task, err := jobs.NewTask(name)
	if err != nil {
		return nil, fmt.Errorf("jobs cli: %w", err)
	}
	return c.enqueuer.EnqueueContext(ctx, task, asynq.MaxRetry(3), asynq.TaskID(jobs.ManualTaskID(name)))
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
}

// InspectQueue reports the queue metrics for the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
	}
	return stats, nil
}

// ListScheduled returns scheduled task infos for observability.
func (c *JobsCLI) ListScheduled(ctx context.Context, size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
}

// WriteStats prints stats as an aligned table.
func WriteStats(w io.Writer, stats QueueStats) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "QUEUE\tPENDING\tACTIVE\tSCHEDULED\tRETRY")
	fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
	return tw.Flush()
}
