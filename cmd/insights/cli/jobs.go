// Package cli holds operator helpers reachable through `insights jobs ...`.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/hibiken/asynq"

	"github.com/rpay/rpay-insights/jobs"
)

// ErrUsage reports a malformed command line.
var ErrUsage = errors.New("usage: jobs trigger <warmup|bump|prune> | jobs stats | jobs scheduled [size]")

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the CLI helpers for the given queue connection.
func NewJobsCLI(opt asynq.RedisClientOpt) *JobsCLI {
	return &JobsCLI{client: asynq.NewClient(opt), inspector: asynq.NewInspector(opt)}
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

// TaskFor builds the task a trigger name stands for, with default payload.
func TaskFor(name string) (*asynq.Task, error) {
	switch name {
	case "warmup", jobs.TaskCacheWarmup:
		return jobs.NewCacheWarmupTask(jobs.CacheWarmupPayload{})
	case "bump", jobs.TaskCacheBump:
		return jobs.NewCacheBumpTask("manual")
	case "prune", jobs.TaskSelectionPrune:
		return jobs.NewSelectionPruneTask(jobs.DefaultPruneAge)
	}
	return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
}

// Trigger enqueues a supported job by name with default payload.
func (c *JobsCLI) Trigger(ctx context.Context, name string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	task, err := TaskFor(name)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.MaxRetry(3))
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

// Run executes args (without the leading "jobs") and prints the result to out.
func (c *JobsCLI) Run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return ErrUsage
	}
	switch args[0] {
	case "trigger":
		if len(args) != 2 {
			return ErrUsage
		}
		info, err := c.Trigger(ctx, args[1])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return err
	case "stats":
		stats, err := c.InspectQueue(ctx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
		return err
	case "scheduled":
		size := 0
		if len(args) > 1 {
			if _, err := fmt.Sscanf(args[1], "%d", &size); err != nil {
				return ErrUsage
			}
		}
		tasks, err := c.ListScheduled(ctx, size)
		if err != nil {
			return err
		}
		return writeScheduled(out, tasks)
	}
	return ErrUsage
}

func writeScheduled(out io.Writer, tasks []*asynq.TaskInfo) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tTYPE\tNEXT RUN")
	for _, task := range tasks {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", task.ID, task.Type, task.NextProcessAt.UTC().Format(time.RFC3339))
	}
	if len(tasks) == 0 {
		_, _ = fmt.Fprintln(tw, "-\t(none)\t-")
	}
	return tw.Flush()
}
