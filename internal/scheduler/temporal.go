package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/google/uuid"

	"github.com/nak1ro/micro-scribe-sub003/internal/config"
)

const taskActivityName = "RunPipelineTask"

// TaskInput carries one scheduled task through Temporal.
type TaskInput struct {
	Type    string        `json:"type"`
	Payload []byte        `json:"payload"`
	Delay   time.Duration `json:"delay"`
}

// TaskWorkflow sleeps out the requested delay, then hands the task to
// the dispatch activity. Retries are Temporal's, bounded by the
// activity retry policy.
func TaskWorkflow(ctx workflow.Context, in TaskInput) error {
	if in.Delay > 0 {
		if err := workflow.Sleep(ctx, in.Delay); err != nil {
			return err
		}
	}
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: time.Second,
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	return workflow.ExecuteActivity(ctx, taskActivityName, in).Get(ctx, nil)
}

type taskActivities struct {
	reg *registry
}

func (a *taskActivities) RunPipelineTask(ctx context.Context, in TaskInput) error {
	return a.reg.dispatch(ctx, in.Type, in.Payload)
}

// TemporalQueue backs the scheduler with a Temporal task queue. Tasks
// survive process restarts and the delay semantics come from durable
// workflow timers.
type TemporalQueue struct {
	reg       *registry
	client    client.Client
	worker    worker.Worker
	taskQueue string
	logger    *zap.Logger
}

func NewTemporalQueue(cfg config.SchedulerConfig, logger *zap.Logger) (*TemporalQueue, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalHostPort,
		Namespace: cfg.TemporalNamespace,
	})
	if err != nil {
		return nil, fmt.Errorf("dial temporal: %w", err)
	}
	return &TemporalQueue{
		reg:       newRegistry(),
		client:    c,
		taskQueue: cfg.TemporalTaskQueue,
		logger:    logger.Named("scheduler"),
	}, nil
}

func (q *TemporalQueue) Register(taskType string, h Handler) {
	q.reg.register(taskType, h)
}

func (q *TemporalQueue) Enqueue(ctx context.Context, taskType string, payload []byte, delay time.Duration) error {
	opts := client.StartWorkflowOptions{
		ID:        taskType + "-" + uuid.NewString(),
		TaskQueue: q.taskQueue,
	}
	_, err := q.client.ExecuteWorkflow(ctx, opts, TaskWorkflow, TaskInput{
		Type:    taskType,
		Payload: payload,
		Delay:   delay,
	})
	if err != nil {
		return fmt.Errorf("start task workflow: %w", err)
	}
	return nil
}

func (q *TemporalQueue) Start(ctx context.Context) error {
	w := worker.New(q.client, q.taskQueue, worker.Options{})
	w.RegisterWorkflow(TaskWorkflow)
	w.RegisterActivityWithOptions(
		(&taskActivities{reg: q.reg}).RunPipelineTask,
		activity.RegisterOptions{Name: taskActivityName},
	)
	if err := w.Start(); err != nil {
		return fmt.Errorf("start temporal worker: %w", err)
	}
	q.worker = w
	q.logger.Info("temporal worker started", zap.String("task_queue", q.taskQueue))
	return nil
}

func (q *TemporalQueue) Stop(ctx context.Context) error {
	if q.worker != nil {
		q.worker.Stop()
	}
	q.client.Close()
	return nil
}
