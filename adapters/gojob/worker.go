package gojob

import (
	"context"
	"fmt"
	"time"

	command "github.com/goliatone/go-command"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	"github.com/goliatone/go-webhook-ingest/core"
)

const (
	defaultEffectTimeout = 10 * time.Second
	defaultIdleDelay     = 50 * time.Millisecond
	drainPollInterval    = 10 * time.Millisecond
)

// EffectHandler applies one effect request.
type EffectHandler func(ctx context.Context, req core.EffectRequest) error

// EffectTask is the go-job task behind the attach voucher job. Its config
// carries the per-job timeout.
type EffectTask struct {
	handler EffectHandler
	config  job.Config
}

func NewEffectTask(handler EffectHandler, timeout time.Duration) (*EffectTask, error) {
	if handler == nil {
		return nil, fmt.Errorf("gojob: effect handler is required")
	}
	if timeout <= 0 {
		timeout = defaultEffectTimeout
	}
	return &EffectTask{
		handler: handler,
		config:  job.Config{Timeout: timeout},
	}, nil
}

func (t *EffectTask) GetID() string { return JobIDAttachVoucher }

func (t *EffectTask) GetPath() string { return JobIDAttachVoucher }

func (t *EffectTask) GetConfig() job.Config { return t.config }

func (t *EffectTask) GetEngine() job.Engine { return nil }

func (t *EffectTask) GetHandlerConfig() job.HandlerOptions {
	return job.HandlerOptions{HandlerConfig: command.HandlerConfig{Timeout: t.config.Timeout}}
}

// GetHandler is unused: the effect always needs the event carried by the
// execution message.
func (t *EffectTask) GetHandler() func() error {
	return func() error {
		return fmt.Errorf("gojob: %s requires an execution message", JobIDAttachVoucher)
	}
}

// Execute runs the handler under the job timeout. The deadline is detached
// from ctx, so stopping the worker does not abort a write already in flight.
func (t *EffectTask) Execute(ctx context.Context, msg *job.ExecutionMessage) (err error) {
	req, err := EffectRequestFromMessage(msg)
	if err != nil {
		return err
	}
	timeout := t.config.Timeout
	if msg.Config.Timeout > 0 {
		timeout = msg.Config.Timeout
	}
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("gojob: effect handler panic: %v", recovered)
		}
	}()
	return t.handler(jobCtx, req)
}

var _ job.Task = (*EffectTask)(nil)

type EffectWorkerConfig struct {
	Workers int
	Timeout time.Duration
}

// EffectWorker runs the effect task on a go-job worker. Every failure is
// final: the retry policy allows a single attempt.
type EffectWorker struct {
	worker   *worker.Worker
	dequeuer queue.Dequeuer
}

// NewEffectWorker builds the worker. opts are applied after the defaults, so
// callers can add hooks or a logger.
func NewEffectWorker(dequeuer queue.Dequeuer, handler EffectHandler, config EffectWorkerConfig, opts ...worker.Option) (*EffectWorker, error) {
	if dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is required")
	}
	task, err := NewEffectTask(handler, config.Timeout)
	if err != nil {
		return nil, err
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	options := append([]worker.Option{
		worker.WithConcurrency(config.Workers),
		worker.WithIdleDelay(defaultIdleDelay),
		worker.WithRetryPolicy(worker.DefaultRetryPolicy{MaxAttempts: 1}),
	}, opts...)

	w := worker.NewWorker(dequeuer, options...)
	if err := w.Register(task); err != nil {
		return nil, fmt.Errorf("gojob: register effect task: %w", err)
	}
	return &EffectWorker{worker: w, dequeuer: dequeuer}, nil
}

func (w *EffectWorker) Start(ctx context.Context) error {
	if w == nil {
		return fmt.Errorf("gojob: effect worker is not configured")
	}
	return w.worker.Start(ctx)
}

// Stop waits for queued jobs to be picked up, then stops the worker and waits
// for jobs in flight. ctx bounds the whole drain.
func (w *EffectWorker) Stop(ctx context.Context) error {
	if w == nil {
		return nil
	}
	if pending, ok := w.dequeuer.(interface{ Len() int }); ok {
		ticker := time.NewTicker(drainPollInterval)
		defer ticker.Stop()
		for pending.Len() > 0 {
			select {
			case <-ctx.Done():
				return w.worker.Stop(ctx)
			case <-ticker.C:
			}
		}
	}
	return w.worker.Stop(ctx)
}
