// Package service wires the rule executor to its NATS transport. Trigger
// events arrive on a JetStream stream and are fanned out to a keyed worker
// pool: every event for one record lands on the same worker, so executions
// for that record are strictly serialized while distinct records run
// concurrently. Dry-run requests are served synchronously over request/reply.
package service

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/ruleflow/engine"
	"github.com/c360/ruleflow/errors"
	"github.com/c360/ruleflow/metric"
	"github.com/c360/ruleflow/natsclient"
	"github.com/c360/ruleflow/pkg/retry"
	"github.com/c360/ruleflow/pkg/worker"
	"github.com/c360/ruleflow/rule"
)

// NATS subjects and stream names
const (
	TriggerStreamName  = "RULEFLOW_TRIGGERS"
	TriggerSubjects    = "triggers.>"
	DryRunSubject      = "rules.test"
	RulesChangedPrefix = "rules.changed"
)

// Config sizes the trigger worker pool
type Config struct {
	Workers      int    `yaml:"workers"`
	QueueSize    int    `yaml:"queue_size"`
	ConsumerName string `yaml:"consumer_name"`
}

// DefaultConfig returns production pool sizing
func DefaultConfig() Config {
	return Config{
		Workers:      8,
		QueueSize:    256,
		ConsumerName: "ruleflow-engine",
	}
}

// TriggerService consumes trigger events and runs them through the executor
type TriggerService struct {
	client   *natsclient.Client
	executor *engine.Executor
	pool     *worker.KeyedPool[*rule.TriggerEvent]
	cfg      Config
	logger   *slog.Logger
	started  atomic.Bool

	// counters surfaced in the health snapshot
	received int64
	dropped  int64
}

// NewTriggerService creates the trigger consumer. registry may be nil to
// skip pool metric registration.
func NewTriggerService(client *natsclient.Client, executor *engine.Executor, cfg Config, registry *metric.Registry) (*TriggerService, error) {
	if client == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("nats client is required"),
			"service", "NewTriggerService", "validate dependencies")
	}
	if executor == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("executor is required"),
			"service", "NewTriggerService", "validate dependencies")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.ConsumerName == "" {
		cfg.ConsumerName = DefaultConfig().ConsumerName
	}

	s := &TriggerService{
		client:   client,
		executor: executor,
		cfg:      cfg,
		logger:   slog.Default().With("component", "trigger-service"),
	}

	var opts []worker.Option[*rule.TriggerEvent]
	if registry != nil {
		opts = append(opts, worker.WithMetricsRegistry[*rule.TriggerEvent](registry, "ruleflow_trigger"))
	}
	s.pool = worker.NewKeyedPool(cfg.Workers, cfg.QueueSize, triggerKey, s.process, opts...)

	return s, nil
}

// triggerKey routes every event for one record to the same worker
func triggerKey(event *rule.TriggerEvent) string {
	if event.Record == nil {
		return ""
	}
	return event.Record.ID
}

// Start creates the trigger stream if needed, starts the worker pool, and
// begins consuming triggers and dry-run requests.
func (s *TriggerService) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.ErrAlreadyStarted
	}

	_, err := s.client.CreateStream(ctx, jetstream.StreamConfig{
		Name:      TriggerStreamName,
		Subjects:  []string{TriggerSubjects},
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		s.started.Store(false)
		return errors.Wrap(err, "service", "Start", "create trigger stream")
	}

	if err := s.pool.Start(ctx); err != nil {
		s.started.Store(false)
		return errors.Wrap(err, "service", "Start", "start worker pool")
	}

	if err := s.client.ConsumeStream(ctx, TriggerStreamName, s.cfg.ConsumerName,
		TriggerSubjects, s.handleTriggerMessage); err != nil {
		s.started.Store(false)
		return errors.Wrap(err, "service", "Start", "consume trigger stream")
	}

	if err := s.client.SubscribeRequest(ctx, DryRunSubject, s.handleDryRun); err != nil {
		s.started.Store(false)
		return errors.Wrap(err, "service", "Start", "subscribe dry-run")
	}

	s.logger.Info("trigger service started",
		"stream", TriggerStreamName, "workers", s.cfg.Workers, "queue_size", s.cfg.QueueSize)
	return nil
}

// Stop drains the worker pool. NATS subscriptions are torn down by the
// shared client's Close.
func (s *TriggerService) Stop(timeout time.Duration) error {
	if !s.started.CompareAndSwap(true, false) {
		return errors.ErrNotStarted
	}
	if err := s.pool.Stop(timeout); err != nil {
		return errors.Wrap(err, "service", "Stop", "stop worker pool")
	}
	s.logger.Info("trigger service stopped")
	return nil
}

// handleTriggerMessage decodes and enqueues one trigger. A decode failure
// acks the message: redelivering a malformed payload can never succeed. A
// full queue naks so the stream redelivers once workers catch up.
func (s *TriggerService) handleTriggerMessage(_ context.Context, data []byte) error {
	atomic.AddInt64(&s.received, 1)

	var event rule.TriggerEvent
	if err := json.Unmarshal(data, &event); err != nil {
		atomic.AddInt64(&s.dropped, 1)
		s.logger.Error("dropping malformed trigger event", "error", err)
		return nil
	}
	if event.Record == nil || event.Record.ID == "" || !event.Kind.Valid() {
		atomic.AddInt64(&s.dropped, 1)
		s.logger.Error("dropping invalid trigger event",
			"entity_id", event.EntityID, "kind", event.Kind)
		return nil
	}

	if err := s.pool.Submit(&event); err != nil {
		if stderrors.Is(err, worker.ErrQueueFull) {
			s.logger.Warn("trigger queue full, requesting redelivery",
				"record_id", event.Record.ID)
		}
		return err
	}
	return nil
}

// process runs one trigger through the executor. Transient failures are
// retried here; an exhausted retry is logged and dropped since the message
// was already acked on enqueue.
func (s *TriggerService) process(ctx context.Context, event *rule.TriggerEvent) error {
	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		handleErr := s.executor.HandleTrigger(ctx, event)
		if handleErr != nil && !errors.IsTransient(handleErr) {
			return retry.NonRetryable(handleErr)
		}
		return handleErr
	})
	if err != nil {
		s.logger.Error("trigger processing failed",
			"record_id", event.Record.ID, "entity_id", event.EntityID, "error", err)
		return err
	}
	return nil
}

// handleDryRun serves rules.test request/reply
func (s *TriggerService) handleDryRun(ctx context.Context, data []byte) []byte {
	var req engine.TestRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return dryRunError(fmt.Sprintf("malformed request: %v", err))
	}

	result, err := s.executor.Test(ctx, &req)
	if err != nil {
		return dryRunError(err.Error())
	}

	data, err = json.Marshal(result)
	if err != nil {
		return dryRunError(fmt.Sprintf("encode result: %v", err))
	}
	return data
}

func dryRunError(msg string) []byte {
	data, _ := json.Marshal(map[string]string{"error": msg})
	return data
}

// Health is a point-in-time service snapshot
type Health struct {
	Started  bool             `json:"started"`
	Received int64            `json:"received"`
	Dropped  int64            `json:"dropped"`
	Pool     worker.PoolStats `json:"pool"`
}

// Health reports the service's current state
func (s *TriggerService) Health() Health {
	return Health{
		Started:  s.started.Load(),
		Received: atomic.LoadInt64(&s.received),
		Dropped:  atomic.LoadInt64(&s.dropped),
		Pool:     s.pool.Stats(),
	}
}
