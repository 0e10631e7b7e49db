package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"SignalFlow/internal/domain/models"
	drepo "SignalFlow/internal/domain/repository"
	"SignalFlow/pkg/logger"
)

// DrainLockKey serializes outbox draining across instances.
const DrainLockKey = "outbox-drain"

// OutboxConfig tunes the drain loop.
type OutboxConfig struct {
	BatchSize   int
	Interval    time.Duration
	MaxRetries  int
	DrainTTL    time.Duration
	StaleAfter  time.Duration
	TopicPrefix string
}

// OutboxProcessor periodically publishes pending outbox messages. Only the
// holder of the drain lock publishes; a failed message waits for the next
// cycle.
type OutboxProcessor struct {
	store   drepo.OutboxStore
	broker  drepo.Broker
	locker  drepo.Locker
	metrics drepo.Metrics
	log     *logger.Logger
	cfg     OutboxConfig

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewOutboxProcessor(
	store drepo.OutboxStore,
	broker drepo.Broker,
	locker drepo.Locker,
	metrics drepo.Metrics,
	log *logger.Logger,
	cfg OutboxConfig,
) *OutboxProcessor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 3 * time.Second
	}
	if cfg.DrainTTL < cfg.Interval {
		cfg.DrainTTL = cfg.Interval
	}
	return &OutboxProcessor{
		store:   store,
		broker:  broker,
		locker:  locker,
		metrics: metrics,
		log:     log.With(logger.String("component", "outbox_processor")),
		cfg:     cfg,
		stopCh:  make(chan struct{}),
	}
}

// Topic returns the broker topic for an event type.
func (p *OutboxProcessor) Topic(eventType string) string {
	return Topic(p.cfg.TopicPrefix, eventType)
}

// Topic joins a prefix and an event type into a topic name.
func Topic(prefix, eventType string) string {
	if prefix == "" {
		return eventType
	}
	return prefix + "." + eventType
}

// Start runs one cycle per Interval until Stop.
func (p *OutboxProcessor) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := p.RunCycle(ctx); err != nil {
					p.metrics.RecordError("outbox_cycle")
					p.log.Error("outbox cycle failed", logger.Error(err))
				}
			}
		}
	}()
}

// Stop waits for the running cycle to finish.
func (p *OutboxProcessor) Stop(ctx context.Context) error {
	p.stopOnce.Do(func() { close(p.stopCh) })
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunCycle drains one batch. It returns the number of messages published.
// Contention on the drain lock is not an error: the cycle is skipped.
func (p *OutboxProcessor) RunCycle(ctx context.Context) (int, error) {
	lease, err := p.locker.Acquire(ctx, DrainLockKey, p.cfg.DrainTTL)
	if errors.Is(err, models.ErrContended) {
		p.metrics.RecordLock(DrainLockKey, "contended")
		return 0, nil
	}
	if err != nil {
		p.metrics.RecordLock(DrainLockKey, "error")
		return 0, fmt.Errorf("acquire drain lock: %w", err)
	}
	p.metrics.RecordLock(DrainLockKey, "acquired")
	defer p.release(ctx, lease)

	start := time.Now()
	defer func() { p.metrics.RecordLatency("outbox_cycle", time.Since(start).Seconds()) }()

	cycleCtx, cancel := context.WithTimeout(ctx, p.cfg.DrainTTL)
	defer cancel()

	if p.cfg.StaleAfter > 0 {
		n, err := p.store.ResetStale(cycleCtx, p.cfg.StaleAfter)
		if err != nil {
			return 0, fmt.Errorf("reset stale: %w", err)
		}
		if n > 0 {
			p.log.Warn("reclaimed stale outbox messages", logger.Int64("count", n))
		}
	}

	msgs, err := p.store.GetUnprocessed(cycleCtx, p.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("load batch: %w", err)
	}
	p.metrics.SetOutboxBacklog(len(msgs))

	published := 0
	for i := range msgs {
		if cycleCtx.Err() != nil {
			break
		}
		if err := p.keepLease(cycleCtx, lease); err != nil {
			p.log.Warn("drain lease lost, ending cycle", logger.Error(err))
			break
		}
		if p.deliver(cycleCtx, &msgs[i]) {
			published++
		}
	}
	return published, nil
}

// deliver publishes one message and records the outcome.
func (p *OutboxProcessor) deliver(ctx context.Context, m *models.OutboxMessage) bool {
	// Bookkeeping must land even if the cycle deadline passes mid-publish.
	bg := context.WithoutCancel(ctx)
	log := p.log.With(logger.String("event_id", m.ID), logger.String("event_type", m.EventType))

	if err := p.store.MarkStatus(ctx, m.ID, models.OutboxProcessing); err != nil {
		if !errors.Is(err, models.ErrInvalidTransition) {
			log.Error("claim failed", logger.Error(err))
		}
		return false
	}

	headers := map[string]string{
		"event_id":      m.ID,
		"event_type":    m.EventType,
		"aggregate_key": m.AggregateKey,
	}
	err := p.broker.Publish(ctx, p.Topic(m.EventType), []byte(m.AggregateKey), m.Payload, headers)
	if err == nil {
		if err := p.store.MarkProcessed(bg, m.ID); err != nil {
			log.Error("mark processed failed", logger.Error(err))
		}
		p.metrics.RecordPublish(m.EventType, "ok")
		return true
	}

	retries, rerr := p.store.IncrementRetry(bg, m.ID, err.Error())
	if rerr != nil {
		log.Error("increment retry failed", logger.Error(rerr))
		return false
	}
	if retries > p.cfg.MaxRetries {
		if err := p.store.MarkStatus(bg, m.ID, models.OutboxFailed); err != nil {
			log.Error("mark failed failed", logger.Error(err))
		}
		p.metrics.RecordPublish(m.EventType, "failed")
		log.Error("outbox message dead-lettered", logger.Int("retries", retries), logger.Error(err))
		return false
	}
	if err := p.store.MarkStatus(bg, m.ID, models.OutboxPending); err != nil {
		log.Error("requeue failed", logger.Error(err))
	}
	p.metrics.RecordPublish(m.EventType, "retry")
	log.Warn("publish failed, will retry next cycle", logger.Int("retries", retries), logger.Error(err))
	return false
}

// keepLease renews the drain lease once less than half of its TTL is left.
func (p *OutboxProcessor) keepLease(ctx context.Context, lease *models.Lease) error {
	if time.Until(lease.ExpiresAt) > p.cfg.DrainTTL/2 {
		return nil
	}
	return p.locker.Renew(ctx, lease, p.cfg.DrainTTL)
}

func (p *OutboxProcessor) release(ctx context.Context, lease *models.Lease) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := p.locker.Release(rctx, lease); err != nil && !errors.Is(err, models.ErrLeaseLost) {
		p.log.Warn("drain lock release failed", logger.Error(err))
	}
}

// FailedMessages lists dead-lettered messages, newest first.
func (p *OutboxProcessor) FailedMessages(ctx context.Context, limit int) ([]models.OutboxMessage, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return p.store.ListFailed(ctx, limit)
}
