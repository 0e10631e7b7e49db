package kafka

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"SignalFlow/pkg/logger"
	"SignalFlow/pkg/util"

	"github.com/segmentio/kafka-go"
)

// MessageHandler handles messages from one topic. Message headers are
// available through HeaderFromContext. A returned error is retried.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// messageReader is the subset of *kafka.Reader the consumer needs.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var errStopping = errors.New("consumer stopping")

// Consumer reads every registered topic in one consumer group and hands
// messages to a fixed set of workers. Each partition maps to one worker so
// messages of a partition are handled in offset order.
type Consumer struct {
	cfg       *ConsumerConfig
	log       *logger.Logger
	handlers  map[string]MessageHandler
	readers   map[string]messageReader
	newReader func(topic string) messageReader
	shards    []chan kafka.Message
	dlq       messageWriter

	ctx    context.Context
	cancel context.CancelFunc

	readWg   sync.WaitGroup
	workWg   sync.WaitGroup
	stopOnce sync.Once
}

// NewConsumer validates the configuration. Nothing connects until Start.
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := defaultConsumerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Consumer{
		cfg:      cfg,
		log:      log.With(logger.String("component", "kafka_consumer")),
		handlers: make(map[string]MessageHandler),
		readers:  make(map[string]messageReader),
		ctx:      ctx,
		cancel:   cancel,
	}
	c.newReader = func(topic string) messageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    topic,
			GroupID:  cfg.GroupID,
			MinBytes: cfg.MinBytes,
			MaxBytes: cfg.MaxBytes,
		})
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		}
	}

	initMetrics()
	return c, nil
}

// RegisterHandler must be called before Start. A second handler for the
// same topic is ignored.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.log.Warn("handler already registered", logger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// Start opens one reader per registered topic and starts the workers.
func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return errors.New("no handlers registered")
	}

	for topic := range c.handlers {
		c.readers[topic] = c.newReader(topic)
	}

	c.shards = make([]chan kafka.Message, c.cfg.WorkerCount)
	for i := range c.shards {
		c.shards[i] = make(chan kafka.Message, c.cfg.BufferSize)
		c.workWg.Add(1)
		go c.work(i)
	}
	for topic, r := range c.readers {
		c.readWg.Add(1)
		go c.fetch(topic, r)
	}

	c.log.Info("kafka consumer started",
		logger.String("group", c.cfg.GroupID),
		logger.Int("workers", c.cfg.WorkerCount),
		logger.Int("topics", len(c.readers)),
	)
	return nil
}

// Stop ends fetching, lets workers finish the message in hand and closes the
// readers. Queued but unhandled messages stay uncommitted and are redelivered.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		c.cancel()

		if stopErr = waitGroup(ctx, &c.readWg); stopErr != nil {
			return
		}
		for _, ch := range c.shards {
			close(ch)
		}
		stopErr = waitGroup(ctx, &c.workWg)

		for topic, r := range c.readers {
			if err := r.Close(); err != nil {
				c.log.Error("close reader", logger.String("topic", topic), logger.Error(err))
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				c.log.Error("close dlq writer", logger.Error(err))
			}
		}
		if stopErr == nil {
			c.log.Info("kafka consumer stopped")
		}
	})
	return stopErr
}

func waitGroup(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
	}
}

func (c *Consumer) fetch(topic string, r messageReader) {
	defer c.readWg.Done()

	failures := 0
	for {
		km, err := r.FetchMessage(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			failures++
			c.log.Error("fetch message", logger.String("topic", topic), logger.Int("failures", failures), logger.Error(err))
			select {
			case <-time.After(util.BackoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, failures)):
				continue
			case <-c.ctx.Done():
				return
			}
		}
		failures = 0

		i := shardFor(km.Topic, km.Partition, len(c.shards))
		select {
		case c.shards[i] <- km:
			consumerQueueDepth.WithLabelValues(strconv.Itoa(i)).Set(float64(len(c.shards[i])))
		case <-c.ctx.Done():
			return
		}
	}
}

func shardFor(topic string, partition, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(topic))
	return int((h.Sum32() + uint32(partition)) % uint32(n))
}

func (c *Consumer) work(i int) {
	defer c.workWg.Done()
	for km := range c.shards[i] {
		if c.ctx.Err() != nil {
			continue
		}
		c.process(km)
	}
}

func (c *Consumer) process(km kafka.Message) {
	h, ok := c.handlers[km.Topic]
	if !ok {
		return
	}

	start := time.Now()
	err := c.handle(h, km)
	if errors.Is(err, errStopping) {
		return
	}

	result := "ok"
	if err != nil {
		c.log.Error("message handling failed",
			logger.String("topic", km.Topic),
			logger.Int("partition", km.Partition),
			logger.Int64("offset", km.Offset),
			logger.Error(err),
		)
		if c.dlq == nil {
			consumerHandled.WithLabelValues(km.Topic, "failed").Inc()
			return
		}
		if dlqErr := c.deadLetter(km, err); dlqErr != nil {
			c.log.Error("dlq write failed", logger.String("dlq_topic", c.cfg.DLQTopic), logger.Error(dlqErr))
			consumerHandled.WithLabelValues(km.Topic, "failed").Inc()
			return
		}
		result = "dead_lettered"
	}

	c.commit(km)
	consumerHandled.WithLabelValues(km.Topic, result).Inc()
	consumerHandleLatency.WithLabelValues(km.Topic).Observe(time.Since(start).Seconds())
}

// handle runs the handler up to RetryMax+1 times. Backoff waits end early
// with errStopping when the consumer stops.
func (c *Consumer) handle(h MessageHandler, km kafka.Message) error {
	ctx := WithHeaders(context.Background(), km.Headers)
	for attempt := 1; ; attempt++ {
		err := safeHandle(ctx, h, km.Value)
		if err == nil || attempt > c.cfg.RetryMax {
			return err
		}
		c.log.Warn("handler failed, retrying",
			logger.String("topic", km.Topic),
			logger.Int("attempt", attempt),
			logger.Error(err),
		)
		select {
		case <-time.After(util.BackoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)):
		case <-c.ctx.Done():
			return errStopping
		}
	}
}

func safeHandle(ctx context.Context, h MessageHandler, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, data)
}

func (c *Consumer) deadLetter(km kafka.Message, cause error) error {
	headers := append([]kafka.Header{
		{Key: "source_topic", Value: []byte(km.Topic)},
		{Key: "error", Value: []byte(cause.Error())},
	}, km.Headers...)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.dlq.WriteMessages(ctx, kafka.Message{
		Topic:   c.cfg.DLQTopic,
		Key:     km.Key,
		Value:   km.Value,
		Headers: headers,
		Time:    time.Now(),
	})
}

// commit retries a few times; a lost commit only means redelivery.
func (c *Consumer) commit(km kafka.Message) {
	r := c.readers[km.Topic]
	if r == nil {
		return
	}
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = r.CommitMessages(ctx, km)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(util.BackoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.log.Error("commit failed", logger.String("topic", km.Topic), logger.Int64("offset", km.Offset), logger.Error(err))
}
