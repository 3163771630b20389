package kafka

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/KVLNK12305/Akira/internal/infra/config"
)

const deliveryErrorBuffer = 256

// Producer publishes notification events. In async mode messages are batched and
// delivery failures surface on Errors; in sync mode Publish waits for every in-sync replica.
type Producer struct {
	logger      *zap.Logger
	topicPrefix string

	batched sarama.AsyncProducer
	acked   sarama.SyncProducer
	failed  chan error
	stop    chan struct{}
	drained sync.WaitGroup
}

func baseSaramaConfig() *sarama.Config {
	sc := sarama.NewConfig()
	sc.Version = sarama.V3_5_0_0
	sc.ClientID = "akira"
	sc.Producer.Compression = sarama.CompressionSnappy
	sc.Producer.Retry.Max = 3
	sc.Metadata.Retry.Max = 3
	sc.Metadata.Retry.Backoff = 250 * time.Millisecond
	return sc
}

// NewProducer connects to cfg.Brokers using the mode selected by cfg.Async.
func NewProducer(cfg config.KafkaSettings, logger *zap.Logger) (*Producer, error) {
	sc := baseSaramaConfig()

	var p *Producer
	if cfg.Async {
		sc.Producer.RequiredAcks = sarama.WaitForLocal
		sc.Producer.Flush.Frequency = 100 * time.Millisecond
		sc.Producer.Flush.Messages = 100
		sc.Producer.Return.Errors = true

		ap, err := sarama.NewAsyncProducer(cfg.Brokers, sc)
		if err != nil {
			return nil, fmt.Errorf("create async kafka producer: %w", err)
		}
		p = newAsyncProducer(ap, cfg.TopicPrefix, logger)
	} else {
		sc.Producer.RequiredAcks = sarama.WaitForAll
		sc.Producer.Return.Successes = true
		sc.Producer.Idempotent = true
		sc.Net.MaxOpenRequests = 1

		sp, err := sarama.NewSyncProducer(cfg.Brokers, sc)
		if err != nil {
			return nil, fmt.Errorf("create sync kafka producer: %w", err)
		}
		p = newSyncProducer(sp, cfg.TopicPrefix, logger)
	}

	logger.Info("kafka producer initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic_prefix", cfg.TopicPrefix),
		zap.Bool("async", cfg.Async),
	)
	return p, nil
}

func newAsyncProducer(ap sarama.AsyncProducer, topicPrefix string, logger *zap.Logger) *Producer {
	p := &Producer{
		logger:      logger,
		topicPrefix: topicPrefix,
		batched:     ap,
		failed:      make(chan error, deliveryErrorBuffer),
		stop:        make(chan struct{}),
	}
	p.drained.Add(1)
	go p.drainErrors()
	return p
}

func newSyncProducer(sp sarama.SyncProducer, topicPrefix string, logger *zap.Logger) *Producer {
	return &Producer{logger: logger, topicPrefix: topicPrefix, acked: sp}
}

func (p *Producer) drainErrors() {
	defer p.drained.Done()
	for {
		select {
		case perr, ok := <-p.batched.Errors():
			if !ok {
				return
			}
			if perr == nil {
				continue
			}
			p.logger.Error("kafka delivery failed", zap.Error(perr.Err), zap.String("topic", perr.Msg.Topic))
			select {
			case p.failed <- perr.Err:
			default:
				p.logger.Warn("kafka delivery error buffer full, dropping error")
			}
		case <-p.stop:
			return
		}
	}
}

// Publish sends value to the topic for eventType, partitioned by key.
func (p *Producer) Publish(ctx context.Context, eventType, key string, value []byte) error {
	msg := &sarama.ProducerMessage{
		Topic: p.TopicName(eventType),
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
	}

	if p.acked != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, _, err := p.acked.SendMessage(msg); err != nil {
			return fmt.Errorf("publish %s: %w", msg.Topic, err)
		}
		return nil
	}

	select {
	case p.batched.Input() <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Errors reports asynchronous delivery failures. It is nil in sync mode.
func (p *Producer) Errors() <-chan error {
	return p.failed
}

// Close flushes buffered messages.
func (p *Producer) Close() error {
	p.logger.Info("closing kafka producer")

	if p.acked != nil {
		if err := p.acked.Close(); err != nil {
			return fmt.Errorf("close kafka producer: %w", err)
		}
		return nil
	}

	close(p.stop)
	p.drained.Wait()
	if err := p.batched.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}

// TopicName prefixes eventType unless it already carries the prefix.
func (p *Producer) TopicName(eventType string) string {
	if p.topicPrefix == "" || strings.HasPrefix(eventType, p.topicPrefix+".") {
		return eventType
	}
	return p.topicPrefix + "." + eventType
}
