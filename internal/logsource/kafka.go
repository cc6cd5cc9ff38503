package logsource

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/tinytelemetry/warden/internal/model"
)

const (
	// KafkaSourceName tags every envelope produced by the Kafka source.
	KafkaSourceName = "kafka"

	// DefaultKafkaGroup is the consumer group used when none is configured.
	DefaultKafkaGroup = "warden"

	defaultKafkaBuffer = 10_000
	kafkaRetryDelay    = 5 * time.Second
)

// KafkaConfig configures the Kafka consumer group source.
type KafkaConfig struct {
	Brokers    []string
	Topic      string
	Group      string
	Version    string
	BufferSize int
}

// NewSaramaConfig returns the consumer group settings used for decision topics.
func NewSaramaConfig(version string) (*sarama.Config, error) {
	config := sarama.NewConfig()
	if version == "" {
		version = "2.1.0"
	}
	v, err := sarama.ParseKafkaVersion(version)
	if err != nil {
		return nil, err
	}
	config.Version = v
	config.ClientID = "warden"
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Return.Errors = true
	config.Consumer.Group.Session.Timeout = 20 * time.Second
	config.Consumer.Group.Heartbeat.Interval = 6 * time.Second
	config.Net.DialTimeout = 30 * time.Second
	config.Net.ReadTimeout = 30 * time.Second
	config.Net.WriteTimeout = 30 * time.Second
	return config, nil
}

// KafkaSource consumes decision records from a topic. Each message value is
// one JSON document; each partition is its own stream.
type KafkaSource struct {
	group  sarama.ConsumerGroup
	topic  string
	ch     chan model.IngestEnvelope
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewKafkaSource joins the consumer group and starts consuming.
func NewKafkaSource(ctx context.Context, conf KafkaConfig) (*KafkaSource, error) {
	if len(conf.Brokers) == 0 || conf.Topic == "" {
		return nil, errors.New("logsource: kafka requires brokers and a topic")
	}
	config, err := NewSaramaConfig(conf.Version)
	if err != nil {
		return nil, fmt.Errorf("kafka config: %w", err)
	}
	groupID := conf.Group
	if groupID == "" {
		groupID = DefaultKafkaGroup
	}

	zap.S().Infof("logsource: connecting to kafka brokers %v (group=%s topic=%s)", conf.Brokers, groupID, conf.Topic)
	group, err := sarama.NewConsumerGroup(conf.Brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer group: %w", err)
	}
	return newKafkaSource(ctx, group, conf.Topic, conf.BufferSize), nil
}

func newKafkaSource(ctx context.Context, group sarama.ConsumerGroup, topic string, bufferSize int) *KafkaSource {
	if bufferSize <= 0 {
		bufferSize = defaultKafkaBuffer
	}
	ctx, cancel := context.WithCancel(ctx)
	k := &KafkaSource{
		group:  group,
		topic:  topic,
		ch:     make(chan model.IngestEnvelope, bufferSize),
		cancel: cancel,
	}

	k.wg.Add(2)
	go k.consume(ctx)
	go k.logErrors(ctx)
	go func() {
		k.wg.Wait()
		close(k.ch)
	}()
	return k
}

func (k *KafkaSource) consume(ctx context.Context) {
	defer k.wg.Done()
	handler := &claimHandler{out: k.ch}
	for {
		// Consume returns on every rebalance; loop to rejoin.
		if err := k.group.Consume(ctx, []string{k.topic}, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			zap.S().Errorf("logsource: kafka consume error: %v", err)
			select {
			case <-time.After(kafkaRetryDelay):
			case <-ctx.Done():
				return
			}
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (k *KafkaSource) logErrors(ctx context.Context) {
	defer k.wg.Done()
	for {
		select {
		case err, ok := <-k.group.Errors():
			if !ok {
				return
			}
			zap.S().Warnf("logsource: kafka error: %v", err)
		case <-ctx.Done():
			return
		}
	}
}

func (k *KafkaSource) Lines() <-chan model.IngestEnvelope { return k.ch }
func (k *KafkaSource) Name() string                       { return KafkaSourceName }

// Stop leaves the consumer group and closes Lines once consumers drain.
func (k *KafkaSource) Stop() {
	k.once.Do(func() {
		k.cancel()
		if err := k.group.Close(); err != nil {
			zap.S().Warnf("logsource: kafka close: %v", err)
		}
	})
}

// claimHandler forwards claimed messages as envelopes. Offsets are marked
// only after the envelope has been queued.
type claimHandler struct {
	out chan<- model.IngestEnvelope
}

func (h *claimHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *claimHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *claimHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	stream := claim.Topic() + "/" + strconv.Itoa(int(claim.Partition()))
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if len(message.Value) == 0 {
				session.MarkMessage(message, "")
				continue
			}
			select {
			case h.out <- model.IngestEnvelope{Source: KafkaSourceName, Stream: stream, Line: string(message.Value)}:
				session.MarkMessage(message, "")
			case <-session.Context().Done():
				return nil
			}
		case <-session.Context().Done():
			return nil
		}
	}
}
