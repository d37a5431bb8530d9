package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
)

const kafkaQueueSize = 256

var errKafkaClosed = errors.New("kafka publisher is closed")

// KafkaConfig selects the brokers and topic for simulation events.
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaRequest struct {
	key   []byte
	value []byte
	id    string
}

// KafkaPublisher queues events and writes them from a single goroutine so
// history workers are never held up by the broker.
type KafkaPublisher struct {
	topic   string
	timeout time.Duration
	writer  kafkaMessageWriter
	queue   chan kafkaRequest

	closed   atomic.Bool
	closeMu  sync.RWMutex
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewKafkaPublisher dials nothing up front; kafka-go connects lazily on the
// first write.
func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}
	topic := strings.TrimSpace(cfg.Topic)
	if topic == "" {
		topic = TopicSimulationCompleted
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		RequiredAcks: kafka.RequireAll,
		Balancer:     &kafka.Hash{},
	}
	return newKafkaPublisher(topic, cfg.WriteTimeout, writer), nil
}

func newKafkaPublisher(topic string, timeout time.Duration, writer kafkaMessageWriter) *KafkaPublisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	p := &KafkaPublisher{
		topic:   topic,
		timeout: timeout,
		writer:  writer,
		queue:   make(chan kafkaRequest, kafkaQueueSize),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

func (p *KafkaPublisher) Name() string { return "kafka" }

// Publish encodes evt and queues it. It fails when the queue is full.
func (p *KafkaPublisher) Publish(ctx context.Context, evt SimulationCompleted) error {
	key, value, err := evt.Encode()
	if err != nil {
		return err
	}

	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	if p.closed.Load() {
		return errKafkaClosed
	}

	select {
	case p.queue <- kafkaRequest{key: key, value: value, id: evt.ID}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("kafka queue full, dropping %s", evt.ID)
	}
}

func (p *KafkaPublisher) run() {
	defer p.wg.Done()
	for req := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err := p.writer.WriteMessages(ctx, kafka.Message{Key: req.key, Value: req.value})
		cancel()
		if err != nil {
			slog.Error("Kafka write failed", "topic", p.topic, "simulation_id", req.id, "error", err)
			continue
		}
		slog.Debug("Kafka event written", "topic", p.topic, "simulation_id", req.id)
	}
}

// Close drains queued events and closes the writer.
func (p *KafkaPublisher) Close() error {
	var err error
	p.stopOnce.Do(func() {
		p.closeMu.Lock()
		p.closed.Store(true)
		close(p.queue)
		p.closeMu.Unlock()

		p.wg.Wait()
		err = p.writer.Close()
	})
	return err
}
