package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/go-simulation-admin/shared/logging"
)

// ErrQueueFull is returned when the publish buffer has no room.
var ErrQueueFull = errors.New("event queue full, event dropped")

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("publisher closed")

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher queues events in a buffered channel and writes them to
// Kafka from a fixed pool of workers.
type KafkaPublisher struct {
	writer       MessageWriter
	topic        string
	writeTimeout time.Duration
	log          logrus.FieldLogger

	mu     sync.RWMutex
	closed bool
	queue  chan ChangeEvent
	wg     sync.WaitGroup
}

// NewKafkaWriter returns a writer for broker.
func NewKafkaWriter(broker string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(broker),
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}
}

// NewKafkaPublisher starts workers writing to topic through w.
func NewKafkaPublisher(w MessageWriter, topic string, workers, buffer int, log logrus.FieldLogger) *KafkaPublisher {
	if workers < 1 {
		workers = 1
	}
	if buffer < 1 {
		buffer = 1
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	p := &KafkaPublisher{
		writer:       w,
		topic:        topic,
		writeTimeout: 5 * time.Second,
		log:          log,
		queue:        make(chan ChangeEvent, buffer),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	log.WithFields(logrus.Fields{"workers": workers, "topic": topic}).Info("Started event publisher")
	return p
}

// Publish queues events without waiting for the broker. Events that do not
// fit are dropped and ErrQueueFull is returned.
func (p *KafkaPublisher) Publish(ctx context.Context, events ...ChangeEvent) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	requestID, _ := logging.FromContext(ctx).Data["request_id"].(string)
	for _, e := range events {
		if e.RequestID == "" {
			e.RequestID = requestID
		}
		select {
		case p.queue <- e:
		default:
			return ErrQueueFull
		}
	}
	return nil
}

func (p *KafkaPublisher) worker(id int) {
	defer p.wg.Done()
	for e := range p.queue {
		if err := p.write(e); err != nil {
			p.log.WithError(err).WithFields(logrus.Fields{
				"worker":    id,
				"table":     e.Table,
				"entity_id": e.EntityRef,
			}).Error("Failed to publish change event")
		}
	}
}

func (p *KafkaPublisher) write(e ChangeEvent) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(e.TenantRef.String()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Table + "." + string(e.Action))},
			{Key: "tenant_id", Value: []byte(e.TenantRef.String())},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write change event to Kafka: %w", err)
	}
	return nil
}

// Close stops accepting events, drains the queue and closes the writer.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka writer: %w", err)
	}
	p.log.Info("Event publisher stopped")
	return nil
}
