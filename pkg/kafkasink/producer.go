// Package kafkasink publishes traced transfers to a Kafka topic, one JSON
// message per transaction keyed by its hash.
package kafkasink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// Edge is the message payload.
type Edge struct {
	RunID string  `json:"run_id"`
	Chain string  `json:"chain"`
	Hash  string  `json:"hash"`
	From  string  `json:"from"`
	To    string  `json:"to"`
	Value float64 `json:"value"`
}

// newSyncProducer is a test seam over sarama.NewSyncProducer.
var newSyncProducer = sarama.NewSyncProducer

// Producer wraps a synchronous sarama producer bound to one topic.
type Producer struct {
	p     sarama.SyncProducer
	topic string
}

// Config returns the producer settings used for edge streams: wait for all
// in-sync replicas and report successes so SendMessages is synchronous.
func Config() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = "chaintrace"
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Retry.Backoff = 250 * time.Millisecond
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	return cfg
}

// New dials brokers. An empty broker list is an error; callers skip the
// sink when no brokers are configured.
func New(brokers []string, topic string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	if topic == "" {
		return nil, errors.New("kafka: empty topic")
	}
	p, err := newSyncProducer(brokers, Config())
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return &Producer{p: p, topic: topic}, nil
}

// NewWithProducer wraps an existing producer.
func NewWithProducer(p sarama.SyncProducer, topic string) *Producer {
	return &Producer{p: p, topic: topic}
}

// Publish sends every edge in one batch.
func (p *Producer) Publish(ctx context.Context, edges []Edge) error {
	if len(edges) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msgs := make([]*sarama.ProducerMessage, 0, len(edges))
	for _, e := range edges {
		b, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode edge %s: %w", e.Hash, err)
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: p.topic,
			Key:   sarama.StringEncoder(e.Hash),
			Value: sarama.ByteEncoder(b),
		})
	}
	if err := p.p.SendMessages(msgs); err != nil {
		var pe sarama.ProducerErrors
		if errors.As(err, &pe) {
			return fmt.Errorf("kafka publish: %d of %d messages failed: %w", len(pe), len(msgs), err)
		}
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

// Close flushes and closes the producer.
func (p *Producer) Close() error { return p.p.Close() }
