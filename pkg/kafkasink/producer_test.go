package kafkasink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
)

func TestPublish(t *testing.T) {
	mp := mocks.NewSyncProducer(t, nil)
	var got []Edge
	check := func(b []byte) error {
		var e Edge
		if err := json.Unmarshal(b, &e); err != nil {
			return err
		}
		got = append(got, e)
		return nil
	}
	mp.ExpectSendMessageWithCheckerFunctionAndSucceed(check)
	mp.ExpectSendMessageWithCheckerFunctionAndSucceed(check)

	p := NewWithProducer(mp, "chaintrace.edges")
	edges := []Edge{
		{RunID: "r", Chain: "eth", Hash: "0x1", From: "0xa", To: "0xb", Value: 1.5},
		{RunID: "r", Chain: "eth", Hash: "0x2", From: "0xb", To: "0xc", Value: 2},
	}
	if err := p.Publish(context.Background(), edges); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(got) != 2 || got[0] != edges[0] || got[1] != edges[1] {
		t.Fatalf("payloads=%v", got)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestPublishFailure(t *testing.T) {
	mp := mocks.NewSyncProducer(t, nil)
	mp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	p := NewWithProducer(mp, "t")
	err := p.Publish(context.Background(), []Edge{{Hash: "0x1"}})
	if err == nil || !strings.Contains(err.Error(), "kafka publish") {
		t.Fatalf("want publish error, got %v", err)
	}
	_ = p.Close()
}

func TestPublishEmptyAndCanceled(t *testing.T) {
	mp := mocks.NewSyncProducer(t, nil)
	p := NewWithProducer(mp, "t")
	if err := p.Publish(context.Background(), nil); err != nil {
		t.Fatalf("empty publish: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Publish(ctx, []Edge{{Hash: "0x1"}}); !errors.Is(err, context.Canceled) {
		t.Fatalf("want canceled, got %v", err)
	}
	_ = p.Close()
}

func TestNewValidatesAndWraps(t *testing.T) {
	if _, err := New(nil, "t"); err == nil {
		t.Fatal("expected error for no brokers")
	}
	if _, err := New([]string{"localhost:9092"}, ""); err == nil {
		t.Fatal("expected error for empty topic")
	}

	orig := newSyncProducer
	defer func() { newSyncProducer = orig }()
	newSyncProducer = func(addrs []string, cfg *sarama.Config) (sarama.SyncProducer, error) {
		if !cfg.Producer.Return.Successes {
			return nil, fmt.Errorf("sync producer needs Return.Successes")
		}
		return nil, sarama.ErrOutOfBrokers
	}
	_, err := New([]string{"localhost:9092"}, "t")
	if !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Fatalf("want wrapped broker error, got %v", err)
	}
}

func TestConfigValidates(t *testing.T) {
	if err := Config().Validate(); err != nil {
		t.Fatalf("config invalid: %v", err)
	}
}
