// Package events announces completed ingestions to external consumers.
// Publishing is notification only: ingestion itself never waits on or
// dispatches work through the broker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sheetdrop/apiserver/config"
)

// ChannelDatasetIngested is the topic/queue ingestion events go to.
const ChannelDatasetIngested = "datasets.ingested"

// DatasetIngested is the payload published after a dataset is committed.
type DatasetIngested struct {
	DatasetID  int       `json:"dataset_id"`
	Filename   string    `json:"filename"`
	RowCount   int       `json:"row_count"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Backend is a broker that can deliver an event payload on a named channel.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) error
	Close() error
}

// Publisher serializes domain events onto a backend.
type Publisher struct {
	backend Backend
}

// NewPublisher wraps a backend. A nil backend yields a nil Publisher,
// which publishes nothing.
func NewPublisher(backend Backend) *Publisher {
	if backend == nil {
		return nil
	}
	return &Publisher{backend: backend}
}

// DatasetIngested publishes an ingestion notification.
func (p *Publisher) DatasetIngested(ctx context.Context, event DatasetIngested) error {
	if p == nil {
		return nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.backend.Publish(ctx, ChannelDatasetIngested, data, map[string]string{
		"content-type": "application/json",
		"event":        "dataset.ingested",
	})
}

// Close closes the underlying backend.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.backend.Close()
}

// NewFromConfig constructs a Publisher for the configured backend, or nil
// when eventing is disabled.
func NewFromConfig(ctx context.Context, cfg config.EventsConfig) (*Publisher, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "rabbitmq":
		backend, err := NewRabbitMQBackend(cfg.RabbitMQ)
		if err != nil {
			return nil, err
		}
		return NewPublisher(backend), nil
	case "pubsub":
		backend, err := NewPubSubBackend(ctx, cfg.PubSub)
		if err != nil {
			return nil, err
		}
		return NewPublisher(backend), nil
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.Backend)
	}
}
