package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opencatalog/platform/pkg/common/config"
	"github.com/opencatalog/platform/pkg/common/logger"
	"github.com/segmentio/kafka-go"
)

// CatalogEvent is emitted on every committed write so downstream indexers
// and evaluation workers can react without polling.
type CatalogEvent struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"` // dataset_registered, run_submitted, ...
	EntityKind string                 `json:"entity_kind"`
	EntityID   string                 `json:"entity_id"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(topic string) *Producer {
	cfg := config.Load()
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{writer: writer}
}

func (p *Producer) PublishEvent(ctx context.Context, eventType, entityKind, entityID string, data map[string]interface{}) error {
	event := CatalogEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		EntityKind: entityKind,
		EntityID:   entityID,
		Data:       data,
		Timestamp:  time.Now().UTC(),
	}

	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	message := kafka.Message{
		// Key by entity so all events for one record land in one partition.
		Key:   []byte(entityKind + ":" + entityID),
		Value: eventBytes,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(eventType)},
			{Key: "entity-kind", Value: []byte(entityKind)},
		},
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"event_id":   event.ID,
			"event_type": eventType,
			"entity_id":  entityID,
		}).Error("Failed to publish event")
		return err
	}

	logger.Log.WithFields(map[string]interface{}{
		"event_id":   event.ID,
		"event_type": eventType,
		"topic":      p.writer.Topic,
	}).Debug("Event published")

	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
