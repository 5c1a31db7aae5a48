package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"notifyd/internal/pkg/logger"
	"notifyd/internal/platform/config"
	"notifyd/internal/platform/models"
)

const (
	readMaxWait    = 500 * time.Millisecond
	commitInterval = time.Second
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer feeds domain events from a Kafka topic into the Processor.
// Offsets are committed after processing, so delivery is at least once;
// rolling counters ignore event ids they have already counted, including
// the ones that fired a rule, while those ids are inside the rule's window.
type Consumer struct {
	reader    messageReader
	processor *Processor
	topic     string
	log       zerolog.Logger
}

func NewConsumer(cfg config.KafkaConfig, processor *Processor) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers cannot be empty")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic cannot be empty")
	}
	if cfg.GroupID == "" {
		return nil, errors.New("kafka group id cannot be empty")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        readMaxWait,
		CommitInterval: commitInterval,
		StartOffset:    kafka.FirstOffset,
	})

	return newConsumer(reader, cfg.Topic, processor), nil
}

func newConsumer(reader messageReader, topic string, processor *Processor) *Consumer {
	return &Consumer{
		reader:    reader,
		processor: processor,
		topic:     topic,
		log:       logger.Component("event_consumer"),
	}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info().Str("topic", c.topic).Msg("starting event consumer")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info().Msg("event consumer stopped")
				return nil
			}
			c.log.Error().Err(err).Msg("failed to fetch event")
			continue
		}

		c.handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.log.Error().Err(err).Int64("offset", msg.Offset).Msg("failed to commit event offset")
		}
	}
}

// handle never fails the message: malformed or invalid events are logged
// and skipped so one bad producer cannot stall the partition.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	event, err := decodeEvent(msg.Value)
	if err != nil {
		c.log.Warn().Err(err).Int("partition", msg.Partition).Int64("offset", msg.Offset).Msg("skipping malformed event")
		return
	}

	result, err := c.processor.Process(ctx, event)
	if err != nil {
		c.log.Warn().Err(err).Str("event_id", event.ID).Msg("event rejected")
		return
	}

	c.log.Debug().Str("event_id", result.EventID).Int("matched", result.Matched()).Msg("consumed event")
}

func decodeEvent(value []byte) (*models.Event, error) {
	var event models.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return &event, nil
}

func (c *Consumer) Close() error {
	c.log.Info().Str("topic", c.topic).Msg("closing event consumer")
	return c.reader.Close()
}
