package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/cyclone-impact-etl/internal/config"
	"github.com/couchcryptid/cyclone-impact-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher announces each completed run on a Kafka topic, one message per
// category. It implements pipeline.Sink.
type Publisher struct {
	writer messageWriter
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured sink topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// Publish writes the category summaries of result in a single
// WriteMessages call. Messages are keyed by category.
func (p *Publisher) Publish(ctx context.Context, result domain.RunResult) error {
	if len(result.Categories) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(result.Categories))
	for i, c := range result.Categories {
		msg, err := serializeToMessage(result, c.Summary())
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish run %s: %w", result.RunID, err)
	}
	p.logger.Info("run published", "run_id", result.RunID, "messages", len(msgs))
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// categoryMessage is the wire form of one category summary.
type categoryMessage struct {
	RunID      string    `json:"run_id"`
	FinishedAt time.Time `json:"finished_at"`
	domain.CategorySummary
}

func serializeToMessage(result domain.RunResult, summary domain.CategorySummary) (kafkago.Message, error) {
	data, err := json.Marshal(categoryMessage{
		RunID:           result.RunID,
		FinishedAt:      result.FinishedAt,
		CategorySummary: summary,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize %s summary: %w", summary.Category, err)
	}
	return kafkago.Message{
		Key:   []byte(summary.Category),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "run_id", Value: []byte(result.RunID)},
			{Key: "category", Value: []byte(summary.Category)},
			{Key: "generated_at", Value: []byte(result.FinishedAt.Format(time.RFC3339))},
		},
	}, nil
}
