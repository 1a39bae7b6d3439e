package appkafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"example.com/tweetfeed/internal/models"
	"github.com/segmentio/kafka-go"
)

// KafkaWriter defines an interface for writing messages to Kafka.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, messages ...kafka.Message) error
	Close() error
}

// KafkaReader defines an interface for reading messages from Kafka.
type KafkaReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaConfig holds configuration parameters for Kafka.
type KafkaConfig struct {
	Brokers      []string      // list of Kafka brokers
	Topic        string        // topic name
	WriteTimeout time.Duration // write timeout duration
	ReadTimeout  time.Duration // max wait for a fetch (consumer group)
	GroupID      string        // consumer group ID
}

// RealKafkaWriter implements KafkaWriter using kafka.Writer.
type RealKafkaWriter struct {
	writer *kafka.Writer
}

// NewKafkaWriter creates a writer. Connections are opened lazily on first write.
func NewKafkaWriter(cfg KafkaConfig) (*RealKafkaWriter, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	return &RealKafkaWriter{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafka.Hash{}, // same author -> same partition, keeps per-author order
			RequiredAcks:           kafka.RequireOne,
			WriteTimeout:           cfg.WriteTimeout,
			AllowAutoTopicCreation: true,
		},
	}, nil
}

func (w *RealKafkaWriter) WriteMessages(ctx context.Context, messages ...kafka.Message) error {
	return w.writer.WriteMessages(ctx, messages...)
}

func (w *RealKafkaWriter) Close() error {
	return w.writer.Close()
}

// RealKafkaReader implements KafkaReader using kafka.Reader (consumer group).
type RealKafkaReader struct {
	reader *kafka.Reader
}

// NewKafkaReader creates a new Kafka consumer group reader.
func NewKafkaReader(cfg KafkaConfig) KafkaReader {
	if len(cfg.Brokers) == 0 {
		cfg.Brokers = []string{"localhost:9092"}
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.Topic,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        cfg.ReadTimeout,
		CommitInterval: time.Second,
	})
	return &RealKafkaReader{reader: r}
}

func (r *RealKafkaReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	return r.reader.ReadMessage(ctx)
}

func (r *RealKafkaReader) Close() error {
	return r.reader.Close()
}

// NopWriter drops every message. Used when no broker is configured.
type NopWriter struct{}

func (NopWriter) WriteMessages(context.Context, ...kafka.Message) error { return nil }
func (NopWriter) Close() error                                          { return nil }

// --- Tweet events ---

// PublishTweetEvent writes ev keyed by its author.
func PublishTweetEvent(ctx context.Context, w KafkaWriter, ev models.TweetEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal tweet event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.AuthorID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
	}
	if err := w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write tweet event: %w", err)
	}
	return nil
}

// DecodeTweetEvent parses a message produced by PublishTweetEvent.
func DecodeTweetEvent(msg kafka.Message) (models.TweetEvent, error) {
	var ev models.TweetEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return models.TweetEvent{}, fmt.Errorf("decode tweet event: %w", err)
	}
	switch ev.Type {
	case models.TweetCreated, models.TweetDeleted:
	default:
		return models.TweetEvent{}, fmt.Errorf("decode tweet event: unknown type %q", ev.Type)
	}
	if ev.TweetID == "" {
		return models.TweetEvent{}, errors.New("decode tweet event: missing tweet_id")
	}
	return ev, nil
}
