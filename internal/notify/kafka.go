package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/yourusername/furlong/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes JSON records keyed by race id or segment
type KafkaPublisher struct {
	writer           messageWriter
	predictionsTopic string
	backtestsTopic   string
}

// NewKafkaPublisher creates a publisher over brokers. Messages are hashed
// by key so one race or segment always lands on one partition.
func NewKafkaPublisher(brokers []string, predictionsTopic, backtestsTopic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Gzip,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		BatchTimeout: 50 * time.Millisecond,
	}
	return newKafkaPublisher(w, predictionsTopic, backtestsTopic)
}

func newKafkaPublisher(w messageWriter, predictionsTopic, backtestsTopic string) *KafkaPublisher {
	if predictionsTopic == "" {
		predictionsTopic = "furlong.predictions"
	}
	if backtestsTopic == "" {
		backtestsTopic = "furlong.backtests"
	}
	return &KafkaPublisher{writer: w, predictionsTopic: predictionsTopic, backtestsTopic: backtestsTopic}
}

// Name returns "kafka"
func (p *KafkaPublisher) Name() string { return "kafka" }

// NotifyPrediction writes rec keyed by race id
func (p *KafkaPublisher) NotifyPrediction(ctx context.Context, rec *models.PredictionRecord) error {
	v, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal prediction: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.predictionsTopic,
		Key:   []byte(rec.RaceID),
		Value: v,
		Time:  rec.CreatedAt,
	})
}

// NotifyBacktest writes result keyed by segment
func (p *KafkaPublisher) NotifyBacktest(ctx context.Context, result models.BacktestResult) error {
	v, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal backtest result: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.backtestsTopic,
		Key:   []byte(result.Segment),
		Value: v,
		Time:  result.CreatedAt,
	})
}

// Close flushes and closes the writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
