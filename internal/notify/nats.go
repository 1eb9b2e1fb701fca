package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/yourusername/furlong/internal/models"
)

type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher publishes JSON records to
// <prefix>.prediction.<segment> and <prefix>.backtest.<segment>
type NATSPublisher struct {
	conn   natsConn
	prefix string
}

// NewNATSPublisher connects to url
func NewNATSPublisher(url, prefix string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("furlong"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return newNATSPublisher(conn, prefix), nil
}

func newNATSPublisher(conn natsConn, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = "furlong"
	}
	return &NATSPublisher{conn: conn, prefix: prefix}
}

// Name returns "nats"
func (p *NATSPublisher) Name() string { return "nats" }

// Subject returns the subject a record kind of a segment is published on
func (p *NATSPublisher) Subject(kind string, segment models.Segment) string {
	return fmt.Sprintf("%s.%s.%s", p.prefix, kind, segment)
}

// NotifyPrediction publishes rec
func (p *NATSPublisher) NotifyPrediction(_ context.Context, rec *models.PredictionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal prediction: %w", err)
	}
	return p.conn.Publish(p.Subject("prediction", rec.Segment), data)
}

// NotifyBacktest publishes result
func (p *NATSPublisher) NotifyBacktest(_ context.Context, result models.BacktestResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal backtest result: %w", err)
	}
	return p.conn.Publish(p.Subject("backtest", result.Segment), data)
}

// Close drains the connection
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
