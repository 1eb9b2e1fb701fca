package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	gocache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/furlong/internal/models"
)

// PriceUpdate is one message of the live price stream. Prices replace the
// race's earlier prices in the same market horse by horse.
type PriceUpdate struct {
	RaceID string                     `json:"race_id"`
	Market models.MarketType          `json:"market"`
	Prices map[string]decimal.Decimal `json:"prices"`
}

// ReconnectConfig controls reconnection behavior
type ReconnectConfig struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// DefaultReconnectConfig returns default reconnection configuration
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		MaxRetries:        10,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 1.5,
	}
}

// StreamSource keeps the latest streamed prices of each race in memory.
// Entries expire after the configured TTL without updates.
type StreamSource struct {
	url       string
	prices    *gocache.Cache
	mu        sync.RWMutex // guards lastSeen and the per-race price maps
	lastSeen  time.Time
	reconnect ReconnectConfig
	logger    *logrus.Entry
}

// NewStreamSource creates a stream source for url
func NewStreamSource(url string, ttl time.Duration, logger *logrus.Logger) *StreamSource {
	return &StreamSource{
		url:       url,
		prices:    gocache.New(ttl, 2*ttl),
		reconnect: DefaultReconnectConfig(),
		logger:    logger.WithField("component", "price_stream"),
	}
}

// Prices returns a copy of the latest prices of a race
func (s *StreamSource) Prices(_ context.Context, raceID string) (models.MarketPrices, error) {
	v, ok := s.prices.Get(raceID)
	if !ok {
		return models.MarketPrices{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := models.MarketPrices{}
	for market, byHorse := range v.(models.MarketPrices) {
		for horse, price := range byHorse {
			out.Set(market, horse, price)
		}
	}
	return out, nil
}

// Apply merges an update into the race's prices
func (s *StreamSource) Apply(u PriceUpdate) error {
	if u.RaceID == "" || !u.Market.IsValid() {
		return fmt.Errorf("invalid price update for race %q market %q", u.RaceID, u.Market)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var prices models.MarketPrices
	if v, ok := s.prices.Get(u.RaceID); ok {
		prices = v.(models.MarketPrices)
	} else {
		prices = models.MarketPrices{}
	}
	for horse, price := range u.Prices {
		prices.Set(u.Market, horse, price)
	}
	s.prices.SetDefault(u.RaceID, prices)
	s.lastSeen = time.Now()
	return nil
}

// LastMessageTime returns when the last update was applied
func (s *StreamSource) LastMessageTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}

// Run connects and consumes updates until ctx is done, reconnecting with
// exponential backoff. A session that delivered at least one message resets
// the retry budget and the backoff. Run returns when the budget is exhausted.
func (s *StreamSource) Run(ctx context.Context) error {
	backoff := s.reconnect.InitialBackoff
	attempt := 0
	for {
		received, err := s.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if received > 0 {
			attempt = 0
			backoff = s.reconnect.InitialBackoff
		}
		if attempt >= s.reconnect.MaxRetries {
			return fmt.Errorf("price stream gave up after %d reconnects: %w", attempt, err)
		}
		s.logger.WithError(err).WithFields(logrus.Fields{
			"backoff":  backoff.String(),
			"attempt":  attempt + 1,
			"received": received,
		}).Warn("Price stream disconnected, reconnecting")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		attempt++
		backoff = time.Duration(float64(backoff) * s.reconnect.BackoffMultiplier)
		if backoff > s.reconnect.MaxBackoff {
			backoff = s.reconnect.MaxBackoff
		}
	}
}

// consume runs one session and returns how many messages it read
func (s *StreamSource) consume(ctx context.Context) (int, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to price stream: %w", err)
	}
	defer conn.Close()
	s.logger.WithField("url", s.url).Info("Connected to price stream")

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	received := 0
	for {
		var msg json.RawMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return received, fmt.Errorf("read price update: %w", err)
		}
		received++
		var u PriceUpdate
		if err := json.Unmarshal(msg, &u); err != nil {
			s.logger.WithError(err).Debug("Skipping malformed price update")
			continue
		}
		if err := s.Apply(u); err != nil {
			s.logger.WithError(err).Debug("Skipping price update")
		}
	}
}
