package marketdata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/furlong/internal/logger"
	"github.com/yourusername/furlong/internal/models"
)

type staticSource struct {
	prices models.MarketPrices
	err    error
}

func (s staticSource) Prices(context.Context, string) (models.MarketPrices, error) {
	return s.prices, s.err
}

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestChainPrefersEarlierSources(t *testing.T) {
	live := models.MarketPrices{}
	live.Set(models.MarketWin, "h1", d("3.2"))
	stored := models.MarketPrices{}
	stored.Set(models.MarketWin, "h1", d("3.0"))
	stored.Set(models.MarketWin, "h2", d("6.5"))
	stored.Set(models.MarketPlace, "h1", d("1.4"))

	got, err := Chain{staticSource{prices: live}, staticSource{err: errors.New("down")}, staticSource{prices: stored}}.Prices(context.Background(), "r1")
	require.NoError(t, err)
	p, _ := got.Price(models.MarketWin, "h1")
	assert.True(t, p.Equal(d("3.2")))
	p, _ = got.Price(models.MarketWin, "h2")
	assert.True(t, p.Equal(d("6.5")))
	_, ok := got.Price(models.MarketPlace, "h1")
	assert.True(t, ok)

	_, err = Chain{staticSource{err: errors.New("down")}}.Prices(context.Background(), "r1")
	assert.Error(t, err)
}

func TestParseHashSkipsBadPrices(t *testing.T) {
	parsed, skipped := parseHash(map[string]string{"h1": "4.5", "h2": "n/a", "h3": "0", "h4": "-2"})
	assert.Equal(t, 3, skipped)
	require.Len(t, parsed, 1)
	assert.True(t, parsed["h1"].Equal(d("4.5")))
}

func TestRedisKey(t *testing.T) {
	s := NewRedisSourceWithClient(nil, "")
	assert.Equal(t, "furlong:prices:turf-r1:place", s.Key("turf-r1", models.MarketPlace))
}

func TestStreamSourceAppliesUpdates(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"race_id":"r1","market":"win","prices":{"h1":"3.5","h2":"7"}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"race_id":"r1","market":"show","prices":{"h1":"2"}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"race_id":"r1","market":"win","prices":{"h1":"3.25"}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"race_id":"r1","market":"place","prices":{"h2":"2.1"}}`))
	}))
	defer srv.Close()

	s := NewStreamSource("ws"+strings.TrimPrefix(srv.URL, "http"), time.Minute, logger.Discard())
	s.reconnect.MaxRetries = 0

	err := s.Run(context.Background())
	require.Error(t, err, "server hangs up and no retries are left")

	prices, err := s.Prices(context.Background(), "r1")
	require.NoError(t, err)
	p, ok := prices.Price(models.MarketWin, "h1")
	require.True(t, ok)
	assert.True(t, p.Equal(d("3.25")))
	p, _ = prices.Price(models.MarketWin, "h2")
	assert.True(t, p.Equal(d("7")))
	p, _ = prices.Price(models.MarketPlace, "h2")
	assert.True(t, p.Equal(d("2.1")))
	assert.False(t, s.LastMessageTime().IsZero())

	empty, err := s.Prices(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func countingStream(t *testing.T, message string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var sessions atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		sessions.Add(1)
		if message != "" {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(message))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &sessions
}

func fastReconnect(s *StreamSource, retries int) {
	s.reconnect = ReconnectConfig{
		MaxRetries:        retries,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2,
	}
}

func TestStreamSourceHealthySessionResetsRetries(t *testing.T) {
	srv, sessions := countingStream(t, `{"race_id":"r1","market":"win","prices":{"h1":"3.5"}}`)
	s := NewStreamSource("ws"+strings.TrimPrefix(srv.URL, "http"), time.Minute, logger.Discard())
	fastReconnect(s, 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return sessions.Load() > 5 }, 5*time.Second, 5*time.Millisecond,
		"sessions that deliver prices keep reconnecting past the retry budget")
	cancel()
	assert.NoError(t, <-done)
}

func TestStreamSourceSilentSessionsExhaustRetries(t *testing.T) {
	srv, sessions := countingStream(t, "")
	s := NewStreamSource("ws"+strings.TrimPrefix(srv.URL, "http"), time.Minute, logger.Discard())
	fastReconnect(s, 2)

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(3), sessions.Load(), "first session plus two retries")
}

func TestStreamSourceStopsOnCancel(t *testing.T) {
	s := NewStreamSource("ws://127.0.0.1:1/none", time.Minute, logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, s.Run(ctx))
}

func TestApplyRejectsUnknownMarket(t *testing.T) {
	s := NewStreamSource("", time.Minute, logger.Discard())
	assert.Error(t, s.Apply(PriceUpdate{RaceID: "r1", Market: "exacta"}))
	assert.Error(t, s.Apply(PriceUpdate{Market: models.MarketWin}))
}
