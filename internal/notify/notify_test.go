package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/furlong/internal/config"
	"github.com/yourusername/furlong/internal/logger"
	"github.com/yourusername/furlong/internal/models"
)

type fakeConn struct {
	subjects []string
	payloads [][]byte
	drained  bool
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakeConn) Drain() error {
	f.drained = true
	return nil
}

type fakeWriter struct {
	messages []kafka.Message
	err      error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

type fakeBot struct {
	failures int
	sent     []tgbotapi.MessageConfig
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.failures > 0 {
		f.failures--
		return tgbotapi.Message{}, errors.New("429 too many requests")
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func record() *models.PredictionRecord {
	return &models.PredictionRecord{
		ID:              uuid.New(),
		RaceID:          "turf-r0001",
		Segment:         "turf",
		ArtifactVersion: 3,
		AnchorHorseID:   "h2",
		Horses: []models.HorsePrediction{
			{HorseID: "h1", WinProbability: 0.4, ExpectedValue: map[models.MarketType]decimal.Decimal{models.MarketWin: decimal.NewFromFloat(1.6)}},
			{HorseID: "h2", PlaceProbability: 0.7},
		},
		Recommendations: map[models.MarketType][]string{models.MarketWin: {"h1"}},
		CreatedAt:       time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC),
	}
}

func result() models.BacktestResult {
	return models.BacktestResult{
		ID:        uuid.New(),
		Segment:   "turf",
		Outcome:   models.OutcomeKept,
		Reason:    "no improvement in calibration error or realized return",
		Candidate: models.MetricSet{WinAUC: 0.71, Races: 40, RealizedReturn: decimal.NewFromFloat(-0.02)},
	}
}

func TestNATSSubjects(t *testing.T) {
	conn := &fakeConn{}
	p := newNATSPublisher(conn, "")
	require.NoError(t, p.NotifyPrediction(context.Background(), record()))
	require.NoError(t, p.NotifyBacktest(context.Background(), result()))
	require.NoError(t, p.Close())

	assert.Equal(t, []string{"furlong.prediction.turf", "furlong.backtest.turf"}, conn.subjects)
	assert.True(t, conn.drained)

	var got models.PredictionRecord
	require.NoError(t, json.Unmarshal(conn.payloads[0], &got))
	assert.Equal(t, "turf-r0001", got.RaceID)
	assert.Equal(t, []string{"h1"}, got.Recommendations[models.MarketWin])
}

func TestKafkaKeys(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, "preds", "")
	require.NoError(t, p.NotifyPrediction(context.Background(), record()))
	require.NoError(t, p.NotifyBacktest(context.Background(), result()))

	require.Len(t, w.messages, 2)
	assert.Equal(t, "preds", w.messages[0].Topic)
	assert.Equal(t, []byte("turf-r0001"), w.messages[0].Key)
	assert.Equal(t, "furlong.backtests", w.messages[1].Topic)
	assert.Equal(t, []byte("turf"), w.messages[1].Key)
}

func TestTelegramRetriesAndSkipsQuietRaces(t *testing.T) {
	bot := &fakeBot{failures: 2}
	n := newTelegramNotifier(bot, 42, 3, time.Millisecond)

	require.NoError(t, n.NotifyPrediction(context.Background(), record()))
	require.Len(t, bot.sent, 1)
	assert.Equal(t, int64(42), bot.sent[0].ChatID)
	assert.Equal(t, "MarkdownV2", bot.sent[0].ParseMode)
	assert.Contains(t, bot.sent[0].Text, "turf\\-r0001")
	assert.Contains(t, bot.sent[0].Text, "EV=1\\.60")

	quiet := record()
	quiet.Recommendations = nil
	require.NoError(t, n.NotifyPrediction(context.Background(), quiet))
	assert.Len(t, bot.sent, 1)

	bot.failures = 5
	err := n.NotifyBacktest(context.Background(), result())
	assert.ErrorContains(t, err, "after 3 retries")
}

func TestFormatBacktest(t *testing.T) {
	r := result()
	current := models.MetricSet{WinAUC: 0.7}
	r.Current = &current
	text := FormatBacktest(r)
	assert.Contains(t, text, "*Retrain turf*: kept")
	assert.Contains(t, text, "candidate win AUC 0\\.7100")
	assert.Contains(t, text, "current win AUC 0\\.7000")
}

func TestMultiContinuesPastFailures(t *testing.T) {
	failing := newKafkaPublisher(&fakeWriter{err: errors.New("broker down")}, "", "")
	conn := &fakeConn{}
	m := NewMulti(failing, newNATSPublisher(conn, "x"), NewLogNotifier(logger.Discard()))

	err := m.NotifyBacktest(context.Background(), result())
	assert.ErrorContains(t, err, "kafka: broker down")
	assert.Equal(t, []string{"x.backtest.turf"}, conn.subjects)
	assert.Error(t, m.NotifyPrediction(context.Background(), record()))
	assert.Len(t, conn.subjects, 2)
}

func TestNewRejectsUnknownTransport(t *testing.T) {
	_, err := New(config.NotifierConfig{Transports: []string{"log", "pigeon"}}, logger.Discard())
	assert.ErrorContains(t, err, "pigeon")

	m, err := New(config.NotifierConfig{Transports: []string{"log"}}, logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, "multi", m.Name())
	assert.NoError(t, m.Close())
}
