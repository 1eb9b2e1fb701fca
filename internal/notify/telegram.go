package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/yourusername/furlong/internal/models"
)

type chatSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts MarkdownV2 summaries to an operator chat
type TelegramNotifier struct {
	bot        chatSender
	chatID     int64
	maxRetries int
	retryDelay time.Duration
}

// NewTelegramNotifier creates a notifier for chatID
func NewTelegramNotifier(botToken, chatID string, maxRetries int) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}
	return newTelegramNotifier(bot, id, maxRetries, time.Second), nil
}

func newTelegramNotifier(bot chatSender, chatID int64, maxRetries int, retryDelay time.Duration) *TelegramNotifier {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &TelegramNotifier{bot: bot, chatID: chatID, maxRetries: maxRetries, retryDelay: retryDelay}
}

// Name returns "telegram"
func (t *TelegramNotifier) Name() string { return "telegram" }

// NotifyPrediction posts races that carry at least one recommendation
func (t *TelegramNotifier) NotifyPrediction(ctx context.Context, rec *models.PredictionRecord) error {
	if len(rec.Recommendations[models.MarketWin]) == 0 && len(rec.Recommendations[models.MarketPlace]) == 0 {
		return nil
	}
	return t.send(ctx, FormatPrediction(rec))
}

// NotifyBacktest posts every retrain outcome
func (t *TelegramNotifier) NotifyBacktest(ctx context.Context, result models.BacktestResult) error {
	return t.send(ctx, FormatBacktest(result))
}

// Close is a no-op
func (t *TelegramNotifier) Close() error { return nil }

func (t *TelegramNotifier) send(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < t.maxRetries; i++ {
		_, err := t.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.retryDelay * time.Duration(i+1)):
		}
	}
	return fmt.Errorf("failed to send message after %d retries: %w", t.maxRetries, lastErr)
}

// FormatPrediction renders the recommendations of a race
func FormatPrediction(rec *models.PredictionRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Race %s* \\(%s, v%d\\)\n", escapeMarkdownV2(rec.RaceID), escapeMarkdownV2(string(rec.Segment)), rec.ArtifactVersion)
	if rec.AnchorHorseID != "" {
		fmt.Fprintf(&b, "Anchor: %s\n", escapeMarkdownV2(rec.AnchorHorseID))
	}
	for _, market := range models.Markets {
		ids := rec.Recommendations[market]
		if len(ids) == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s:\n", escapeMarkdownV2(strings.ToUpper(string(market))))
		for _, id := range ids {
			h, _ := rec.Horse(id)
			p := h.WinProbability
			if market == models.MarketPlace {
				p = h.PlaceProbability
			}
			line := fmt.Sprintf("%s p=%.3f EV=%s", id, p, h.ExpectedValue[market].StringFixed(2))
			fmt.Fprintf(&b, "  • %s\n", escapeMarkdownV2(line))
		}
	}
	if rec.LowConfidence {
		b.WriteString("_low confidence_\n")
	}
	return b.String()
}

// FormatBacktest renders a retrain cycle outcome
func FormatBacktest(r models.BacktestResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Retrain %s*: %s\n", escapeMarkdownV2(string(r.Segment)), escapeMarkdownV2(string(r.Outcome)))
	if r.Reason != "" {
		fmt.Fprintf(&b, "%s\n", escapeMarkdownV2(r.Reason))
	}
	if r.Candidate.Races > 0 {
		line := fmt.Sprintf("candidate win AUC %.4f, ECE %.4f, return %s over %d races",
			r.Candidate.WinAUC, r.Candidate.CalibrationError, r.Candidate.RealizedReturn.StringFixed(4), r.Candidate.Races)
		fmt.Fprintf(&b, "%s\n", escapeMarkdownV2(line))
	}
	if r.Current != nil {
		line := fmt.Sprintf("current win AUC %.4f, ECE %.4f, return %s",
			r.Current.WinAUC, r.Current.CalibrationError, r.Current.RealizedReturn.StringFixed(4))
		fmt.Fprintf(&b, "%s\n", escapeMarkdownV2(line))
	}
	return b.String()
}

func escapeMarkdownV2(text string) string {
	var b strings.Builder
	for _, r := range text {
		switch r {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
