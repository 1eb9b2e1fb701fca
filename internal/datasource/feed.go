// Package datasource fetches feature vectors and race outcomes from the
// upstream feature feed over HTTP.
package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/furlong/internal/config"
	"github.com/yourusername/furlong/internal/metrics"
	"github.com/yourusername/furlong/internal/models"
)

// RaceCard is an upcoming race with the feature vectors of its declared runners
type RaceCard struct {
	RaceID    string                 `json:"race_id" validate:"required"`
	Segment   models.Segment         `json:"segment" validate:"required"`
	StartTime time.Time              `json:"start_time" validate:"required"`
	Vectors   []models.FeatureVector `json:"vectors" validate:"required,min=1,dive"`
}

// HTTPFeed reads the feature feed's JSON API
type HTTPFeed struct {
	client   *RateLimitedHTTPClient
	baseURL  string
	apiKey   string
	validate *validator.Validate
	logger   *logrus.Entry
}

// NewHTTPFeed creates a feed client from configuration
func NewHTTPFeed(cfg config.FeedConfig, logger *logrus.Logger) *HTTPFeed {
	return newHTTPFeed(NewRateLimitedHTTPClient(HTTPClientConfigFromFeed(cfg), logger), cfg.BaseURL, cfg.APIKey, logger)
}

func newHTTPFeed(client *RateLimitedHTTPClient, baseURL, apiKey string, logger *logrus.Logger) *HTTPFeed {
	return &HTTPFeed{
		client:   client,
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		validate: validator.New(),
		logger:   logger.WithField("component", "feature_feed"),
	}
}

// LabeledRaces returns the concluded races of a segment that started in
// [from, to), each with its feature vectors and outcome. Races that fail
// validation are dropped and counted.
func (f *HTTPFeed) LabeledRaces(ctx context.Context, segment models.Segment, from, to time.Time) ([]models.LabeledRace, error) {
	q := url.Values{}
	q.Set("segment", string(segment))
	q.Set("from", from.UTC().Format(time.RFC3339))
	q.Set("to", to.UTC().Format(time.RFC3339))

	var races []models.LabeledRace
	if err := f.getJSON(ctx, "labeled_races", "/races?"+q.Encode(), &races); err != nil {
		return nil, err
	}

	out := races[:0]
	for _, race := range races {
		if reason := f.checkLabeled(segment, race); reason != "" {
			metrics.RecordFeedRejected(reason)
			f.logger.WithFields(logrus.Fields{"race_id": race.RaceID, "reason": reason}).Debug("Dropping labeled race")
			continue
		}
		if race.Outcome.Segment == "" {
			race.Outcome.Segment = race.Segment
		}
		if race.Outcome.StartTime.IsZero() {
			race.Outcome.StartTime = race.StartTime
		}
		out = append(out, race)
	}
	f.logger.WithFields(logrus.Fields{
		"segment":  segment,
		"received": len(races),
		"kept":     len(out),
	}).Debug("Fetched labeled races")
	return out, nil
}

// Upcoming returns the race cards of a segment starting within the window
func (f *HTTPFeed) Upcoming(ctx context.Context, segment models.Segment, within time.Duration) ([]RaceCard, error) {
	q := url.Values{}
	q.Set("segment", string(segment))
	q.Set("within", within.String())

	var cards []RaceCard
	if err := f.getJSON(ctx, "upcoming", "/races/upcoming?"+q.Encode(), &cards); err != nil {
		return nil, err
	}
	out := cards[:0]
	for _, card := range cards {
		if err := f.checkCard(card); err != nil {
			metrics.RecordFeedRejected("invalid_card")
			f.logger.WithError(err).WithField("race_id", card.RaceID).Debug("Dropping race card")
			continue
		}
		out = append(out, card)
	}
	return out, nil
}

// Card returns the race card of a single race
func (f *HTTPFeed) Card(ctx context.Context, raceID string) (*RaceCard, error) {
	var card RaceCard
	if err := f.getJSON(ctx, "card", "/races/"+url.PathEscape(raceID)+"/card", &card); err != nil {
		return nil, err
	}
	if err := f.checkCard(card); err != nil {
		return nil, &FeedError{Path: "card", Code: ErrCodeInvalidData, Message: err.Error(), Err: ErrInvalidData}
	}
	return &card, nil
}

// Outcome returns the result of a concluded race. ErrNotFound means the
// result is not yet official.
func (f *HTTPFeed) Outcome(ctx context.Context, raceID string) (*models.RaceOutcome, error) {
	var outcome models.RaceOutcome
	if err := f.getJSON(ctx, "outcome", "/races/"+url.PathEscape(raceID)+"/outcome", &outcome); err != nil {
		return nil, err
	}
	if err := f.validate.Struct(outcome); err != nil || outcome.RaceID != raceID {
		msg := fmt.Sprintf("outcome for %q does not match request", outcome.RaceID)
		if err != nil {
			msg = err.Error()
		}
		return nil, &FeedError{Path: "outcome", Code: ErrCodeInvalidData, Message: msg, Err: ErrInvalidData}
	}
	return &outcome, nil
}

// Close releases idle connections
func (f *HTTPFeed) Close() error {
	return f.client.Close()
}

func (f *HTTPFeed) getJSON(ctx context.Context, endpoint, path string, dst interface{}) (err error) {
	defer func() { metrics.RecordFeedRequest(endpoint, err) }()

	header := http.Header{}
	header.Set("Accept", "application/json")
	if f.apiKey != "" {
		header.Set("X-API-Key", f.apiKey)
	}
	resp, err := f.client.Get(ctx, f.baseURL+path, header)
	if err != nil {
		return fmt.Errorf("feature feed %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errorForStatus(endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return &FeedError{Path: endpoint, Status: resp.StatusCode, Code: ErrCodeInvalidData, Message: err.Error(), Err: ErrInvalidData}
	}
	return nil
}

// checkLabeled returns a rejection reason, or "" if the race is usable
func (f *HTTPFeed) checkLabeled(segment models.Segment, race models.LabeledRace) string {
	switch {
	case race.RaceID == "":
		return "missing_race_id"
	case race.Segment != segment:
		return "segment_mismatch"
	case len(race.Vectors) == 0:
		return "no_vectors"
	case race.Outcome.RaceID != race.RaceID:
		return "outcome_mismatch"
	}
	if err := f.validate.Struct(race.Outcome); err != nil {
		return "invalid_outcome"
	}
	seen := make(map[string]bool, len(race.Vectors))
	for _, v := range race.Vectors {
		if err := f.validate.Struct(v); err != nil {
			return "invalid_vector"
		}
		if v.RaceID != race.RaceID || v.Segment != race.Segment {
			return "vector_mismatch"
		}
		if seen[v.HorseID] {
			return "duplicate_horse"
		}
		seen[v.HorseID] = true
	}
	return ""
}

func (f *HTTPFeed) checkCard(card RaceCard) error {
	if err := f.validate.Struct(card); err != nil {
		return err
	}
	seen := make(map[string]bool, len(card.Vectors))
	for _, v := range card.Vectors {
		if v.RaceID != card.RaceID || v.Segment != card.Segment {
			return fmt.Errorf("vector for horse %s belongs to race %s", v.HorseID, v.RaceID)
		}
		if seen[v.HorseID] {
			return fmt.Errorf("duplicate horse %s", v.HorseID)
		}
		seen[v.HorseID] = true
	}
	return nil
}
