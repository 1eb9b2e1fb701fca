// Package prediction turns scored races into PredictionRecords: calibrated
// probabilities with confidence intervals, a composite ranking, an anchor
// horse and per-market EV recommendations.
package prediction

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/furlong/internal/config"
	"github.com/yourusername/furlong/internal/logger"
	"github.com/yourusername/furlong/internal/metrics"
	"github.com/yourusername/furlong/internal/models"
	"github.com/yourusername/furlong/internal/scoring"
)

// Pipeline produces live predictions against the champion of each segment
type Pipeline struct {
	scorer *scoring.Scorer
	engine *config.Holder
	cache  *Cache
	logger *logger.ScoringLogger
}

// NewPipeline creates a pipeline. cache may be nil.
func NewPipeline(scorer *scoring.Scorer, engine *config.Holder, cache *Cache, log *logger.ScoringLogger) *Pipeline {
	return &Pipeline{scorer: scorer, engine: engine, cache: cache, logger: log}
}

// Predict scores a race with the current champion of segment and prices it
// against prices. The champion is read once, so the record never mixes two
// artifacts even if a swap happens mid-call.
func (p *Pipeline) Predict(ctx context.Context, raceID string, segment models.Segment, vectors []models.FeatureVector, prices models.MarketPrices) (*models.PredictionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	if err := scoring.CheckRace(segment, vectors); err != nil {
		return nil, err
	}
	champion, err := p.scorer.Champion(raceID, segment)
	if err != nil {
		return nil, err
	}

	cfg, gen := p.engine.Snapshot()
	key := CacheKey{Segment: segment, RaceID: raceID, Version: champion.Version, ConfigGen: gen, PriceDigest: PriceDigest(prices)}
	if p.cache != nil {
		if rec, ok := p.cache.Get(key); ok {
			metrics.RecordPrediction(string(segment), true, time.Since(start).Seconds())
			return rec, nil
		}
	}

	scored, err := p.scorer.ScoreChampion(champion, raceID, segment, vectors)
	if err != nil {
		return nil, err
	}
	rec, ev := buildRecord(scored, prices, cfg)

	for market, n := range ev.Missing {
		for i := 0; i < n; i++ {
			metrics.RecordMissingPrice(string(market))
		}
	}
	for market, ids := range rec.Recommendations {
		metrics.RecordRecommendations(string(market), len(ids))
	}
	if p.cache != nil {
		p.cache.Set(key, rec)
	}

	elapsed := time.Since(start)
	metrics.RecordPrediction(string(segment), false, elapsed.Seconds())
	p.logger.LogPrediction(raceID, string(segment), rec.ArtifactVersion, len(rec.Horses), rec.AnchorHorseID,
		len(rec.Recommendations[models.MarketWin]), false, float64(elapsed.Microseconds())/1000)
	return rec, nil
}

// PredictWith builds a record from an explicit ensemble without touching the
// registry, metrics or cache.
func PredictWith(ens *scoring.Ensemble, raceID string, segment models.Segment, vectors []models.FeatureVector, prices models.MarketPrices, cfg config.EngineConfig) (*models.PredictionRecord, error) {
	if err := scoring.CheckRace(segment, vectors); err != nil {
		return nil, err
	}
	rec, _ := buildRecord(scoring.ScoreWith(ens, raceID, segment, vectors), prices, cfg)
	return rec, nil
}

// BuildRecord assembles the PredictionRecord for a scored race
func BuildRecord(scored *scoring.ScoredRace, prices models.MarketPrices, cfg config.EngineConfig) *models.PredictionRecord {
	rec, _ := buildRecord(scored, prices, cfg)
	return rec
}

func buildRecord(scored *scoring.ScoredRace, prices models.MarketPrices, cfg config.EngineConfig) (*models.PredictionRecord, EVResult) {
	horses := make([]models.HorsePrediction, 0, len(scored.Horses))
	hasRank := false
	for _, hs := range scored.Horses {
		win, winIv := EstimateInterval(hs.Probabilities[models.MarketWin], cfg.Confidence.Z)
		place, placeIv := EstimateInterval(hs.Probabilities[models.MarketPlace], cfg.Confidence.Z)
		hasRank = hasRank || hs.HasRank
		horses = append(horses, models.HorsePrediction{
			HorseID:          hs.HorseID,
			Position:         hs.Position,
			WinProbability:   win,
			PlaceProbability: place,
			WinInterval:      winIv,
			PlaceInterval:    placeIv,
			RankScore:        hs.RankScore,
			LowConfidence:    hs.LowConfidence() || winIv.HalfWidth() > cfg.Confidence.WideHalfWidth,
		})
	}

	ranked := Aggregate(horses, cfg.Rank, hasRank)
	engine := NewEVEngine(cfg.EV.Threshold, cfg.EV.LooseThreshold)
	ev := engine.Recommend(ranked, prices)

	recommended := make(map[string]map[models.MarketType]bool)
	for market, ids := range ev.Recommendations {
		for _, id := range ids {
			if recommended[id] == nil {
				recommended[id] = make(map[models.MarketType]bool)
			}
			recommended[id][market] = true
		}
	}

	winProbs := make([]float64, len(ranked))
	lowConfidence := false
	for i := range ranked {
		ranked[i].ExpectedValue = ev.Values[ranked[i].HorseID]
		ranked[i].Recommended = recommended[ranked[i].HorseID]
		winProbs[i] = ranked[i].WinProbability
		lowConfidence = lowConfidence || ranked[i].LowConfidence
	}

	anchor := SelectAnchor(ranked)
	rec := &models.PredictionRecord{
		ID:              uuid.New(),
		RaceID:          scored.RaceID,
		Segment:         scored.Segment,
		ArtifactID:      scored.Artifact.ID,
		ArtifactVersion: scored.Version,
		Horses:          ranked,
		AnchorHorseID:   anchor,
		Recommendations: ev.Recommendations,
		LooseCandidates: ev.Loose,
		DarkHorses:      DarkHorses(ranked, cfg.DarkHorse),
		Tickets:         Tickets(ranked, anchor, cfg.Tickets),
		RaceConfidence:  RaceConfidence(winProbs),
		LowConfidence:   lowConfidence,
		CreatedAt:       time.Now().UTC(),
	}
	if len(ranked) > 0 {
		rec.TopPick = ranked[0].HorseID
	}
	return rec, ev
}
