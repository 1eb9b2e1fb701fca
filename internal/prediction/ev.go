package prediction

import (
	"github.com/shopspring/decimal"

	"github.com/yourusername/furlong/internal/models"
)

// EVEngine gates horses by probability times market price
type EVEngine struct {
	Threshold      decimal.Decimal
	LooseThreshold decimal.Decimal
}

// NewEVEngine creates an engine from float thresholds
func NewEVEngine(threshold, loose float64) EVEngine {
	return EVEngine{
		Threshold:      decimal.NewFromFloat(threshold),
		LooseThreshold: decimal.NewFromFloat(loose),
	}
}

// EVResult holds per-market recommendation sets
type EVResult struct {
	// Recommendations holds, per market, horses with EV at or above Threshold
	Recommendations map[models.MarketType][]string
	// Loose holds horses at or above LooseThreshold but below Threshold
	Loose map[models.MarketType][]string
	// Values holds the EV of every priced horse
	Values map[string]map[models.MarketType]decimal.Decimal
	// Missing counts horses skipped per market for lack of a price
	Missing map[models.MarketType]int
}

// ExpectedValue returns probability times price
func ExpectedValue(probability float64, price decimal.Decimal) decimal.Decimal {
	return decimal.NewFromFloat(probability).Mul(price)
}

// Recommend evaluates every market on its own prices and its own
// probability. Horses without a price in a market are left out of it. The
// order of horses is preserved within each set.
func (e EVEngine) Recommend(horses []models.HorsePrediction, prices models.MarketPrices) EVResult {
	res := EVResult{
		Recommendations: make(map[models.MarketType][]string, len(models.Markets)),
		Loose:           make(map[models.MarketType][]string, len(models.Markets)),
		Values:          make(map[string]map[models.MarketType]decimal.Decimal, len(horses)),
		Missing:         make(map[models.MarketType]int),
	}
	for _, market := range models.Markets {
		res.Recommendations[market] = []string{}
		for _, h := range horses {
			price, ok := prices.Price(market, h.HorseID)
			if !ok {
				res.Missing[market]++
				continue
			}
			ev := ExpectedValue(marketProbability(h, market), price)
			if res.Values[h.HorseID] == nil {
				res.Values[h.HorseID] = make(map[models.MarketType]decimal.Decimal, len(models.Markets))
			}
			res.Values[h.HorseID][market] = ev

			switch {
			case ev.GreaterThanOrEqual(e.Threshold):
				res.Recommendations[market] = append(res.Recommendations[market], h.HorseID)
			case ev.GreaterThanOrEqual(e.LooseThreshold):
				res.Loose[market] = append(res.Loose[market], h.HorseID)
			}
		}
	}
	return res
}

func marketProbability(h models.HorsePrediction, market models.MarketType) float64 {
	if market == models.MarketPlace {
		return h.PlaceProbability
	}
	return h.WinProbability
}
