// Package marketdata supplies current market prices per race from Redis
// and from a live websocket stream.
package marketdata

import (
	"context"

	"github.com/yourusername/furlong/internal/models"
)

// PriceSource returns the current prices of a race. A horse without a price
// is simply absent; that is never an error.
type PriceSource interface {
	Prices(ctx context.Context, raceID string) (models.MarketPrices, error)
}

// Chain asks each source in order and keeps the first price seen per
// market and horse
type Chain []PriceSource

// Prices merges the sources' prices. A source error is returned only when
// no source produced any price.
func (c Chain) Prices(ctx context.Context, raceID string) (models.MarketPrices, error) {
	out := models.MarketPrices{}
	var firstErr error
	for _, src := range c {
		prices, err := src.Prices(ctx, raceID)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for market, byHorse := range prices {
			for horse, price := range byHorse {
				if _, ok := out.Price(market, horse); !ok {
					out.Set(market, horse, price)
				}
			}
		}
	}
	if len(out) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}
