package models

import (
	"github.com/shopspring/decimal"
)

// MarketType represents a wagering market
type MarketType string

// Market type constants
const (
	MarketWin   MarketType = "win"
	MarketPlace MarketType = "place"
)

// Markets lists the markets the engine evaluates, in report order
var Markets = []MarketType{MarketWin, MarketPlace}

// IsValid checks if the market type is known
func (m MarketType) IsValid() bool {
	return m == MarketWin || m == MarketPlace
}

// MarketPrices holds decimal prices per market per horse for one race.
// A horse absent from a market's map has no price available.
type MarketPrices map[MarketType]map[string]decimal.Decimal

// Price returns the price for a horse in a market and whether it is available
func (mp MarketPrices) Price(market MarketType, horseID string) (decimal.Decimal, bool) {
	byHorse, ok := mp[market]
	if !ok {
		return decimal.Zero, false
	}
	p, ok := byHorse[horseID]
	if !ok || !p.IsPositive() {
		return decimal.Zero, false
	}
	return p, true
}

// Set records a price, creating the market map on demand
func (mp MarketPrices) Set(market MarketType, horseID string, price decimal.Decimal) {
	byHorse, ok := mp[market]
	if !ok {
		byHorse = make(map[string]decimal.Decimal)
		mp[market] = byHorse
	}
	byHorse[horseID] = price
}
