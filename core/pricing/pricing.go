// Package pricing implements the exchange's price rebalancer.
//
// A purchase raises the bought beer's price; the excess over the event's fair budget
// (the sum of base prices) is then taken back from the other beers in proportion to
// how far each one can still move, and a house factor derived from the session's
// profit or loss nudges every price a little.
package pricing

import (
	"math"

	"github.com/trezcool/beerxchange/core"
)

const (
	StepPerUnit         = 1.0
	MinStep             = 0.5
	MaxIter             = 10
	HouseAdjustStrength = 0.25

	MinHouseFactor   = 0.8
	MaxHouseFactor   = 1.2
	houseSensitivity = 0.1

	convergenceEpsilon = 1e-6
	slackEpsilon       = 1e-9
)

// Beer is the pricing view of an event beer.
type Beer struct {
	ID           string
	BasePrice    float64
	MinPrice     float64
	MaxPrice     float64
	CurrentPrice float64
}

func (b Beer) clamp(price float64) float64 {
	return core.Clamp(price, b.MinPrice, b.MaxPrice)
}

// Sale is one transaction as seen by the house factor.
type Sale struct {
	Qty       int
	UnitPrice float64
	BasePrice float64
}

// Change describes a price that moved during a rebalance.
type Change struct {
	BeerID   string
	OldPrice float64
	NewPrice float64
}

// Step returns the price increase for a purchase of qty units.
func Step(qty int) float64 {
	if qty < 1 {
		qty = 1
	}
	return math.Max(MinStep, StepPerUnit) * float64(qty)
}

// Raise increases the bought beer's price by Step(qty), capped at its max price.
func Raise(beers []Beer, boughtID string, qty int) []Beer {
	out := copyBeers(beers)
	for i := range out {
		if out[i].ID == boughtID {
			out[i].CurrentPrice = math.Min(out[i].MaxPrice, out[i].CurrentPrice+Step(qty))
		}
	}
	return out
}

// Redistribute moves the other beers so the sum of current prices goes back to the sum
// of base prices. The excess (or deficit) is spread proportionally to each beer's slack:
// the distance to its min price when lowering, to its max price when raising.
// It stops early when the slack is exhausted.
func Redistribute(beers []Beer, boughtID string) []Beer {
	out := copyBeers(beers)

	var target float64
	for _, b := range out {
		target += b.BasePrice
	}

	for iter := 0; iter < MaxIter; iter++ {
		excess := sumCurrent(out) - target
		if math.Abs(excess) <= convergenceEpsilon {
			break
		}

		lowering := excess > 0
		var totalSlack float64
		for _, b := range out {
			if b.ID == boughtID {
				continue
			}
			totalSlack += slack(b, lowering)
		}
		if totalSlack <= slackEpsilon {
			break
		}

		for i := range out {
			if out[i].ID == boughtID {
				continue
			}
			delta := math.Abs(excess) * slack(out[i], lowering) / totalSlack
			if lowering {
				out[i].CurrentPrice = math.Max(out[i].MinPrice, out[i].CurrentPrice-delta)
			} else {
				out[i].CurrentPrice = math.Min(out[i].MaxPrice, out[i].CurrentPrice+delta)
			}
		}
	}
	return out
}

// HouseFactor measures the session's profit or loss: total income against the income
// the same sales would have made at base prices. It is 1 when there is nothing to compare.
func HouseFactor(sales []Sale) float64 {
	var total, fair float64
	for _, s := range sales {
		total += float64(s.Qty) * s.UnitPrice
		fair += float64(s.Qty) * s.BasePrice
	}
	if len(sales) == 0 || fair == 0 {
		return 1
	}
	return core.Clamp(1+houseSensitivity*(total-fair)/fair, MinHouseFactor, MaxHouseFactor)
}

// Adjust applies the house factor to every price: a house in profit lowers prices, a house
// in loss raises them. Prices are rounded to one decimal and kept within bounds.
func Adjust(beers []Beer, houseFactor float64) []Beer {
	out := copyBeers(beers)
	adjustment := 1 + (1-houseFactor)*HouseAdjustStrength
	for i := range out {
		out[i].CurrentPrice = out[i].clamp(core.Round(out[i].CurrentPrice*adjustment, 1))
	}
	return out
}

// Rebalance runs a full recalculation after boughtID was sold qty times.
func Rebalance(beers []Beer, boughtID string, qty int, houseFactor float64) []Beer {
	return Adjust(Redistribute(Raise(beers, boughtID, qty), boughtID), houseFactor)
}

// Changes lists the beers whose price differs between before and after (matched by ID).
func Changes(before, after []Beer) []Change {
	old := make(map[string]float64, len(before))
	for _, b := range before {
		old[b.ID] = b.CurrentPrice
	}
	var changes []Change
	for _, b := range after {
		prev, ok := old[b.ID]
		if !ok || prev == b.CurrentPrice {
			continue
		}
		changes = append(changes, Change{BeerID: b.ID, OldPrice: prev, NewPrice: b.CurrentPrice})
	}
	return changes
}

func slack(b Beer, lowering bool) float64 {
	if lowering {
		return math.Max(0, b.CurrentPrice-b.MinPrice)
	}
	return math.Max(0, b.MaxPrice-b.CurrentPrice)
}

func sumCurrent(beers []Beer) float64 {
	var sum float64
	for _, b := range beers {
		sum += b.CurrentPrice
	}
	return sum
}

func copyBeers(beers []Beer) []Beer {
	out := make([]Beer, len(beers))
	copy(out, beers)
	return out
}
