package analytics

import (
	"math"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/beerxchange/core"
)

// Widmark constants
const (
	rMale           = 0.68
	rFemale         = 0.55
	rUnknown        = (rMale + rFemale) / 2
	eliminationRate = 0.015 // BAC % per hour
	ethanolDensity  = 0.789 // g/ml

	DefaultWeightKg     = 70
	DefaultAlcoholGrams = 12 // one standard drink, used when a beer's ABV is unknown
)

// BAC status levels, by promille
const (
	StatusSober    = "sober"
	StatusMinimal  = "minimal"
	StatusLight    = "light"
	StatusModerate = "moderate"
	StatusHigh     = "high"
	StatusSevere   = "severe"
)

// Drink is one serving of a sale, as seen by the BAC estimate.
type Drink struct {
	VolumeML int
	Qty      int
	ABV      null.Float64 // percent
	At       time.Time
}

// AlcoholGrams is the pure alcohol contained in the drink.
func (d Drink) AlcoholGrams() float64 {
	qty := d.Qty
	if qty < 1 {
		qty = 1
	}
	if !d.ABV.Valid || d.ABV.Float64 <= 0 {
		return DefaultAlcoholGrams * float64(qty)
	}
	return float64(d.VolumeML) * d.ABV.Float64 / 100 * ethanolDensity * float64(qty)
}

// widmarkR is the body water ratio for the gender.
func widmarkR(gender string) float64 {
	switch gender {
	case "male":
		return rMale
	case "female":
		return rFemale
	}
	return rUnknown
}

// EstimateBAC estimates the blood alcohol content, in percent, with the Widmark formula.
// Elimination runs from the first drink. Weight defaults to 70 kg.
func EstimateBAC(drinks []Drink, gender string, weightKg null.Float64, now time.Time) float64 {
	if len(drinks) == 0 {
		return 0
	}
	weight := float64(DefaultWeightKg)
	if weightKg.Valid && weightKg.Float64 > 0 {
		weight = weightKg.Float64
	}

	var grams float64
	first := drinks[0].At
	for _, d := range drinks {
		grams += d.AlcoholGrams()
		if d.At.Before(first) {
			first = d.At
		}
	}
	hours := math.Max(0, now.Sub(first).Hours())

	bac := grams/(weight*1000*widmarkR(gender))*100 - eliminationRate*hours
	return core.Round(math.Max(0, bac), 3)
}

// Status names the intoxication level of a BAC given in percent.
func Status(bac float64) string {
	promille := bac * 10
	switch {
	case promille <= 0:
		return StatusSober
	case promille < 0.2:
		return StatusMinimal
	case promille < 0.5:
		return StatusLight
	case promille < 0.8:
		return StatusModerate
	case promille < 1.5:
		return StatusHigh
	}
	return StatusSevere
}
