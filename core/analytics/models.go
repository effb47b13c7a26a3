package analytics

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/beerxchange/core/exchange"
)

type PricePoint struct {
	TS    time.Time `json:"ts"`
	Price float64   `json:"price"`
}

type TopCustomer struct {
	CustomerID string  `json:"customer_id"`
	Name       string  `json:"name"`
	Qty        int     `json:"qty"`
	Spend      float64 `json:"spend"`
}

// BeerStats is a beer with the figures of its trading.
type BeerStats struct {
	exchange.Beer
	TotalSold    int                       `json:"total_sold"`
	AvgPrice     float64                   `json:"avg_price"` // turnover over units sold
	ATH          float64                   `json:"ath"`
	ATL          float64                   `json:"atl"`
	FirstTS      null.Time                 `json:"first_ts"`
	LastTS       null.Time                 `json:"last_ts"`
	BestTrade    *exchange.TransactionRow  `json:"best_trade"`
	WorstTrade   *exchange.TransactionRow  `json:"worst_trade"`
	TopCustomers []TopCustomer             `json:"top_customers"`
	RecentTrades []exchange.TransactionRow `json:"recent_trades"`
}

// LeaderboardRow ranks a customer; only the score of the board is set.
type LeaderboardRow struct {
	CustomerID      string       `json:"customer_id"`
	Name            string       `json:"name"`
	ProfileImageURL null.String  `json:"profile_image_url"`
	Beers           int          `json:"beers"`
	Liters          null.Float64 `json:"liters"`
	TotalSpend      null.Float64 `json:"total_spend"`
	BAC             null.Float64 `json:"bac"`
	Promille        null.Float64 `json:"promille"`
	Status          null.String  `json:"status"`
}
