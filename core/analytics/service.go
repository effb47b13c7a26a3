package analytics

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/beerxchange/core"
	"github.com/trezcool/beerxchange/core/exchange"
)

// Price history ranges
const (
	Range1h  = "1h"
	Range3h  = "3h"
	RangeDay = "day"
	RangeAll = "all"
)

const (
	DefaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
	topCustomersLimit       = 5
	recentTradesLimit       = 10
)

type (
	// Store is the read side of the exchange ledger.
	Store interface {
		GetBeer(ctx context.Context, eventID, beerID string) (exchange.Beer, error)
		QueryBeers(ctx context.Context, eventID string) ([]exchange.Beer, error)
		QueryPriceUpdates(ctx context.Context, eventID, beerID string, since time.Time) ([]exchange.PriceUpdate, error)
		QueryCustomers(ctx context.Context, eventID string) ([]exchange.Customer, error)
		QueryTransactions(ctx context.Context, filter exchange.TxFilter) ([]exchange.TransactionRow, error)
	}

	Service struct {
		store Store
		now   core.Clock
	}
)

func NewService(store Store) *Service {
	return &Service{store: store, now: core.UTCNow}
}

// SetClock replaces the service's time source.
func (svc *Service) SetClock(clock core.Clock) { svc.now = clock }

// PriceHistory returns the beer's prices over the range, oldest first, ending with its current price.
func (svc *Service) PriceHistory(ctx context.Context, eventID, beerID, rng string) ([]PricePoint, error) {
	beer, err := svc.store.GetBeer(ctx, eventID, beerID)
	if err != nil {
		return nil, err
	}
	now := svc.now()
	updates, err := svc.store.QueryPriceUpdates(ctx, eventID, beerID, since(rng, now))
	if err != nil {
		return nil, errors.Wrap(err, "querying price updates")
	}

	points := make([]PricePoint, 0, len(updates)+1)
	for _, pu := range updates {
		points = append(points, PricePoint{TS: pu.UpdatedAt, Price: pu.NewPrice})
	}
	return append(points, PricePoint{TS: now, Price: beer.CurrentPrice}), nil
}

// since is the start of the range; zero for all of it. The default range is the current day.
func since(rng string, now time.Time) time.Time {
	switch rng {
	case Range1h:
		return now.Add(-time.Hour)
	case Range3h:
		return now.Add(-3 * time.Hour)
	case RangeAll:
		return time.Time{}
	}
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}

// BeerStats sums up the trading of one beer.
func (svc *Service) BeerStats(ctx context.Context, eventID, beerID string) (BeerStats, error) {
	beer, err := svc.store.GetBeer(ctx, eventID, beerID)
	if err != nil {
		return BeerStats{}, err
	}
	updates, err := svc.store.QueryPriceUpdates(ctx, eventID, beerID, time.Time{})
	if err != nil {
		return BeerStats{}, errors.Wrap(err, "querying price updates")
	}
	trades, err := svc.store.QueryTransactions(ctx, exchange.TxFilter{EventID: eventID, EventBeerID: beerID})
	if err != nil {
		return BeerStats{}, errors.Wrap(err, "querying transactions")
	}

	stats := BeerStats{
		Beer:         beer,
		ATH:          beer.CurrentPrice,
		ATL:          beer.CurrentPrice,
		TopCustomers: []TopCustomer{},
		RecentTrades: []exchange.TransactionRow{},
	}
	for _, pu := range updates {
		if pu.NewPrice > stats.ATH {
			stats.ATH = pu.NewPrice
		}
		if pu.NewPrice < stats.ATL {
			stats.ATL = pu.NewPrice
		}
	}
	if len(trades) == 0 {
		return stats, nil
	}

	var turnover float64
	byCustomer := make(map[string]*TopCustomer)
	// trades are newest first
	stats.LastTS = null.TimeFrom(trades[0].CreatedAt)
	stats.FirstTS = null.TimeFrom(trades[len(trades)-1].CreatedAt)
	best, worst := trades[0], trades[0]
	for _, tx := range trades {
		stats.TotalSold += tx.Qty
		turnover += float64(tx.Qty) * tx.UnitPrice
		if tx.UnitPrice > best.UnitPrice {
			best = tx
		}
		if tx.UnitPrice < worst.UnitPrice {
			worst = tx
		}
		if !tx.CustomerID.Valid {
			continue
		}
		tc, ok := byCustomer[tx.CustomerID.String]
		if !ok {
			tc = &TopCustomer{CustomerID: tx.CustomerID.String, Name: tx.CustomerName.String}
			byCustomer[tx.CustomerID.String] = tc
		}
		tc.Qty += tx.Qty
		tc.Spend += float64(tx.Qty) * tx.UnitPrice
	}
	if stats.TotalSold > 0 {
		stats.AvgPrice = core.Round(turnover/float64(stats.TotalSold), 2)
	}
	stats.BestTrade = &best
	stats.WorstTrade = &worst

	for _, tc := range byCustomer {
		tc.Spend = core.Round(tc.Spend, 2)
		stats.TopCustomers = append(stats.TopCustomers, *tc)
	}
	sort.Slice(stats.TopCustomers, func(i, j int) bool {
		a, b := stats.TopCustomers[i], stats.TopCustomers[j]
		if a.Qty != b.Qty {
			return a.Qty > b.Qty
		}
		return a.Name < b.Name
	})
	if len(stats.TopCustomers) > topCustomersLimit {
		stats.TopCustomers = stats.TopCustomers[:topCustomersLimit]
	}

	stats.RecentTrades = trades
	if len(trades) > recentTradesLimit {
		stats.RecentTrades = trades[:recentTradesLimit]
	}
	return stats, nil
}

// Leaderboards

// TopVolume ranks the event's customers by litres drunk.
func (svc *Service) TopVolume(ctx context.Context, eventID string, limit int) ([]LeaderboardRow, error) {
	return svc.leaderboard(ctx, eventID, limit, func(c exchange.Customer, txs []exchange.TransactionRow, _ map[string]exchange.Beer) LeaderboardRow {
		var ml int
		for _, tx := range txs {
			ml += tx.VolumeML * tx.Qty
		}
		return LeaderboardRow{Liters: null.Float64From(core.Round(float64(ml)/1000, 2))}
	}, func(r LeaderboardRow) float64 { return r.Liters.Float64 })
}

// TopSpend ranks the event's customers by the size of their tab.
func (svc *Service) TopSpend(ctx context.Context, eventID string, limit int) ([]LeaderboardRow, error) {
	return svc.leaderboard(ctx, eventID, limit, func(c exchange.Customer, txs []exchange.TransactionRow, _ map[string]exchange.Beer) LeaderboardRow {
		var spend float64
		for _, tx := range txs {
			spend += float64(tx.Qty) * tx.UnitPrice
		}
		return LeaderboardRow{TotalSpend: null.Float64From(core.Round(spend, 2))}
	}, func(r LeaderboardRow) float64 { return r.TotalSpend.Float64 })
}

// TopBAC ranks the event's customers by their estimated blood alcohol content.
func (svc *Service) TopBAC(ctx context.Context, eventID string, limit int) ([]LeaderboardRow, error) {
	now := svc.now()
	return svc.leaderboard(ctx, eventID, limit, func(c exchange.Customer, txs []exchange.TransactionRow, beers map[string]exchange.Beer) LeaderboardRow {
		drinks := make([]Drink, 0, len(txs))
		for _, tx := range txs {
			drinks = append(drinks, Drink{
				VolumeML: tx.VolumeML,
				Qty:      tx.Qty,
				ABV:      beers[tx.EventBeerID].ABV,
				At:       tx.CreatedAt,
			})
		}
		bac := EstimateBAC(drinks, c.Gender.String, c.WeightKg, now)
		return LeaderboardRow{
			BAC:      null.Float64From(bac),
			Promille: null.Float64From(core.Round(bac*10, 2)),
			Status:   null.StringFrom(Status(bac)),
		}
	}, func(r LeaderboardRow) float64 { return r.BAC.Float64 })
}

type (
	scoreFunc func(c exchange.Customer, txs []exchange.TransactionRow, beers map[string]exchange.Beer) LeaderboardRow
	keyFunc   func(r LeaderboardRow) float64
)

// leaderboard scores every customer who bought something and returns the best ones.
func (svc *Service) leaderboard(ctx context.Context, eventID string, limit int, score scoreFunc, key keyFunc) ([]LeaderboardRow, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	if limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}

	customers, err := svc.store.QueryCustomers(ctx, eventID)
	if err != nil {
		return nil, errors.Wrap(err, "querying customers")
	}
	beers, err := svc.store.QueryBeers(ctx, eventID)
	if err != nil {
		return nil, errors.Wrap(err, "querying beers")
	}
	txs, err := svc.store.QueryTransactions(ctx, exchange.TxFilter{EventID: eventID})
	if err != nil {
		return nil, errors.Wrap(err, "querying transactions")
	}

	beersByID := make(map[string]exchange.Beer, len(beers))
	for _, b := range beers {
		beersByID[b.ID] = b
	}
	byCustomer := make(map[string][]exchange.TransactionRow)
	for _, tx := range txs {
		if tx.CustomerID.Valid {
			byCustomer[tx.CustomerID.String] = append(byCustomer[tx.CustomerID.String], tx)
		}
	}

	rows := make([]LeaderboardRow, 0, len(byCustomer))
	for _, c := range customers {
		ctxs, ok := byCustomer[c.ID]
		if !ok {
			continue
		}
		row := score(c, ctxs, beersByID)
		row.CustomerID = c.ID
		row.Name = c.Name
		row.ProfileImageURL = c.ProfileImageURL
		for _, tx := range ctxs {
			row.Beers += tx.Qty
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if ki, kj := key(rows[i]), key(rows[j]); ki != kj {
			return ki > kj
		}
		return rows[i].Name < rows[j].Name
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}
