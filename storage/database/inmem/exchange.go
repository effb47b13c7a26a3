package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/beerxchange/core"
	"github.com/trezcool/beerxchange/core/exchange"
)

type exchangeRepository struct {
	db *exchangeTables
}

func NewExchangeRepository(db *DB) exchange.Repository {
	return &exchangeRepository{db: db.exchange}
}

// Events

func (repo *exchangeRepository) CreateEvent(_ context.Context, event exchange.Event) (exchange.Event, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.events[event.ID] = event
	return event, nil
}

func (repo *exchangeRepository) GetEvent(_ context.Context, id string) (exchange.Event, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if event, ok := repo.db.events[id]; ok {
		return event, nil
	}
	return exchange.Event{}, exchange.ErrEventNotFound
}

func (repo *exchangeRepository) QueryEvents(_ context.Context) ([]exchange.Event, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	events := make([]exchange.Event, 0, len(repo.db.events))
	for _, event := range repo.db.events {
		events = append(events, event)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].CreatedAt.After(events[j].CreatedAt) })
	return events, nil
}

func (repo *exchangeRepository) UpdateEvent(_ context.Context, event exchange.Event) (exchange.Event, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.events[event.ID]; !ok {
		return exchange.Event{}, exchange.ErrEventNotFound
	}
	repo.db.events[event.ID] = event
	return event, nil
}

// Beers

func (repo *exchangeRepository) CreateBeer(_ context.Context, beer exchange.Beer, initial exchange.PriceUpdate) (exchange.Beer, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.events[beer.EventID]; !ok {
		return exchange.Beer{}, exchange.ErrEventNotFound
	}
	repo.db.beers[beer.ID] = beer
	repo.db.priceUpdates = append(repo.db.priceUpdates, initial)
	return beer, nil
}

func (repo *exchangeRepository) GetBeer(_ context.Context, eventID, beerID string) (exchange.Beer, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if beer, ok := repo.db.beers[beerID]; ok && beer.EventID == eventID {
		return beer, nil
	}
	return exchange.Beer{}, exchange.ErrBeerNotFound
}

func (repo *exchangeRepository) QueryBeers(_ context.Context, eventID string) ([]exchange.Beer, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.beersOf(eventID, false), nil
}

// beersOf returns the event's beers by position, then creation.
func (repo *exchangeRepository) beersOf(eventID string, activeOnly bool) []exchange.Beer {
	beers := make([]exchange.Beer, 0)
	for _, beer := range repo.db.beers {
		if beer.EventID == eventID && (beer.Active || !activeOnly) {
			beers = append(beers, beer)
		}
	}
	sort.Slice(beers, func(i, j int) bool {
		if beers[i].Position != beers[j].Position {
			return beers[i].Position < beers[j].Position
		}
		return beers[i].CreatedAt.Before(beers[j].CreatedAt)
	})
	return beers
}

func (repo *exchangeRepository) UpdateBeer(_ context.Context, beer exchange.Beer) (exchange.Beer, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.beers[beer.ID]
	if !ok || orig.EventID != beer.EventID {
		return exchange.Beer{}, exchange.ErrBeerNotFound
	}
	// prices belong to the pricing engine, only the bounds may move them here
	beer.CurrentPrice = core.Clamp(orig.CurrentPrice, beer.MinPrice, beer.MaxPrice)
	repo.db.beers[beer.ID] = beer
	return beer, nil
}

func (repo *exchangeRepository) QueryPriceUpdates(_ context.Context, eventID, beerID string, since time.Time) ([]exchange.PriceUpdate, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	updates := make([]exchange.PriceUpdate, 0)
	for _, pu := range repo.db.priceUpdates {
		beer, ok := repo.db.beers[pu.EventBeerID]
		if !ok || beer.EventID != eventID || (beerID != "" && pu.EventBeerID != beerID) {
			continue
		}
		if !since.IsZero() && pu.UpdatedAt.Before(since) {
			continue
		}
		updates = append(updates, pu)
	}
	sort.SliceStable(updates, func(i, j int) bool { return updates[i].UpdatedAt.Before(updates[j].UpdatedAt) })
	return updates, nil
}

// Customers

func (repo *exchangeRepository) CreateCustomer(_ context.Context, customer exchange.Customer) (exchange.Customer, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.events[customer.EventID]; !ok {
		return exchange.Customer{}, exchange.ErrEventNotFound
	}
	repo.db.customers[customer.ID] = customer
	return customer, nil
}

func (repo *exchangeRepository) GetCustomer(_ context.Context, eventID, customerID string) (exchange.Customer, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if cust, ok := repo.db.customers[customerID]; ok && cust.EventID == eventID {
		return cust, nil
	}
	return exchange.Customer{}, exchange.ErrCustomerNotFound
}

func (repo *exchangeRepository) QueryCustomers(_ context.Context, eventID string) ([]exchange.Customer, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	customers := make([]exchange.Customer, 0)
	for _, cust := range repo.db.customers {
		if cust.EventID == eventID {
			customers = append(customers, cust)
		}
	}
	sort.Slice(customers, func(i, j int) bool {
		if customers[i].Name != customers[j].Name {
			return customers[i].Name < customers[j].Name
		}
		return customers[i].ID < customers[j].ID
	})
	return customers, nil
}

func (repo *exchangeRepository) UpdateCustomer(_ context.Context, customer exchange.Customer) (exchange.Customer, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.customers[customer.ID]
	if !ok || orig.EventID != customer.EventID {
		return exchange.Customer{}, exchange.ErrCustomerNotFound
	}
	repo.db.customers[customer.ID] = customer
	return customer, nil
}

// Transactions

func (repo *exchangeRepository) CreateTransaction(_ context.Context, tx exchange.Transaction) (exchange.TransactionRow, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.beers[tx.EventBeerID]; !ok {
		return exchange.TransactionRow{}, exchange.ErrBeerNotFound
	}
	repo.db.transactions = append(repo.db.transactions, tx)
	return repo.row(tx), nil
}

func (repo *exchangeRepository) row(tx exchange.Transaction) exchange.TransactionRow {
	row := exchange.TransactionRow{Transaction: tx}
	if beer, ok := repo.db.beers[tx.EventBeerID]; ok {
		row.BeerName = null.StringFrom(beer.Name)
	}
	if tx.CustomerID.Valid {
		if cust, ok := repo.db.customers[tx.CustomerID.String]; ok {
			row.CustomerName = null.StringFrom(cust.Name)
		}
	}
	return row
}

func (repo *exchangeRepository) QueryTransactions(_ context.Context, filter exchange.TxFilter) ([]exchange.TransactionRow, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	rows := make([]exchange.TransactionRow, 0)
	for _, tx := range repo.db.transactions {
		switch {
		case filter.EventID != "" && tx.EventID != filter.EventID,
			filter.EventBeerID != "" && tx.EventBeerID != filter.EventBeerID,
			filter.CustomerID != "" && tx.CustomerID.String != filter.CustomerID:
			continue
		}
		rows = append(rows, repo.row(tx))
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].CreatedAt.After(rows[j].CreatedAt) })
	if filter.Limit > 0 && len(rows) > filter.Limit {
		rows = rows[:filter.Limit]
	}
	return rows, nil
}

// UpdatePrices holds the write lock for the whole read-compute-write cycle.
func (repo *exchangeRepository) UpdatePrices(_ context.Context, eventID string, now time.Time, fn exchange.PriceFunc) ([]exchange.PriceUpdate, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.events[eventID]; !ok {
		return nil, exchange.ErrEventNotFound
	}
	beers := repo.beersOf(eventID, true)

	var sales []exchange.Sale
	for _, tx := range repo.db.transactions {
		if tx.EventID != eventID {
			continue
		}
		beer, ok := repo.db.beers[tx.EventBeerID]
		if !ok {
			continue
		}
		sales = append(sales, exchange.Sale{Qty: tx.Qty, UnitPrice: tx.UnitPrice, BasePrice: beer.BasePrice})
	}

	prices, err := fn(beers, sales)
	if err != nil {
		return nil, err
	}
	changed, updates := exchange.ApplyPrices(beers, prices, now)
	for _, beer := range changed {
		repo.db.beers[beer.ID] = beer
	}
	repo.db.priceUpdates = append(repo.db.priceUpdates, updates...)
	return updates, nil
}
