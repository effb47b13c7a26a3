package exchange

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/beerxchange/core"
	"github.com/trezcool/beerxchange/core/pricing"
)

var (
	ErrEventNotFound      = core.NewNotFoundError(errors.New("event not found"))
	ErrBeerNotFound       = core.NewNotFoundError(errors.New("beer not found"))
	ErrCustomerNotFound   = core.NewNotFoundError(errors.New("customer not found"))
	ErrEventClosed        = core.NewValidationError(errors.New("event is closed"))
	ErrBeerInactive       = core.NewValidationError(errors.New("beer is not available"))
	ErrInvalidPriceBounds = core.NewValidationError(nil, core.FieldError{
		Field: "base_price",
		Error: "prices must satisfy min_price <= base_price <= max_price",
	})
)

func errInvalidTransition(status string) error {
	return core.NewValidationError(errors.Errorf("event cannot be set %s", status))
}

// Live event names
const (
	LivePriceUpdate       = "priceUpdate"
	LiveTransactionUpdate = "transactionUpdate"
)

// EventTopic is the live topic of an event.
func EventTopic(eventID string) string { return "event:" + eventID }

type (
	// PriceFunc receives the active beers of an event and its sales, and returns the new current prices by beer ID.
	PriceFunc func(beers []Beer, sales []Sale) (map[string]float64, error)

	// TxFilter narrows transaction queries; empty fields are ignored.
	TxFilter struct {
		EventID     string
		EventBeerID string
		CustomerID  string
		Limit       int // 0 means no limit
	}

	Repository interface {
		CreateEvent(ctx context.Context, event Event) (Event, error)
		GetEvent(ctx context.Context, id string) (Event, error)
		QueryEvents(ctx context.Context) ([]Event, error) // newest first
		UpdateEvent(ctx context.Context, event Event) (Event, error)

		// CreateBeer saves the beer along with its first price update.
		CreateBeer(ctx context.Context, beer Beer, initial PriceUpdate) (Beer, error)
		GetBeer(ctx context.Context, eventID, beerID string) (Beer, error)
		QueryBeers(ctx context.Context, eventID string) ([]Beer, error) // by position
		UpdateBeer(ctx context.Context, beer Beer) (Beer, error)

		// QueryPriceUpdates returns the price updates of an event (or one of its beers when beerID is set)
		// since the given time (all of them when zero), oldest first.
		QueryPriceUpdates(ctx context.Context, eventID, beerID string, since time.Time) ([]PriceUpdate, error)

		CreateCustomer(ctx context.Context, customer Customer) (Customer, error)
		GetCustomer(ctx context.Context, eventID, customerID string) (Customer, error)
		QueryCustomers(ctx context.Context, eventID string) ([]Customer, error) // by name
		UpdateCustomer(ctx context.Context, customer Customer) (Customer, error)

		CreateTransaction(ctx context.Context, tx Transaction) (TransactionRow, error)
		QueryTransactions(ctx context.Context, filter TxFilter) ([]TransactionRow, error) // newest first

		// UpdatePrices atomically reads the event's active beers and sales, applies fn, saves the changed prices
		// and records one PriceUpdate per changed beer.
		UpdatePrices(ctx context.Context, eventID string, now time.Time, fn PriceFunc) ([]PriceUpdate, error)
	}

	// Publisher pushes live messages to subscribers of a topic.
	Publisher interface {
		Publish(topic, event string, data interface{})
	}

	// Metrics records exchange activity.
	Metrics interface {
		PurchaseRecorded(eventID string, qty int, amount float64)
		PricesRecalculated(eventID string, took time.Duration, updates int)
	}

	Service struct {
		repo    Repository
		pub     Publisher
		metrics Metrics
		logger  core.Logger
		conf    *core.Config
		now     core.Clock
		locks   *core.KeyLocks
	}
)

func NewService(repo Repository, pub Publisher, metrics Metrics, logger core.Logger, conf *core.Config) *Service {
	if pub == nil {
		pub = nopPublisher{}
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Service{
		repo:    repo,
		pub:     pub,
		metrics: metrics,
		logger:  logger,
		conf:    conf,
		now:     core.UTCNow,
		locks:   core.NewKeyLocks(),
	}
}

// SetClock replaces the service's time source.
func (svc *Service) SetClock(clock core.Clock) { svc.now = clock }

// Events

func (svc *Service) CreateEvent(ctx context.Context, ne NewEvent) (Event, error) {
	ne.Clean(svc.conf.DefaultCurrency)
	now := svc.now()
	event := Event{
		ID:        uuid.NewString(),
		Name:      ne.Name,
		Currency:  ne.Currency,
		Status:    StatusDraft,
		ImageURL:  nullString(ne.ImageURL),
		CreatedAt: now,
	}
	if ne.StartLive {
		event.Status = StatusLive
		event.StartsAt = null.TimeFrom(now)
	}
	return svc.repo.CreateEvent(ctx, event)
}

func (svc *Service) GetEvent(ctx context.Context, id string) (Event, error) {
	return svc.repo.GetEvent(ctx, id)
}

func (svc *Service) ListEvents(ctx context.Context) ([]Event, error) {
	return svc.repo.QueryEvents(ctx)
}

// StartEvent puts a draft event live.
func (svc *Service) StartEvent(ctx context.Context, id string) (Event, error) {
	event, err := svc.repo.GetEvent(ctx, id)
	if err != nil {
		return Event{}, err
	}
	if event.Status != StatusDraft {
		return Event{}, errInvalidTransition(StatusLive)
	}
	event.Status = StatusLive
	event.StartsAt = null.TimeFrom(svc.now())
	return svc.repo.UpdateEvent(ctx, event)
}

// CloseEvent ends an event; closed events refuse purchases.
func (svc *Service) CloseEvent(ctx context.Context, id string) (Event, error) {
	event, err := svc.repo.GetEvent(ctx, id)
	if err != nil {
		return Event{}, err
	}
	if event.IsClosed() {
		return Event{}, errInvalidTransition(StatusClosed)
	}
	event.Status = StatusClosed
	event.EndsAt = null.TimeFrom(svc.now())
	return svc.repo.UpdateEvent(ctx, event)
}

// Beers

func (svc *Service) AddBeer(ctx context.Context, eventID string, nb NewBeer) (Beer, error) {
	if _, err := svc.repo.GetEvent(ctx, eventID); err != nil {
		return Beer{}, err
	}
	nb.Clean()
	if !(*nb.MinPrice <= *nb.BasePrice && *nb.BasePrice <= *nb.MaxPrice) {
		return Beer{}, ErrInvalidPriceBounds
	}

	position := 0
	if nb.Position != nil {
		position = *nb.Position
	} else {
		beers, err := svc.repo.QueryBeers(ctx, eventID)
		if err != nil {
			return Beer{}, errors.Wrap(err, "querying beers")
		}
		position = len(beers)
	}

	now := svc.now()
	beer := Beer{
		ID:           uuid.NewString(),
		EventID:      eventID,
		Name:         nb.Name,
		Brewery:      nullString(nb.Brewery),
		Style:        nullString(nb.Style),
		ABV:          nb.ABV,
		IBU:          nb.IBU,
		VolumeML:     nb.VolumeML,
		Description:  nullString(nb.Description),
		ImageURL:     nullString(nb.ImageURL),
		BasePrice:    *nb.BasePrice,
		MinPrice:     *nb.MinPrice,
		MaxPrice:     *nb.MaxPrice,
		CurrentPrice: *nb.BasePrice,
		Position:     position,
		Active:       nb.Active == nil || *nb.Active,
		CreatedAt:    now,
	}
	initial := PriceUpdate{
		ID:          uuid.NewString(),
		EventBeerID: beer.ID,
		NewPrice:    beer.CurrentPrice,
		UpdatedAt:   now,
	}
	return svc.repo.CreateBeer(ctx, beer, initial)
}

func (svc *Service) GetBeer(ctx context.Context, eventID, beerID string) (Beer, error) {
	return svc.repo.GetBeer(ctx, eventID, beerID)
}

// ListBeers returns the event's beers by position, with their price change over the last hour.
func (svc *Service) ListBeers(ctx context.Context, eventID string) ([]BeerWithChange, error) {
	beers, err := svc.repo.QueryBeers(ctx, eventID)
	if err != nil {
		return nil, errors.Wrap(err, "querying beers")
	}
	updates, err := svc.repo.QueryPriceUpdates(ctx, eventID, "", svc.now().Add(-priceChangeWindow))
	if err != nil {
		return nil, errors.Wrap(err, "querying price updates")
	}

	// first price seen in the window, per beer
	windowStart := make(map[string]float64, len(beers))
	for _, pu := range updates {
		if _, ok := windowStart[pu.EventBeerID]; ok {
			continue
		}
		if pu.OldPrice.Valid {
			windowStart[pu.EventBeerID] = pu.OldPrice.Float64
		} else {
			windowStart[pu.EventBeerID] = pu.NewPrice
		}
	}

	out := make([]BeerWithChange, 0, len(beers))
	for _, b := range beers {
		bwc := BeerWithChange{Beer: b}
		if start, ok := windowStart[b.ID]; ok && start != 0 {
			bwc.LastHourChange = null.Float64From(core.Round((b.CurrentPrice-start)/start*100, 2))
		}
		out = append(out, bwc)
	}
	return out, nil
}

func (svc *Service) UpdateBeer(ctx context.Context, eventID, beerID string, ub UpdateBeer) (Beer, error) {
	// a recalculation must not land between the read and the write
	unlock := svc.locks.Lock(eventID)
	defer unlock()

	beer, err := svc.repo.GetBeer(ctx, eventID, beerID)
	if err != nil {
		return Beer{}, err
	}
	if ub.Name != nil {
		beer.Name = core.CleanString(*ub.Name)
	}
	if ub.Brewery != nil {
		beer.Brewery = nullString(core.CleanString(*ub.Brewery))
	}
	if ub.Style != nil {
		beer.Style = nullString(core.CleanString(*ub.Style))
	}
	if ub.Description != nil {
		beer.Description = nullString(core.CleanString(*ub.Description))
	}
	if ub.ImageURL != nil {
		beer.ImageURL = nullString(*ub.ImageURL)
	}
	if ub.ABV.Valid {
		beer.ABV = ub.ABV
	}
	if ub.IBU.Valid {
		beer.IBU = ub.IBU
	}
	if ub.VolumeML.Valid {
		beer.VolumeML = ub.VolumeML
	}
	if ub.BasePrice != nil {
		beer.BasePrice = *ub.BasePrice
	}
	if ub.MinPrice != nil {
		beer.MinPrice = *ub.MinPrice
	}
	if ub.MaxPrice != nil {
		beer.MaxPrice = *ub.MaxPrice
	}
	if ub.Position != nil {
		beer.Position = *ub.Position
	}
	if ub.Active != nil {
		beer.Active = *ub.Active
	}
	if !(beer.MinPrice <= beer.BasePrice && beer.BasePrice <= beer.MaxPrice) {
		return Beer{}, ErrInvalidPriceBounds
	}
	beer.CurrentPrice = core.Clamp(beer.CurrentPrice, beer.MinPrice, beer.MaxPrice)
	return svc.repo.UpdateBeer(ctx, beer)
}

// Customers

func (svc *Service) CreateCustomer(ctx context.Context, eventID string, ci CustomerInput) (Customer, error) {
	if _, err := svc.repo.GetEvent(ctx, eventID); err != nil {
		return Customer{}, err
	}
	ci.Clean()
	return svc.repo.CreateCustomer(ctx, Customer{
		ID:              uuid.NewString(),
		EventID:         eventID,
		Name:            ci.Name,
		Phone:           nullString(ci.Phone),
		Gender:          nullString(ci.Gender),
		WeightKg:        ci.WeightKg,
		ProfileImageURL: nullString(ci.ProfileImageURL),
		CreatedAt:       svc.now(),
	})
}

func (svc *Service) UpdateCustomer(ctx context.Context, eventID, customerID string, ci CustomerInput) (Customer, error) {
	cust, err := svc.repo.GetCustomer(ctx, eventID, customerID)
	if err != nil {
		return Customer{}, err
	}
	ci.Clean()
	cust.Name = ci.Name
	cust.Phone = nullString(ci.Phone)
	cust.Gender = nullString(ci.Gender)
	if ci.WeightKg.Valid {
		cust.WeightKg = ci.WeightKg
	}
	if ci.ProfileImageURL != "" {
		cust.ProfileImageURL = null.StringFrom(ci.ProfileImageURL)
	}
	return svc.repo.UpdateCustomer(ctx, cust)
}

func (svc *Service) GetCustomer(ctx context.Context, eventID, customerID string) (Customer, error) {
	return svc.repo.GetCustomer(ctx, eventID, customerID)
}

func (svc *Service) ListCustomers(ctx context.Context, eventID string) ([]Customer, error) {
	return svc.repo.QueryCustomers(ctx, eventID)
}

// CustomerStats returns every customer of the event with their beer count and tab.
func (svc *Service) CustomerStats(ctx context.Context, eventID string) ([]CustomerStats, error) {
	customers, err := svc.repo.QueryCustomers(ctx, eventID)
	if err != nil {
		return nil, errors.Wrap(err, "querying customers")
	}
	txs, err := svc.repo.QueryTransactions(ctx, TxFilter{EventID: eventID})
	if err != nil {
		return nil, errors.Wrap(err, "querying transactions")
	}

	byCustomer := make(map[string][]TransactionRow)
	for _, tx := range txs {
		if tx.CustomerID.Valid {
			byCustomer[tx.CustomerID.String] = append(byCustomer[tx.CustomerID.String], tx)
		}
	}
	stats := make([]CustomerStats, 0, len(customers))
	for _, c := range customers {
		stats = append(stats, tally(c, byCustomer[c.ID]))
	}
	return stats, nil
}

func (svc *Service) CustomerDetails(ctx context.Context, eventID, customerID string) (CustomerDetails, error) {
	cust, err := svc.repo.GetCustomer(ctx, eventID, customerID)
	if err != nil {
		return CustomerDetails{}, err
	}
	txs, err := svc.repo.QueryTransactions(ctx, TxFilter{EventID: eventID, CustomerID: customerID})
	if err != nil {
		return CustomerDetails{}, errors.Wrap(err, "querying transactions")
	}
	if txs == nil {
		txs = []TransactionRow{}
	}
	return CustomerDetails{CustomerStats: tally(cust, txs), Transactions: txs}, nil
}

func tally(c Customer, txs []TransactionRow) CustomerStats {
	stats := CustomerStats{Customer: c}
	for _, tx := range txs {
		stats.Beers += tx.Qty
		stats.Tab += float64(tx.Qty) * tx.UnitPrice
	}
	stats.Tab = core.Round(stats.Tab, 2)
	return stats
}

// Transactions

func (svc *Service) ListTransactions(ctx context.Context, eventID string, limit int) ([]TransactionRow, error) {
	if limit <= 0 {
		limit = DefaultTxLimit
	}
	if limit > MaxTxLimit {
		limit = MaxTxLimit
	}
	return svc.repo.QueryTransactions(ctx, TxFilter{EventID: eventID, Limit: limit})
}

// Purchase registers a sale, moves the event's prices and notifies live subscribers.
func (svc *Service) Purchase(ctx context.Context, nt NewTransaction) (PurchaseResult, error) {
	event, err := svc.repo.GetEvent(ctx, nt.EventID)
	if err != nil {
		return PurchaseResult{}, err
	}
	if event.IsClosed() {
		return PurchaseResult{}, ErrEventClosed
	}
	beer, err := svc.repo.GetBeer(ctx, event.ID, nt.EventBeerID)
	if err != nil {
		return PurchaseResult{}, err
	}
	if !beer.Active {
		return PurchaseResult{}, ErrBeerInactive
	}

	var customerID null.String
	if nt.CustomerID != "" {
		if _, err = svc.repo.GetCustomer(ctx, event.ID, nt.CustomerID); err != nil {
			return PurchaseResult{}, err
		}
		customerID = null.StringFrom(nt.CustomerID)
	}

	qty := nt.Qty
	if qty < 1 {
		qty = 1
	}
	volume := nt.VolumeML
	if volume <= 0 {
		volume = DefaultVolumeML
		if beer.VolumeML.Valid && beer.VolumeML.Int > 0 {
			volume = beer.VolumeML.Int
		}
	}
	unitPrice := nt.PriceClient
	if unitPrice <= 0 {
		unitPrice = beer.CurrentPrice
	}

	tx, err := svc.repo.CreateTransaction(ctx, Transaction{
		ID:          uuid.NewString(),
		EventID:     event.ID,
		EventBeerID: beer.ID,
		CustomerID:  customerID,
		Qty:         qty,
		VolumeML:    volume,
		UnitPrice:   unitPrice,
		CreatedAt:   svc.now(),
	})
	if err != nil {
		return PurchaseResult{}, errors.Wrap(err, "creating transaction")
	}
	svc.metrics.PurchaseRecorded(event.ID, qty, float64(qty)*unitPrice)

	updates, err := svc.RecalculatePrices(ctx, event.ID, beer.ID, qty)
	if err != nil {
		return PurchaseResult{}, errors.Wrap(err, "recalculating prices")
	}
	if updates == nil {
		updates = []PriceUpdate{}
	}

	topic := EventTopic(event.ID)
	svc.pub.Publish(topic, LivePriceUpdate, map[string]string{"eventId": event.ID})
	svc.pub.Publish(topic, LiveTransactionUpdate, tx)

	return PurchaseResult{Transaction: tx, PriceUpdates: updates}, nil
}

// RecalculatePrices rebalances the event's active beers after boughtID was sold qty times.
// Recalculations of one event are serialized.
func (svc *Service) RecalculatePrices(ctx context.Context, eventID, boughtID string, qty int) ([]PriceUpdate, error) {
	unlock := svc.locks.Lock(eventID)
	defer unlock()

	start := time.Now()
	updates, err := svc.repo.UpdatePrices(ctx, eventID, svc.now(), func(beers []Beer, sales []Sale) (map[string]float64, error) {
		if len(beers) == 0 {
			return nil, nil
		}
		menu := make([]pricing.Beer, 0, len(beers))
		for _, b := range beers {
			menu = append(menu, b.pricing())
		}
		pSales := make([]pricing.Sale, 0, len(sales))
		for _, s := range sales {
			pSales = append(pSales, pricing.Sale{Qty: s.Qty, UnitPrice: s.UnitPrice, BasePrice: s.BasePrice})
		}

		hf := pricing.HouseFactor(pSales)
		changes := pricing.Changes(menu, pricing.Rebalance(menu, boughtID, qty, hf))
		prices := make(map[string]float64, len(changes))
		for _, c := range changes {
			prices[c.BeerID] = c.NewPrice
		}
		return prices, nil
	})
	if err != nil {
		return nil, err
	}
	svc.metrics.PricesRecalculated(eventID, time.Since(start), len(updates))
	return updates, nil
}

// ApplyPrices returns the beers whose price changes to the given one, and the matching price updates.
// Repositories use it so that every backend records price history the same way.
func ApplyPrices(beers []Beer, prices map[string]float64, now time.Time) ([]Beer, []PriceUpdate) {
	ids := make([]string, 0, len(prices))
	for id := range prices {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	byID := make(map[string]Beer, len(beers))
	for _, b := range beers {
		byID[b.ID] = b
	}

	var changed []Beer
	var updates []PriceUpdate
	for _, id := range ids {
		beer, ok := byID[id]
		newPrice := prices[id]
		if !ok || math.IsNaN(newPrice) || newPrice == beer.CurrentPrice {
			continue
		}
		updates = append(updates, PriceUpdate{
			ID:          uuid.NewString(),
			EventBeerID: id,
			OldPrice:    null.Float64From(beer.CurrentPrice),
			NewPrice:    newPrice,
			UpdatedAt:   now,
		})
		beer.CurrentPrice = newPrice
		changed = append(changed, beer)
	}
	return changed, updates
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, string, interface{}) {}

type nopMetrics struct{}

func (nopMetrics) PurchaseRecorded(string, int, float64) {}
func (nopMetrics) PricesRecalculated(string, time.Duration, int) {}

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}
