package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/beerxchange/core"
	"github.com/trezcool/beerxchange/core/exchange"
)

const (
	eventColumns = `id, name, currency, status, starts_at, ends_at, image_url, created_at`
	beerColumns  = `id, event_id, name, brewery, style, abv, ibu, volume_ml, description, image_url,
	base_price, min_price, max_price, current_price, position, active, created_at`
	customerColumns = `id, event_id, name, phone, gender, weight_kg, profile_image_url, created_at`

	insertPriceUpdate = `INSERT INTO price_updates (id, event_beer_id, old_price, new_price, updated_at)
	VALUES (:id, :event_beer_id, :old_price, :new_price, :updated_at)`

	selectTransactionRows = `SELECT t.id, t.event_id, t.event_beer_id, t.customer_id, t.qty, t.volume_ml,
		t.unit_price, t.created_at, c.name AS customer_name, b.name AS beer_name
	FROM transactions t
	LEFT JOIN customers c ON c.id = t.customer_id
	LEFT JOIN event_beers b ON b.id = t.event_beer_id`
)

type exchangeRepository struct {
	db core.DB
}

func NewExchangeRepository(db core.DB) exchange.Repository {
	return &exchangeRepository{db: db}
}

// Events

func (repo *exchangeRepository) CreateEvent(ctx context.Context, event exchange.Event) (exchange.Event, error) {
	q := `INSERT INTO events (` + eventColumns + `)
	VALUES (:id, :name, :currency, :status, :starts_at, :ends_at, :image_url, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.db, q, event); err != nil {
		return exchange.Event{}, errors.Wrap(err, "inserting event")
	}
	return event, nil
}

func (repo *exchangeRepository) GetEvent(ctx context.Context, id string) (exchange.Event, error) {
	var event exchange.Event
	q := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	if err := repo.db.GetContext(ctx, &event, q, id); err != nil {
		return exchange.Event{}, notFound(err, exchange.ErrEventNotFound)
	}
	return event, nil
}

func (repo *exchangeRepository) QueryEvents(ctx context.Context) ([]exchange.Event, error) {
	events := make([]exchange.Event, 0)
	q := `SELECT ` + eventColumns + ` FROM events ORDER BY created_at DESC`
	if err := repo.db.SelectContext(ctx, &events, q); err != nil {
		return nil, errors.Wrap(err, "selecting events")
	}
	return events, nil
}

func (repo *exchangeRepository) UpdateEvent(ctx context.Context, event exchange.Event) (exchange.Event, error) {
	q := `UPDATE events SET name = :name, currency = :currency, status = :status, starts_at = :starts_at,
		ends_at = :ends_at, image_url = :image_url
	WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, repo.db, q, event)
	if err != nil {
		return exchange.Event{}, errors.Wrap(err, "updating event")
	}
	if err = affected(res, exchange.ErrEventNotFound); err != nil {
		return exchange.Event{}, err
	}
	return event, nil
}

// Beers

func (repo *exchangeRepository) CreateBeer(ctx context.Context, beer exchange.Beer, initial exchange.PriceUpdate) (exchange.Beer, error) {
	err := core.WithinTx(ctx, repo.db, func(tx core.DBTransactor) error {
		q := `INSERT INTO event_beers (` + beerColumns + `)
		VALUES (:id, :event_id, :name, :brewery, :style, :abv, :ibu, :volume_ml, :description, :image_url,
			:base_price, :min_price, :max_price, :current_price, :position, :active, :created_at)`
		if _, err := sqlx.NamedExecContext(ctx, tx, q, beer); err != nil {
			return errors.Wrap(err, "inserting beer")
		}
		if _, err := sqlx.NamedExecContext(ctx, tx, insertPriceUpdate, initial); err != nil {
			return errors.Wrap(err, "inserting price update")
		}
		return nil
	})
	if err != nil {
		return exchange.Beer{}, err
	}
	return beer, nil
}

func (repo *exchangeRepository) GetBeer(ctx context.Context, eventID, beerID string) (exchange.Beer, error) {
	var beer exchange.Beer
	q := `SELECT ` + beerColumns + ` FROM event_beers WHERE id = $1 AND event_id = $2`
	if err := repo.db.GetContext(ctx, &beer, q, beerID, eventID); err != nil {
		return exchange.Beer{}, notFound(err, exchange.ErrBeerNotFound)
	}
	return beer, nil
}

func (repo *exchangeRepository) QueryBeers(ctx context.Context, eventID string) ([]exchange.Beer, error) {
	beers := make([]exchange.Beer, 0)
	q := `SELECT ` + beerColumns + ` FROM event_beers WHERE event_id = $1 ORDER BY position, created_at`
	if err := repo.db.SelectContext(ctx, &beers, q, eventID); err != nil {
		return nil, errors.Wrap(err, "selecting beers")
	}
	return beers, nil
}

// UpdateBeer keeps the stored current price, clamped to the new bounds, so that a concurrent
// price recalculation is never overwritten.
func (repo *exchangeRepository) UpdateBeer(ctx context.Context, beer exchange.Beer) (exchange.Beer, error) {
	q := `UPDATE event_beers SET name = :name, brewery = :brewery, style = :style, abv = :abv, ibu = :ibu,
		volume_ml = :volume_ml, description = :description, image_url = :image_url, base_price = :base_price,
		min_price = :min_price, max_price = :max_price,
		current_price = LEAST(GREATEST(current_price, :min_price), :max_price), position = :position,
		active = :active
	WHERE id = :id AND event_id = :event_id
	RETURNING current_price`
	query, args, err := repo.db.BindNamed(q, beer)
	if err != nil {
		return exchange.Beer{}, errors.Wrap(err, "binding beer")
	}
	if err = repo.db.GetContext(ctx, &beer.CurrentPrice, query, args...); err != nil {
		return exchange.Beer{}, notFound(errors.Wrap(err, "updating beer"), exchange.ErrBeerNotFound)
	}
	return beer, nil
}

func (repo *exchangeRepository) QueryPriceUpdates(ctx context.Context, eventID, beerID string, since time.Time) ([]exchange.PriceUpdate, error) {
	var w where
	w.add("b.event_id = ?", eventID)
	if beerID != "" {
		w.add("pu.event_beer_id = ?", beerID)
	}
	if !since.IsZero() {
		w.add("pu.updated_at >= ?", since)
	}

	updates := make([]exchange.PriceUpdate, 0)
	q := `SELECT pu.id, pu.event_beer_id, pu.old_price, pu.new_price, pu.updated_at
	FROM price_updates pu JOIN event_beers b ON b.id = pu.event_beer_id` + w.String() + `
	ORDER BY pu.updated_at`
	if err := repo.db.SelectContext(ctx, &updates, repo.db.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting price updates")
	}
	return updates, nil
}

// Customers

func (repo *exchangeRepository) CreateCustomer(ctx context.Context, customer exchange.Customer) (exchange.Customer, error) {
	q := `INSERT INTO customers (` + customerColumns + `)
	VALUES (:id, :event_id, :name, :phone, :gender, :weight_kg, :profile_image_url, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.db, q, customer); err != nil {
		return exchange.Customer{}, errors.Wrap(err, "inserting customer")
	}
	return customer, nil
}

func (repo *exchangeRepository) GetCustomer(ctx context.Context, eventID, customerID string) (exchange.Customer, error) {
	var cust exchange.Customer
	q := `SELECT ` + customerColumns + ` FROM customers WHERE id = $1 AND event_id = $2`
	if err := repo.db.GetContext(ctx, &cust, q, customerID, eventID); err != nil {
		return exchange.Customer{}, notFound(err, exchange.ErrCustomerNotFound)
	}
	return cust, nil
}

func (repo *exchangeRepository) QueryCustomers(ctx context.Context, eventID string) ([]exchange.Customer, error) {
	customers := make([]exchange.Customer, 0)
	q := `SELECT ` + customerColumns + ` FROM customers WHERE event_id = $1 ORDER BY name, id`
	if err := repo.db.SelectContext(ctx, &customers, q, eventID); err != nil {
		return nil, errors.Wrap(err, "selecting customers")
	}
	return customers, nil
}

func (repo *exchangeRepository) UpdateCustomer(ctx context.Context, customer exchange.Customer) (exchange.Customer, error) {
	q := `UPDATE customers SET name = :name, phone = :phone, gender = :gender, weight_kg = :weight_kg,
		profile_image_url = :profile_image_url
	WHERE id = :id AND event_id = :event_id`
	res, err := sqlx.NamedExecContext(ctx, repo.db, q, customer)
	if err != nil {
		return exchange.Customer{}, errors.Wrap(err, "updating customer")
	}
	if err = affected(res, exchange.ErrCustomerNotFound); err != nil {
		return exchange.Customer{}, err
	}
	return customer, nil
}

// Transactions

func (repo *exchangeRepository) CreateTransaction(ctx context.Context, tx exchange.Transaction) (exchange.TransactionRow, error) {
	q := `INSERT INTO transactions (id, event_id, event_beer_id, customer_id, qty, volume_ml, unit_price, created_at)
	VALUES (:id, :event_id, :event_beer_id, :customer_id, :qty, :volume_ml, :unit_price, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.db, q, tx); err != nil {
		return exchange.TransactionRow{}, errors.Wrap(err, "inserting transaction")
	}

	var row exchange.TransactionRow
	if err := repo.db.GetContext(ctx, &row, selectTransactionRows+` WHERE t.id = $1`, tx.ID); err != nil {
		return exchange.TransactionRow{}, errors.Wrap(err, "selecting transaction")
	}
	return row, nil
}

func (repo *exchangeRepository) QueryTransactions(ctx context.Context, filter exchange.TxFilter) ([]exchange.TransactionRow, error) {
	var w where
	if filter.EventID != "" {
		w.add("t.event_id = ?", filter.EventID)
	}
	if filter.EventBeerID != "" {
		w.add("t.event_beer_id = ?", filter.EventBeerID)
	}
	if filter.CustomerID != "" {
		w.add("t.customer_id = ?", filter.CustomerID)
	}
	q := selectTransactionRows + w.String() + ` ORDER BY t.created_at DESC`
	if filter.Limit > 0 {
		w.args = append(w.args, filter.Limit)
		q += ` LIMIT ?`
	}

	rows := make([]exchange.TransactionRow, 0)
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting transactions")
	}
	return rows, nil
}

// UpdatePrices locks the event row, then its active beers, for the whole read-compute-write cycle,
// so that purchases served by other processes queue behind it.
func (repo *exchangeRepository) UpdatePrices(ctx context.Context, eventID string, now time.Time, fn exchange.PriceFunc) ([]exchange.PriceUpdate, error) {
	var updates []exchange.PriceUpdate
	err := core.WithinTx(ctx, repo.db, func(tx core.DBTransactor) error {
		var id string
		if err := tx.GetContext(ctx, &id, `SELECT id FROM events WHERE id = $1 FOR UPDATE`, eventID); err != nil {
			return notFound(err, exchange.ErrEventNotFound)
		}

		beers := make([]exchange.Beer, 0)
		q := `SELECT ` + beerColumns + ` FROM event_beers WHERE event_id = $1 AND active
		ORDER BY position, created_at FOR UPDATE`
		if err := tx.SelectContext(ctx, &beers, q, eventID); err != nil {
			return errors.Wrap(err, "selecting beers")
		}

		sales := make([]exchange.Sale, 0)
		q = `SELECT t.qty, t.unit_price, b.base_price
		FROM transactions t JOIN event_beers b ON b.id = t.event_beer_id
		WHERE t.event_id = $1`
		if err := tx.SelectContext(ctx, &sales, q, eventID); err != nil {
			return errors.Wrap(err, "selecting sales")
		}

		prices, err := fn(beers, sales)
		if err != nil {
			return err
		}
		var changed []exchange.Beer
		changed, updates = exchange.ApplyPrices(beers, prices, now)
		for _, beer := range changed {
			if _, err = tx.ExecContext(ctx, `UPDATE event_beers SET current_price = $1 WHERE id = $2`, beer.CurrentPrice, beer.ID); err != nil {
				return errors.Wrap(err, "updating price")
			}
		}
		for _, pu := range updates {
			if _, err = sqlx.NamedExecContext(ctx, tx, insertPriceUpdate, pu); err != nil {
				return errors.Wrap(err, "inserting price update")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updates, nil
}
