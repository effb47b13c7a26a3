package sqlxrepos

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/beerxchange/core/brewing"
	"github.com/trezcool/beerxchange/core/exchange"
	"github.com/trezcool/beerxchange/core/user"
)

var t0 = time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func TestUserRepository_CreateUser(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)
	usr := user.User{ID: "u1", Name: "Ola", Username: "ola", Roles: []string{user.RoleBrewer}, CreatedAt: t0, UpdatedAt: t0}

	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(0, 1))
	got, err := repo.CreateUser(context.Background(), usr)
	require.NoError(t, err)
	assert.Equal(t, usr, got)

	mock.ExpectExec("INSERT INTO users").WillReturnError(&pq.Error{Code: uniqueViolation})
	_, err = repo.CreateUser(context.Background(), usr)
	assert.Equal(t, user.ErrUsernameExists, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_GetUserByUsername(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)
	cols := []string{"id", "name", "username", "phone_number", "profile_image_url", "is_active", "roles",
		"password_hash", "created_at", "updated_at", "last_login"}

	mock.ExpectQuery(`FROM users WHERE username = \$1`).
		WithArgs("ola").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("u1", "Ola", "ola", nil, nil, true, "{brewer:}", []byte("hash"), t0, t0, nil))
	usr, err := repo.GetUserByUsername(context.Background(), "ola")
	require.NoError(t, err)
	assert.Equal(t, "u1", usr.ID)
	assert.Equal(t, []string{user.RoleBrewer}, usr.Roles)
	assert.False(t, usr.PhoneNumber.Valid)

	mock.ExpectQuery(`FROM users WHERE username = \$1`).
		WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows(cols))
	_, err = repo.GetUserByUsername(context.Background(), "nobody")
	assert.Equal(t, user.ErrNotFound, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_CountUsersWithRole(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users`).
		WithArgs("admin:%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	count, err := repo.CountUsersWithRole(context.Background(), user.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

var beerCols = []string{"id", "event_id", "name", "brewery", "style", "abv", "ibu", "volume_ml", "description",
	"image_url", "base_price", "min_price", "max_price", "current_price", "position", "active", "created_at"}

func beerRow(id string, base, min, max, current float64, position int) []driver.Value {
	return []driver.Value{id, "ev1", "Beer " + id, nil, nil, 4.7, nil, 500, nil, nil, base, min, max, current, position, true, t0}
}

func TestExchangeRepository_UpdatePrices(t *testing.T) {
	db, mock := newMock(t)
	repo := NewExchangeRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM events WHERE id = \$1 FOR UPDATE`).
		WithArgs("ev1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("ev1"))
	mock.ExpectQuery(`FROM event_beers WHERE event_id = \$1 AND active`).
		WithArgs("ev1").
		WillReturnRows(sqlmock.NewRows(beerCols).
			AddRow(beerRow("b1", 50, 30, 80, 50, 0)...).
			AddRow(beerRow("b2", 60, 40, 90, 60, 1)...))
	mock.ExpectQuery(`SELECT t.qty, t.unit_price, b.base_price`).
		WithArgs("ev1").
		WillReturnRows(sqlmock.NewRows([]string{"qty", "unit_price", "base_price"}).AddRow(2, 50, 50))
	mock.ExpectExec(`UPDATE event_beers SET current_price = \$1 WHERE id = \$2`).
		WithArgs(51.0, "b1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE event_beers SET current_price = \$1 WHERE id = \$2`).
		WithArgs(59.0, "b2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO price_updates").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO price_updates").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var gotBeers []exchange.Beer
	var gotSales []exchange.Sale
	updates, err := repo.UpdatePrices(context.Background(), "ev1", t0, func(beers []exchange.Beer, sales []exchange.Sale) (map[string]float64, error) {
		gotBeers, gotSales = beers, sales
		return map[string]float64{"b1": 51, "b2": 59}, nil
	})
	require.NoError(t, err)
	require.Len(t, gotBeers, 2)
	assert.Equal(t, []exchange.Sale{{Qty: 2, UnitPrice: 50, BasePrice: 50}}, gotSales)

	require.Len(t, updates, 2)
	assert.Equal(t, "b1", updates[0].EventBeerID)
	assert.Equal(t, null.Float64From(50), updates[0].OldPrice)
	assert.Equal(t, 51.0, updates[0].NewPrice)
	assert.Equal(t, null.Float64From(60), updates[1].OldPrice)
	assert.Equal(t, t0, updates[1].UpdatedAt)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExchangeRepository_UpdatePrices_rollsBack(t *testing.T) {
	db, mock := newMock(t)
	repo := NewExchangeRepository(db)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM events`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("ev1"))
	mock.ExpectQuery(`FROM event_beers`).WillReturnRows(sqlmock.NewRows(beerCols))
	mock.ExpectQuery(`FROM transactions`).WillReturnRows(sqlmock.NewRows([]string{"qty", "unit_price", "base_price"}))
	mock.ExpectRollback()

	_, err := repo.UpdatePrices(context.Background(), "ev1", t0, func([]exchange.Beer, []exchange.Sale) (map[string]float64, error) {
		return nil, boom
	})
	assert.Equal(t, boom, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExchangeRepository_UpdatePrices_unknownEvent(t *testing.T) {
	db, mock := newMock(t)
	repo := NewExchangeRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM events`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := repo.UpdatePrices(context.Background(), "nope", t0, nil)
	assert.Equal(t, exchange.ErrEventNotFound, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExchangeRepository_QueryTransactions(t *testing.T) {
	db, mock := newMock(t)
	repo := NewExchangeRepository(db)
	cols := []string{"id", "event_id", "event_beer_id", "customer_id", "qty", "volume_ml", "unit_price", "created_at",
		"customer_name", "beer_name"}

	mock.ExpectQuery(`WHERE t.event_id = \$1 AND t.customer_id = \$2 ORDER BY t.created_at DESC LIMIT \$3`).
		WithArgs("ev1", "c1", 10).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("t1", "ev1", "b1", "c1", 2, 500, 50.0, t0, "Kari", "Pils"))

	rows, err := repo.QueryTransactions(context.Background(), exchange.TxFilter{EventID: "ev1", CustomerID: "c1", Limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, null.StringFrom("c1"), rows[0].CustomerID)
	assert.Equal(t, null.StringFrom("Kari"), rows[0].CustomerName)
	assert.Equal(t, 2, rows[0].Qty)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExchangeRepository_UpdateBeer(t *testing.T) {
	db, mock := newMock(t)
	repo := NewExchangeRepository(db)
	beer := exchange.Beer{ID: "b1", EventID: "ev1", Name: "Pils", BasePrice: 40, MinPrice: 30, MaxPrice: 45, CurrentPrice: 50}

	// the stored price wins over the one read before the edit
	mock.ExpectQuery(`(?s)current_price = LEAST\(GREATEST\(current_price, \$12\), \$13\).*RETURNING current_price`).
		WillReturnRows(sqlmock.NewRows([]string{"current_price"}).AddRow(44.5))
	got, err := repo.UpdateBeer(context.Background(), beer)
	require.NoError(t, err)
	assert.Equal(t, 44.5, got.CurrentPrice)
	assert.Equal(t, "Pils", got.Name)

	mock.ExpectQuery(`UPDATE event_beers SET`).
		WillReturnRows(sqlmock.NewRows([]string{"current_price"}))
	_, err = repo.UpdateBeer(context.Background(), beer)
	assert.Equal(t, exchange.ErrBeerNotFound, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExchangeRepository_QueryPriceUpdates(t *testing.T) {
	db, mock := newMock(t)
	repo := NewExchangeRepository(db)
	cols := []string{"id", "event_beer_id", "old_price", "new_price", "updated_at"}

	mock.ExpectQuery(`WHERE b.event_id = \$1 AND pu.event_beer_id = \$2 AND pu.updated_at >= \$3\s+ORDER BY pu.updated_at`).
		WithArgs("ev1", "b1", t0).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("pu1", "b1", nil, 51.0, t0))

	updates, err := repo.QueryPriceUpdates(context.Background(), "ev1", "b1", t0)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.False(t, updates[0].OldPrice.Valid)
	assert.Equal(t, 51.0, updates[0].NewPrice)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBrewingRepository_Brews(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBrewingRepository(db)
	brew := brewing.Brew{
		ID:        "br1",
		BrewerID:  "u1",
		Name:      "Pale Ale",
		Status:    brewing.StatusPlanned,
		CreatedAt: t0,
		UpdatedAt: t0,
	}
	doc, err := json.Marshal(brew)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT data FROM brews WHERE id = \$1 AND brewer_id = \$2`).
		WithArgs("br1", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow(doc))
	got, err := repo.GetBrew(context.Background(), "u1", "br1")
	require.NoError(t, err)
	assert.Equal(t, "Pale Ale", got.Name)
	assert.True(t, got.UpdatedAt.Equal(t0))

	mock.ExpectQuery(`SELECT data FROM brews`).
		WithArgs("br1", "someone-else").
		WillReturnRows(sqlmock.NewRows([]string{"data"}))
	_, err = repo.GetBrew(context.Background(), "someone-else", "br1")
	assert.Equal(t, brewing.ErrBrewNotFound, err)

	mock.ExpectExec(`UPDATE brews SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	_, err = repo.UpdateBrew(context.Background(), brew)
	assert.Equal(t, brewing.ErrBrewNotFound, err)

	mock.ExpectExec(`DELETE FROM brews`).WithArgs("br1", "u1").WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.DeleteBrew(context.Background(), "u1", "br1"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBrewingRepository_QueryRecipes(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBrewingRepository(db)

	mock.ExpectQuery(`SELECT data FROM recipes WHERE brewer_id = \$1 ORDER BY created_at DESC`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).
			AddRow([]byte(`{"id":"r2","brewerId":"u1","name":"Stout","steps":[]}`)).
			AddRow([]byte(`{"id":"r1","brewerId":"u1","name":"Pils","steps":[]}`)))

	recipes, err := repo.QueryRecipes(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, recipes, 2)
	assert.Equal(t, "Stout", recipes[0].Name)
	assert.Equal(t, "r1", recipes[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
