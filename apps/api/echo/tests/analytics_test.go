package tests

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/beerxchange/core/analytics"
	"github.com/trezcool/beerxchange/core/exchange"
)

func Test_analyticsApi(t *testing.T) {
	app := setup(t)
	ctx := context.Background()

	event := createEvent(t, exchange.NewEvent{StartLive: true})
	ipa := addBeer(t, event.ID, "IPA", 50, 30, 80)
	_, err := exchangeSvc.UpdateBeer(ctx, event.ID, ipa.ID, exchange.UpdateBeer{ABV: null.Float64From(6.5)})
	require.NoError(t, err)
	addBeer(t, event.ID, "Stout", 40, 20, 60)

	kari, err := exchangeSvc.CreateCustomer(ctx, event.ID, exchange.CustomerInput{
		Name: "Kari", Gender: "female", WeightKg: null.Float64From(60),
	})
	require.NoError(t, err)
	ola, err := exchangeSvc.CreateCustomer(ctx, event.ID, exchange.CustomerInput{Name: "Ola", Gender: "male"})
	require.NoError(t, err)
	_, err = exchangeSvc.CreateCustomer(ctx, event.ID, exchange.CustomerInput{Name: "Sober"})
	require.NoError(t, err)

	buy := func(customerID string, qty int) {
		_, err := exchangeSvc.Purchase(ctx, exchange.NewTransaction{
			EventID: event.ID, EventBeerID: ipa.ID, CustomerID: customerID, Qty: qty, VolumeML: 500, PriceClient: 50,
		})
		require.NoError(t, err)
	}
	buy(kari.ID, 3)
	buy(ola.ID, 1)

	beerPath := "/api/analytics/event/" + event.ID + "/beer/" + ipa.ID

	runTests(t, app, []httpTest{
		{
			name: "Unknown beer", path: "/api/analytics/event/" + event.ID + "/beer/nope/stats",
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "beer not found"}),
		},
		{
			name: "History of unknown beer", path: "/api/analytics/event/" + event.ID + "/beer/nope/price-history",
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "beer not found"}),
		},
	})

	t.Run("Price history", func(t *testing.T) {
		for _, rng := range []string{"", analytics.Range1h, analytics.Range3h, analytics.RangeDay, analytics.RangeAll} {
			var points []analytics.PricePoint
			mustCall(t, app, http.StatusOK, http.MethodGet, beerPath+"/price-history?range="+rng, "", nil, &points)
			require.Len(t, points, 4, "range %q", rng) // creation, 2 purchases, current

			assert.Equal(t, 50.0, points[0].Price)
			beer, err := exchangeSvc.GetBeer(ctx, event.ID, ipa.ID)
			require.NoError(t, err)
			assert.Equal(t, beer.CurrentPrice, points[len(points)-1].Price)
		}
	})

	t.Run("Beer stats", func(t *testing.T) {
		var stats analytics.BeerStats
		mustCall(t, app, http.StatusOK, http.MethodGet, beerPath+"/stats", "", nil, &stats)
		assert.Equal(t, ipa.ID, stats.ID)
		assert.Equal(t, 4, stats.TotalSold)
		assert.Equal(t, 50.0, stats.AvgPrice)
		assert.GreaterOrEqual(t, stats.ATH, stats.CurrentPrice)
		assert.True(t, stats.FirstTS.Valid)
		assert.True(t, stats.LastTS.Valid)
		require.NotNil(t, stats.BestTrade)
		require.Len(t, stats.TopCustomers, 2)
		assert.Equal(t, analytics.TopCustomer{CustomerID: kari.ID, Name: "Kari", Qty: 3, Spend: 150}, stats.TopCustomers[0])
		assert.Len(t, stats.RecentTrades, 2)
	})

	boardPath := "/api/leaderboard/event/" + event.ID

	t.Run("Top volume", func(t *testing.T) {
		var rows []analytics.LeaderboardRow
		mustCall(t, app, http.StatusOK, http.MethodGet, boardPath+"/top-volume", "", nil, &rows)
		require.Len(t, rows, 2) // customers without purchases are left out
		assert.Equal(t, kari.ID, rows[0].CustomerID)
		assert.Equal(t, 3, rows[0].Beers)
		assert.Equal(t, 1.5, rows[0].Liters.Float64)
		assert.Equal(t, 0.5, rows[1].Liters.Float64)
		assert.False(t, rows[0].BAC.Valid)

		mustCall(t, app, http.StatusOK, http.MethodGet, boardPath+"/top-volume?limit=1", "", nil, &rows)
		assert.Len(t, rows, 1)
	})

	t.Run("Top spend", func(t *testing.T) {
		var rows []analytics.LeaderboardRow
		mustCall(t, app, http.StatusOK, http.MethodGet, boardPath+"/top-spend", "", nil, &rows)
		require.Len(t, rows, 2)
		assert.Equal(t, "Kari", rows[0].Name)
		assert.Equal(t, 150.0, rows[0].TotalSpend.Float64)
		assert.Equal(t, 50.0, rows[1].TotalSpend.Float64)
	})

	t.Run("Top BAC", func(t *testing.T) {
		var rows []analytics.LeaderboardRow
		mustCall(t, app, http.StatusOK, http.MethodGet, boardPath+"/top-bac", "", nil, &rows)
		require.Len(t, rows, 2)
		assert.Equal(t, kari.ID, rows[0].CustomerID)
		assert.Greater(t, rows[0].BAC.Float64, rows[1].BAC.Float64)
		assert.Equal(t, analytics.Status(rows[0].BAC.Float64), rows[0].Status.String)
		assert.True(t, rows[0].Promille.Valid)
	})

	t.Run("Empty board", func(t *testing.T) {
		other := createEvent(t, exchange.NewEvent{})
		rec := call(t, app, http.MethodGet, "/api/leaderboard/event/"+other.ID+"/top-spend", "", nil)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallList(t)}, rec)
	})
}
