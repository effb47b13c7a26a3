package tests

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/beerxchange/core/exchange"
	"github.com/trezcool/beerxchange/core/user"
	"github.com/trezcool/beerxchange/tests"
)

var pngFile = formFile{field: "image", filename: "logo.png", contentType: "image/png", content: []byte("\x89PNG fake")}

func createEvent(t *testing.T, ne exchange.NewEvent) exchange.Event {
	event, err := exchangeSvc.CreateEvent(context.Background(), ne)
	require.NoError(t, err)
	return event
}

func addBeer(t *testing.T, eventID, name string, base, min, max float64) exchange.Beer {
	beer, err := exchangeSvc.AddBeer(context.Background(), eventID, exchange.NewBeer{
		Name:      name,
		BasePrice: &base,
		MinPrice:  &min,
		MaxPrice:  &max,
	})
	require.NoError(t, err)
	return beer
}

func Test_exchangeApi_events(t *testing.T) {
	app := setup(t)

	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin", "", []string{user.RoleAdminSuperuser}, true)
	brewer := testutil.CreateUser(t, usrRepo, "Brewer", "brewer", "", []string{user.RoleBrewer}, true)
	adminToken := getToken(t, admin)

	runTests(t, app, []httpTest{
		{name: "No events yet", path: "/api/events", wantData: marchallList(t)},
		{
			name: "Auth required", method: http.MethodPost, path: "/api/events", body: []byte(`{}`),
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken),
		},
		{
			name: "Admin required", method: http.MethodPost, path: "/api/events", body: []byte(`{}`),
			token: getToken(t, brewer), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "Bad currency", method: http.MethodPost, path: "/api/events", body: []byte(`{"currency":"KRONE"}`),
			token: adminToken, wantCode: http.StatusBadRequest,
		},
		{
			name: "Unknown event", path: "/api/events/nope",
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "event not found"}),
		},
	})

	var draft exchange.Event
	t.Run("Create with defaults", func(t *testing.T) {
		mustCall(t, app, http.StatusCreated, http.MethodPost, "/api/events", adminToken, `{}`, &draft)
		assert.NotEmpty(t, draft.ID)
		assert.Equal(t, exchange.DefaultEventName, draft.Name)
		assert.Equal(t, "NOK", draft.Currency)
		assert.Equal(t, exchange.StatusDraft, draft.Status)
		assert.False(t, draft.StartsAt.Valid)
	})

	t.Run("Create live", func(t *testing.T) {
		var event exchange.Event
		body := `{"name":"  Oktoberfest ","currency":"EUR","startLive":true}`
		mustCall(t, app, http.StatusCreated, http.MethodPost, "/api/events", adminToken, body, &event)
		assert.Equal(t, "Oktoberfest", event.Name)
		assert.Equal(t, "EUR", event.Currency)
		assert.Equal(t, exchange.StatusLive, event.Status)
		assert.True(t, event.StartsAt.Valid)
	})

	t.Run("Create with image", func(t *testing.T) {
		req, rec := newMultipartRequest(t, http.MethodPost, "/api/events", adminToken, map[string]string{"name": "Julebord"}, pngFile)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var event exchange.Event
		unmarshall(t, rec, &event)
		assert.Equal(t, "Julebord", event.Name)
		require.True(t, event.ImageURL.Valid)
		assert.True(t, strings.HasPrefix(event.ImageURL.String, "/uploads/"))

		// the image is served
		rec = call(t, app, http.MethodGet, event.ImageURL.String, "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "\x89PNG fake", rec.Body.String())
	})

	t.Run("Lifecycle", func(t *testing.T) {
		path := "/api/events/" + draft.ID

		var event exchange.Event
		mustCall(t, app, http.StatusOK, http.MethodGet, path, "", nil, &event)
		assert.Equal(t, draft.ID, event.ID)

		rec := call(t, app, http.MethodPost, path+"/start", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		mustCall(t, app, http.StatusOK, http.MethodPost, path+"/start", adminToken, nil, &event)
		assert.Equal(t, exchange.StatusLive, event.Status)
		assert.True(t, event.StartsAt.Valid)

		rec = call(t, app, http.MethodPost, path+"/start", adminToken, nil)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "event cannot be set live"}),
		}, rec)

		mustCall(t, app, http.StatusOK, http.MethodPost, path+"/close", adminToken, nil, &event)
		assert.Equal(t, exchange.StatusClosed, event.Status)
		assert.True(t, event.EndsAt.Valid)

		rec = call(t, app, http.MethodPost, path+"/close", adminToken, nil)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "event cannot be set closed"}),
		}, rec)
	})

	t.Run("List", func(t *testing.T) {
		var events []exchange.Event
		mustCall(t, app, http.StatusOK, http.MethodGet, "/api/events", "", nil, &events)
		assert.Len(t, events, 3)
	})
}

func Test_exchangeApi_beers(t *testing.T) {
	app := setup(t)

	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin", "", []string{user.RoleAdminSuperuser}, true)
	adminToken := getToken(t, admin)
	event := createEvent(t, exchange.NewEvent{StartLive: true})
	path := "/api/beers/event/" + event.ID

	runTests(t, app, []httpTest{
		{
			name: "Admin required", method: http.MethodPost, path: path, body: []byte(`{}`),
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken),
		},
		{
			name: "Required fields", method: http.MethodPost, path: path, body: []byte(`{}`), token: adminToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{
				"name":"this field is required",
				"base_price":"this field is required",
				"min_price":"this field is required",
				"max_price":"this field is required"
			}`),
		},
		{
			name: "Price bounds", method: http.MethodPost, path: path, token: adminToken,
			body:     []byte(`{"name":"IPA","base_price":10,"min_price":20,"max_price":30}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"base_price":"prices must satisfy min_price <= base_price <= max_price"}`),
		},
		{
			name: "Unknown event", method: http.MethodPost, path: "/api/beers/event/nope", token: adminToken,
			body:     []byte(`{"name":"IPA","base_price":50,"min_price":30,"max_price":80}`),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "event not found"}),
		},
		{
			name: "List of unknown event", path: "/api/beers/event/nope",
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "event not found"}),
		},
		{name: "No beers yet", path: path, wantData: marchallList(t)},
	})

	var ipa, stout exchange.Beer
	t.Run("Add", func(t *testing.T) {
		body := `{"name":" IPA ","brewery":"Lervig","abv":6.5,"volume_ml":330,"base_price":50,"min_price":30,"max_price":80}`
		mustCall(t, app, http.StatusCreated, http.MethodPost, path, adminToken, body, &ipa)
		assert.Equal(t, "IPA", ipa.Name)
		assert.Equal(t, "Lervig", ipa.Brewery.String)
		assert.Equal(t, 6.5, ipa.ABV.Float64)
		assert.Equal(t, 330, ipa.VolumeML.Int)
		assert.Equal(t, 50.0, ipa.CurrentPrice)
		assert.Equal(t, 0, ipa.Position)
		assert.True(t, ipa.Active)

		body = `{"name":"Stout","base_price":40,"min_price":20,"max_price":60}`
		mustCall(t, app, http.StatusCreated, http.MethodPost, path, adminToken, body, &stout)
		assert.Equal(t, 1, stout.Position)
		assert.False(t, stout.Brewery.Valid)
	})

	t.Run("List", func(t *testing.T) {
		var beers []exchange.BeerWithChange
		mustCall(t, app, http.StatusOK, http.MethodGet, path, "", nil, &beers)
		require.Len(t, beers, 2)
		assert.Equal(t, ipa.ID, beers[0].ID)
		assert.Equal(t, stout.ID, beers[1].ID)
		assert.True(t, beers[0].LastHourChange.Valid)
		assert.Equal(t, 0.0, beers[0].LastHourChange.Float64)
	})

	t.Run("Update", func(t *testing.T) {
		beerPath := "/api/beers/" + ipa.ID + "/event/" + event.ID

		var beer exchange.Beer
		mustCall(t, app, http.StatusOK, http.MethodPatch, beerPath, adminToken, `{"max_price":45,"base_price":40}`, &beer)
		assert.Equal(t, 45.0, beer.MaxPrice)
		assert.Equal(t, 40.0, beer.BasePrice)
		assert.Equal(t, 45.0, beer.CurrentPrice) // clamped
		assert.Equal(t, "IPA", beer.Name)

		rec := call(t, app, http.MethodPatch, beerPath, adminToken, `{"min_price":60}`)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"base_price":"prices must satisfy min_price <= base_price <= max_price"}`),
		}, rec)

		rec = call(t, app, http.MethodPatch, "/api/beers/nope/event/"+event.ID, adminToken, `{"active":false}`)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "beer not found"}),
		}, rec)
	})
}

func Test_exchangeApi_customers(t *testing.T) {
	app := setup(t)

	event := createEvent(t, exchange.NewEvent{StartLive: true})
	path := "/api/customers/event/" + event.ID

	runTests(t, app, []httpTest{
		{
			name: "Name required", method: http.MethodPost, path: path, body: []byte(`{"gender":"male"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"name":"this field is required"}`),
		},
		{
			name: "Unknown gender", method: http.MethodPost, path: path, body: []byte(`{"name":"Ola","gender":"robot"}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "Unknown event", method: http.MethodPost, path: "/api/customers/event/nope", body: []byte(`{"name":"Ola"}`),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "event not found"}),
		},
		{name: "No customers yet", path: path, wantData: marchallList(t)},
	})

	var kari, ola exchange.Customer
	t.Run("Create", func(t *testing.T) {
		mustCall(t, app, http.StatusCreated, http.MethodPost, path, "", `{"name":"Kari","gender":"FEMALE","weight":60}`, &kari)
		assert.Equal(t, "Kari", kari.Name)
		assert.Equal(t, "female", kari.Gender.String)
		assert.Equal(t, 60.0, kari.WeightKg.Float64)
		assert.Equal(t, event.ID, kari.EventID)
	})

	t.Run("Create with image", func(t *testing.T) {
		fields := map[string]string{"name": "Ola", "gender": "male", "weight": "82.5"}
		req, rec := newMultipartRequest(t, http.MethodPost, path, "", fields, pngFile)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		unmarshall(t, rec, &ola)
		assert.Equal(t, "Ola", ola.Name)
		assert.Equal(t, 82.5, ola.WeightKg.Float64)
		assert.True(t, strings.HasPrefix(ola.ProfileImageURL.String, "/uploads/"))
	})

	t.Run("Images only", func(t *testing.T) {
		txt := formFile{field: "image", filename: "notes.txt", contentType: "text/plain", content: []byte("hi")}
		req, rec := newMultipartRequest(t, http.MethodPost, path, "", map[string]string{"name": "Per"}, txt)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest, wantData: []byte(`{"image":"only image files are allowed"}`),
		}, rec)
	})

	t.Run("Update", func(t *testing.T) {
		var cust exchange.Customer
		custPath := "/api/customers/" + kari.ID + "/event/" + event.ID
		mustCall(t, app, http.StatusOK, http.MethodPut, custPath, "", `{"name":"Kari N","gender":"female","phone":"+47 999"}`, &cust)
		assert.Equal(t, "Kari N", cust.Name)
		assert.Equal(t, "+47 999", cust.Phone.String)
		assert.Equal(t, 60.0, cust.WeightKg.Float64) // kept

		rec := call(t, app, http.MethodPut, "/api/customers/nope/event/"+event.ID, "", `{"name":"X"}`)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "customer not found"}),
		}, rec)
	})

	t.Run("List", func(t *testing.T) {
		var customers []exchange.Customer
		mustCall(t, app, http.StatusOK, http.MethodGet, path, "", nil, &customers)
		require.Len(t, customers, 2)
		assert.Equal(t, "Kari N", customers[0].Name) // by name
		assert.Equal(t, "Ola", customers[1].Name)
	})
}

func Test_exchangeApi_purchase(t *testing.T) {
	app := setup(t)

	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin", "", []string{user.RoleAdminSuperuser}, true)
	adminToken := getToken(t, admin)

	event := createEvent(t, exchange.NewEvent{StartLive: true})
	ipa := addBeer(t, event.ID, "IPA", 50, 30, 80)
	stout := addBeer(t, event.ID, "Stout", 40, 20, 60)
	kari, err := exchangeSvc.CreateCustomer(context.Background(), event.ID, exchange.CustomerInput{Name: "Kari"})
	require.NoError(t, err)

	purchase := func(beerID, customerID string, qty int) string {
		return string(marchallObj(t, exchange.NewTransaction{
			EventID: event.ID, EventBeerID: beerID, CustomerID: customerID, Qty: qty,
		}))
	}

	runTests(t, app, []httpTest{
		{
			name: "Required fields", method: http.MethodPost, path: "/api/transactions", body: []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"event_id":"this field is required","event_beer_id":"this field is required"}`),
		},
		{
			name: "Unknown event", method: http.MethodPost, path: "/api/transactions",
			body:     []byte(`{"event_id":"nope","event_beer_id":"` + ipa.ID + `"}`),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "event not found"}),
		},
		{
			name: "Unknown beer", method: http.MethodPost, path: "/api/transactions",
			body:     []byte(purchase("nope", "", 1)),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "beer not found"}),
		},
		{
			name: "Unknown customer", method: http.MethodPost, path: "/api/transactions",
			body:     []byte(purchase(ipa.ID, "nope", 1)),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "customer not found"}),
		},
	})

	t.Run("Purchase moves prices", func(t *testing.T) {
		var res exchange.PurchaseResult
		mustCall(t, app, http.StatusCreated, http.MethodPost, "/api/transactions", "", purchase(ipa.ID, kari.ID, 2), &res)

		tx := res.Transaction
		assert.Equal(t, 2, tx.Qty)
		assert.Equal(t, 50.0, tx.UnitPrice)
		assert.Equal(t, exchange.DefaultVolumeML, tx.VolumeML)
		assert.Equal(t, "Kari", tx.CustomerName.String)
		assert.Equal(t, "IPA", tx.BeerName.String)
		assert.NotEmpty(t, res.PriceUpdates)

		var beers []exchange.BeerWithChange
		mustCall(t, app, http.StatusOK, http.MethodGet, "/api/beers/event/"+event.ID, "", nil, &beers)
		require.Len(t, beers, 2)
		assert.Greater(t, beers[0].CurrentPrice, 50.0)
		assert.Less(t, beers[1].CurrentPrice, 40.0)
		assert.Greater(t, beers[0].LastHourChange.Float64, 0.0)
		assert.Less(t, beers[1].LastHourChange.Float64, 0.0)
	})

	t.Run("Anonymous purchase at the client price", func(t *testing.T) {
		var res exchange.PurchaseResult
		body := `{"event_id":"` + event.ID + `","event_beer_id":"` + stout.ID + `","price_client":35,"volume_ml":330}`
		mustCall(t, app, http.StatusCreated, http.MethodPost, "/api/transactions", "", body, &res)
		assert.Equal(t, 1, res.Transaction.Qty)
		assert.Equal(t, 35.0, res.Transaction.UnitPrice)
		assert.Equal(t, 330, res.Transaction.VolumeML)
		assert.False(t, res.Transaction.CustomerID.Valid)
	})

	t.Run("Transactions", func(t *testing.T) {
		var txs []exchange.TransactionRow
		mustCall(t, app, http.StatusOK, http.MethodGet, "/api/transactions/event/"+event.ID, "", nil, &txs)
		require.Len(t, txs, 2)
		assert.Equal(t, stout.ID, txs[0].EventBeerID) // newest first

		mustCall(t, app, http.StatusOK, http.MethodGet, "/api/transactions/event/"+event.ID+"?limit=1", "", nil, &txs)
		assert.Len(t, txs, 1)
	})

	t.Run("Customer stats", func(t *testing.T) {
		var stats []exchange.CustomerStats
		mustCall(t, app, http.StatusOK, http.MethodGet, "/api/customers/event/"+event.ID+"/stats", "", nil, &stats)
		require.Len(t, stats, 1)
		assert.Equal(t, 2, stats[0].Beers)
		assert.Equal(t, 100.0, stats[0].Tab)

		var details exchange.CustomerDetails
		path := "/api/customers/" + kari.ID + "/event/" + event.ID
		mustCall(t, app, http.StatusOK, http.MethodGet, path, "", nil, &details)
		assert.Equal(t, 2, details.Beers)
		assert.Len(t, details.Transactions, 1)
	})

	t.Run("Inactive beer", func(t *testing.T) {
		mustCall(t, app, http.StatusOK, http.MethodPatch, "/api/beers/"+stout.ID+"/event/"+event.ID, adminToken, `{"active":false}`, nil)

		rec := call(t, app, http.MethodPost, "/api/transactions", "", purchase(stout.ID, "", 1))
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "beer is not available"}),
		}, rec)
	})

	t.Run("Closed event", func(t *testing.T) {
		mustCall(t, app, http.StatusOK, http.MethodPost, "/api/events/"+event.ID+"/close", adminToken, nil, nil)

		rec := call(t, app, http.MethodPost, "/api/transactions", "", purchase(ipa.ID, "", 1))
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "event is closed"}),
		}, rec)
	})
}
