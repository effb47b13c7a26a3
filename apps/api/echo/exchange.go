package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/beerxchange/core/exchange"
	"github.com/trezcool/beerxchange/core/user"
	uploadsvc "github.com/trezcool/beerxchange/services/upload"
)

type exchangeApi struct {
	svc      *exchange.Service
	images   *uploadsvc.ImageStore
	validate *validator.Validate
}

func registerExchangeAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc *exchange.Service,
	images *uploadsvc.ImageStore,
	validate *validator.Validate,
) {
	api := exchangeApi{svc: svc, images: images, validate: validate}
	admin := adminMiddleware(user.AdminRoles...)

	eg := g.Group("/events")
	eg.GET("", api.listEvents)
	eg.GET("/:id", api.retrieveEvent)
	eg.POST("", api.createEvent, jwt, admin)
	eg.POST("/:id/start", api.startEvent, jwt, admin)
	eg.POST("/:id/close", api.closeEvent, jwt, admin)

	bg := g.Group("/beers")
	bg.GET("/event/:eventId", api.listBeers)
	bg.POST("/event/:eventId", api.addBeer, jwt, admin)
	bg.PATCH("/:beerId/event/:eventId", api.updateBeer, jwt, admin)

	cg := g.Group("/customers")
	cg.GET("/event/:eventId", api.listCustomers)
	cg.GET("/event/:eventId/stats", api.customerStats)
	cg.GET("/:customerId/event/:eventId", api.customerDetails)
	cg.POST("/event/:eventId", api.createCustomer)
	cg.PUT("/:customerId/event/:eventId", api.updateCustomer)

	tg := g.Group("/transactions")
	tg.GET("/event/:eventId", api.listTransactions)
	tg.POST("", api.purchase)
}

// Events

func (api *exchangeApi) listEvents(ctx echo.Context) error {
	events, err := api.svc.ListEvents(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing events")
	}
	if events == nil {
		events = []exchange.Event{}
	}
	return ctx.JSON(http.StatusOK, events)
}

func (api *exchangeApi) retrieveEvent(ctx echo.Context) error {
	event, err := api.svc.GetEvent(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting event")
	}
	return ctx.JSON(http.StatusOK, event)
}

func (api *exchangeApi) createEvent(ctx echo.Context) error {
	var data exchange.NewEvent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEvent")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	imageURL, err := formImage(ctx, api.images)
	if err != nil {
		return errors.Wrap(err, "saving event image")
	}
	if imageURL != "" {
		data.ImageURL = imageURL
	}

	event, err := api.svc.CreateEvent(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating event")
	}
	return ctx.JSON(http.StatusCreated, event)
}

func (api *exchangeApi) startEvent(ctx echo.Context) error {
	event, err := api.svc.StartEvent(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "starting event")
	}
	return ctx.JSON(http.StatusOK, event)
}

func (api *exchangeApi) closeEvent(ctx echo.Context) error {
	event, err := api.svc.CloseEvent(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "closing event")
	}
	return ctx.JSON(http.StatusOK, event)
}

// Beers

func (api *exchangeApi) listBeers(ctx echo.Context) error {
	eventID := ctx.Param("eventId")
	if _, err := api.svc.GetEvent(ctx.Request().Context(), eventID); err != nil {
		return errors.Wrap(err, "getting event")
	}
	beers, err := api.svc.ListBeers(ctx.Request().Context(), eventID)
	if err != nil {
		return errors.Wrap(err, "listing beers")
	}
	return ctx.JSON(http.StatusOK, beers)
}

func (api *exchangeApi) addBeer(ctx echo.Context) error {
	var data exchange.NewBeer
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewBeer")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	beer, err := api.svc.AddBeer(ctx.Request().Context(), ctx.Param("eventId"), data)
	if err != nil {
		return errors.Wrap(err, "adding beer")
	}
	return ctx.JSON(http.StatusCreated, beer)
}

func (api *exchangeApi) updateBeer(ctx echo.Context) error {
	var data exchange.UpdateBeer
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateBeer")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	beer, err := api.svc.UpdateBeer(ctx.Request().Context(), ctx.Param("eventId"), ctx.Param("beerId"), data)
	if err != nil {
		return errors.Wrap(err, "updating beer")
	}
	return ctx.JSON(http.StatusOK, beer)
}

// Customers

func (api *exchangeApi) listCustomers(ctx echo.Context) error {
	customers, err := api.svc.ListCustomers(ctx.Request().Context(), ctx.Param("eventId"))
	if err != nil {
		return errors.Wrap(err, "listing customers")
	}
	if customers == nil {
		customers = []exchange.Customer{}
	}
	return ctx.JSON(http.StatusOK, customers)
}

func (api *exchangeApi) customerStats(ctx echo.Context) error {
	stats, err := api.svc.CustomerStats(ctx.Request().Context(), ctx.Param("eventId"))
	if err != nil {
		return errors.Wrap(err, "listing customer stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *exchangeApi) customerDetails(ctx echo.Context) error {
	details, err := api.svc.CustomerDetails(ctx.Request().Context(), ctx.Param("eventId"), ctx.Param("customerId"))
	if err != nil {
		return errors.Wrap(err, "getting customer details")
	}
	return ctx.JSON(http.StatusOK, details)
}

func (api *exchangeApi) createCustomer(ctx echo.Context) error {
	data, err := api.bindCustomer(ctx)
	if err != nil {
		return err
	}
	cust, err := api.svc.CreateCustomer(ctx.Request().Context(), ctx.Param("eventId"), data)
	if err != nil {
		return errors.Wrap(err, "creating customer")
	}
	return ctx.JSON(http.StatusCreated, cust)
}

func (api *exchangeApi) updateCustomer(ctx echo.Context) error {
	data, err := api.bindCustomer(ctx)
	if err != nil {
		return err
	}
	cust, err := api.svc.UpdateCustomer(ctx.Request().Context(), ctx.Param("eventId"), ctx.Param("customerId"), data)
	if err != nil {
		return errors.Wrap(err, "updating customer")
	}
	return ctx.JSON(http.StatusOK, cust)
}

// bindCustomer reads a customer from a JSON body or a multipart form carrying an optional image.
func (api *exchangeApi) bindCustomer(ctx echo.Context) (exchange.CustomerInput, error) {
	var data exchange.CustomerInput
	if err := ctx.Bind(&data); err != nil {
		return data, errors.Wrap(err, "binding to CustomerInput")
	}
	if isMultipart(ctx) {
		data.WeightKg = formFloat(ctx, "weight")
	}
	data.Clean()
	if err := api.validate.Struct(data); err != nil {
		return data, err
	}

	imageURL, err := formImage(ctx, api.images)
	if err != nil {
		return data, errors.Wrap(err, "saving customer image")
	}
	if imageURL != "" {
		data.ProfileImageURL = imageURL
	}
	return data, nil
}

// Transactions

func (api *exchangeApi) listTransactions(ctx echo.Context) error {
	txs, err := api.svc.ListTransactions(ctx.Request().Context(), ctx.Param("eventId"), intQuery(ctx, "limit", 0))
	if err != nil {
		return errors.Wrap(err, "listing transactions")
	}
	if txs == nil {
		txs = []exchange.TransactionRow{}
	}
	return ctx.JSON(http.StatusOK, txs)
}

func (api *exchangeApi) purchase(ctx echo.Context) error {
	var data exchange.NewTransaction
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTransaction")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	res, err := api.svc.Purchase(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "registering purchase")
	}
	return ctx.JSON(http.StatusCreated, res)
}
