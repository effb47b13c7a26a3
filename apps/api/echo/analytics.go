package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/beerxchange/core/analytics"
)

type analyticsApi struct {
	svc *analytics.Service
}

func registerAnalyticsAPI(g *echo.Group, svc *analytics.Service) {
	api := analyticsApi{svc: svc}

	ag := g.Group("/analytics/event/:eventId/beer/:beerId")
	ag.GET("/price-history", api.priceHistory)
	ag.GET("/stats", api.beerStats)

	lg := g.Group("/leaderboard/event/:eventId")
	lg.GET("/top-volume", api.leaderboard(svc.TopVolume))
	lg.GET("/top-spend", api.leaderboard(svc.TopSpend))
	lg.GET("/top-bac", api.leaderboard(svc.TopBAC))
}

func (api *analyticsApi) priceHistory(ctx echo.Context) error {
	points, err := api.svc.PriceHistory(
		ctx.Request().Context(), ctx.Param("eventId"), ctx.Param("beerId"), ctx.QueryParam("range"),
	)
	if err != nil {
		return errors.Wrap(err, "getting price history")
	}
	return ctx.JSON(http.StatusOK, points)
}

func (api *analyticsApi) beerStats(ctx echo.Context) error {
	stats, err := api.svc.BeerStats(ctx.Request().Context(), ctx.Param("eventId"), ctx.Param("beerId"))
	if err != nil {
		return errors.Wrap(err, "getting beer stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

type boardFunc func(ctx context.Context, eventID string, limit int) ([]analytics.LeaderboardRow, error)

func (api *analyticsApi) leaderboard(board boardFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		rows, err := board(ctx.Request().Context(), ctx.Param("eventId"), intQuery(ctx, "limit", analytics.DefaultLeaderboardLimit))
		if err != nil {
			return errors.Wrap(err, "computing leaderboard")
		}
		return ctx.JSON(http.StatusOK, rows)
	}
}
