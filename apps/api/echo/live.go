package echoapi

import (
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/beerxchange/core"
	"github.com/trezcool/beerxchange/core/brewing"
	"github.com/trezcool/beerxchange/core/exchange"
	livesvc "github.com/trezcool/beerxchange/services/live"
)

// Live events sent by the server itself
const liveConnected = "connected"

type liveApi struct {
	broker    *livesvc.Broker
	exchange  *exchange.Service
	brewing   *brewing.Service
	eventBeat time.Duration
	brewBeat  time.Duration
	now       core.Clock
}

func registerLiveAPI(
	g *echo.Group,
	brewer echo.MiddlewareFunc,
	broker *livesvc.Broker,
	exchangeSvc *exchange.Service,
	brewingSvc *brewing.Service,
	conf core.ServerConfig,
) {
	api := liveApi{
		broker:    broker,
		exchange:  exchangeSvc,
		brewing:   brewingSvc,
		eventBeat: conf.EventHeartbeat,
		brewBeat:  conf.BrewHeartbeat,
		now:       core.UTCNow,
	}

	lg := g.Group("/live")
	lg.GET("/events/:eventId/stream", api.eventStream)
	lg.GET("/brews/:brewId/stream", api.brewStream, brewer)
}

// eventStream follows the prices and sales of an event. A comment line keeps the connection alive.
func (api *liveApi) eventStream(ctx echo.Context) error {
	eventID := ctx.Param("eventId")
	if _, err := api.exchange.GetEvent(ctx.Request().Context(), eventID); err != nil {
		return errors.Wrap(err, "getting event")
	}
	return api.stream(ctx, exchange.EventTopic(eventID), api.eventBeat, ":\n\n", nil)
}

// brewStream follows the updates of a brew, after a "connected" event.
func (api *liveApi) brewStream(ctx echo.Context) error {
	brewer, err := contextBrewer(ctx)
	if err != nil {
		return err
	}
	brewID := ctx.Param("brewId")
	if _, err = api.brewing.GetBrew(ctx.Request().Context(), brewer.ID, brewID); err != nil {
		return errors.Wrap(err, "getting brew")
	}

	hello := &livesvc.Message{
		Event: liveConnected,
		Data:  map[string]interface{}{"brewId": brewID, "connectedAt": api.now()},
	}
	return api.stream(ctx, brewing.BrewTopic(brewID), api.brewBeat, ": ping\n\n", hello)
}

// stream relays the topic's messages until the client goes away.
func (api *liveApi) stream(ctx echo.Context, topic string, beat time.Duration, ping string, hello *livesvc.Message) error {
	msgs, unsubscribe := api.broker.Subscribe(topic)
	defer unsubscribe()

	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)

	if hello != nil {
		if _, err := hello.WriteTo(res); err != nil {
			return nil
		}
	}
	res.Flush()

	var heartbeat <-chan time.Time
	if beat > 0 {
		ticker := time.NewTicker(beat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	done := ctx.Request().Context().Done()
	for {
		select {
		case <-done:
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			if _, err := msg.WriteTo(res); err != nil {
				return nil // client gone
			}
			res.Flush()
		case <-heartbeat:
			if _, err := io.WriteString(res, ping); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}
