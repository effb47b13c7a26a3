package echoapi

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/beerxchange/core/brewing"
)

type brewingApi struct {
	svc      *brewing.Service
	validate *validator.Validate
}

func registerBrewingAPI(g *echo.Group, brewer echo.MiddlewareFunc, svc *brewing.Service, validate *validator.Validate) {
	api := brewingApi{svc: svc, validate: validate}

	rg := g.Group("/recipes", brewer)
	rg.GET("", api.listRecipes)
	rg.POST("", api.createRecipe)
	rg.GET("/:id", api.retrieveRecipe)
	rg.PUT("/:id", api.updateRecipe)
	rg.PATCH("/:id", api.updateRecipe)
	rg.DELETE("/:id", api.destroyRecipe)

	bg := g.Group("/brews", brewer)
	bg.POST("/from-recipe/:recipeId", api.planBrew)
	bg.POST("", api.createBrew)
	bg.GET("/current", api.currentBrew)
	bg.GET("", api.listBrews)

	dg := bg.Group("/:id")
	dg.GET("", api.retrieveBrew)
	dg.PATCH("", api.updateBrew)
	dg.DELETE("", api.destroyBrew)
	dg.PATCH("/current-step", api.setCurrentStep)
	dg.POST("/start", api.startBrew)
	dg.POST("/steps/:stepId/start", api.startStep)
	dg.POST("/steps/:stepId/pause", api.stepAction(svc.PauseStep))
	dg.POST("/steps/:stepId/complete", api.stepAction(svc.CompleteStep))
	dg.POST("/steps/:stepId/reset", api.stepAction(svc.ResetStep))
	dg.POST("/measurements", api.addMeasurement)
	dg.GET("/graph", api.graph)
}

// Recipes

func (api *brewingApi) listRecipes(ctx echo.Context) error {
	brewer, err := contextBrewer(ctx)
	if err != nil {
		return err
	}
	var filter brewing.RecipeFilter
	if err = ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []brewing.Recipe{})
	}

	recipes, err := api.svc.ListRecipes(ctx.Request().Context(), brewer.ID, filter)
	if err != nil {
		return errors.Wrap(err, "listing recipes")
	}
	return ctx.JSON(http.StatusOK, recipes)
}

func (api *brewingApi) createRecipe(ctx echo.Context) error {
	brewer, err := contextBrewer(ctx)
	if err != nil {
		return err
	}
	var data brewing.RecipeInput
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RecipeInput")
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}

	recipe, err := api.svc.CreateRecipe(ctx.Request().Context(), brewer.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating recipe")
	}
	return ctx.JSON(http.StatusCreated, recipe)
}

func (api *brewingApi) retrieveRecipe(ctx echo.Context) error {
	brewer, err := contextBrewer(ctx)
	if err != nil {
		return err
	}
	recipe, err := api.svc.GetRecipe(ctx.Request().Context(), brewer.ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting recipe")
	}
	return ctx.JSON(http.StatusOK, recipe)
}

func (api *brewingApi) updateRecipe(ctx echo.Context) error {
	brewer, err := contextBrewer(ctx)
	if err != nil {
		return err
	}
	var data brewing.RecipeInput
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RecipeInput")
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}

	recipe, err := api.svc.UpdateRecipe(ctx.Request().Context(), brewer.ID, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating recipe")
	}
	return ctx.JSON(http.StatusOK, recipe)
}

func (api *brewingApi) destroyRecipe(ctx echo.Context) error {
	brewer, err := contextBrewer(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteRecipe(ctx.Request().Context(), brewer.ID, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting recipe")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Brews

func (api *brewingApi) planBrew(ctx echo.Context) error {
	brewer, err := contextBrewer(ctx)
	if err != nil {
		return err
	}
	var data brewing.FromRecipe
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to FromRecipe")
	}

	brew, err := api.svc.PlanBrew(ctx.Request().Context(), brewer.ID, ctx.Param("recipeId"), data)
	if err != nil {
		return errors.Wrap(err, "planning brew")
	}
	return ctx.JSON(http.StatusCreated, brew)
}

func (api *brewingApi) createBrew(ctx echo.Context) error {
	brewer, err := contextBrewer(ctx)
	if err != nil {
		return err
	}
	var data brewing.BrewInput
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BrewInput")
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}

	brew, err := api.svc.CreateBrew(ctx.Request().Context(), brewer.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating brew")
	}
	return ctx.JSON(http.StatusCreated, brew)
}

func (api *brewingApi) currentBrew(ctx echo.Context) error {
	brewer, err := contextBrewer(ctx)
	if err != nil {
		return err
	}
	brew, err := api.svc.CurrentBrew(ctx.Request().Context(), brewer.ID)
	if err != nil {
		return errors.Wrap(err, "getting current brew")
	}
	return ctx.JSON(http.StatusOK, brew) // null when there is none
}

func (api *brewingApi) listBrews(ctx echo.Context) error {
	brewer, err := contextBrewer(ctx)
	if err != nil {
		return err
	}
	filter := brewing.BrewFilter{Statuses: listQuery(ctx, "status"), Q: ctx.QueryParam("q")}

	brews, err := api.svc.ListBrews(ctx.Request().Context(), brewer.ID, filter)
	if err != nil {
		return errors.Wrap(err, "listing brews")
	}
	return ctx.JSON(http.StatusOK, brews)
}

func (api *brewingApi) retrieveBrew(ctx echo.Context) error {
	brewer, err := contextBrewer(ctx)
	if err != nil {
		return err
	}
	brew, err := api.svc.GetBrew(ctx.Request().Context(), brewer.ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting brew")
	}
	return ctx.JSON(http.StatusOK, brew)
}

func (api *brewingApi) updateBrew(ctx echo.Context) error {
	brewer, err := contextBrewer(ctx)
	if err != nil {
		return err
	}
	var data brewing.BrewInput
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BrewInput")
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}

	brew, err := api.svc.UpdateBrew(ctx.Request().Context(), brewer.ID, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating brew")
	}
	return ctx.JSON(http.StatusOK, brew)
}

func (api *brewingApi) destroyBrew(ctx echo.Context) error {
	brewer, err := contextBrewer(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteBrew(ctx.Request().Context(), brewer.ID, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting brew")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *brewingApi) setCurrentStep(ctx echo.Context) error {
	brewer, err := contextBrewer(ctx)
	if err != nil {
		return err
	}
	var data CurrentStepRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CurrentStepRequest")
	}

	brew, err := api.svc.SetCurrentStep(ctx.Request().Context(), brewer.ID, ctx.Param("id"), int(data.Index.Float64.Float64))
	if err != nil {
		return errors.Wrap(err, "setting current step")
	}
	return ctx.JSON(http.StatusOK, brew)
}

func (api *brewingApi) startBrew(ctx echo.Context) error {
	brewer, err := contextBrewer(ctx)
	if err != nil {
		return err
	}
	brew, err := api.svc.StartBrew(ctx.Request().Context(), brewer.ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "starting brew")
	}
	return ctx.JSON(http.StatusOK, brew)
}

func (api *brewingApi) startStep(ctx echo.Context) error {
	brewer, err := contextBrewer(ctx)
	if err != nil {
		return err
	}
	var data StartStepRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StartStepRequest")
	}
	var duration int // 0: no explicit duration
	if data.DurationSeconds.Valid && data.DurationSeconds.Float64.Float64 > 0 {
		duration = int(data.DurationSeconds.Float64.Float64)
	}

	brew, err := api.svc.StartStep(ctx.Request().Context(), brewer.ID, ctx.Param("id"), ctx.Param("stepId"), duration)
	if err != nil {
		return errors.Wrap(err, "starting step")
	}
	return ctx.JSON(http.StatusOK, brew)
}

type stepFunc func(ctx context.Context, brewerID, id, stepID string) (brewing.BrewView, error)

// stepAction serves the step transitions that take no payload.
func (api *brewingApi) stepAction(fn stepFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		brewer, err := contextBrewer(ctx)
		if err != nil {
			return err
		}
		brew, err := fn(ctx.Request().Context(), brewer.ID, ctx.Param("id"), ctx.Param("stepId"))
		if err != nil {
			return errors.Wrap(err, "updating step")
		}
		return ctx.JSON(http.StatusOK, brew)
	}
}

func (api *brewingApi) addMeasurement(ctx echo.Context) error {
	brewer, err := contextBrewer(ctx)
	if err != nil {
		return err
	}
	var data brewing.MeasurementInput
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MeasurementInput")
	}

	m, err := api.svc.AddMeasurement(ctx.Request().Context(), brewer.ID, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "adding measurement")
	}
	return ctx.JSON(http.StatusCreated, m)
}

func (api *brewingApi) graph(ctx echo.Context) error {
	brewer, err := contextBrewer(ctx)
	if err != nil {
		return err
	}
	graph, err := api.svc.Graph(ctx.Request().Context(), brewer.ID, ctx.Param("id"), ctx.QueryParam("metric"))
	if err != nil {
		return errors.Wrap(err, "building graph")
	}
	return ctx.JSON(http.StatusOK, graph)
}

type (
	CurrentStepRequest struct {
		Index brewing.Float `json:"index"`
	}

	StartStepRequest struct {
		DurationSeconds brewing.Float `json:"durationSeconds"`
	}
)
