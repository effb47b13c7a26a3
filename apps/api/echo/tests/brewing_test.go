package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/beerxchange/core"
	"github.com/trezcool/beerxchange/core/brewing"
	"github.com/trezcool/beerxchange/core/user"
	"github.com/trezcool/beerxchange/tests"
)

const recipeBody = `{
	"name": "Pale Ale",
	"beerType": "APA",
	"flavorProfile": "citrus, pine",
	"defaults": {"og": "1.052", "fg": 1.010, "ibu": 35},
	"steps": [
		{"stepType": "mash", "title": "Mash", "durationMinutes": 60, "temperatureC": 67},
		{"stepType": "boil", "title": "Boil", "durationMinutes": "30"},
		{"stepType": "primary_fermentation", "title": "Ferment"},
		{"title": ""}
	]
}`

func Test_brewingApi_access(t *testing.T) {
	app := setup(t)

	brewer := testutil.CreateUser(t, usrRepo, "Brewer", "brewer", "", []string{user.RoleBrewer}, true)
	gone := testutil.CreateUser(t, usrRepo, "Gone", "gone", "", []string{user.RoleBrewer}, false)
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin", "", []string{user.RoleAdminSuperuser}, true)

	runTests(t, app, []httpTest{
		{name: "Demo brewer without token", path: "/api/recipes", wantData: marchallList(t)},
		{name: "Brewer token", path: "/api/recipes", token: getToken(t, brewer), wantData: marchallList(t)},
		{
			name: "Invalid token", path: "/api/recipes", token: "not.a.jwt",
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, httpErr{Error: "invalid or expired jwt"}),
		},
		{
			name: "Admins are not brewers", path: "/api/recipes", token: getToken(t, admin),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "Inactive brewer", path: "/api/recipes", token: getToken(t, gone),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
	})

	t.Run("Brewers only see their own recipes", func(t *testing.T) {
		var recipe brewing.Recipe
		mustCall(t, app, http.StatusCreated, http.MethodPost, "/api/recipes", getToken(t, brewer), recipeBody, &recipe)
		assert.Equal(t, brewer.ID, recipe.BrewerID)

		rec := call(t, app, http.MethodGet, "/api/recipes/"+recipe.ID, "", nil) // demo brewer
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "recipe not found"}),
		}, rec)

		// nor can they plan brews from them
		rec = call(t, app, http.MethodPost, "/api/brews", "", `{"recipeId":"`+recipe.ID+`"}`)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "recipeId does not belong to this brewer"}),
		}, rec)
	})
}

func Test_brewingApi_demoDisabled(t *testing.T) {
	app := setup(t, func(c *core.Config) { c.DemoBrewer = false })

	runTests(t, app, []httpTest{
		{name: "Token required", path: "/api/recipes", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Current brew", path: "/api/brews/current", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
	})
}

func Test_brewingApi_recipes(t *testing.T) {
	app := setup(t)

	runTests(t, app, []httpTest{
		{
			name: "Name required", method: http.MethodPost, path: "/api/recipes", body: []byte(`{"beerType":"IPA"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"name":"recipe name is required"}`),
		},
		{
			name: "Unknown step type", method: http.MethodPost, path: "/api/recipes",
			body:     []byte(`{"name":"Lager","steps":[{"stepType":"dance","title":"Dance"}]}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"stepType":"unknown step type"}`),
		},
		{
			name: "Unknown recipe", path: "/api/recipes/nope",
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "recipe not found"}),
		},
	})

	var pale, stout brewing.Recipe
	t.Run("Create", func(t *testing.T) {
		mustCall(t, app, http.StatusCreated, http.MethodPost, "/api/recipes", "", recipeBody, &pale)
		assert.NotEmpty(t, pale.ID)
		assert.Equal(t, "Pale Ale", pale.Name)
		assert.Equal(t, "APA", pale.BeerType.String)
		assert.Equal(t, 1.052, pale.Defaults.OG.Float64)
		assert.Equal(t, 1.010, pale.Defaults.FG.Float64)
		assert.False(t, pale.Defaults.SG.Valid)

		require.Len(t, pale.Steps, 3) // untitled steps are dropped
		assert.Equal(t, brewing.StepMash, pale.Steps[0].StepType)
		assert.Equal(t, 60.0, pale.Steps[0].DurationMinutes.Float64)
		assert.Equal(t, 30.0, pale.Steps[1].DurationMinutes.Float64)
		assert.False(t, pale.Steps[2].DurationMinutes.Valid)

		mustCall(t, app, http.StatusCreated, http.MethodPost, "/api/recipes", "", `{"name":"Imperial Stout","beerType":"stout"}`, &stout)
		assert.Empty(t, stout.Steps)
	})

	t.Run("List", func(t *testing.T) {
		cases := []struct {
			query string
			want  []string
		}{
			{"", []string{stout.ID, pale.ID}},
			{"?sort=oldest", []string{pale.ID, stout.ID}},
			{"?sort=name_asc", []string{stout.ID, pale.ID}},
			{"?sort=steps_desc", []string{pale.ID, stout.ID}},
			{"?q=PINE", []string{pale.ID}},
			{"?q=ferment", []string{pale.ID}},
			{"?beerType=STOUT", []string{stout.ID}},
			{"?stepType=boil", []string{pale.ID}},
			{"?hasDefaults=true", []string{pale.ID}},
			{"?hasDefaults=false", []string{stout.ID}},
			{"?q=lager", []string{}},
		}
		for _, tc := range cases {
			var recipes []brewing.Recipe
			mustCall(t, app, http.StatusOK, http.MethodGet, "/api/recipes"+tc.query, "", nil, &recipes)
			ids := make([]string, 0, len(recipes))
			for _, r := range recipes {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tc.want, ids, tc.query)
		}
	})

	t.Run("Update", func(t *testing.T) {
		var recipe brewing.Recipe
		mustCall(t, app, http.StatusOK, http.MethodPatch, "/api/recipes/"+stout.ID, "", `{"color":"black","name":"  "}`, &recipe)
		assert.Equal(t, "Imperial Stout", recipe.Name) // blank names are ignored
		assert.Equal(t, "black", recipe.Color.String)
		assert.Equal(t, "stout", recipe.BeerType.String)

		body := `{"steps":[{"stepType":"boil","title":"Boil","durationMinutes":90}]}`
		mustCall(t, app, http.StatusOK, http.MethodPut, "/api/recipes/"+stout.ID, "", body, &recipe)
		require.Len(t, recipe.Steps, 1)
		assert.Equal(t, 90.0, recipe.Steps[0].DurationMinutes.Float64)
	})

	t.Run("Delete", func(t *testing.T) {
		rec := call(t, app, http.MethodDelete, "/api/recipes/"+stout.ID, "", nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = call(t, app, http.MethodGet, "/api/recipes/"+stout.ID, "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = call(t, app, http.MethodDelete, "/api/recipes/"+stout.ID, "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func Test_brewingApi_brews(t *testing.T) {
	app := setup(t)

	var recipe brewing.Recipe
	mustCall(t, app, http.StatusCreated, http.MethodPost, "/api/recipes", "", recipeBody, &recipe)

	runTests(t, app, []httpTest{
		{name: "No current brew", path: "/api/brews/current", wantData: []byte(`null`)},
		{name: "No brews", path: "/api/brews", wantData: marchallList(t)},
		{
			name: "Plan from unknown recipe", method: http.MethodPost, path: "/api/brews/from-recipe/nope", body: []byte(`{}`),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "recipe not found"}),
		},
		{
			name: "Unknown brew", path: "/api/brews/nope",
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "brew not found"}),
		},
		{
			name: "Bad status", method: http.MethodPost, path: "/api/brews", body: []byte(`{"status":"brewing"}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"status":"status must be one of planned, active, conditioning, completed, archived"}`),
		},
	})

	var brew brewing.BrewView
	t.Run("Plan from recipe", func(t *testing.T) {
		body := `{"notes":"first try","plannedStartAt":"2026-05-01"}`
		mustCall(t, app, http.StatusCreated, http.MethodPost, "/api/brews/from-recipe/"+recipe.ID, "", body, &brew)
		assert.Equal(t, "Pale Ale", brew.Name)
		assert.Equal(t, brewing.StatusPlanned, brew.Status)
		assert.Equal(t, recipe.ID, brew.RecipeID.String)
		assert.Equal(t, "first try", brew.Notes.String)
		assert.True(t, brew.Timeline.PlannedStartAt.Valid)
		assert.Equal(t, 35.0, brew.TargetMetrics.IBU.Float64)

		require.Len(t, brew.RecipeSnapshot.Steps, 3)
		require.Len(t, brew.Progress.StepProgress, 3)
		for i, sp := range brew.Progress.StepProgress {
			assert.Equal(t, brew.RecipeSnapshot.Steps[i].StepID, sp.StepID)
			assert.Equal(t, brewing.StepPending, sp.Status)
		}
		require.NotNil(t, brew.CurrentStep)
		assert.Equal(t, "Mash", brew.CurrentStep.Title)
	})

	var other brewing.BrewView
	t.Run("Create", func(t *testing.T) {
		body := `{
			"name": "Experiment",
			"status": "conditioning",
			"actualMetrics": {"og": 1.050, "fg": "1.010"},
			"recipeSnapshot": {"name": "Free style", "steps": [{"title": "Wait", "stepType": "conditioning"}]}
		}`
		mustCall(t, app, http.StatusCreated, http.MethodPost, "/api/brews", "", body, &other)
		assert.Equal(t, "Experiment", other.Name)
		assert.Equal(t, brewing.StatusConditioning, other.Status)
		assert.False(t, other.RecipeID.Valid)
		assert.Equal(t, 5.25, other.ActualMetrics.ABV.Float64)
		require.Len(t, other.Progress.StepProgress, 1)
	})

	brewPath := func(id string) string { return "/api/brews/" + id }
	stepPath := func(stepID, action string) string {
		return brewPath(brew.ID) + "/steps/" + stepID + "/" + action
	}
	mash := func() string { return brew.RecipeSnapshot.Steps[0].StepID }
	boil := func() string { return brew.RecipeSnapshot.Steps[1].StepID }

	t.Run("Current brew prefers conditioning over planned", func(t *testing.T) {
		var current brewing.BrewView
		mustCall(t, app, http.StatusOK, http.MethodGet, "/api/brews/current", "", nil, &current)
		assert.Equal(t, other.ID, current.ID)
	})

	t.Run("Step timer", func(t *testing.T) {
		var view brewing.BrewView

		rec := call(t, app, http.MethodPost, stepPath("step-nope", "start"), "", nil)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "step not found"}),
		}, rec)

		rec = call(t, app, http.MethodPost, stepPath(mash(), "pause"), "", nil)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "step is not active"}),
		}, rec)

		// start with the step duration
		mustCall(t, app, http.StatusOK, http.MethodPost, stepPath(mash(), "start"), "", nil, &view)
		assert.Equal(t, brewing.StatusActive, view.Status)
		assert.True(t, view.Progress.BrewStartedAt.Valid)
		sp := view.Progress.StepProgress[0]
		assert.Equal(t, brewing.StepActive, sp.Status)
		assert.Equal(t, 3600, sp.TimerDurationSeconds.Int)
		assert.True(t, sp.TimerEndsAt.Valid)
		require.NotNil(t, view.CurrentStepProgress)
		assert.Equal(t, mash(), view.CurrentStepProgress.StepID)

		// starting another step pauses the running one
		mustCall(t, app, http.StatusOK, http.MethodPost, stepPath(boil(), "start"), "", `{"durationSeconds":"90"}`, &view)
		assert.Equal(t, brewing.StepPending, view.Progress.StepProgress[0].Status)
		assert.True(t, view.Progress.StepProgress[0].PausedRemainingSeconds.Valid)
		assert.Equal(t, brewing.StepActive, view.Progress.StepProgress[1].Status)
		assert.Equal(t, 90, view.Progress.StepProgress[1].TimerDurationSeconds.Int)
		assert.Equal(t, 1, view.Progress.CurrentStepIndex)

		mustCall(t, app, http.StatusOK, http.MethodPost, stepPath(boil(), "pause"), "", nil, &view)
		assert.Equal(t, brewing.StepPending, view.Progress.StepProgress[1].Status)
		assert.LessOrEqual(t, view.Progress.StepProgress[1].PausedRemainingSeconds.Int, 90)

		mustCall(t, app, http.StatusOK, http.MethodPost, stepPath(boil(), "reset"), "", nil, &view)
		assert.Equal(t, brewing.StepProgressView{StepProgress: brewing.StepProgress{
			StepID: boil(), Status: brewing.StepPending,
		}}, view.Progress.StepProgress[1])

		mustCall(t, app, http.StatusOK, http.MethodPost, stepPath(mash(), "complete"), "", nil, &view)
		assert.Equal(t, brewing.StepCompleted, view.Progress.StepProgress[0].Status)
		assert.True(t, view.Progress.StepProgress[0].ActualDurationSeconds.Valid)
		assert.Equal(t, 1, view.Progress.CurrentStepIndex)

		// fermentation steps stamp the timeline
		ferment := brew.RecipeSnapshot.Steps[2].StepID
		mustCall(t, app, http.StatusOK, http.MethodPost, stepPath(ferment, "start"), "", nil, &view)
		assert.True(t, view.Timeline.FermentationStartAt.Valid)
		assert.False(t, view.Progress.StepProgress[2].TimerEndsAt.Valid) // no duration, no countdown

		mustCall(t, app, http.StatusOK, http.MethodPost, stepPath(boil(), "complete"), "", nil, &view)
		mustCall(t, app, http.StatusOK, http.MethodPost, stepPath(ferment, "complete"), "", nil, &view)
		assert.Equal(t, brewing.StatusCompleted, view.Status)
		assert.True(t, view.Progress.BrewCompletedAt.Valid)
		assert.True(t, view.Timeline.FermentationEndAt.Valid)
	})

	t.Run("Current step", func(t *testing.T) {
		var view brewing.BrewView
		mustCall(t, app, http.StatusOK, http.MethodPatch, brewPath(brew.ID)+"/current-step", "", `{"index":"2"}`, &view)
		assert.Equal(t, 2, view.Progress.CurrentStepIndex)

		mustCall(t, app, http.StatusOK, http.MethodPatch, brewPath(brew.ID)+"/current-step", "", `{"index":99}`, &view)
		assert.Equal(t, 2, view.Progress.CurrentStepIndex) // clamped
	})

	t.Run("Measurements & graph", func(t *testing.T) {
		var m brewing.Measurement
		path := brewPath(other.ID) + "/measurements"
		mustCall(t, app, http.StatusCreated, http.MethodPost, path, "", `{"takenAt":"2026-03-02T10:00","temperatureC":"19.5","gravity":1.030}`, &m)
		assert.NotEmpty(t, m.ID)
		assert.Equal(t, 19.5, m.TemperatureC.Float64)
		mustCall(t, app, http.StatusCreated, http.MethodPost, path, "", `{"takenAt":"2026-03-01T10:00","temperatureC":18,"note":"pitched"}`, &m)
		mustCall(t, app, http.StatusCreated, http.MethodPost, path, "", `{"takenAt":"2026-03-03","gravity":1.012}`, &m)

		var graph brewing.Graph
		mustCall(t, app, http.StatusOK, http.MethodGet, brewPath(other.ID)+"/graph", "", nil, &graph)
		assert.Equal(t, "temperatureC", graph.Metric)
		require.Len(t, graph.Points, 2)
		assert.Equal(t, 18.0, graph.Points[0].Value) // oldest first
		assert.Equal(t, 19.5, graph.Points[1].Value)

		mustCall(t, app, http.StatusOK, http.MethodGet, brewPath(other.ID)+"/graph?metric=gravity", "", nil, &graph)
		assert.Len(t, graph.Points, 2)

		rec := call(t, app, http.MethodGet, brewPath(other.ID)+"/graph?metric=color", "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Update", func(t *testing.T) {
		var view brewing.BrewView
		body := `{"name":"Pale Ale #1","status":"archived","targetMetrics":{"og":1.055,"ibu":null}}`
		mustCall(t, app, http.StatusOK, http.MethodPatch, brewPath(brew.ID), "", body, &view)
		assert.Equal(t, "Pale Ale #1", view.Name)
		assert.Equal(t, brewing.StatusArchived, view.Status)
		assert.Equal(t, 1.055, view.TargetMetrics.OG.Float64)
		assert.False(t, view.TargetMetrics.IBU.Valid)
		assert.Equal(t, "first try", view.Notes.String) // untouched
		assert.Len(t, view.Progress.StepProgress, 3)
	})

	t.Run("List", func(t *testing.T) {
		var brews []brewing.BrewView
		mustCall(t, app, http.StatusOK, http.MethodGet, "/api/brews", "", nil, &brews)
		require.Len(t, brews, 2)
		assert.Equal(t, brew.ID, brews[0].ID) // most recently updated first

		mustCall(t, app, http.StatusOK, http.MethodGet, "/api/brews?status=archived,planned", "", nil, &brews)
		require.Len(t, brews, 1)
		assert.Equal(t, brew.ID, brews[0].ID)

		mustCall(t, app, http.StatusOK, http.MethodGet, "/api/brews?q=free", "", nil, &brews)
		require.Len(t, brews, 1)
		assert.Equal(t, other.ID, brews[0].ID)
	})

	t.Run("Delete", func(t *testing.T) {
		rec := call(t, app, http.MethodDelete, brewPath(other.ID), "", nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = call(t, app, http.MethodGet, brewPath(other.ID), "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = call(t, app, http.MethodGet, "/api/brews/current", "", nil)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: []byte(`null`)}, rec) // the other one is archived
	})
}
