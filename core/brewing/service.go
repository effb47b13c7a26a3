package brewing

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/beerxchange/core"
)

var (
	ErrRecipeNotFound     = core.NewNotFoundError(errors.New("recipe not found"))
	ErrBrewNotFound       = core.NewNotFoundError(errors.New("brew not found"))
	ErrRecipeNameRequired = core.NewValidationError(nil, core.FieldError{Field: "name", Error: "recipe name is required"})
	ErrForeignRecipe      = core.NewValidationError(errors.New("recipeId does not belong to this brewer"))
	ErrInvalidMetric      = core.NewValidationError(
		errors.Errorf("invalid metric, allowed: %s", strings.Join(GraphMetrics, ", ")),
	)
)

// Live event names
const (
	LiveBrewUpdate  = "brewUpdate"
	LiveBrewDeleted = "brewDeleted"
)

// BrewTopic is the live topic of a brew.
func BrewTopic(brewID string) string { return "brew:" + brewID }

// statuses a brew can be picked as current from, by priority
var currentPriority = map[string]int{
	StatusActive:       0,
	StatusConditioning: 1,
	StatusPlanned:      2,
}

type (
	// Repository stores recipes and brews. Every lookup is scoped to the owning brewer.
	Repository interface {
		CreateRecipe(ctx context.Context, recipe Recipe) (Recipe, error)
		GetRecipe(ctx context.Context, brewerID, id string) (Recipe, error)
		QueryRecipes(ctx context.Context, brewerID string) ([]Recipe, error)
		UpdateRecipe(ctx context.Context, recipe Recipe) (Recipe, error)
		DeleteRecipe(ctx context.Context, brewerID, id string) error

		CreateBrew(ctx context.Context, brew Brew) (Brew, error)
		GetBrew(ctx context.Context, brewerID, id string) (Brew, error)
		QueryBrews(ctx context.Context, brewerID string) ([]Brew, error) // most recently updated first
		UpdateBrew(ctx context.Context, brew Brew) (Brew, error)
		DeleteBrew(ctx context.Context, brewerID, id string) error
	}

	// Publisher pushes live messages to subscribers of a topic.
	Publisher interface {
		Publish(topic, event string, data interface{})
	}

	Service struct {
		repo  Repository
		pub   Publisher
		now   core.Clock
		locks *core.KeyLocks
	}
)

func NewService(repo Repository, pub Publisher) *Service {
	if pub == nil {
		pub = nopPublisher{}
	}
	return &Service{repo: repo, pub: pub, now: core.UTCNow, locks: core.NewKeyLocks()}
}

// SetClock replaces the service's time source.
func (svc *Service) SetClock(clock core.Clock) { svc.now = clock }

// Recipes

func (svc *Service) CreateRecipe(ctx context.Context, brewerID string, in RecipeInput) (Recipe, error) {
	var name string
	if in.Name != nil {
		name = core.CleanString(*in.Name)
	}
	if len([]rune(name)) < 2 {
		return Recipe{}, ErrRecipeNameRequired
	}

	now := svc.now()
	recipe := Recipe{
		ID:        uuid.NewString(),
		BrewerID:  brewerID,
		Name:      name,
		Steps:     []RecipeStep{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	in.Name = nil
	in.apply(&recipe)
	return svc.repo.CreateRecipe(ctx, recipe)
}

// ListRecipes returns the brewer's recipes matching the filter, newest first unless the filter sorts otherwise.
func (svc *Service) ListRecipes(ctx context.Context, brewerID string, filter RecipeFilter) ([]Recipe, error) {
	all, err := svc.repo.QueryRecipes(ctx, brewerID)
	if err != nil {
		return nil, errors.Wrap(err, "querying recipes")
	}
	recipes := make([]Recipe, 0, len(all))
	for _, r := range all {
		if filter.match(r) {
			recipes = append(recipes, r)
		}
	}
	sortRecipes(recipes, filter.Sort)
	return recipes, nil
}

func (svc *Service) GetRecipe(ctx context.Context, brewerID, id string) (Recipe, error) {
	return svc.repo.GetRecipe(ctx, brewerID, id)
}

func (svc *Service) UpdateRecipe(ctx context.Context, brewerID, id string, in RecipeInput) (Recipe, error) {
	recipe, err := svc.repo.GetRecipe(ctx, brewerID, id)
	if err != nil {
		return Recipe{}, err
	}
	in.apply(&recipe)
	recipe.UpdatedAt = svc.now()
	return svc.repo.UpdateRecipe(ctx, recipe)
}

func (svc *Service) DeleteRecipe(ctx context.Context, brewerID, id string) error {
	return svc.repo.DeleteRecipe(ctx, brewerID, id)
}

func (in RecipeInput) apply(r *Recipe) {
	if in.Name != nil {
		if name := core.CleanString(*in.Name); name != "" {
			r.Name = name
		}
	}
	if in.BeerType != nil {
		r.BeerType = nullString(*in.BeerType)
	}
	if in.FlavorProfile != nil {
		r.FlavorProfile = nullString(*in.FlavorProfile)
	}
	if in.Color != nil {
		r.Color = nullString(*in.Color)
	}
	if in.ImageURL != nil {
		r.ImageURL = nullString(*in.ImageURL)
	}
	if in.Defaults != nil {
		r.Defaults = in.Defaults.defaults()
	}
	if in.Steps != nil {
		r.Steps = recipeSteps(*in.Steps)
	}
}

// Brews

// PlanBrew creates a planned brew following a snapshot of the recipe.
func (svc *Service) PlanBrew(ctx context.Context, brewerID, recipeID string, fr FromRecipe) (BrewView, error) {
	recipe, err := svc.repo.GetRecipe(ctx, brewerID, recipeID)
	if err != nil {
		return BrewView{}, err
	}
	snap := NormalizeSnapshot(SnapshotInput{}, SnapshotOf(recipe))

	now := svc.now()
	brew := Brew{
		ID:             uuid.NewString(),
		BrewerID:       brewerID,
		RecipeID:       null.StringFrom(recipe.ID),
		Name:           brewName(fr.Name, snap),
		Status:         StatusPlanned,
		Notes:          nullString(fr.Notes),
		TargetMetrics:  DefaultTargets(snap),
		RecipeSnapshot: snap,
		Measurements:   []Measurement{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	brew.Timeline.PlannedStartAt = fr.PlannedStartAt.Value
	if !brew.Timeline.PlannedStartAt.Valid && fr.Timeline != nil {
		brew.Timeline.PlannedStartAt = fr.Timeline.PlannedStartAt.Value
	}
	if fr.ActualMetrics != nil {
		fr.ActualMetrics.apply(&brew.ActualMetrics)
	}
	brew.SyncProgress()

	if brew, err = svc.repo.CreateBrew(ctx, brew); err != nil {
		return BrewView{}, err
	}
	svc.publishUpdate(brew)
	return brew.View(svc.now()), nil
}

// CreateBrew creates a brew from a full payload, optionally based on one of the brewer's recipes.
func (svc *Service) CreateBrew(ctx context.Context, brewerID string, in BrewInput) (BrewView, error) {
	var source RecipeSnapshot
	var recipeID null.String
	if in.RecipeID != nil && core.CleanString(*in.RecipeID) != "" {
		recipe, err := svc.foreignSafeRecipe(ctx, brewerID, core.CleanString(*in.RecipeID))
		if err != nil {
			return BrewView{}, err
		}
		source = SnapshotOf(recipe)
		recipeID = null.StringFrom(recipe.ID)
	}

	var snapIn SnapshotInput
	if in.RecipeSnapshot != nil {
		snapIn = *in.RecipeSnapshot
	}
	snap := NormalizeSnapshot(snapIn, source)
	if !recipeID.Valid {
		recipeID = snap.RecipeID
	}

	now := svc.now()
	brew := Brew{
		ID:             uuid.NewString(),
		BrewerID:       brewerID,
		RecipeID:       recipeID,
		Status:         StatusPlanned,
		TargetMetrics:  DefaultTargets(snap),
		RecipeSnapshot: snap,
		Measurements:   make([]Measurement, 0, len(in.Measurements)),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	var name string
	if in.Name != nil {
		name = *in.Name
	}
	brew.Name = brewName(name, snap)
	if in.Status != nil && isStatus(core.CleanString(*in.Status)) {
		brew.Status = core.CleanString(*in.Status)
	}
	if in.Notes != nil {
		brew.Notes = nullString(*in.Notes)
	}
	if in.Timeline != nil {
		in.Timeline.apply(&brew.Timeline)
	}
	if tm := in.TargetMetrics; tm != nil {
		// provided targets win over the recipe defaults, missing ones keep them
		brew.TargetMetrics.Gravity = tm.Gravity.Value
		brew.TargetMetrics.OG = pickFloat(tm.OG, brew.TargetMetrics.OG)
		brew.TargetMetrics.FG = pickFloat(tm.FG, brew.TargetMetrics.FG)
		brew.TargetMetrics.SG = tm.SG.Value
		brew.TargetMetrics.CO2Volumes = pickFloat(tm.CO2Volumes, brew.TargetMetrics.CO2Volumes)
		brew.TargetMetrics.IBU = pickFloat(tm.IBU, brew.TargetMetrics.IBU)
		brew.TargetMetrics.PH = tm.PH.Value
	}
	if in.ActualMetrics != nil {
		in.ActualMetrics.apply(&brew.ActualMetrics)
	}
	if in.Progress != nil {
		in.Progress.apply(&brew)
	}
	brew.SyncProgress()
	for _, mi := range in.Measurements {
		brew.Measurements = append(brew.Measurements, mi.measurement(uuid.NewString(), now))
	}

	brew, err := svc.repo.CreateBrew(ctx, brew)
	if err != nil {
		return BrewView{}, err
	}
	svc.publishUpdate(brew)
	return brew.View(svc.now()), nil
}

// CurrentBrew picks the brew the brewer is most likely working on: active before conditioning before planned,
// then the most recently updated. It returns nil when there is none.
func (svc *Service) CurrentBrew(ctx context.Context, brewerID string) (*BrewView, error) {
	brews, err := svc.repo.QueryBrews(ctx, brewerID)
	if err != nil {
		return nil, errors.Wrap(err, "querying brews")
	}
	var candidates []Brew
	for _, b := range brews {
		if _, ok := currentPriority[b.Status]; ok {
			candidates = append(candidates, b)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		pi, pj := currentPriority[candidates[i].Status], currentPriority[candidates[j].Status]
		if pi != pj {
			return pi < pj
		}
		return candidates[i].UpdatedAt.After(candidates[j].UpdatedAt)
	})
	view := candidates[0].View(svc.now())
	return &view, nil
}

// ListBrews returns the brewer's brews matching the filter, most recently updated first.
func (svc *Service) ListBrews(ctx context.Context, brewerID string, filter BrewFilter) ([]BrewView, error) {
	brews, err := svc.repo.QueryBrews(ctx, brewerID)
	if err != nil {
		return nil, errors.Wrap(err, "querying brews")
	}

	statuses := make(map[string]bool)
	for _, s := range filter.Statuses {
		if s = core.CleanString(s); isStatus(s) {
			statuses[s] = true
		}
	}
	q := strings.ToLower(core.CleanString(filter.Q))

	now := svc.now()
	views := make([]BrewView, 0, len(brews))
	for _, b := range brews {
		if len(statuses) > 0 && !statuses[b.Status] {
			continue
		}
		if q != "" && !containsFold([]string{b.Name, b.RecipeSnapshot.Name.String, b.Notes.String}, q) {
			continue
		}
		views = append(views, b.View(now))
	}
	sort.SliceStable(views, func(i, j int) bool { return views[i].UpdatedAt.After(views[j].UpdatedAt) })
	return views, nil
}

func (svc *Service) GetBrew(ctx context.Context, brewerID, id string) (BrewView, error) {
	brew, err := svc.repo.GetBrew(ctx, brewerID, id)
	if err != nil {
		return BrewView{}, err
	}
	return brew.View(svc.now()), nil
}

// UpdateBrew patches a brew. Changing the recipe or the snapshot re-normalizes the snapshot and keeps the progress
// of the steps that survive.
func (svc *Service) UpdateBrew(ctx context.Context, brewerID, id string, in BrewInput) (BrewView, error) {
	return svc.mutate(ctx, brewerID, id, func(brew *Brew, now time.Time) error {
		source := brew.RecipeSnapshot
		if in.RecipeID != nil && core.CleanString(*in.RecipeID) != "" {
			recipe, err := svc.foreignSafeRecipe(ctx, brewerID, core.CleanString(*in.RecipeID))
			if err != nil {
				return err
			}
			brew.RecipeID = null.StringFrom(recipe.ID)
			source = SnapshotOf(recipe)
		}

		if in.Name != nil {
			if name := core.CleanString(*in.Name); name != "" {
				brew.Name = name
			}
		}
		if in.Status != nil && isStatus(core.CleanString(*in.Status)) {
			brew.Status = core.CleanString(*in.Status)
		}
		if in.Notes != nil {
			brew.Notes = nullString(*in.Notes)
		}
		if in.Timeline != nil {
			in.Timeline.apply(&brew.Timeline)
		}
		if in.TargetMetrics != nil {
			in.TargetMetrics.apply(&brew.TargetMetrics)
		}
		if in.ActualMetrics != nil {
			in.ActualMetrics.apply(&brew.ActualMetrics)
		}

		if in.RecipeSnapshot != nil || in.RecipeID != nil {
			var snapIn SnapshotInput
			if in.RecipeSnapshot != nil {
				snapIn = *in.RecipeSnapshot
			}
			brew.RecipeSnapshot = NormalizeSnapshot(snapIn, source)
			brew.SyncProgress()
			if brew.Name == "" && brew.RecipeSnapshot.Name.Valid {
				brew.Name = brew.RecipeSnapshot.Name.String
			}
		}
		if in.Progress != nil {
			in.Progress.apply(brew)
		}
		brew.SyncProgress()
		return nil
	})
}

func (pi ProgressInput) apply(brew *Brew) {
	if pi.CurrentStepIndex != nil {
		brew.Progress.CurrentStepIndex = clampIndex(*pi.CurrentStepIndex, len(brew.RecipeSnapshot.Steps))
	}
	setTime(&brew.Progress.BrewStartedAt, pi.BrewStartedAt)
	setTime(&brew.Progress.BrewCompletedAt, pi.BrewCompletedAt)
	if pi.StepProgress != nil {
		brew.Progress.StepProgress = buildStepProgress(brew.RecipeSnapshot.Steps, *pi.StepProgress)
	}
}

func (svc *Service) SetCurrentStep(ctx context.Context, brewerID, id string, index int) (BrewView, error) {
	return svc.mutate(ctx, brewerID, id, func(brew *Brew, _ time.Time) error {
		brew.SetCurrentStep(index)
		return nil
	})
}

func (svc *Service) StartBrew(ctx context.Context, brewerID, id string) (BrewView, error) {
	return svc.mutate(ctx, brewerID, id, func(brew *Brew, now time.Time) error {
		brew.Start(now)
		return nil
	})
}

func (svc *Service) StartStep(ctx context.Context, brewerID, id, stepID string, durationSeconds int) (BrewView, error) {
	return svc.mutate(ctx, brewerID, id, func(brew *Brew, now time.Time) error {
		return brew.StartStep(stepID, durationSeconds, now)
	})
}

func (svc *Service) PauseStep(ctx context.Context, brewerID, id, stepID string) (BrewView, error) {
	return svc.mutate(ctx, brewerID, id, func(brew *Brew, now time.Time) error {
		return brew.PauseStep(stepID, now)
	})
}

func (svc *Service) CompleteStep(ctx context.Context, brewerID, id, stepID string) (BrewView, error) {
	return svc.mutate(ctx, brewerID, id, func(brew *Brew, now time.Time) error {
		return brew.CompleteStep(stepID, now)
	})
}

func (svc *Service) ResetStep(ctx context.Context, brewerID, id, stepID string) (BrewView, error) {
	return svc.mutate(ctx, brewerID, id, func(brew *Brew, _ time.Time) error {
		return brew.ResetStep(stepID)
	})
}

func (svc *Service) DeleteBrew(ctx context.Context, brewerID, id string) error {
	unlock := svc.locks.Lock(id)
	defer unlock()

	if err := svc.repo.DeleteBrew(ctx, brewerID, id); err != nil {
		return err
	}
	svc.pub.Publish(BrewTopic(id), LiveBrewDeleted, map[string]interface{}{
		"brewId":    id,
		"deletedAt": svc.now(),
	})
	return nil
}

// AddMeasurement logs a reading on the brew; takenAt defaults to now.
func (svc *Service) AddMeasurement(ctx context.Context, brewerID, id string, in MeasurementInput) (Measurement, error) {
	var m Measurement
	_, err := svc.mutate(ctx, brewerID, id, func(brew *Brew, now time.Time) error {
		m = in.measurement(uuid.NewString(), now)
		brew.Measurements = append(brew.Measurements, m)
		return nil
	})
	if err != nil {
		return Measurement{}, err
	}
	return m, nil
}

// Graph returns the brew's readings of one metric over time. The metric defaults to temperatureC.
func (svc *Service) Graph(ctx context.Context, brewerID, id, metric string) (Graph, error) {
	if metric == "" {
		metric = "temperatureC"
	}
	if !isGraphMetric(metric) {
		return Graph{}, ErrInvalidMetric
	}
	brew, err := svc.repo.GetBrew(ctx, brewerID, id)
	if err != nil {
		return Graph{}, err
	}

	graph := Graph{BrewID: brew.ID, Metric: metric, Points: []GraphPoint{}}
	for _, m := range brew.Measurements {
		if v := m.metric(metric); v.Valid {
			graph.Points = append(graph.Points, GraphPoint{At: m.TakenAt, Value: v.Float64})
		}
	}
	sort.SliceStable(graph.Points, func(i, j int) bool { return graph.Points[i].At.Before(graph.Points[j].At) })
	return graph, nil
}

// mutate runs fn on the stored brew and saves the result. Mutations of one brew are serialized.
func (svc *Service) mutate(ctx context.Context, brewerID, id string, fn func(brew *Brew, now time.Time) error) (BrewView, error) {
	unlock := svc.locks.Lock(id)
	defer unlock()

	brew, err := svc.repo.GetBrew(ctx, brewerID, id)
	if err != nil {
		return BrewView{}, err
	}
	now := svc.now()
	if err = fn(&brew, now); err != nil {
		return BrewView{}, err
	}
	brew.UpdatedAt = now
	if brew, err = svc.repo.UpdateBrew(ctx, brew); err != nil {
		return BrewView{}, errors.Wrap(err, "saving brew")
	}
	svc.publishUpdate(brew)
	return brew.View(now), nil
}

// foreignSafeRecipe loads one of the brewer's recipes; other brewers' recipes are reported as a bad request.
func (svc *Service) foreignSafeRecipe(ctx context.Context, brewerID, recipeID string) (Recipe, error) {
	recipe, err := svc.repo.GetRecipe(ctx, brewerID, recipeID)
	if errors.Cause(err) == ErrRecipeNotFound {
		return Recipe{}, ErrForeignRecipe
	}
	return recipe, err
}

func (svc *Service) publishUpdate(brew Brew) {
	svc.pub.Publish(BrewTopic(brew.ID), LiveBrewUpdate, map[string]interface{}{
		"brewId":    brew.ID,
		"updatedAt": brew.UpdatedAt,
	})
}

func brewName(name string, snap RecipeSnapshot) string {
	if name = core.CleanString(name); name != "" {
		return name
	}
	if snap.Name.Valid {
		return snap.Name.String
	}
	return DefaultBrewName
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, string, interface{}) {}
