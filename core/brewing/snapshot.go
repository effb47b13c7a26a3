package brewing

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/beerxchange/core"
)

// gravityFormat is the accepted format of specific gravity readings (e.g. 1.050).
var gravityFormat = regexp.MustCompile(`^1\.\d{3}$`)

// SnapshotOf freezes a recipe into a snapshot source. Its steps have no IDs until normalized.
func SnapshotOf(r Recipe) RecipeSnapshot {
	snap := RecipeSnapshot{
		RecipeID:      null.StringFrom(r.ID),
		Name:          nullString(r.Name),
		BeerType:      r.BeerType,
		FlavorProfile: r.FlavorProfile,
		Color:         r.Color,
		ImageURL:      r.ImageURL,
		Defaults: SnapshotDefaults{
			OGFrom:     gravityString(r.Defaults.OG),
			OGTo:       gravityString(r.Defaults.OG),
			FGFrom:     gravityString(r.Defaults.FG),
			FGTo:       gravityString(r.Defaults.FG),
			CO2Volumes: r.Defaults.CO2Volumes,
			IBU:        r.Defaults.IBU,
		},
		Steps: make([]SnapshotStep, 0, len(r.Steps)),
	}
	for _, s := range r.Steps {
		snap.Steps = append(snap.Steps, SnapshotStep{RecipeStep: s})
	}
	return snap
}

// NormalizeSnapshot merges in over source and normalizes the result:
//   - steps without a title are dropped, the rest are ordered and get a `step-<uuid>` ID when missing;
//   - ingredients without a name are dropped, the rest get an `ingredient-<uuid>` ID when missing,
//     an allowed category, and only the step IDs that exist in the snapshot;
//   - gravity ranges that are not formatted 1.xxx are dropped.
func NormalizeSnapshot(in SnapshotInput, source RecipeSnapshot) RecipeSnapshot {
	snap := RecipeSnapshot{
		RecipeID:      pickString(in.RecipeID, source.RecipeID),
		Name:          pickString(in.Name, source.Name),
		BeerType:      pickString(in.BeerType, source.BeerType),
		FlavorProfile: pickString(in.FlavorProfile, source.FlavorProfile),
		Color:         pickString(in.Color, source.Color),
		ImageURL:      pickString(in.ImageURL, source.ImageURL),
		Defaults:      source.Defaults,
	}
	if in.RecipeID.Set {
		snap.RecipeID = in.RecipeID.Value
	}
	if d := in.Defaults; d != nil {
		snap.Defaults = SnapshotDefaults{
			OGFrom:     pickString(d.OGFrom, source.Defaults.OGFrom),
			OGTo:       pickString(d.OGTo, source.Defaults.OGTo),
			FGFrom:     pickString(d.FGFrom, source.Defaults.FGFrom),
			FGTo:       pickString(d.FGTo, source.Defaults.FGTo),
			CO2Volumes: pickFloat(d.CO2Volumes, source.Defaults.CO2Volumes),
			IBU:        pickFloat(d.IBU, source.Defaults.IBU),
		}
	}
	snap.Defaults.OGFrom = validGravity(snap.Defaults.OGFrom)
	snap.Defaults.OGTo = validGravity(snap.Defaults.OGTo)
	snap.Defaults.FGFrom = validGravity(snap.Defaults.FGFrom)
	snap.Defaults.FGTo = validGravity(snap.Defaults.FGTo)

	if in.Steps != nil {
		snap.Steps = snapshotSteps(*in.Steps)
	} else {
		snap.Steps = normalizeSteps(source.Steps)
	}

	stepIDs := make(map[string]bool, len(snap.Steps))
	for _, s := range snap.Steps {
		stepIDs[s.StepID] = true
	}
	if in.Ingredients != nil {
		snap.Ingredients = ingredients(*in.Ingredients, stepIDs)
	} else {
		snap.Ingredients = filterIngredients(source.Ingredients, stepIDs)
	}
	return snap
}

func snapshotSteps(in []StepInput) []SnapshotStep {
	steps := make([]SnapshotStep, 0, len(in))
	for i, si := range in {
		title := core.CleanString(si.Title)
		if title == "" {
			continue
		}
		steps = append(steps, SnapshotStep{
			StepID: core.CleanString(si.StepID),
			RecipeStep: RecipeStep{
				Order:           stepOrder(si.Order, i),
				StepType:        stepType(si.StepType),
				Title:           title,
				Description:     nullString(si.Description),
				DurationMinutes: si.DurationMinutes.Float64,
				TemperatureC:    si.TemperatureC.Float64,
				CO2Volumes:      si.CO2Volumes.Float64,
				Data:            stepData(si.Data),
			},
		})
	}
	return normalizeSteps(steps)
}

func normalizeSteps(in []SnapshotStep) []SnapshotStep {
	steps := make([]SnapshotStep, 0, len(in))
	for i, s := range in {
		s.Title = core.CleanString(s.Title)
		if s.Title == "" {
			continue
		}
		if s.StepID = core.CleanString(s.StepID); s.StepID == "" {
			s.StepID = "step-" + uuid.NewString()
		}
		s.Order = stepOrder(s.Order, i)
		s.StepType = stepType(s.StepType)
		s.Data = stepData(s.Data)
		steps = append(steps, s)
	}
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })
	return steps
}

func ingredients(in []IngredientInput, stepIDs map[string]bool) []Ingredient {
	out := make([]Ingredient, 0, len(in))
	for _, ii := range in {
		out = append(out, Ingredient{
			IngredientID: core.CleanString(ii.IngredientID),
			Name:         ii.Name,
			Category:     ii.Category,
			Amount:       nullString(string(ii.Amount)),
			Unit:         nullString(ii.Unit),
			Notes:        nullString(ii.Notes),
			StepIDs:      ii.StepIDs,
		})
	}
	return filterIngredients(out, stepIDs)
}

func filterIngredients(in []Ingredient, stepIDs map[string]bool) []Ingredient {
	out := make([]Ingredient, 0, len(in))
	for _, ing := range in {
		if ing.Name = core.CleanString(ing.Name); ing.Name == "" {
			continue
		}
		if ing.IngredientID == "" {
			ing.IngredientID = "ingredient-" + uuid.NewString()
		}
		ing.Category = ingredientCategory(ing.Category)

		ids := make([]string, 0, len(ing.StepIDs))
		for _, id := range ing.StepIDs {
			if id = core.CleanString(id); stepIDs[id] {
				ids = append(ids, id)
			}
		}
		ing.StepIDs = ids
		out = append(out, ing)
	}
	return out
}

func ingredientCategory(c string) string {
	switch c = core.CleanString(c); c {
	case CategoryFermentable, CategoryHops:
		return c
	}
	return CategoryOther
}

// DefaultTargets derives target metrics from the snapshot defaults: OG and FG are the midpoints of their ranges.
func DefaultTargets(snap RecipeSnapshot) TargetMetrics {
	d := snap.Defaults
	return TargetMetrics{
		OG:         midpoint(gravityFloat(d.OGFrom), gravityFloat(d.OGTo)),
		FG:         midpoint(gravityFloat(d.FGFrom), gravityFloat(d.FGTo)),
		CO2Volumes: d.CO2Volumes,
		IBU:        d.IBU,
	}
}

func midpoint(from, to null.Float64) null.Float64 {
	switch {
	case from.Valid && to.Valid:
		return null.Float64From(core.Round((from.Float64+to.Float64)/2, 3))
	case from.Valid:
		return null.Float64From(core.Round(from.Float64, 3))
	case to.Valid:
		return null.Float64From(core.Round(to.Float64, 3))
	}
	return null.Float64{}
}

func gravityFloat(s null.String) null.Float64 {
	if !s.Valid {
		return null.Float64{}
	}
	f, err := strconv.ParseFloat(s.String, 64)
	if err != nil {
		return null.Float64{}
	}
	return null.Float64From(f)
}

func gravityString(f null.Float64) null.String {
	if !f.Valid {
		return null.String{}
	}
	return validGravity(null.StringFrom(fmt.Sprintf("%.3f", f.Float64)))
}

func validGravity(s null.String) null.String {
	if !s.Valid || !gravityFormat.MatchString(core.CleanString(s.String)) {
		return null.String{}
	}
	return null.StringFrom(core.CleanString(s.String))
}

func pickString(in OptString, fallback null.String) null.String {
	if in.Value.Valid {
		return in.Value
	}
	return fallback
}

func pickFloat(in OptFloat, fallback null.Float64) null.Float64 {
	if in.Value.Valid {
		return in.Value
	}
	return fallback
}
