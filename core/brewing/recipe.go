package brewing

import (
	"sort"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/beerxchange/core"
)

// Step types
const (
	StepPreparation           = "preparation"
	StepMash                  = "mash"
	StepBoil                  = "boil"
	StepPrimaryFermentation   = "primary_fermentation"
	StepSecondaryFermentation = "secondary_fermentation"
	StepColdCrash             = "cold_crash"
	StepCarbonation           = "carbonation"
	StepConditioning          = "conditioning"
	StepCustom                = "custom"
)

var StepTypes = []string{
	StepPreparation,
	StepMash,
	StepBoil,
	StepPrimaryFermentation,
	StepSecondaryFermentation,
	StepColdCrash,
	StepCarbonation,
	StepConditioning,
	StepCustom,
}

// Recipe sort orders
const (
	SortNewest    = "newest"
	SortOldest    = "oldest"
	SortNameAsc   = "name_asc"
	SortNameDesc  = "name_desc"
	SortStepsDesc = "steps_desc"
)

type (
	RecipeDefaults struct {
		OG         null.Float64 `json:"og"`
		FG         null.Float64 `json:"fg"`
		SG         null.Float64 `json:"sg"`
		CO2Volumes null.Float64 `json:"co2Volumes"`
		IBU        null.Float64 `json:"ibu"`
	}

	RecipeStep struct {
		Order           int                    `json:"order"`
		StepType        string                 `json:"stepType"`
		Title           string                 `json:"title"`
		Description     null.String            `json:"description"`
		DurationMinutes null.Float64           `json:"durationMinutes"`
		TemperatureC    null.Float64           `json:"temperatureC"`
		CO2Volumes      null.Float64           `json:"co2Volumes"`
		Data            map[string]interface{} `json:"data"`
	}

	Recipe struct {
		ID            string         `json:"id"`
		BrewerID      string         `json:"brewerId"`
		Name          string         `json:"name"`
		BeerType      null.String    `json:"beerType"`
		FlavorProfile null.String    `json:"flavorProfile"`
		Color         null.String    `json:"color"`
		ImageURL      null.String    `json:"imageUrl"`
		Defaults      RecipeDefaults `json:"defaults"`
		Steps         []RecipeStep   `json:"steps"`
		CreatedAt     time.Time      `json:"createdAt"`
		UpdatedAt     time.Time      `json:"updatedAt"`
	}
)

func (d RecipeDefaults) isEmpty() bool {
	return !d.OG.Valid && !d.FG.Valid && !d.SG.Valid && !d.CO2Volumes.Valid && !d.IBU.Valid
}

type (
	DefaultsInput struct {
		OG         Float `json:"og"`
		FG         Float `json:"fg"`
		SG         Float `json:"sg"`
		CO2Volumes Float `json:"co2Volumes"`
		IBU        Float `json:"ibu"`
	}

	StepInput struct {
		StepID          string                 `json:"stepId"`
		Order           int                    `json:"order"`
		StepType        string                 `json:"stepType" validate:"omitempty,steptype"`
		Title           string                 `json:"title" validate:"max=120"`
		Description     string                 `json:"description" validate:"max=3000"`
		DurationMinutes Float                  `json:"durationMinutes"`
		TemperatureC    Float                  `json:"temperatureC"`
		CO2Volumes      Float                  `json:"co2Volumes"`
		Data            map[string]interface{} `json:"data"`
	}

	// RecipeInput creates a recipe, or patches one: on update, absent fields are left untouched.
	RecipeInput struct {
		Name          *string        `json:"name" validate:"omitempty,min=2,max=160"`
		BeerType      *string        `json:"beerType" validate:"omitempty,max=120"`
		FlavorProfile *string        `json:"flavorProfile" validate:"omitempty,max=1200"`
		Color         *string        `json:"color" validate:"omitempty,max=120"`
		ImageURL      *string        `json:"imageUrl" validate:"omitempty,max=500"`
		Defaults      *DefaultsInput `json:"defaults"`
		Steps         *[]StepInput   `json:"steps" validate:"omitempty,dive"`
	}

	// RecipeFilter narrows recipe listings; empty fields are ignored.
	RecipeFilter struct {
		Q           string `query:"q"`
		BeerType    string `query:"beerType"`
		StepType    string `query:"stepType"`
		HasDefaults string `query:"hasDefaults"` // "true" or "false"
		Sort        string `query:"sort"`
	}
)

func (di DefaultsInput) defaults() RecipeDefaults {
	return RecipeDefaults{
		OG:         di.OG.Float64,
		FG:         di.FG.Float64,
		SG:         di.SG.Float64,
		CO2Volumes: di.CO2Volumes.Float64,
		IBU:        di.IBU.Float64,
	}
}

// recipeSteps normalizes step input: untitled steps are dropped, missing orders follow the list position.
func recipeSteps(in []StepInput) []RecipeStep {
	steps := make([]RecipeStep, 0, len(in))
	for i, si := range in {
		title := core.CleanString(si.Title)
		if title == "" {
			continue
		}
		steps = append(steps, RecipeStep{
			Order:           stepOrder(si.Order, i),
			StepType:        stepType(si.StepType),
			Title:           title,
			Description:     nullString(si.Description),
			DurationMinutes: si.DurationMinutes.Float64,
			TemperatureC:    si.TemperatureC.Float64,
			CO2Volumes:      si.CO2Volumes.Float64,
			Data:            stepData(si.Data),
		})
	}
	return steps
}

func stepOrder(order, index int) int {
	if order > 0 {
		return order
	}
	return index + 1
}

func stepType(st string) string {
	if st = core.CleanString(st); st == "" {
		return StepCustom
	}
	return st
}

func stepData(data map[string]interface{}) map[string]interface{} {
	if data == nil {
		return map[string]interface{}{}
	}
	return data
}

func isFermentation(stepType string) bool {
	return stepType == StepPrimaryFermentation || stepType == StepSecondaryFermentation
}

func (f RecipeFilter) match(r Recipe) bool {
	if q := strings.ToLower(core.CleanString(f.Q)); q != "" {
		fields := []string{r.Name, r.BeerType.String, r.FlavorProfile.String}
		for _, s := range r.Steps {
			fields = append(fields, s.Title, s.Description.String)
		}
		if !containsFold(fields, q) {
			return false
		}
	}
	if bt := core.CleanString(f.BeerType); bt != "" && !strings.EqualFold(r.BeerType.String, bt) {
		return false
	}
	if st := core.CleanString(f.StepType); st != "" {
		found := false
		for _, s := range r.Steps {
			if s.StepType == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	switch f.HasDefaults {
	case "true":
		return !r.Defaults.isEmpty()
	case "false":
		return r.Defaults.isEmpty()
	}
	return true
}

func sortRecipes(recipes []Recipe, order string) {
	var less func(a, b Recipe) bool
	switch order {
	case SortOldest:
		less = func(a, b Recipe) bool { return a.UpdatedAt.Before(b.UpdatedAt) }
	case SortNameAsc:
		less = func(a, b Recipe) bool { return strings.ToLower(a.Name) < strings.ToLower(b.Name) }
	case SortNameDesc:
		less = func(a, b Recipe) bool { return strings.ToLower(a.Name) > strings.ToLower(b.Name) }
	case SortStepsDesc:
		less = func(a, b Recipe) bool {
			if len(a.Steps) != len(b.Steps) {
				return len(a.Steps) > len(b.Steps)
			}
			return a.UpdatedAt.After(b.UpdatedAt)
		}
	default:
		less = func(a, b Recipe) bool { return a.UpdatedAt.After(b.UpdatedAt) }
	}
	sort.SliceStable(recipes, func(i, j int) bool { return less(recipes[i], recipes[j]) })
}

// containsFold reports whether any of the fields contains the lowered query q.
func containsFold(fields []string, q string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}
