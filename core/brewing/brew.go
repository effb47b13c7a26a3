package brewing

import (
	"time"

	"github.com/volatiletech/null/v8"
)

// Brew statuses
const (
	StatusPlanned      = "planned"
	StatusActive       = "active"
	StatusConditioning = "conditioning"
	StatusCompleted    = "completed"
	StatusArchived     = "archived"
)

var Statuses = []string{StatusPlanned, StatusActive, StatusConditioning, StatusCompleted, StatusArchived}

// Step progress statuses
const (
	StepPending   = "pending"
	StepActive    = "active"
	StepCompleted = "completed"
)

// Ingredient categories
const (
	CategoryFermentable = "fermentable"
	CategoryHops        = "hops"
	CategoryOther       = "other"
)

const DefaultBrewName = "Nytt Brygg"

// Metrics that can be graphed from measurements.
var GraphMetrics = []string{"gravity", "temperatureC", "og", "fg", "sg", "ph", "co2Volumes", "ibu"}

type (
	Timeline struct {
		PlannedStartAt      null.Time `json:"plannedStartAt"`
		BrewDayAt           null.Time `json:"brewDayAt"`
		FermentationStartAt null.Time `json:"fermentationStartAt"`
		FermentationEndAt   null.Time `json:"fermentationEndAt"`
		BottledAt           null.Time `json:"bottledAt"`
		KeggedAt            null.Time `json:"keggedAt"`
		CompletedAt         null.Time `json:"completedAt"`
	}

	TargetMetrics struct {
		Gravity    null.Float64 `json:"gravity"`
		OG         null.Float64 `json:"og"`
		FG         null.Float64 `json:"fg"`
		SG         null.Float64 `json:"sg"`
		CO2Volumes null.Float64 `json:"co2Volumes"`
		IBU        null.Float64 `json:"ibu"`
		PH         null.Float64 `json:"ph"`
	}

	ActualMetrics struct {
		OG null.Float64 `json:"og"`
		FG null.Float64 `json:"fg"`
	}

	SnapshotDefaults struct {
		OGFrom     null.String  `json:"ogFrom"`
		OGTo       null.String  `json:"ogTo"`
		FGFrom     null.String  `json:"fgFrom"`
		FGTo       null.String  `json:"fgTo"`
		CO2Volumes null.Float64 `json:"co2Volumes"`
		IBU        null.Float64 `json:"ibu"`
	}

	SnapshotStep struct {
		StepID string `json:"stepId"`
		RecipeStep
	}

	Ingredient struct {
		IngredientID string      `json:"ingredientId"`
		Name         string      `json:"name"`
		Category     string      `json:"category"`
		Amount       null.String `json:"amount"`
		Unit         null.String `json:"unit"`
		Notes        null.String `json:"notes"`
		StepIDs      []string    `json:"stepIds"`
	}

	// RecipeSnapshot is the frozen copy of a recipe a brew follows.
	RecipeSnapshot struct {
		RecipeID      null.String      `json:"recipeId"`
		Name          null.String      `json:"name"`
		BeerType      null.String      `json:"beerType"`
		FlavorProfile null.String      `json:"flavorProfile"`
		Color         null.String      `json:"color"`
		ImageURL      null.String      `json:"imageUrl"`
		Defaults      SnapshotDefaults `json:"defaults"`
		Steps         []SnapshotStep   `json:"steps"`
		Ingredients   []Ingredient     `json:"ingredients"`
	}

	// StepProgress is the timer state of one snapshot step.
	StepProgress struct {
		StepID                   string    `json:"stepId"`
		Status                   string    `json:"status"`
		StartedAt                null.Time `json:"startedAt"`
		ActiveSinceAt            null.Time `json:"activeSinceAt"`
		CompletedAt              null.Time `json:"completedAt"`
		TimerDurationSeconds     null.Int  `json:"timerDurationSeconds"`
		TimerEndsAt              null.Time `json:"timerEndsAt"`
		PausedRemainingSeconds   null.Int  `json:"pausedRemainingSeconds"`
		AccumulatedActiveSeconds int       `json:"accumulatedActiveSeconds"`
		ActualDurationSeconds    null.Int  `json:"actualDurationSeconds"`
	}

	Progress struct {
		CurrentStepIndex int            `json:"currentStepIndex"`
		BrewStartedAt    null.Time      `json:"brewStartedAt"`
		BrewCompletedAt  null.Time      `json:"brewCompletedAt"`
		StepProgress     []StepProgress `json:"stepProgress"`
	}

	Measurement struct {
		ID           string       `json:"id"`
		TakenAt      time.Time    `json:"takenAt"`
		Gravity      null.Float64 `json:"gravity"`
		TemperatureC null.Float64 `json:"temperatureC"`
		OG           null.Float64 `json:"og"`
		FG           null.Float64 `json:"fg"`
		SG           null.Float64 `json:"sg"`
		PH           null.Float64 `json:"ph"`
		CO2Volumes   null.Float64 `json:"co2Volumes"`
		IBU          null.Float64 `json:"ibu"`
		Note         null.String  `json:"note"`
	}

	Brew struct {
		ID             string         `json:"id"`
		BrewerID       string         `json:"brewerId"`
		RecipeID       null.String    `json:"recipeId"`
		Name           string         `json:"name"`
		Status         string         `json:"status"`
		Notes          null.String    `json:"notes"`
		Timeline       Timeline       `json:"timeline"`
		TargetMetrics  TargetMetrics  `json:"targetMetrics"`
		ActualMetrics  ActualMetrics  `json:"actualMetrics"`
		RecipeSnapshot RecipeSnapshot `json:"recipeSnapshot"`
		Progress       Progress       `json:"progress"`
		Measurements   []Measurement  `json:"measurements"`
		CreatedAt      time.Time      `json:"createdAt"`
		UpdatedAt      time.Time      `json:"updatedAt"`
	}
)

// metric returns the named measurement value.
func (m Measurement) metric(name string) null.Float64 {
	switch name {
	case "gravity":
		return m.Gravity
	case "temperatureC":
		return m.TemperatureC
	case "og":
		return m.OG
	case "fg":
		return m.FG
	case "sg":
		return m.SG
	case "ph":
		return m.PH
	case "co2Volumes":
		return m.CO2Volumes
	case "ibu":
		return m.IBU
	}
	return null.Float64{}
}

// Views

type (
	StepProgressView struct {
		StepProgress
		ElapsedSeconds        int `json:"elapsedSeconds"`
		LoggedDurationSeconds int `json:"loggedDurationSeconds"`
	}

	ProgressView struct {
		CurrentStepIndex int                `json:"currentStepIndex"`
		BrewStartedAt    null.Time          `json:"brewStartedAt"`
		BrewCompletedAt  null.Time          `json:"brewCompletedAt"`
		StepProgress     []StepProgressView `json:"stepProgress"`
	}

	ActualMetricsView struct {
		ActualMetrics
		ABV null.Float64 `json:"abv"`
	}

	// BrewView is a brew with the fields computed at response time.
	BrewView struct {
		Brew
		ActualMetrics       ActualMetricsView `json:"actualMetrics"`
		Progress            ProgressView      `json:"progress"`
		CurrentStep         *SnapshotStep     `json:"currentStep"`
		CurrentStepProgress *StepProgressView `json:"currentStepProgress"`
	}

	GraphPoint struct {
		At    time.Time `json:"at"`
		Value float64   `json:"value"`
	}

	Graph struct {
		BrewID string       `json:"brewId"`
		Metric string       `json:"metric"`
		Points []GraphPoint `json:"points"`
	}
)

// Inputs

type (
	TimelineInput struct {
		PlannedStartAt      OptTime `json:"plannedStartAt"`
		BrewDayAt           OptTime `json:"brewDayAt"`
		FermentationStartAt OptTime `json:"fermentationStartAt"`
		FermentationEndAt   OptTime `json:"fermentationEndAt"`
		BottledAt           OptTime `json:"bottledAt"`
		KeggedAt            OptTime `json:"keggedAt"`
		CompletedAt         OptTime `json:"completedAt"`
	}

	TargetMetricsInput struct {
		Gravity    OptFloat `json:"gravity"`
		OG         OptFloat `json:"og"`
		FG         OptFloat `json:"fg"`
		SG         OptFloat `json:"sg"`
		CO2Volumes OptFloat `json:"co2Volumes"`
		IBU        OptFloat `json:"ibu"`
		PH         OptFloat `json:"ph"`
	}

	ActualMetricsInput struct {
		OG OptFloat `json:"og"`
		FG OptFloat `json:"fg"`
	}

	SnapshotDefaultsInput struct {
		OGFrom     OptString `json:"ogFrom"`
		OGTo       OptString `json:"ogTo"`
		FGFrom     OptString `json:"fgFrom"`
		FGTo       OptString `json:"fgTo"`
		CO2Volumes OptFloat  `json:"co2Volumes"`
		IBU        OptFloat  `json:"ibu"`
	}

	IngredientInput struct {
		IngredientID string   `json:"ingredientId"`
		Name         string   `json:"name"`
		Category     string   `json:"category"`
		Amount       Text     `json:"amount"`
		Unit         string   `json:"unit"`
		Notes        string   `json:"notes"`
		StepIDs      []string `json:"stepIds"`
	}

	// SnapshotInput overrides the snapshot source field by field. Steps and ingredients replace the source lists
	// when present.
	SnapshotInput struct {
		RecipeID      OptString              `json:"recipeId"`
		Name          OptString              `json:"name"`
		BeerType      OptString              `json:"beerType"`
		FlavorProfile OptString              `json:"flavorProfile"`
		Color         OptString              `json:"color"`
		ImageURL      OptString              `json:"imageUrl"`
		Defaults      *SnapshotDefaultsInput `json:"defaults"`
		Steps         *[]StepInput           `json:"steps" validate:"omitempty,dive"`
		Ingredients   *[]IngredientInput     `json:"ingredients"`
	}

	ProgressInput struct {
		CurrentStepIndex *int            `json:"currentStepIndex"`
		BrewStartedAt    OptTime         `json:"brewStartedAt"`
		BrewCompletedAt  OptTime         `json:"brewCompletedAt"`
		StepProgress     *[]StepProgress `json:"stepProgress"`
	}

	MeasurementInput struct {
		TakenAt      OptTime `json:"takenAt"`
		Gravity      Float   `json:"gravity"`
		TemperatureC Float   `json:"temperatureC"`
		OG           Float   `json:"og"`
		FG           Float   `json:"fg"`
		SG           Float   `json:"sg"`
		PH           Float   `json:"ph"`
		CO2Volumes   Float   `json:"co2Volumes"`
		IBU          Float   `json:"ibu"`
		Note         string  `json:"note"`
	}

	// BrewInput creates a brew, or patches one: on update, absent fields are left untouched.
	BrewInput struct {
		Name           *string             `json:"name" validate:"omitempty,max=160"`
		RecipeID       *string             `json:"recipeId"`
		Status         *string             `json:"status" validate:"omitempty,brewstatus"`
		Notes          *string             `json:"notes"`
		Timeline       *TimelineInput      `json:"timeline"`
		TargetMetrics  *TargetMetricsInput `json:"targetMetrics"`
		ActualMetrics  *ActualMetricsInput `json:"actualMetrics"`
		RecipeSnapshot *SnapshotInput      `json:"recipeSnapshot" validate:"omitempty"`
		Progress       *ProgressInput      `json:"progress"`
		Measurements   []MeasurementInput  `json:"measurements"`
	}

	// FromRecipe holds the optional fields of a brew planned from a recipe.
	FromRecipe struct {
		Name           string              `json:"name"`
		Notes          string              `json:"notes"`
		PlannedStartAt OptTime             `json:"plannedStartAt"`
		Timeline       *TimelineInput      `json:"timeline"`
		ActualMetrics  *ActualMetricsInput `json:"actualMetrics"`
	}

	// BrewFilter narrows brew listings; empty fields are ignored.
	BrewFilter struct {
		Statuses []string
		Q        string
	}
)

func (ti TimelineInput) apply(tl *Timeline) {
	setTime(&tl.PlannedStartAt, ti.PlannedStartAt)
	setTime(&tl.BrewDayAt, ti.BrewDayAt)
	setTime(&tl.FermentationStartAt, ti.FermentationStartAt)
	setTime(&tl.FermentationEndAt, ti.FermentationEndAt)
	setTime(&tl.BottledAt, ti.BottledAt)
	setTime(&tl.KeggedAt, ti.KeggedAt)
	setTime(&tl.CompletedAt, ti.CompletedAt)
}

func (mi TargetMetricsInput) apply(tm *TargetMetrics) {
	setFloat(&tm.Gravity, mi.Gravity)
	setFloat(&tm.OG, mi.OG)
	setFloat(&tm.FG, mi.FG)
	setFloat(&tm.SG, mi.SG)
	setFloat(&tm.CO2Volumes, mi.CO2Volumes)
	setFloat(&tm.IBU, mi.IBU)
	setFloat(&tm.PH, mi.PH)
}

func (mi ActualMetricsInput) apply(am *ActualMetrics) {
	setFloat(&am.OG, mi.OG)
	setFloat(&am.FG, mi.FG)
}

func (mi MeasurementInput) measurement(id string, now time.Time) Measurement {
	takenAt := now
	if mi.TakenAt.Value.Valid {
		takenAt = mi.TakenAt.Value.Time
	}
	return Measurement{
		ID:           id,
		TakenAt:      takenAt,
		Gravity:      mi.Gravity.Float64,
		TemperatureC: mi.TemperatureC.Float64,
		OG:           mi.OG.Float64,
		FG:           mi.FG.Float64,
		SG:           mi.SG.Float64,
		PH:           mi.PH.Float64,
		CO2Volumes:   mi.CO2Volumes.Float64,
		IBU:          mi.IBU.Float64,
		Note:         nullString(mi.Note),
	}
}

func setTime(dst *null.Time, opt OptTime) {
	if opt.Set {
		*dst = opt.Value
	}
}

func setFloat(dst *null.Float64, opt OptFloat) {
	if opt.Set {
		*dst = opt.Value
	}
}

func isStatus(s string) bool {
	for _, st := range Statuses {
		if s == st {
			return true
		}
	}
	return false
}

func isGraphMetric(m string) bool {
	for _, gm := range GraphMetrics {
		if m == gm {
			return true
		}
	}
	return false
}
