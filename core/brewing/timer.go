package brewing

import (
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/beerxchange/core"
)

var (
	ErrStepNotFound  = core.NewNotFoundError(errors.New("step not found"))
	ErrStepNotActive = core.NewValidationError(errors.New("step is not active"))
)

// Step timer
//
// Every snapshot step has a StepProgress entry moving between pending, active and completed.
// Only one step of a brew runs at a time: starting a step pauses the running one.
// A paused step is pending with its accumulated active seconds and remaining countdown kept.

// SyncProgress rebuilds the progress entries from the snapshot steps, keeping the state of known steps.
func (b *Brew) SyncProgress() {
	b.Progress.StepProgress = buildStepProgress(b.RecipeSnapshot.Steps, b.Progress.StepProgress)
	b.Progress.CurrentStepIndex = clampIndex(b.Progress.CurrentStepIndex, len(b.RecipeSnapshot.Steps))
}

func buildStepProgress(steps []SnapshotStep, existing []StepProgress) []StepProgress {
	byStep := make(map[string]StepProgress, len(existing))
	for _, sp := range existing {
		if sp.StepID != "" {
			byStep[sp.StepID] = sp
		}
	}

	out := make([]StepProgress, 0, len(steps))
	for _, s := range steps {
		sp, ok := byStep[s.StepID]
		if !ok {
			out = append(out, StepProgress{StepID: s.StepID, Status: StepPending})
			continue
		}
		if sp.Status != StepActive && sp.Status != StepCompleted {
			sp.Status = StepPending
		}
		if sp.AccumulatedActiveSeconds < 0 {
			sp.AccumulatedActiveSeconds = 0
		}
		out = append(out, sp)
	}
	return out
}

func clampIndex(index, length int) int {
	if index < 0 || length <= 0 {
		return 0
	}
	if index >= length {
		return length - 1
	}
	return index
}

// Start marks the brew active and stamps its brew day.
func (b *Brew) Start(now time.Time) {
	b.Status = StatusActive
	if !b.Timeline.BrewDayAt.Valid {
		b.Timeline.BrewDayAt = null.TimeFrom(now)
	}
	if !b.Progress.BrewStartedAt.Valid {
		b.Progress.BrewStartedAt = null.TimeFrom(now)
	}
	b.SyncProgress()
}

func (b *Brew) SetCurrentStep(index int) {
	b.Progress.CurrentStepIndex = clampIndex(index, len(b.RecipeSnapshot.Steps))
}

// StartStep starts or resumes a step's timer. A positive durationSeconds overrides the countdown.
func (b *Brew) StartStep(stepID string, durationSeconds int, now time.Time) error {
	idx, step, err := b.step(stepID)
	if err != nil {
		return err
	}
	b.Start(now)

	entries := b.Progress.StepProgress
	for i := range entries {
		if entries[i].StepID != stepID && entries[i].Status == StepActive {
			pause(&entries[i], now)
		}
	}
	sp := &entries[idx]

	stepSeconds := 0
	if step.DurationMinutes.Valid && step.DurationMinutes.Float64 > 0 {
		stepSeconds = int(math.Round(step.DurationMinutes.Float64 * 60))
	}

	var timerDuration null.Int
	switch {
	case durationSeconds > 0:
		timerDuration = null.IntFrom(durationSeconds)
	case sp.TimerDurationSeconds.Valid && sp.TimerDurationSeconds.Int > 0:
		timerDuration = sp.TimerDurationSeconds
	case stepSeconds > 0:
		timerDuration = null.IntFrom(stepSeconds)
	}

	var countdown null.Int
	switch {
	case durationSeconds > 0:
		countdown = null.IntFrom(durationSeconds)
	case sp.PausedRemainingSeconds.Valid && sp.PausedRemainingSeconds.Int >= 0:
		countdown = sp.PausedRemainingSeconds
	case stepSeconds > 0:
		countdown = null.IntFrom(stepSeconds)
	default:
		countdown = timerDuration
	}

	if sp.Status == StepCompleted {
		// restart from scratch
		sp.StartedAt = null.TimeFrom(now)
		sp.AccumulatedActiveSeconds = 0
		sp.CompletedAt = null.Time{}
		sp.ActualDurationSeconds = null.Int{}
	} else if !sp.StartedAt.Valid {
		sp.StartedAt = null.TimeFrom(now)
	}
	sp.Status = StepActive
	sp.ActiveSinceAt = null.TimeFrom(now)
	sp.TimerDurationSeconds = timerDuration
	sp.PausedRemainingSeconds = null.Int{}
	sp.TimerEndsAt = null.Time{}
	if countdown.Valid {
		sp.TimerEndsAt = null.TimeFrom(now.Add(time.Duration(countdown.Int) * time.Second))
	}

	if isFermentation(step.StepType) && !b.Timeline.FermentationStartAt.Valid {
		b.Timeline.FermentationStartAt = null.TimeFrom(now)
	}
	b.Progress.CurrentStepIndex = idx
	return nil
}

// PauseStep stops an active step's timer, keeping its elapsed and remaining seconds.
func (b *Brew) PauseStep(stepID string, now time.Time) error {
	idx, _, err := b.step(stepID)
	if err != nil {
		return err
	}
	b.SyncProgress()

	sp := &b.Progress.StepProgress[idx]
	if sp.Status != StepActive {
		return ErrStepNotActive
	}
	pause(sp, now)
	b.Progress.CurrentStepIndex = idx
	return nil
}

// CompleteStep closes a step and logs its active time. Completing the last open step completes the brew.
func (b *Brew) CompleteStep(stepID string, now time.Time) error {
	idx, step, err := b.step(stepID)
	if err != nil {
		return err
	}
	b.SyncProgress()

	sp := &b.Progress.StepProgress[idx]
	if sp.Status == StepActive {
		accumulate(sp, now)
	}
	sp.Status = StepCompleted
	sp.CompletedAt = null.TimeFrom(now)
	sp.ActiveSinceAt = null.Time{}
	sp.TimerDurationSeconds = null.Int{}
	sp.TimerEndsAt = null.Time{}
	sp.PausedRemainingSeconds = null.Int{}
	sp.ActualDurationSeconds = null.IntFrom(sp.AccumulatedActiveSeconds)

	if isFermentation(step.StepType) {
		b.Timeline.FermentationEndAt = null.TimeFrom(now)
	}

	if b.allCompleted() {
		b.Status = StatusCompleted
		b.Progress.BrewCompletedAt = null.TimeFrom(now)
		b.Timeline.CompletedAt = null.TimeFrom(now)
		return nil
	}
	if b.Status == StatusPlanned {
		b.Status = StatusActive
	}
	b.Progress.CurrentStepIndex = clampIndex(idx+1, len(b.RecipeSnapshot.Steps))
	return nil
}

// ResetStep puts a step back to pending with its timers cleared.
func (b *Brew) ResetStep(stepID string) error {
	idx, _, err := b.step(stepID)
	if err != nil {
		return err
	}
	b.SyncProgress()
	b.Progress.StepProgress[idx] = StepProgress{StepID: stepID, Status: StepPending}
	return nil
}

func (b *Brew) step(stepID string) (int, SnapshotStep, error) {
	for i, s := range b.RecipeSnapshot.Steps {
		if s.StepID == stepID {
			return i, s, nil
		}
	}
	return 0, SnapshotStep{}, ErrStepNotFound
}

func (b *Brew) allCompleted() bool {
	if len(b.Progress.StepProgress) == 0 {
		return false
	}
	for _, sp := range b.Progress.StepProgress {
		if sp.Status != StepCompleted {
			return false
		}
	}
	return true
}

func pause(sp *StepProgress, now time.Time) {
	remaining, ok := remainingSeconds(*sp, now)
	accumulate(sp, now)
	sp.Status = StepPending
	sp.TimerEndsAt = null.Time{}
	sp.PausedRemainingSeconds = null.Int{}
	if ok {
		sp.PausedRemainingSeconds = null.IntFrom(remaining)
	}
}

// accumulate moves the seconds elapsed since the step became active into its total.
func accumulate(sp *StepProgress, now time.Time) {
	if !sp.ActiveSinceAt.Valid {
		return
	}
	sp.AccumulatedActiveSeconds += secondsBetween(sp.ActiveSinceAt.Time, now)
	sp.ActiveSinceAt = null.Time{}
}

func remainingSeconds(sp StepProgress, now time.Time) (int, bool) {
	if sp.PausedRemainingSeconds.Valid && sp.PausedRemainingSeconds.Int >= 0 {
		return sp.PausedRemainingSeconds.Int, true
	}
	if !sp.TimerEndsAt.Valid {
		return 0, false
	}
	remaining := int(math.Ceil(sp.TimerEndsAt.Time.Sub(now).Seconds()))
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

func elapsedSeconds(sp StepProgress, now time.Time) int {
	if sp.Status != StepActive || !sp.ActiveSinceAt.Valid {
		return sp.AccumulatedActiveSeconds
	}
	return sp.AccumulatedActiveSeconds + secondsBetween(sp.ActiveSinceAt.Time, now)
}

func secondsBetween(from, to time.Time) int {
	s := int(math.Floor(to.Sub(from).Seconds()))
	if s < 0 {
		return 0
	}
	return s
}

// View computes the response-time fields of the brew.
func (b Brew) View(now time.Time) BrewView {
	view := BrewView{
		Brew: b,
		ActualMetrics: ActualMetricsView{
			ActualMetrics: b.ActualMetrics,
		},
		Progress: ProgressView{
			CurrentStepIndex: clampIndex(b.Progress.CurrentStepIndex, len(b.RecipeSnapshot.Steps)),
			BrewStartedAt:    b.Progress.BrewStartedAt,
			BrewCompletedAt:  b.Progress.BrewCompletedAt,
			StepProgress:     make([]StepProgressView, 0, len(b.Progress.StepProgress)),
		},
	}
	if og, fg := b.ActualMetrics.OG, b.ActualMetrics.FG; og.Valid && fg.Valid {
		view.ActualMetrics.ABV = null.Float64From(core.Round(math.Max(0, (og.Float64-fg.Float64)*131.25), 2))
	}

	for _, sp := range b.Progress.StepProgress {
		spv := StepProgressView{StepProgress: sp, ElapsedSeconds: elapsedSeconds(sp, now)}
		spv.LoggedDurationSeconds = spv.ElapsedSeconds
		if sp.ActualDurationSeconds.Valid {
			spv.LoggedDurationSeconds = sp.ActualDurationSeconds.Int
		}
		view.Progress.StepProgress = append(view.Progress.StepProgress, spv)
	}

	if len(b.RecipeSnapshot.Steps) > 0 {
		step := b.RecipeSnapshot.Steps[view.Progress.CurrentStepIndex]
		view.CurrentStep = &step
		for i := range view.Progress.StepProgress {
			if view.Progress.StepProgress[i].StepID == step.StepID {
				spv := view.Progress.StepProgress[i]
				view.CurrentStepProgress = &spv
				break
			}
		}
	}
	return view
}
