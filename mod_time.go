package gekko2d

import (
	"time"
)

type Time struct {
	Time    time.Time
	Dt      time.Duration
	Elapsed time.Duration
	Frame   uint64

	fixed time.Duration
}

// DtSeconds returns the last frame duration in seconds.
func (t *Time) DtSeconds() float32 { return float32(t.Dt.Seconds()) }

// TimeModule advances Time in Prelude. A non-zero FixedDt replaces the
// wall clock, which keeps headless runs reproducible.
type TimeModule struct {
	FixedDt time.Duration
}

func (mod TimeModule) Install(app *App, cmd *Commands) {
	cmd.AddResources(&Time{Time: time.Now(), fixed: mod.FixedDt})
	app.UseSystem(
		System(timeSystem).
			InStage(Prelude).
			RunAlways(),
	)
}

func timeSystem(t *Time) {
	if t.fixed > 0 {
		t.Dt = t.fixed
		t.Time = t.Time.Add(t.fixed)
	} else {
		now := time.Now()
		t.Dt = now.Sub(t.Time)
		t.Time = now
	}
	t.Elapsed += t.Dt
	t.Frame++
}
