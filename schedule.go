package gekko2d

import (
	"fmt"
	"slices"
)

// Stage is a barrier in the frame: its systems run in registration order
// and its buffered commands are applied before the next stage starts.
type Stage struct {
	Name string
}

var (
	Prelude    = Stage{Name: "Prelude"}
	PreUpdate  = Stage{Name: "PreUpdate"}
	Update     = Stage{Name: "Update"}
	PostUpdate = Stage{Name: "PostUpdate"}
	// Extract copies simulation state into render-side resources.
	Extract           = Stage{Name: "Extract"}
	PreRender         = Stage{Name: "PreRender"}
	PrepareBindGroups = Stage{Name: "PrepareBindGroups"}
	Render            = Stage{Name: "Render"}
	PostRender        = Stage{Name: "PostRender"}
	Finale            = Stage{Name: "Finale"}
)

func defaultStages() []Stage {
	return []Stage{Prelude, PreUpdate, Update, PostUpdate, Extract, PreRender, PrepareBindGroups, Render, PostRender, Finale}
}

type systemFn any

type systemScheduleBuilder struct {
	system  systemFn
	inStage Stage
	startup bool
}

// System wraps a system function. Parameters are resolved per call: a
// *Commands, or a pointer to a registered resource.
func System(system systemFn) systemScheduleBuilder {
	return systemScheduleBuilder{system: system, inStage: Update}
}

func (sched systemScheduleBuilder) InStage(s Stage) systemScheduleBuilder {
	sched.inStage = s
	return sched
}

// RunAlways schedules the system on every frame. This is the default and
// is kept for readability at call sites.
func (sched systemScheduleBuilder) RunAlways() systemScheduleBuilder {
	sched.startup = false
	return sched
}

// RunOnce runs the system in its stage on the first frame only.
func (sched systemScheduleBuilder) RunOnce() systemScheduleBuilder {
	sched.startup = true
	return sched
}

type stagePosition int

const (
	stageBefore stagePosition = iota
	stageAfter
)

type stagePositionBuilder struct {
	position stagePosition
	target   Stage
}

func BeforeStage(s Stage) stagePositionBuilder {
	return stagePositionBuilder{position: stageBefore, target: s}
}

func AfterStage(s Stage) stagePositionBuilder {
	return stagePositionBuilder{position: stageAfter, target: s}
}

func (app *App) stageIndex(name string) int {
	return slices.IndexFunc(app.stages, func(s Stage) bool { return s.Name == name })
}

// UseStage inserts a custom stage relative to an existing one.
func (app *App) UseStage(stage Stage, where stagePositionBuilder) *App {
	idx := app.stageIndex(where.target.Name)
	if idx == -1 {
		panic(fmt.Sprintf("Stage %v not found", where.target.Name))
	}
	if app.stageIndex(stage.Name) != -1 {
		panic(fmt.Sprintf("Stage %v already exists", stage.Name))
	}
	if where.position == stageAfter {
		idx++
	}
	app.stages = slices.Insert(app.stages, idx, stage)
	return app
}

func (app *App) UseSystem(system systemScheduleBuilder) *App {
	if app.stageIndex(system.inStage.Name) == -1 {
		panic(fmt.Sprintf("Stage %v doesn't exist", system.inStage.Name))
	}
	if system.startup {
		app.startupSystems[system.inStage.Name] = append(app.startupSystems[system.inStage.Name], system.system)
	} else {
		app.systems[system.inStage.Name] = append(app.systems[system.inStage.Name], system.system)
	}
	return app
}
