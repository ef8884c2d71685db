package gekko2d

import (
	"fmt"
	"reflect"
	"runtime"
)

// Module installs resources and systems into an App.
type Module interface {
	Install(app *App, cmd *Commands)
}

// AppExit is always present. Setting Requested ends Run after the current
// frame.
type AppExit struct {
	Requested bool
	Reason    string
}

type App struct {
	stages         []Stage
	systems        map[string][]systemFn
	startupSystems map[string][]systemFn
	resources      map[reflect.Type]any
	ecs            *Ecs

	modules []Module
	built   bool
	frame   uint64

	pending []pendingCommand
}

func NewApp() *App {
	ecs := MakeEcs()
	app := &App{
		stages:         defaultStages(),
		systems:        make(map[string][]systemFn),
		startupSystems: make(map[string][]systemFn),
		resources:      make(map[reflect.Type]any),
		ecs:            &ecs,
	}
	app.addResources(&AppExit{})
	return app
}

func (app *App) Commands() *Commands {
	return &Commands{app: app}
}

// UseModules queues modules for installation. They are installed in order
// when the app is built.
func (app *App) UseModules(modules ...Module) *App {
	if app.built {
		cmd := app.Commands()
		for _, m := range modules {
			m.Install(app, cmd)
		}
		app.FlushCommands()
		return app
	}
	app.modules = append(app.modules, modules...)
	return app
}

func (app *App) build() {
	if app.built {
		return
	}
	app.built = true
	cmd := app.Commands()
	for _, m := range app.modules {
		m.Install(app, cmd)
	}
	app.FlushCommands()
}

// Frame returns the number of completed frames.
func (app *App) Frame() uint64 { return app.frame }

// Step runs every stage once.
func (app *App) Step() {
	app.build()
	for _, stage := range app.stages {
		if app.frame == 0 {
			for _, system := range app.startupSystems[stage.Name] {
				app.callSystem(system)
			}
		}
		for _, system := range app.systems[stage.Name] {
			app.callSystem(system)
		}
		app.FlushCommands()
	}
	app.frame++
}

// Run steps frames until AppExit is requested.
func (app *App) Run() {
	exit := Resource[AppExit](app)
	for !exit.Requested {
		app.Step()
	}
	app.Logger().Infof("exiting after %d frames: %s", app.frame, exit.Reason)
}

func (app *App) addResources(resources ...any) *App {
	for _, resource := range resources {
		resourceType := reflect.TypeOf(resource)
		if resourceType.Kind() != reflect.Pointer {
			panic(fmt.Sprintf("resource %s must be a pointer", resourceType))
		}
		if _, ok := app.resources[resourceType.Elem()]; ok {
			panic(fmt.Sprintf("%s is already in resources", resourceType))
		}
		app.resources[resourceType.Elem()] = resource
	}
	return app
}

// Resource returns the registered resource of type T, or nil.
func Resource[T any](app *App) *T {
	if r, ok := app.resources[reflect.TypeFor[T]()]; ok {
		return r.(*T)
	}
	return nil
}

var typeOfCommands = reflect.TypeFor[Commands]()

func (app *App) callSystem(system systemFn) {
	systemType := reflect.TypeOf(system)
	systemValue := reflect.ValueOf(system)

	args := make([]reflect.Value, systemType.NumIn())
	for i := range args {
		argType := systemType.In(i)
		if argType.Kind() != reflect.Pointer {
			app.unresolved(systemValue, argType)
		}
		underlying := argType.Elem()
		if underlying == typeOfCommands {
			args[i] = reflect.ValueOf(&Commands{app: app})
		} else if resource, ok := app.resources[underlying]; ok {
			args[i] = reflect.ValueOf(resource)
		} else {
			app.unresolved(systemValue, argType)
		}
	}
	systemValue.Call(args)
}

func (app *App) unresolved(system reflect.Value, dependency reflect.Type) {
	msg := fmt.Sprintf("Unable to resolve System dependency.\nSystem: %s\nSystem type: %s\nDependency: %s",
		runtime.FuncForPC(system.Pointer()).Name(),
		system.Type(),
		dependency,
	)
	app.Logger().Errorf("%s", msg)
	panic(msg)
}

func (app *App) queue(c pendingCommand) {
	app.pending = append(app.pending, c)
}

// FlushCommands applies buffered structural changes in the order they were
// issued. Commands aimed at entities that no longer exist are dropped.
func (app *App) FlushCommands() {
	if len(app.pending) == 0 {
		return
	}
	logger := app.Logger()
	for _, c := range app.pending {
		switch c.op {
		case opSpawn:
			app.ecs.insertEntity(c.eid, c.components...)
		case opDespawn:
			if !app.ecs.removeEntity(c.eid) {
				logger.Debugf("despawn of missing entity %d ignored", c.eid)
			}
		case opAddComponents:
			if !app.ecs.addComponents(c.eid, c.components...) {
				logger.Debugf("add components to missing entity %d ignored", c.eid)
			}
		case opRemoveComponents:
			if !app.ecs.removeComponents(c.eid, c.components...) {
				logger.Debugf("remove components from missing entity %d ignored", c.eid)
			}
		}
	}
	app.pending = app.pending[:0]
}
