package gekko2d

import (
	"github.com/gekko3d/gekko2d/render2d/gpu"
	"github.com/go-gl/glfw/v3.3/glfw"
)

// WindowState is the shared GLFW window. Present only with the wgpu
// backend.
type WindowState struct {
	window *glfw.Window
	Width  int
	Height int
	Title  string
}

// WindowModule opens the window described by Config.Window. Install is a
// no-op when a WindowState already exists.
type WindowModule struct{}

func (WindowModule) Install(app *App, cmd *Commands) {
	ensureWindowResource(app)
	app.UseSystem(
		System(windowCloseSystem).
			InStage(PreUpdate).
			RunAlways(),
	)
}

func ensureWindowResource(app *App) *WindowState {
	if ws := Resource[WindowState](app); ws != nil {
		return ws
	}
	cfg := configOf(app)
	win, err := gpu.OpenWindow(cfg.Window.Width, cfg.Window.Height, cfg.Window.Title)
	if err != nil {
		app.Logger().Errorf("open window: %v", err)
		panic(err)
	}
	ws := &WindowState{
		window: win,
		Width:  cfg.Window.Width,
		Height: cfg.Window.Height,
		Title:  cfg.Window.Title,
	}
	app.addResources(ws)
	app.Logger().Infof("window %dx%d %q", ws.Width, ws.Height, ws.Title)
	return ws
}

func windowCloseSystem(ws *WindowState, exit *AppExit) {
	if ws.window.ShouldClose() {
		exit.Requested = true
		exit.Reason = "window closed"
	}
}

const (
	KeyEscape int = iota
	KeyLeft
	KeyRight
	KeyUp
	KeyDown
	KeyEqual
	KeyMinus
	KeyR
	keyCount
)

var keyToGlfw = map[int]glfw.Key{
	KeyEscape: glfw.KeyEscape,
	KeyLeft:   glfw.KeyLeft,
	KeyRight:  glfw.KeyRight,
	KeyUp:     glfw.KeyUp,
	KeyDown:   glfw.KeyDown,
	KeyEqual:  glfw.KeyEqual,
	KeyMinus:  glfw.KeyMinus,
	KeyR:      glfw.KeyR,
}

type Input struct {
	Pressed      [keyCount]bool
	JustPressed  [keyCount]bool
	JustReleased [keyCount]bool

	WindowWidth, WindowHeight int
}

// SetKey records the state of a key for this frame.
func (input *Input) SetKey(key int, down bool) {
	input.JustPressed[key] = down && !input.Pressed[key]
	input.JustReleased[key] = !down && input.Pressed[key]
	input.Pressed[key] = down
}

// InputModule polls the window every frame. Escape requests exit.
type InputModule struct{}

func (mod InputModule) Install(app *App, cmd *Commands) {
	cmd.AddResources(&Input{})
	if Resource[WindowState](app) != nil {
		app.UseSystem(
			System(inputSystem).
				InStage(Prelude).
				RunAlways(),
		)
	}
	app.UseSystem(
		System(exitOnEscapeSystem).
			InStage(PreUpdate).
			RunAlways(),
	)
}

func inputSystem(s *WindowState, input *Input) {
	glfw.PollEvents()
	for key, glfwKey := range keyToGlfw {
		input.SetKey(key, s.window.GetKey(glfwKey) == glfw.Press)
	}
	input.WindowWidth, input.WindowHeight = s.window.GetFramebufferSize()
}

func exitOnEscapeSystem(input *Input, exit *AppExit) {
	if input.JustPressed[KeyEscape] {
		exit.Requested = true
		exit.Reason = "escape pressed"
	}
}
