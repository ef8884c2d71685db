package gekko2d

import (
	"fmt"
)

// RendererTag records which backend drives the App's render stages.
type RendererTag struct {
	Backend RenderBackend
}

// ensureSingleRenderer panics when a second, different backend is
// installed. It reports whether this backend was already installed.
func ensureSingleRenderer(app *App, backend RenderBackend) bool {
	if app == nil {
		panic("ensureSingleRenderer: app is nil")
	}
	if tag := Resource[RendererTag](app); tag != nil {
		if tag.Backend != backend {
			app.Logger().Errorf("Multiple renderers installed: %s and %s", tag.Backend, backend)
			panic(fmt.Sprintf("Multiple renderers installed: %s and %s", tag.Backend, backend))
		}
		return true
	}
	app.addResources(&RendererTag{Backend: backend})
	return false
}
