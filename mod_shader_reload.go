package gekko2d

import (
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/gekko3d/gekko2d/render2d/gpu"
	"github.com/gekko3d/gekko2d/render2d/shaders"
)

// ShaderWatcher reloads the point light shader when its file changes.
type ShaderWatcher struct {
	Path     string
	Reloads  int
	Failures int

	watcher *fsnotify.Watcher
	updates chan gpu.ShaderSource
	errs    chan error
	done    chan struct{}
}

// ShaderReloadModule watches Lighting.ShaderPath when Lighting.WatchShader
// is set. Requires PointLight2dModule.
type ShaderReloadModule struct{}

func (ShaderReloadModule) Install(app *App, cmd *Commands) {
	cfg := configOf(app)
	if !cfg.Lighting.WatchShader || cfg.Lighting.ShaderPath == "" {
		return
	}
	sw, err := NewShaderWatcher(cfg.Lighting.ShaderPath)
	if err != nil {
		app.Logger().Warnf("shader reload disabled: %v", err)
		return
	}
	cmd.AddResources(sw)
	app.UseSystem(System(shaderReloadSystem).InStage(PostRender).RunAlways()).
		UseSystem(System(shaderWatcherCloseSystem).InStage(Finale).RunAlways())
	app.Logger().Infof("watching %s", sw.Path)
}

// NewShaderWatcher watches the directory holding path, so editors that
// replace the file on save are still seen.
func NewShaderWatcher(path string) (*ShaderWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, err
	}
	sw := &ShaderWatcher{
		Path:    abs,
		watcher: w,
		updates: make(chan gpu.ShaderSource, 1),
		errs:    make(chan error, 1),
		done:    make(chan struct{}),
	}
	go sw.watch()
	return sw, nil
}

func (sw *ShaderWatcher) watch() {
	defer close(sw.done)
	for {
		select {
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != sw.Path || !event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			data, err := os.ReadFile(sw.Path)
			if err != nil || len(data) == 0 {
				continue
			}
			sw.offer(gpu.ShaderSource{Label: shaders.PointLightLabel, WGSL: string(data)})
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			select {
			case sw.errs <- err:
			default:
			}
		}
	}
}

// offer keeps only the newest pending source.
func (sw *ShaderWatcher) offer(src gpu.ShaderSource) {
	for {
		select {
		case sw.updates <- src:
			return
		default:
		}
		select {
		case <-sw.updates:
		default:
		}
	}
}

// Pending returns the newest source seen since the last call.
func (sw *ShaderWatcher) Pending() (gpu.ShaderSource, bool) {
	select {
	case src := <-sw.updates:
		return src, true
	default:
		return gpu.ShaderSource{}, false
	}
}

func (sw *ShaderWatcher) Close() error {
	err := sw.watcher.Close()
	<-sw.done
	return err
}

func shaderReloadSystem(sw *ShaderWatcher, pl *PointLights2d) {
	select {
	case err := <-sw.errs:
		pl.logger.Warnf("shader watcher: %v", err)
	default:
	}
	src, ok := sw.Pending()
	if !ok {
		return
	}
	if err := pl.Renderer.Reload(src); err != nil {
		sw.Failures++
		pl.logger.Warnf("shader reload failed, keeping previous pipeline: %v", err)
		return
	}
	sw.Reloads++
}

func shaderWatcherCloseSystem(sw *ShaderWatcher, exit *AppExit) {
	if exit.Requested && sw.watcher != nil {
		sw.Close()
		sw.watcher = nil
	}
}
