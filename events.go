package gekko2d

// Events is a frame-buffered event queue resource. Events sent during a
// frame stay readable through the end of the next frame, so every system
// sees them once regardless of stage order.
type Events[T any] struct {
	previous []T
	current  []T
}

func (e *Events[T]) Send(ev T) {
	e.current = append(e.current, ev)
}

// Read returns the events of the previous and the current frame, oldest
// first.
func (e *Events[T]) Read() []T {
	out := make([]T, 0, len(e.previous)+len(e.current))
	out = append(out, e.previous...)
	return append(out, e.current...)
}

func (e *Events[T]) Len() int { return len(e.previous) + len(e.current) }

// Update drops the previous frame's events.
func (e *Events[T]) Update() {
	e.previous, e.current = e.current, e.previous[:0]
}

// UseEvents registers an Events[T] resource updated at the end of every
// frame.
func UseEvents[T any](app *App) *Events[T] {
	if existing := Resource[Events[T]](app); existing != nil {
		return existing
	}
	events := &Events[T]{}
	app.addResources(events)
	app.UseSystem(System(func(e *Events[T]) { e.Update() }).InStage(Finale))
	return events
}
