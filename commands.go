package gekko2d

import "reflect"

// Commands is the system-facing handle to the app. Structural changes to
// the world are buffered and applied when the current stage ends.
type Commands struct {
	app *App
}

type pendingOp int

const (
	opSpawn pendingOp = iota
	opDespawn
	opAddComponents
	opRemoveComponents
)

type pendingCommand struct {
	op         pendingOp
	eid        EntityId
	components []any
}

func (cmd *Commands) AddResources(resources ...any) *Commands {
	cmd.app.addResources(resources...)
	return cmd
}

// AddEntity reserves an id right away; the entity becomes visible to
// queries after the flush.
func (cmd *Commands) AddEntity(components ...any) EntityId {
	eid := cmd.app.ecs.reserveEntityId()
	cmd.app.queue(pendingCommand{op: opSpawn, eid: eid, components: components})
	return eid
}

func (cmd *Commands) RemoveEntity(entityId EntityId) {
	cmd.app.queue(pendingCommand{op: opDespawn, eid: entityId})
}

func (cmd *Commands) AddComponents(entityId EntityId, components ...any) {
	cmd.app.queue(pendingCommand{op: opAddComponents, eid: entityId, components: components})
}

func (cmd *Commands) RemoveComponents(entityId EntityId, components ...any) {
	cmd.app.queue(pendingCommand{op: opRemoveComponents, eid: entityId, components: components})
}

// Logger returns the app logger.
func (cmd *Commands) Logger() Logger { return cmd.app.Logger() }

// GetComponent returns a pointer to the T component of an entity, nil when
// the entity or the component does not exist.
func GetComponent[T any](cmd *Commands, entityId EntityId) *T {
	c, ok := cmd.app.ecs.component(entityId, reflect.TypeFor[T]())
	if !ok {
		return nil
	}
	return c.(*T)
}

// HasComponent reports whether an entity carries a T component.
func HasComponent[T any](cmd *Commands, entityId EntityId) bool {
	return GetComponent[T](cmd, entityId) != nil
}
