package gekko2d

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"reflect"
	"slices"
	"sync"
)

type EntityId uint64
type archetypeId uint64
type componentId uint32

// archetypeKey is the sorted, deduplicated list of component ids an
// archetype stores.
type archetypeKey []componentId
type set[T comparable] = map[T]struct{}

// archetype stores the components of its entities in dense columns. Row i
// of every column belongs to entities[i].
type archetype struct {
	id       archetypeId
	key      archetypeKey
	entities []EntityId
	columns  map[componentId]any
}

type entityLocation struct {
	arch *archetype
	row  int
}

type Ecs struct {
	archetypes map[archetypeId]*archetype
	// archetypes in creation order, so iteration is stable between frames
	ordered   []*archetype
	locations map[EntityId]entityLocation

	idLock sync.Mutex
	// ids start at 1; zero means no entity
	nextId EntityId

	componentLock  sync.Mutex
	componentIds   map[reflect.Type]componentId
	componentTypes []reflect.Type
}

func MakeEcs() Ecs {
	return Ecs{
		archetypes:   make(map[archetypeId]*archetype),
		locations:    make(map[EntityId]entityLocation),
		componentIds: make(map[reflect.Type]componentId),
		nextId:       1,
	}
}

// EntityCount returns the number of live entities.
func (ecs *Ecs) EntityCount() int { return len(ecs.locations) }

func (ecs *Ecs) addEntity(components ...any) EntityId {
	return ecs.insertEntity(ecs.reserveEntityId(), components...)
}

func (ecs *Ecs) insertEntity(entityId EntityId, components ...any) EntityId {
	if _, exists := ecs.locations[entityId]; exists {
		panic(fmt.Sprintf("entity %d already exists", entityId))
	}
	arch := ecs.getOrMakeArchetype(ecs.keyOf(components...))
	row := arch.appendRow(ecs, entityId)
	for _, c := range components {
		ecs.writeComponent(arch, row, c)
	}
	ecs.locations[entityId] = entityLocation{arch: arch, row: row}
	return entityId
}

func (ecs *Ecs) removeEntity(entityId EntityId) bool {
	loc, ok := ecs.locations[entityId]
	if !ok {
		return false
	}
	ecs.detach(loc)
	delete(ecs.locations, entityId)
	return true
}

func (ecs *Ecs) addComponents(entityId EntityId, components ...any) bool {
	src, ok := ecs.locations[entityId]
	if !ok {
		return false
	}
	key := dedupAndSort(append(slices.Clone(src.arch.key), ecs.keyOf(components...)...))
	dst := ecs.move(entityId, src, key)
	for _, c := range components {
		ecs.writeComponent(dst.arch, dst.row, c)
	}
	return true
}

func (ecs *Ecs) removeComponents(entityId EntityId, components ...any) bool {
	src, ok := ecs.locations[entityId]
	if !ok {
		return false
	}
	drop := make(set[componentId])
	for _, id := range ecs.keyOf(components...) {
		drop[id] = struct{}{}
	}
	var key archetypeKey
	for _, id := range src.arch.key {
		if _, found := drop[id]; !found {
			key = append(key, id)
		}
	}
	ecs.move(entityId, src, key)
	return true
}

// move relocates an entity into the archetype for key, copying the
// components both archetypes share.
func (ecs *Ecs) move(entityId EntityId, src entityLocation, key archetypeKey) entityLocation {
	dstArch := ecs.getOrMakeArchetype(key)
	if dstArch == src.arch {
		return src
	}
	dst := entityLocation{arch: dstArch, row: dstArch.appendRow(ecs, entityId)}
	for _, id := range dstArch.key {
		if col, shared := src.arch.columns[id]; shared {
			reflectSliceSet(dstArch.columns[id], dst.row, reflectSliceGet(col, src.row))
		}
	}
	ecs.detach(src)
	ecs.locations[entityId] = dst
	return dst
}

// detach swap-removes a row, fixing up the location of the entity that
// took its place.
func (ecs *Ecs) detach(loc entityLocation) {
	arch := loc.arch
	last := len(arch.entities) - 1
	if loc.row != last {
		moved := arch.entities[last]
		arch.entities[loc.row] = moved
		for _, col := range arch.columns {
			reflectSliceSet(col, loc.row, reflectSliceGet(col, last))
		}
		ecs.locations[moved] = entityLocation{arch: arch, row: loc.row}
	}
	arch.entities = arch.entities[:last]
	for id, col := range arch.columns {
		arch.columns[id] = reflectSliceTruncate(col, last)
	}
}

func (arch *archetype) appendRow(ecs *Ecs, entityId EntityId) int {
	row := len(arch.entities)
	arch.entities = append(arch.entities, entityId)
	for _, id := range arch.key {
		arch.columns[id] = reflectSliceAppend(arch.columns[id], reflect.Zero(ecs.componentTypes[id]))
	}
	return row
}

func (ecs *Ecs) writeComponent(arch *archetype, row int, component any) {
	value := reflect.ValueOf(component)
	if value.Kind() == reflect.Pointer {
		value = value.Elem()
	}
	id := ecs.getComponentId(value.Type())
	reflectSliceSet(arch.columns[id], row, value)
}

// component returns a pointer to the component of type t on an entity.
func (ecs *Ecs) component(entityId EntityId, t reflect.Type) (any, bool) {
	loc, ok := ecs.locations[entityId]
	if !ok {
		return nil, false
	}
	ecs.componentLock.Lock()
	id, known := ecs.componentIds[t]
	ecs.componentLock.Unlock()
	if !known {
		return nil, false
	}
	col, ok := loc.arch.columns[id]
	if !ok {
		return nil, false
	}
	return reflectSliceGet(col, loc.row).Addr().Interface(), true
}

func (ecs *Ecs) getOrMakeArchetype(key archetypeKey) *archetype {
	id := archetypeIdOf(key)
	if arch, ok := ecs.archetypes[id]; ok {
		return arch
	}
	arch := &archetype{
		id:      id,
		key:     key,
		columns: make(map[componentId]any, len(key)),
	}
	for _, cid := range key {
		arch.columns[cid] = reflectSliceMake(ecs.componentTypes[cid])
	}
	ecs.archetypes[id] = arch
	ecs.ordered = append(ecs.ordered, arch)
	return arch
}

func (ecs *Ecs) keyOf(components ...any) archetypeKey {
	key := make(archetypeKey, 0, len(components))
	for _, c := range components {
		t := reflect.TypeOf(c)
		if t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		if t.Kind() != reflect.Struct {
			panic(fmt.Sprintf("component must be a struct or a pointer to one, got %s", t))
		}
		key = append(key, ecs.getComponentId(t))
	}
	return dedupAndSort(key)
}

func dedupAndSort(key archetypeKey) archetypeKey {
	slices.Sort(key)
	return slices.Compact(key)
}

func archetypeIdOf(key archetypeKey) archetypeId {
	hash := fnv.New64a()
	var b [4]byte
	for _, id := range key {
		binary.LittleEndian.PutUint32(b[:], uint32(id))
		hash.Write(b[:])
	}
	return archetypeId(hash.Sum64())
}

func (ecs *Ecs) reserveEntityId() EntityId {
	ecs.idLock.Lock()
	defer ecs.idLock.Unlock()
	id := ecs.nextId
	ecs.nextId++
	return id
}

func (ecs *Ecs) getComponentId(t reflect.Type) componentId {
	ecs.componentLock.Lock()
	defer ecs.componentLock.Unlock()
	if id, ok := ecs.componentIds[t]; ok {
		return id
	}
	id := componentId(len(ecs.componentTypes))
	ecs.componentIds[t] = id
	ecs.componentTypes = append(ecs.componentTypes, t)
	return id
}
