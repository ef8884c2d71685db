package gekko2d

import "reflect"

// Queries visit archetypes in creation order and rows in insertion order
// (modulo swap-removal). Returning false from the callback stops the walk.
//
// Component pointers handed to a callback stay valid until the next
// command flush.

type queryFilter struct {
	without []reflect.Type
}

type Query1[A any] struct {
	ecs    *Ecs
	filter queryFilter
}
type Query2[A, B any] struct {
	ecs    *Ecs
	filter queryFilter
}
type Query3[A, B, C any] struct {
	ecs    *Ecs
	filter queryFilter
}
type Query4[A, B, C, D any] struct {
	ecs    *Ecs
	filter queryFilter
}

func MakeQuery1[A any](cmd *Commands) Query1[A]             { return Query1[A]{ecs: cmd.app.ecs} }
func MakeQuery2[A, B any](cmd *Commands) Query2[A, B]       { return Query2[A, B]{ecs: cmd.app.ecs} }
func MakeQuery3[A, B, C any](cmd *Commands) Query3[A, B, C] { return Query3[A, B, C]{ecs: cmd.app.ecs} }
func MakeQuery4[A, B, C, D any](cmd *Commands) Query4[A, B, C, D] {
	return Query4[A, B, C, D]{ecs: cmd.app.ecs}
}

func withoutTypes(f queryFilter, components []any) queryFilter {
	out := queryFilter{without: append([]reflect.Type(nil), f.without...)}
	for _, c := range components {
		t := reflect.TypeOf(c)
		if t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		out.without = append(out.without, t)
	}
	return out
}

// Without excludes entities carrying any of the given components.
func (q Query1[A]) Without(components ...any) Query1[A] {
	q.filter = withoutTypes(q.filter, components)
	return q
}

func (q Query2[A, B]) Without(components ...any) Query2[A, B] {
	q.filter = withoutTypes(q.filter, components)
	return q
}

func (q Query3[A, B, C]) Without(components ...any) Query3[A, B, C] {
	q.filter = withoutTypes(q.filter, components)
	return q
}

func (q Query4[A, B, C, D]) Without(components ...any) Query4[A, B, C, D] {
	q.filter = withoutTypes(q.filter, components)
	return q
}

func idOf[T any](ecs *Ecs) componentId {
	return ecs.getComponentId(reflect.TypeFor[T]())
}

// matching yields the archetypes holding every required component and
// none of the excluded ones.
func (ecs *Ecs) matching(filter queryFilter, required ...componentId) []*archetype {
	excluded := make([]componentId, 0, len(filter.without))
	for _, t := range filter.without {
		excluded = append(excluded, ecs.getComponentId(t))
	}
	var out []*archetype
outer:
	for _, arch := range ecs.ordered {
		if len(arch.entities) == 0 {
			continue
		}
		for _, id := range required {
			if _, ok := arch.columns[id]; !ok {
				continue outer
			}
		}
		for _, id := range excluded {
			if _, ok := arch.columns[id]; ok {
				continue outer
			}
		}
		out = append(out, arch)
	}
	return out
}

func (q Query1[A]) Map(m func(EntityId, *A) bool) {
	ia := idOf[A](q.ecs)
	for _, arch := range q.ecs.matching(q.filter, ia) {
		as := arch.columns[ia].([]A)
		for row, eid := range arch.entities {
			if !m(eid, &as[row]) {
				return
			}
		}
	}
}

func (q Query2[A, B]) Map(m func(EntityId, *A, *B) bool) {
	ia, ib := idOf[A](q.ecs), idOf[B](q.ecs)
	for _, arch := range q.ecs.matching(q.filter, ia, ib) {
		as := arch.columns[ia].([]A)
		bs := arch.columns[ib].([]B)
		for row, eid := range arch.entities {
			if !m(eid, &as[row], &bs[row]) {
				return
			}
		}
	}
}

func (q Query3[A, B, C]) Map(m func(EntityId, *A, *B, *C) bool) {
	ia, ib, ic := idOf[A](q.ecs), idOf[B](q.ecs), idOf[C](q.ecs)
	for _, arch := range q.ecs.matching(q.filter, ia, ib, ic) {
		as := arch.columns[ia].([]A)
		bs := arch.columns[ib].([]B)
		cs := arch.columns[ic].([]C)
		for row, eid := range arch.entities {
			if !m(eid, &as[row], &bs[row], &cs[row]) {
				return
			}
		}
	}
}

func (q Query4[A, B, C, D]) Map(m func(EntityId, *A, *B, *C, *D) bool) {
	ia, ib, ic, id := idOf[A](q.ecs), idOf[B](q.ecs), idOf[C](q.ecs), idOf[D](q.ecs)
	for _, arch := range q.ecs.matching(q.filter, ia, ib, ic, id) {
		as := arch.columns[ia].([]A)
		bs := arch.columns[ib].([]B)
		cs := arch.columns[ic].([]C)
		ds := arch.columns[id].([]D)
		for row, eid := range arch.entities {
			if !m(eid, &as[row], &bs[row], &cs[row], &ds[row]) {
				return
			}
		}
	}
}

// Count returns the number of entities the query matches.
func (q Query1[A]) Count() int {
	n := 0
	for _, arch := range q.ecs.matching(q.filter, idOf[A](q.ecs)) {
		n += len(arch.entities)
	}
	return n
}
