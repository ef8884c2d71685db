package gekko2d

import (
	"github.com/gekko3d/gekko2d/render2d/core"
	"github.com/go-gl/mathgl/mgl32"
)

// TransformComponent places an entity relative to its Parent, or in the
// world when it has none.
type TransformComponent struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3
}

func NewTransformComponent(x, y float32) TransformComponent {
	return TransformComponent{
		Position: mgl32.Vec3{x, y, 0},
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
	}
}

// Parent attaches an entity to another one.
type Parent struct {
	Entity EntityId
}

// GlobalTransform is the world transform computed by the hierarchy system.
// Added automatically to every entity with a TransformComponent.
type GlobalTransform struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3
}

func (g GlobalTransform) Core() core.Transform {
	return core.Transform{Position: g.Position, Rotation: g.Rotation, Scale: g.Scale}
}

// compose applies a child transform under a parent one. Scale is carried
// per axis so mirrored parents keep their sign.
func compose(parent GlobalTransform, local TransformComponent) GlobalTransform {
	scaled := mgl32.Vec3{
		local.Position.X() * parent.Scale.X(),
		local.Position.Y() * parent.Scale.Y(),
		local.Position.Z() * parent.Scale.Z(),
	}
	return GlobalTransform{
		Position: parent.Position.Add(parent.Rotation.Rotate(scaled)),
		Rotation: parent.Rotation.Mul(local.Rotation).Normalize(),
		Scale: mgl32.Vec3{
			parent.Scale.X() * local.Scale.X(),
			parent.Scale.Y() * local.Scale.Y(),
			parent.Scale.Z() * local.Scale.Z(),
		},
	}
}

func rootTransform(local TransformComponent) GlobalTransform {
	return GlobalTransform(local)
}

type HierarchyModule struct{}

func (HierarchyModule) Install(app *App, cmd *Commands) {
	app.UseSystem(
		System(TransformHierarchySystem).
			InStage(PostUpdate).
			RunAlways(),
	)
}

type hierarchyNode struct {
	local     TransformComponent
	parent    EntityId
	hasParent bool
}

// TransformHierarchySystem resolves every GlobalTransform from the root
// down. Entities whose parent chain is broken or cyclic are treated as
// roots.
func TransformHierarchySystem(cmd *Commands) {
	nodes := make(map[EntityId]hierarchyNode)
	MakeQuery1[TransformComponent](cmd).Map(func(eid EntityId, tr *TransformComponent) bool {
		nodes[eid] = hierarchyNode{local: *tr}
		return true
	})
	MakeQuery2[TransformComponent, Parent](cmd).Map(func(eid EntityId, _ *TransformComponent, p *Parent) bool {
		n := nodes[eid]
		n.parent, n.hasParent = p.Entity, true
		nodes[eid] = n
		return true
	})

	resolved := make(map[EntityId]GlobalTransform, len(nodes))
	visiting := make(set[EntityId])
	var resolve func(eid EntityId) GlobalTransform
	resolve = func(eid EntityId) GlobalTransform {
		if g, ok := resolved[eid]; ok {
			return g
		}
		n := nodes[eid]
		g := rootTransform(n.local)
		if _, parentKnown := nodes[n.parent]; n.hasParent && parentKnown {
			if _, cyclic := visiting[eid]; cyclic {
				cmd.Logger().Warnf("transform hierarchy cycle at entity %d", eid)
			} else {
				visiting[eid] = struct{}{}
				g = compose(resolve(n.parent), n.local)
				delete(visiting, eid)
			}
		}
		resolved[eid] = g
		return g
	}

	MakeQuery2[TransformComponent, GlobalTransform](cmd).Map(func(eid EntityId, _ *TransformComponent, global *GlobalTransform) bool {
		*global = resolve(eid)
		return true
	})
	MakeQuery1[TransformComponent](cmd).Without(GlobalTransform{}).Map(func(eid EntityId, _ *TransformComponent) bool {
		cmd.AddComponents(eid, resolve(eid))
		return true
	})
}
