package lighting

import (
	"github.com/gekko3d/gekko2d/render2d/core"
	"github.com/gekko3d/gekko2d/render2d/gpu"
)

// LightUniforms is the per-frame dynamic uniform buffer of light snapshots.
type LightUniforms = gpu.DynamicUniformBuffer[core.LightSnapshot]

func NewLightUniforms(limits gpu.Limits) *LightUniforms {
	return gpu.NewDynamicUniformBuffer[core.LightSnapshot]("point_light_2d uniforms", limits)
}

// UploadSnapshots writes every unculled light into the uniform buffer and
// records its dynamic offset. On failure no light keeps an offset, so the
// whole frame's lights are skipped.
func UploadSnapshots(device gpu.Device, uniforms *LightUniforms, lights []ExtractedLight) (int, error) {
	uniforms.Clear()
	for i := range lights {
		l := &lights[i]
		l.Uploaded = false
		if l.Culled {
			continue
		}
		l.DynamicOffset = uniforms.Push(l.Snapshot)
		l.Uploaded = true
	}
	if err := uniforms.Write(device); err != nil {
		for i := range lights {
			lights[i].Uploaded = false
		}
		uniforms.Clear()
		return 0, err
	}
	return uniforms.Len(), nil
}
