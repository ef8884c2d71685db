package shaders

import (
	_ "embed"
)

// Shader labels. The software backend registers its programs under the
// same names.
const (
	PointLightLabel = "point_light_2d"
	OccluderLabel   = "occluder_2d"
	TonemapLabel    = "tonemap"
)

//go:embed point_light.wgsl
var PointLightWGSL string

//go:embed occluder.wgsl
var OccluderWGSL string

//go:embed tonemap.wgsl
var TonemapWGSL string
