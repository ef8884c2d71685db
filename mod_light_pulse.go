package gekko2d

import (
	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// LightPulseComponent swings the intensity of a PointLight2dComponent
// between From and To and back, forever.
type LightPulseComponent struct {
	From, To float32
	// Period is one full swing there and back, in seconds.
	Period float32
	Ease   ease.TweenFunc

	tween   *gween.Tween
	forward bool
}

func NewLightPulse(from, to, period float32) LightPulseComponent {
	return LightPulseComponent{From: from, To: to, Period: period, Ease: ease.InOutSine}
}

// advance steps the pulse and returns the current intensity.
func (p *LightPulseComponent) advance(dt float32) float32 {
	if p.Period <= 0 {
		return p.From
	}
	fn := p.Ease
	if fn == nil {
		fn = ease.Linear
	}
	if p.tween == nil {
		p.tween = gween.New(p.From, p.To, p.Period/2, fn)
		p.forward = true
	}
	value, finished := p.tween.Update(dt)
	if finished {
		p.forward = !p.forward
		if p.forward {
			p.tween = gween.New(p.From, p.To, p.Period/2, fn)
		} else {
			p.tween = gween.New(p.To, p.From, p.Period/2, fn)
		}
	}
	return value
}

type LightPulseModule struct{}

func (LightPulseModule) Install(app *App, cmd *Commands) {
	app.UseSystem(
		System(LightPulseSystem).
			InStage(Update).
			RunAlways(),
	)
}

// LightPulseSystem writes the pulse value into the light color alpha,
// which scales its intensity.
func LightPulseSystem(cmd *Commands, t *Time) {
	dt := t.DtSeconds()
	MakeQuery2[LightPulseComponent, PointLight2dComponent](cmd).Map(
		func(eid EntityId, pulse *LightPulseComponent, light *PointLight2dComponent) bool {
			light.Color[3] = pulse.advance(dt)
			return true
		})
}
