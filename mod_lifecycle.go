package gekko2d

// LifetimeComponent removes an entity once TimeLeft, in seconds, runs out.
type LifetimeComponent struct {
	TimeLeft float32
}

type LifecycleModule struct{}

func (mod LifecycleModule) Install(app *App, cmd *Commands) {
	app.UseSystem(
		System(lifetimeSystem).
			InStage(PostUpdate).
			RunAlways(),
	)
}

func lifetimeSystem(time *Time, cmd *Commands) {
	dt := time.DtSeconds()
	if dt <= 0 {
		return
	}
	MakeQuery1[LifetimeComponent](cmd).Map(func(eid EntityId, lt *LifetimeComponent) bool {
		lt.TimeLeft -= dt
		if lt.TimeLeft <= 0 {
			cmd.Logger().Debugf("lifetime of entity %d over", eid)
			cmd.RemoveEntity(eid)
		}
		return true
	})
}

// FrameLimit requests exit once Frames frames have been rendered.
type FrameLimit struct {
	Frames uint64
}

// FrameLimitModule ends Run after a fixed number of frames. The last frame
// still renders completely.
type FrameLimitModule struct {
	Frames uint64
}

func (mod FrameLimitModule) Install(app *App, cmd *Commands) {
	cmd.AddResources(&FrameLimit{Frames: mod.Frames})
	app.UseSystem(
		System(frameLimitSystem).
			InStage(Prelude).
			RunAlways(),
	)
}

func frameLimitSystem(cmd *Commands, limit *FrameLimit, exit *AppExit) {
	if limit.Frames > 0 && cmd.app.Frame()+1 >= limit.Frames && !exit.Requested {
		exit.Requested = true
		exit.Reason = "frame limit reached"
	}
}
