package gekko2d

import (
	"fmt"

	"github.com/google/uuid"
)

const defaultLevelId = "14c704f0-c210-11ef-833b-5533c9bd8e92"

// LevelSelection picks the level inside the level file.
type LevelSelection struct {
	Index int
}

// CurrentLevel identifies the loaded level.
type CurrentLevel struct {
	Id uuid.UUID
}

// LevelRoot marks the entity level content hangs from.
type LevelRoot struct {
	Path string
}

// LevelStartedEvent is sent once the level root and its content exist.
type LevelStartedEvent struct {
	Level    uuid.UUID
	Root     EntityId
	Entities int
}

// LevelModule spawns the selected level of Config.Level.Path under a
// LevelRoot on the first frame. An empty path starts an empty level.
type LevelModule struct{}

func (LevelModule) Install(app *App, cmd *Commands) {
	UseEvents[LevelStartedEvent](app)
	app.UseSystem(
		System(setupLevelSystem).
			InStage(Prelude).
			RunOnce(),
	)
}

func setupLevelSystem(cmd *Commands, events *Events[LevelStartedEvent]) {
	cfg := configOf(cmd.app)
	id, err := uuid.Parse(cfg.Level.Id)
	if err != nil {
		cmd.Logger().Warnf("level id %q: %v, using default", cfg.Level.Id, err)
		id = uuid.MustParse(defaultLevelId)
	}
	cmd.AddResources(
		&LevelSelection{Index: cfg.Level.Index},
		&CurrentLevel{Id: id},
	)
	root := cmd.AddEntity(
		LevelRoot{Path: cfg.Level.Path},
		NewTransformComponent(0, 0),
	)
	spawned := 0
	if cfg.Level.Path != "" {
		level, err := selectLevel(cfg.Level.Path, cfg.Level.Index)
		if err != nil {
			cmd.Logger().Errorf("level: %v", err)
		} else {
			spawned = len(SpawnLevel(cmd, level, root))
		}
	}
	events.Send(LevelStartedEvent{Level: id, Root: root, Entities: spawned})
	cmd.Logger().Infof("level %d (%s) started from %q with %d entities", cfg.Level.Index, id, cfg.Level.Path, spawned)
}

func selectLevel(path string, index int) (LevelData, error) {
	preset, err := ReadPreset(path)
	if err != nil {
		return LevelData{}, err
	}
	if index < 0 || index >= len(preset.Levels) {
		return LevelData{}, fmt.Errorf("%s: level index %d out of range [0, %d)", path, index, len(preset.Levels))
	}
	return preset.Levels[index], nil
}
