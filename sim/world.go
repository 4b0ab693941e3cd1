// Package sim is a small stand-in for the game: players own cities, cities
// have tiles worth improving, and AI workers plan improvements from
// snapshots while the game thread keeps mutating the real world.
package sim

import (
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brensch/threadai/aimsg"
)

var (
	ErrUnknownCity = errors.New("sim: unknown city")
	ErrCityLost    = errors.New("sim: city no longer owned by player")
	ErrBadTile     = errors.New("sim: tile out of range")
	ErrNoSnapshot  = errors.New("sim: command carries no snapshot")
)

type Config struct {
	Players         int     `yaml:"players"`
	Turns           int     `yaml:"turns"`
	CitiesPerPlayer int     `yaml:"cities_per_player"`
	TilesPerCity    int     `yaml:"tiles_per_city"`
	ToggleChance    float64 `yaml:"toggle_chance"`
	TransferChance  float64 `yaml:"transfer_chance"`
	Seed            int64   `yaml:"seed"`
	// Think is how long the strategy sleeps per command, to make queueing
	// visible.
	Think time.Duration `yaml:"think"`
	// TurnTimeout bounds how long a turn waits for TurnDone from every AI.
	TurnTimeout time.Duration `yaml:"turn_timeout"`
}

type Terrain int

const (
	Grassland Terrain = iota
	Hills
	Plains
	Desert
)

var terrainNames = [...]string{"grassland", "hills", "plains", "desert"}

func (t Terrain) String() string {
	if t >= 0 && int(t) < len(terrainNames) {
		return terrainNames[t]
	}
	return fmt.Sprintf("terrain(%d)", int(t))
}

// Improvement is the activity that upgrades the terrain.
func (t Terrain) Improvement() aimsg.Activity {
	switch t {
	case Grassland:
		return aimsg.ActivityIrrigate
	case Hills:
		return aimsg.ActivityMine
	case Plains:
		return aimsg.ActivityRoad
	case Desert:
		return aimsg.ActivityTransform
	default:
		return aimsg.ActivityIdle
	}
}

type Tile struct {
	Terrain  Terrain
	Value    int
	Improved bool
}

type City struct {
	ID     int
	Owner  aimsg.PlayerID
	Tiles  []Tile
	Wanted *aimsg.Task
}

func (c *City) clone() City {
	cp := *c
	cp.Tiles = slices.Clone(c.Tiles)
	if c.Wanted != nil {
		w := *c.Wanted
		cp.Wanted = &w
	}
	return cp
}

// World is owned by the game thread. Workers only ever see Snapshots.
type World struct {
	Turn    int
	Players []aimsg.PlayerID
	Cities  []*City

	done      map[aimsg.PlayerID]int
	applied   int
	discarded int
	improved  int

	outstanding atomic.Int64
}

// NewWorld builds players 1..cfg.Players, each with cfg.CitiesPerPlayer
// cities of random tiles.
func NewWorld(cfg Config, rng *rand.Rand) *World {
	tiles := cfg.TilesPerCity
	if tiles <= 0 {
		tiles = 8
	}
	w := &World{Turn: 1, done: make(map[aimsg.PlayerID]int)}
	id := 0
	for p := 1; p <= cfg.Players; p++ {
		player := aimsg.PlayerID(p)
		w.Players = append(w.Players, player)
		for range cfg.CitiesPerPlayer {
			id++
			c := &City{ID: id, Owner: player, Tiles: make([]Tile, tiles)}
			for i := range c.Tiles {
				c.Tiles[i] = Tile{Terrain: Terrain(rng.Intn(len(terrainNames))), Value: 1 + rng.Intn(9)}
			}
			w.Cities = append(w.Cities, c)
		}
	}
	return w
}

func (w *World) City(id int) (*City, bool) {
	for _, c := range w.Cities {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

// Owned lists the ids of the player's cities.
func (w *World) Owned(player aimsg.PlayerID) []int {
	var ids []int
	for _, c := range w.Cities {
		if c.Owner == player {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// Transfer hands a city to another player. Any pending wanted task is
// cleared.
func (w *World) Transfer(cityID int, to aimsg.PlayerID) error {
	c, ok := w.City(cityID)
	if !ok {
		return fmt.Errorf("transfer city %d: %w", cityID, ErrUnknownCity)
	}
	c.Owner = to
	c.Wanted = nil
	return nil
}

// Snapshot copies every city. The copy must be released exactly once.
func (w *World) Snapshot() *Snapshot {
	s := &Snapshot{Turn: w.Turn, Cities: make([]City, len(w.Cities)), owner: w}
	for i, c := range w.Cities {
		s.Cities[i] = c.clone()
	}
	w.outstanding.Add(1)
	return s
}

// CitySnapshot copies a single city.
func (w *World) CitySnapshot(cityID int) (*Snapshot, error) {
	c, ok := w.City(cityID)
	if !ok {
		return nil, fmt.Errorf("snapshot city %d: %w", cityID, ErrUnknownCity)
	}
	w.outstanding.Add(1)
	return &Snapshot{Turn: w.Turn, Cities: []City{c.clone()}, owner: w}, nil
}

// Outstanding counts snapshots handed out and not yet released.
func (w *World) Outstanding() int64 { return w.outstanding.Load() }

// Done returns the last turn the player reported finished.
func (w *World) Done(player aimsg.PlayerID) int { return w.done[player] }

func (w *World) Applied() int   { return w.applied }
func (w *World) Discarded() int { return w.discarded }
func (w *World) Improved() int  { return w.improved }

// WorkerTask records the AI's wanted improvement. The city is re-checked
// here because it may have changed hands after the worker looked at it.
func (w *World) WorkerTask(player aimsg.PlayerID, r aimsg.WorkerTask) error {
	c, ok := w.City(r.CityID)
	if !ok {
		w.discarded++
		return fmt.Errorf("worker task for city %d: %w", r.CityID, ErrUnknownCity)
	}
	if c.Owner != player {
		w.discarded++
		return fmt.Errorf("worker task for city %d from player %d: %w", r.CityID, player, ErrCityLost)
	}
	if r.Task.Tile < 0 || r.Task.Tile >= len(c.Tiles) {
		w.discarded++
		return fmt.Errorf("worker task for city %d tile %d: %w", r.CityID, r.Task.Tile, ErrBadTile)
	}
	task := r.Task
	c.Wanted = &task
	w.applied++
	return nil
}

func (w *World) TurnDone(player aimsg.PlayerID, r aimsg.TurnDone) error {
	if r.Turn > w.done[player] {
		w.done[player] = r.Turn
	}
	return nil
}

// Advance carries out every wanted task and moves to the next turn.
func (w *World) Advance() {
	for _, c := range w.Cities {
		if c.Wanted == nil {
			continue
		}
		t := &c.Tiles[c.Wanted.Tile]
		if !t.Improved {
			t.Improved = true
			t.Value++
			w.improved++
		}
		c.Wanted = nil
	}
	w.Turn++
}

var _ aimsg.RequestHandler = (*World)(nil)

// Snapshot is a read-only copy of part of the world handed to a worker as a
// command payload.
type Snapshot struct {
	Turn   int
	Cities []City

	owner *World
	once  sync.Once
}

func (s *Snapshot) Release() {
	s.once.Do(func() {
		if s.owner != nil {
			s.owner.outstanding.Add(-1)
		}
	})
}

var _ aimsg.Releaser = (*Snapshot)(nil)
