package world

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Area is an axis-aligned walkable region on the ground plane (X/Z).
type Area struct {
	MinX, MinZ, MaxX, MaxZ float64
}

func (a Area) Contains(p Position) bool {
	return p.X >= a.MinX && p.X <= a.MaxX && p.Z >= a.MinZ && p.Z <= a.MaxZ
}

// SpawnMap answers whether a stored position is still a legal spawn and
// where to put a character whose position is not.
type SpawnMap struct {
	areas  []Area
	starts []Position
}

func NewSpawnMap(areas []Area, starts []Position) *SpawnMap {
	return &SpawnMap{areas: areas, starts: starts}
}

func (m *SpawnMap) IsValidSpawn(p Position) bool {
	for _, a := range m.areas {
		if a.Contains(p) {
			return true
		}
	}
	return false
}

// Nearest returns the start position closest to p, or the origin when no
// start positions are configured.
func (m *SpawnMap) Nearest(p Position) Position {
	if len(m.starts) == 0 {
		return Position{}
	}
	best := m.starts[0]
	bestDist := math.MaxFloat64
	for _, s := range m.starts {
		dx, dy, dz := s.X-p.X, s.Y-p.Y, s.Z-p.Z
		if d := dx*dx + dy*dy + dz*dz; d < bestDist {
			best, bestDist = s, d
		}
	}
	return best
}

type spawnFile struct {
	Areas []struct {
		MinX float64 `yaml:"min_x"`
		MinZ float64 `yaml:"min_z"`
		MaxX float64 `yaml:"max_x"`
		MaxZ float64 `yaml:"max_z"`
	} `yaml:"areas"`
	StartPositions []struct {
		X float64 `yaml:"x"`
		Y float64 `yaml:"y"`
		Z float64 `yaml:"z"`
	} `yaml:"start_positions"`
}

// LoadSpawnMap reads walkable areas and start positions from YAML.
func LoadSpawnMap(path string) (*SpawnMap, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spawn map: %w", err)
	}
	var f spawnFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse spawn map: %w", err)
	}
	m := &SpawnMap{}
	for _, a := range f.Areas {
		m.areas = append(m.areas, Area{MinX: a.MinX, MinZ: a.MinZ, MaxX: a.MaxX, MaxZ: a.MaxZ})
	}
	for _, s := range f.StartPositions {
		m.starts = append(m.starts, Position{X: s.X, Y: s.Y, Z: s.Z})
	}
	if len(m.starts) == 0 {
		return nil, fmt.Errorf("parse spawn map: no start positions")
	}
	return m, nil
}
