package tuning

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz         int    `yaml:"tick_rate_hz"`
	SnapshotEveryTicks int    `yaml:"snapshot_every_ticks"`
	MapPath            string `yaml:"map_path"`
	DefaultSpeed       int    `yaml:"default_speed"`
	MaxEntities        int    `yaml:"max_entities"`

	// FollowerLostPolicy is "detach" or "freeze".
	FollowerLostPolicy string `yaml:"follower_lost_policy"`

	Planner Planner `yaml:"planner"`
	Search  Search  `yaml:"search"`
}

type Planner struct {
	Workers int `yaml:"workers"`
	Queue   int `yaml:"queue"`
}

type Search struct {
	MaxExpanded   int  `yaml:"max_expanded"`
	TimeoutMs     int  `yaml:"timeout_ms"`
	CornerCutting bool `yaml:"corner_cutting"`
	// NearestRadius bounds the retarget ring search for MOVE with nearest=true.
	NearestRadius int `yaml:"nearest_radius"`
}

const (
	LostDetach = "detach"
	LostFreeze = "freeze"
)

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		TickRateHz:         10,
		SnapshotEveryTicks: 3000,
		DefaultSpeed:       1,
		MaxEntities:        4096,
		FollowerLostPolicy: LostDetach,
		Planner:            Planner{Workers: 4, Queue: 256},
		Search: Search{
			MaxExpanded:   200000,
			TimeoutMs:     2000,
			CornerCutting: true,
			NearestRadius: 8,
		},
	}
}

// Load reads path over Defaults(), so a partial file only overrides what it names.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	var errs []error
	if t.TickRateHz <= 0 || t.TickRateHz > 1000 {
		errs = append(errs, fmt.Errorf("tick_rate_hz out of range: %d", t.TickRateHz))
	}
	if t.SnapshotEveryTicks < 0 {
		errs = append(errs, fmt.Errorf("snapshot_every_ticks must be >= 0"))
	}
	if t.DefaultSpeed <= 0 {
		errs = append(errs, fmt.Errorf("default_speed must be > 0"))
	}
	if t.MaxEntities <= 0 {
		errs = append(errs, fmt.Errorf("max_entities must be > 0"))
	}
	switch t.FollowerLostPolicy {
	case LostDetach, LostFreeze:
	default:
		errs = append(errs, fmt.Errorf("follower_lost_policy: want %q or %q, got %q", LostDetach, LostFreeze, t.FollowerLostPolicy))
	}
	if t.Planner.Workers < 0 || t.Planner.Queue < 0 {
		errs = append(errs, fmt.Errorf("planner sizes must be >= 0"))
	}
	if t.Search.MaxExpanded < 0 || t.Search.TimeoutMs < 0 || t.Search.NearestRadius < 0 {
		errs = append(errs, fmt.Errorf("search limits must be >= 0"))
	}
	return errors.Join(errs...)
}
