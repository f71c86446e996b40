// Package config defines the hyperparameters of a training run and
// their validation.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Error reports an invalid or inconsistent configuration value. Runs
// refuse to start on one; nothing retries it.
type Error struct {
	Field  string
	Reason string
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Config holds every hyperparameter of a run. Field names map to flag
// and file keys through the mapstructure tags.
type Config struct {
	// Run identity and artifacts
	RunID   string `mapstructure:"run_id"`
	SaveDir string `mapstructure:"save_dir"`
	Seed    uint64 `mapstructure:"seed"`

	// Environment
	Rooms     int `mapstructure:"rooms"`
	RoomSize  int `mapstructure:"room_size"`
	StepLimit int `mapstructure:"step_limit"`

	// Topology
	NumActors   int `mapstructure:"num_actors"`
	NumSlots    int `mapstructure:"num_slots"`
	NumLearners int `mapstructure:"num_learners"`
	BatchSize   int `mapstructure:"batch_size"`
	Unroll      int `mapstructure:"unroll"`

	// Model
	Hidden int `mapstructure:"hidden"`

	// Optimization
	TotalFrames  int64   `mapstructure:"total_frames"`
	LR           float64 `mapstructure:"lr"`
	Gamma        float64 `mapstructure:"gamma"`
	RhoBar       float64 `mapstructure:"rho_bar"`
	CBar         float64 `mapstructure:"c_bar"`
	BaselineCost float64 `mapstructure:"baseline_cost"`
	EntropyCost  float64 `mapstructure:"entropy_cost"`
	MaxGradNorm  float64 `mapstructure:"max_grad_norm"`

	// Exploration
	Bonus          string  `mapstructure:"bonus"`
	IntrinsicCoef  float64 `mapstructure:"intrinsic_coef"`
	RewardClip     float64 `mapstructure:"reward_clip"`
	EmbedDim       int     `mapstructure:"embed_dim"`
	BonusLR        float64 `mapstructure:"bonus_lr"`
	Ridge          float64 `mapstructure:"ridge"`
	ExplWeight     float64 `mapstructure:"expl_weight"`
	ExplCheckpoint string  `mapstructure:"expl_checkpoint"`

	// Checkpointing
	Checkpoint         string        `mapstructure:"checkpoint"`
	CheckpointInterval time.Duration `mapstructure:"checkpoint_interval"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
}

// Default returns a configuration that trains a small run end to end
func Default() Config {
	return Config{
		RunID:   "latest",
		SaveDir: "results",
		Seed:    1,

		Rooms:     4,
		RoomSize:  5,
		StepLimit: 400,

		NumActors:   4,
		NumSlots:    16,
		NumLearners: 1,
		BatchSize:   8,
		Unroll:      20,

		Hidden: 128,

		TotalFrames:  1_000_000,
		LR:           0.005,
		Gamma:        0.99,
		RhoBar:       1,
		CBar:         1,
		BaselineCost: 0.5,
		EntropyCost:  0.0005,
		MaxGradNorm:  40,

		Bonus:         "none",
		IntrinsicCoef: 0.5,
		RewardClip:    1,
		EmbedDim:      32,
		BonusLR:       0.01,
		Ridge:         0.1,
		ExplWeight:    1,

		CheckpointInterval: 10 * time.Minute,

		LogLevel: "info",
	}
}

// FromViper unmarshals and validates a configuration
func FromViper(v *viper.Viper) (Config, error) {
	c := Default()
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("fromViper: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the configuration's internal consistency
func (c Config) Validate() error {
	if c.NumActors < 1 {
		return &Error{"num_actors", "must be at least 1"}
	}
	if c.NumLearners < 1 {
		return &Error{"num_learners", "must be at least 1"}
	}
	if c.BatchSize < 1 {
		return &Error{"batch_size", "must be at least 1"}
	}
	if c.NumSlots < c.BatchSize {
		return &Error{"num_slots", fmt.Sprintf("must be at least the "+
			"batch size (%d)", c.BatchSize)}
	}
	if c.NumSlots < c.NumActors {
		return &Error{"num_slots", fmt.Sprintf("must be at least the "+
			"actor count (%d)", c.NumActors)}
	}
	if c.Unroll < 1 {
		return &Error{"unroll", "must be at least 1"}
	}
	if c.Hidden < 1 {
		return &Error{"hidden", "must be at least 1"}
	}
	if c.TotalFrames < 1 {
		return &Error{"total_frames", "must be positive"}
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		return &Error{"gamma", "must be in [0, 1]"}
	}
	if c.CBar < 1 || c.RhoBar < c.CBar {
		return &Error{"rho_bar", "need rho_bar >= c_bar >= 1"}
	}
	if c.Rooms < 1 || c.RoomSize < 3 {
		return &Error{"rooms", "need at least 1 room of size 3"}
	}
	if c.ExplCheckpoint != "" && (c.Bonus == "" || c.Bonus == "none") {
		return &Error{"expl_checkpoint", "an exploration checkpoint " +
			"requires an intrinsic bonus variant"}
	}
	return nil
}
