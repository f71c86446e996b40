package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidateRejectsBadTopology(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no actors", func(c *Config) { c.NumActors = 0 }},
		{"no learners", func(c *Config) { c.NumLearners = 0 }},
		{"slots below batch", func(c *Config) { c.NumSlots = c.BatchSize - 1 }},
		{"slots below actors", func(c *Config) {
			c.NumActors = 10
			c.NumSlots = 9
			c.BatchSize = 4
		}},
		{"zero unroll", func(c *Config) { c.Unroll = 0 }},
		{"bad gamma", func(c *Config) { c.Gamma = 1.5 }},
		{"rho below c", func(c *Config) { c.RhoBar = 1; c.CBar = 2 }},
		{"c below one", func(c *Config) { c.RhoBar = 0.5; c.CBar = 0.5 }},
		{"no frames", func(c *Config) { c.TotalFrames = 0 }},
		{"tiny rooms", func(c *Config) { c.RoomSize = 2 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.mutate(&c)
			err := c.Validate()
			require.Error(t, err)

			var cfgErr *Error
			require.ErrorAs(t, err, &cfgErr)
		})
	}
}

// An exploration checkpoint only makes sense for variants that define
// an exploration policy; requesting one for the vanilla setting is
// rejected before any worker starts.
func TestValidateRejectsExplCheckpointWithoutBonus(t *testing.T) {
	c := Default()
	c.ExplCheckpoint = "model.ckpt"
	c.Bonus = "none"

	var cfgErr *Error
	require.ErrorAs(t, c.Validate(), &cfgErr)
	require.Equal(t, "expl_checkpoint", cfgErr.Field)

	c.Bonus = "rnd"
	require.NoError(t, c.Validate())
}

func TestFromViperOverridesDefaults(t *testing.T) {
	v := viper.New()
	v.Set("num_actors", 2)
	v.Set("bonus", "episodic")
	v.Set("lr", 0.001)

	c, err := FromViper(v)
	require.NoError(t, err)
	require.Equal(t, 2, c.NumActors)
	require.Equal(t, "episodic", c.Bonus)
	require.Equal(t, 0.001, c.LR)
	require.Equal(t, Default().Gamma, c.Gamma)
}

func TestFromViperRejectsInvalid(t *testing.T) {
	v := viper.New()
	v.Set("gamma", 2.0)
	_, err := FromViper(v)
	require.Error(t, err)
}
