package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/explorl/explorl/config"
	"github.com/explorl/explorl/experiment"
	"github.com/explorl/explorl/tracker"
)

func newTrain() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Run a training experiment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file, _ := cmd.Flags().GetString("config"); file != "" {
				v.SetConfigFile(file)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("train: %w", err)
				}
			}
			cfg, err := config.FromViper(v)
			if err != nil {
				return err
			}
			return train(cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("config", "", "configuration file (overridden by flags)")

	def := config.Default()
	flags.String("run_id", "", "run identifier (random when empty)")
	flags.String("save_dir", def.SaveDir, "artifact directory")
	flags.Uint64("seed", def.Seed, "random seed")

	flags.Int("rooms", def.Rooms, "number of gridworld rooms")
	flags.Int("room_size", def.RoomSize, "side length of each room")
	flags.Int("step_limit", def.StepLimit, "episode step cap")

	flags.Int("num_actors", def.NumActors, "collection workers")
	flags.Int("num_slots", def.NumSlots, "trajectory slots in the pool")
	flags.Int("num_learners", def.NumLearners, "learner loops")
	flags.Int("batch_size", def.BatchSize, "segments per learning step")
	flags.Int("unroll", def.Unroll, "environment steps per segment")

	flags.Int("hidden", def.Hidden, "recurrent state size")

	flags.Int64("total_frames", def.TotalFrames, "frame budget")
	flags.Float64("lr", def.LR, "initial learning rate")
	flags.Float64("gamma", def.Gamma, "discount factor")
	flags.Float64("rho_bar", def.RhoBar, "importance-ratio clip for targets")
	flags.Float64("c_bar", def.CBar, "importance-ratio clip for traces")
	flags.Float64("baseline_cost", def.BaselineCost, "baseline loss weight")
	flags.Float64("entropy_cost", def.EntropyCost, "entropy loss weight")
	flags.Float64("max_grad_norm", def.MaxGradNorm, "gradient clip")

	flags.String("bonus", def.Bonus,
		"intrinsic bonus variant (none|count|curiosity|rnd|episodic, "+
			"combine with + or x)")
	flags.Float64("intrinsic_coef", def.IntrinsicCoef, "bonus scale")
	flags.Float64("reward_clip", def.RewardClip,
		"composed reward clip, 0 disables")
	flags.Int("embed_dim", def.EmbedDim, "bonus embedding size")
	flags.Float64("bonus_lr", def.BonusLR, "bonus model learning rate")
	flags.Float64("ridge", def.Ridge, "episodic ellipsoid regularizer")
	flags.Float64("expl_weight", def.ExplWeight,
		"exploration logits blending weight")
	flags.String("expl_checkpoint", "",
		"checkpoint supplying a frozen exploration policy")

	flags.String("checkpoint", "", "checkpoint to resume from")
	flags.Duration("checkpoint_interval", def.CheckpointInterval,
		"time between checkpoints")

	flags.String("log_level", def.LogLevel, "zerolog level")

	v.BindPFlags(flags)
	return cmd
}

func train(cfg config.Config) error {
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()[:8]
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return &config.Error{Field: "log_level", Reason: err.Error()}
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr,
		TimeFormat: time.Kitchen}).Level(level).With().Timestamp().Logger()

	runDir := filepath.Join(cfg.SaveDir, cfg.RunID)
	file, err := tracker.NewFile(runDir, map[string]interface{}{
		"run_id":  cfg.RunID,
		"date":    time.Now().Format(time.RFC3339),
		"config":  cfg,
		"command": os.Args,
	})
	if err != nil {
		return err
	}
	sink := tracker.Multi{
		tracker.NewLog(log),
		file,
		tracker.NewPlot(filepath.Join(runDir, "curves.png"),
			"episode_return", "win_rate", "visited_states"),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt,
		syscall.SIGTERM)
	defer stop()

	exp := experiment.New(cfg, log, sink)
	runErr := exp.Run(ctx)

	if err := sink.Close(); err != nil {
		log.Error().Err(err).Msg("closing metrics sinks failed")
		if runErr == nil {
			runErr = err
		}
	}

	if errors.Is(runErr, experiment.ErrInterrupted) {
		log.Warn().Msg("run interrupted, state checkpointed")
		return nil
	}
	return runErr
}
