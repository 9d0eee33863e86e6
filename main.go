/*
qmaze trains a tabular Q-learning agent to navigate a grid maze, then writes the learned
action-values, the greedy policy and the state values to plain text files. Training can be
watched live in a browser, and its progress is exported as Prometheus metrics.
*/

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"qmaze/grid_world"
	"qmaze/logging"
	. "qmaze/models"
	"qmaze/reinforcement"
	"qmaze/server"

	"github.com/google/uuid"
	"github.com/logrusorgru/aurora"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

// Command line flags and their environment variables (QMAZE_<FLAG>), other than the hyperparameters.
const (
	CONFIG       = "config"
	MAZE_INPUT   = "maze_input"
	VALUE_FILE   = "value_file"
	Q_VALUE_FILE = "q_value_file"
	POLICY_FILE  = "policy_file"
	CURVE_FILE   = "curve_file"
	SERVE        = "serve"
	ADDR         = "addr"
	SHOW         = "show"
	COLOR        = "color"
	LOG_LEVEL    = "log_level"
	LOG_FORMAT   = "log_format"
)

const envPrefix = "QMAZE"

// Progress is logged once every this many episodes.
const logEvery = 100

// AppConfig is the `def` section of a config file: the training config plus the ambient settings.
type AppConfig struct {
	reinforcement.TrainingConfig `yaml:",inline"`
	Logging                      logging.Config `yaml:"logging"`
	Server                       server.Config  `yaml:"server"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(afero.NewOsFs(), os.Stdout).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the command line. Flags are bound to a viper instance, so that every
// flag may also be set by environment variable.
func newRootCmd(fs afero.Fs, stdout io.Writer) *cobra.Command {
	vp := viper.New()

	cmd := &cobra.Command{
		Use:           "qmaze",
		Short:         "Train a tabular Q-learning agent on a grid maze",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runApp(cmd.Context(), vp, fs, stdout)
		},
	}

	addFlags(cmd.Flags())
	_ = vp.BindPFlags(cmd.Flags())
	vp.SetEnvPrefix(envPrefix)
	vp.AutomaticEnv()

	return cmd
}

func addFlags(flags *pflag.FlagSet) {
	defaults := reinforcement.DefaultHyperParams()

	flags.String(CONFIG, "", "yaml config file (kind: "+reinforcement.ConfigKind+")")
	flags.String(MAZE_INPUT, "./env/maze_2.txt", "maze file")
	flags.String(VALUE_FILE, "./ql_value_file.txt", "output file of state values")
	flags.String(Q_VALUE_FILE, "./ql_q_value_file.txt", "output file of state-action values")
	flags.String(POLICY_FILE, "./ql_policy_file.txt", "output file of the greedy policy")
	flags.String(CURVE_FILE, "", "output html file of the learning curve; disabled when empty")
	flags.Int(reinforcement.NUM_EPISODE, defaults.NumEpisode, "number of training episodes")
	flags.Int(reinforcement.MAX_EPISODE_LENGTH, defaults.MaxEpisodeLength, "maximum steps per episode")
	flags.Float64(reinforcement.LEARNING_RATE, defaults.LearningRate, "learning rate in [0,1]")
	flags.Float64(reinforcement.DISCOUNT_FACTOR, defaults.DiscountFactor, "discount factor in [0,1]")
	flags.Float64(reinforcement.EPSILON, defaults.Epsilon, "exploration rate in [0,1]")
	flags.Float64(reinforcement.EPSILON_DECAY, defaults.EpsilonDecay, "per-episode epsilon multiplier in (0,1]")
	flags.Float64(reinforcement.EPSILON_MIN, defaults.EpsilonMin, "lower bound of the decayed epsilon")
	flags.Int64(reinforcement.SEED, defaults.Seed, "exploration seed; 0 seeds from the clock")
	flags.Bool(SERVE, false, "serve live views and metrics while training, until interrupted")
	flags.String(ADDR, server.DefaultAddr, "listen address of the live view server")
	flags.Bool(SHOW, false, "print the maze, policy and values when done")
	flags.Bool(COLOR, true, "colorize printed output")
	flags.String(LOG_LEVEL, "info", "log level")
	flags.String(LOG_FORMAT, "text", "log format: text or json")
}

// loadAppConfig returns the config file's settings, if one is passed, overlaid by any
// explicitly set flags or environment variables.
func loadAppConfig(vp *viper.Viper, fs afero.Fs) (*AppConfig, error) {
	appCfg := &AppConfig{
		Logging: logging.DefaultConfig(),
		Server:  server.Config{Addr: server.DefaultAddr},
	}
	if path := vp.GetString(CONFIG); path != "" {
		if err := reinforcement.DecodeYaml(fs, path, appCfg); err != nil {
			return nil, err
		}
	}

	if vp.IsSet(LOG_LEVEL) {
		appCfg.Logging.Level = vp.GetString(LOG_LEVEL)
	}
	if vp.IsSet(LOG_FORMAT) {
		appCfg.Logging.Format = vp.GetString(LOG_FORMAT)
	}
	if vp.IsSet(SERVE) {
		appCfg.Server.Enabled = vp.GetBool(SERVE)
	}
	if vp.IsSet(ADDR) || appCfg.Server.Addr == "" {
		appCfg.Server.Addr = vp.GetString(ADDR)
	}
	return appCfg, nil
}

func runApp(ctx context.Context, vp *viper.Viper, fs afero.Fs, stdout io.Writer) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}

	appCfg, err := loadAppConfig(vp, fs)
	if err != nil {
		logging.New(logging.DefaultConfig(), fs).WithError(err).Error("Load config failed.")
		return err
	}
	log := logging.New(appCfg.Logging, fs).WithField("run_id", uuid.New().String())
	defer func() {
		if err != nil {
			log.WithError(err).Error("Run failed.")
		}
	}()

	params, err := appCfg.Resolve(vp)
	if err != nil {
		return err
	}
	maze, err := grid_world.Load(fs, vp.GetString(MAZE_INPUT))
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"maze":   vp.GetString(MAZE_INPUT),
		"rows":   maze.Rows(),
		"cols":   maze.Cols(),
		"states": len(maze.StateSpace()),
	}).Info("Loaded maze.")

	group, groupCtx := errgroup.WithContext(ctx)
	trainCtx, cancelTraining, err := appCfg.WithTrainingDeadline(groupCtx)
	if err != nil {
		return err
	}
	defer cancelTraining()

	metrics := server.NewMetrics()
	serving := appCfg.Server.Enabled
	snapshots := make(chan reinforcement.Snapshot, 1)

	var trainer *reinforcement.Trainer
	progress := func(_ context.Context, p reinforcement.Progress) {
		metrics.Observe(p)
		if p.Episode%logEvery == 0 {
			log.WithFields(logrus.Fields{
				"episode": p.Episode,
				"length":  p.EpisodeLength,
				"epsilon": p.Epsilon,
			}).Debug("Training progress.")
		}
		// Never block training on the views; no snapshot is taken while the last is pending.
		if serving && len(snapshots) == 0 {
			select {
			case snapshots <- trainer.Snapshot(p):
			default:
			}
		}
	}

	trainer, err = reinforcement.NewTrainer(
		maze,
		params,
		reinforcement.WithLogger(log),
		reinforcement.WithProgress(progress),
	)
	if err != nil {
		return err
	}

	if serving {
		srv, srvErr := server.NewServer(
			groupCtx,
			appCfg.Server.Addr,
			maze,
			trainer.Snapshot(reinforcement.Progress{}),
			snapshots,
			metrics,
			log,
		)
		if srvErr != nil {
			return srvErr
		}
		group.Go(func() error {
			return srv.Serve(groupCtx)
		})
	}

	group.Go(func() error {
		stats, trainErr := trainer.Train(trainCtx)
		if trainErr != nil {
			return trainErr
		}
		fmt.Fprintf(stdout, "[Statistics]: Avg_length %v and Time %.3fs\n",
			stats.AvgLength, stats.Duration.Seconds())

		if writeErr := writeOutputs(fs, vp, trainer.Table(), stats, log); writeErr != nil {
			return writeErr
		}
		if vp.GetBool(SHOW) {
			show(stdout, aurora.NewAurora(vp.GetBool(COLOR)), maze, trainer.Table())
		}
		if serving {
			log.Info("Training complete; serving until interrupted.")
		}
		return nil
	})

	return group.Wait()
}

// writeOutputs writes the q-values, policy and values files, and the learning curve if configured.
func writeOutputs(
	fs afero.Fs,
	vp *viper.Viper,
	table *reinforcement.QTable,
	stats reinforcement.Stats,
	log logrus.FieldLogger,
) error {
	log.Info("Start to output value function, q value function and policy to file.")
	if err := reinforcement.WriteQValues(fs, vp.GetString(Q_VALUE_FILE), table.QValues()); err != nil {
		return err
	}
	if err := reinforcement.WritePolicy(fs, vp.GetString(POLICY_FILE), table.Policy()); err != nil {
		return err
	}
	if err := reinforcement.WriteValues(fs, vp.GetString(VALUE_FILE), table.ValueFunction()); err != nil {
		return err
	}
	if path := vp.GetString(CURVE_FILE); path != "" {
		if err := reinforcement.WriteLearningCurve(fs, path, stats.EpisodeLengths); err != nil {
			return err
		}
	}
	log.WithFields(logrus.Fields{
		"q_value_file": vp.GetString(Q_VALUE_FILE),
		"policy_file":  vp.GetString(POLICY_FILE),
		"value_file":   vp.GetString(VALUE_FILE),
	}).Info("Finish outputting value function, q value function and policy to file.")
	return nil
}

// show prints the maze, the greedy policy and the state values.
func show(w io.Writer, au aurora.Aurora, maze *grid_world.Maze, table *reinforcement.QTable) {
	policy := map[State]Action{}
	values := map[State]float64{}
	for _, d := range table.Policy() {
		policy[d.State] = d.Action
		values[d.State] = d.Value
	}

	maze.ShowGrid(w, au)
	fmt.Fprintln(w, "Policy:")
	maze.ShowPolicy(w, au, policy)
	maze.ShowValues(w, values)
}
