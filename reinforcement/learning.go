package reinforcement

/*
Tabular Q-learning. The agent acts epsilon-greedily on its current action-values and
bootstraps every update from the greedy value of the successor state:

	Q(s,a) <- (1 - lr) * Q(s,a) + lr * (r + gamma * max_a' Q(s',a'))

Training is single-threaded: the trainer exclusively owns the Q-table, and anything
published during training (progress, snapshots) is a copy.
*/

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"time"

	. "qmaze/models"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// Environment is the episodic task the agent learns. ActionSpace must return the same
// actions in the same order on every call; the order breaks ties between equally valued actions.
type Environment interface {
	StateSpace() []State
	ActionSpace() []Action
	// Reset begins a new episode and returns its initial state.
	Reset() (State, error)
	// Step executes an action in the current episode.
	Step(action Action) (next State, reward float64, terminal bool, err error)
}

// Progress describes training after a completed episode.
type Progress struct {
	Episode       int // 1-based count of completed episodes
	EpisodeLength int
	Epsilon       float64 // exploration rate used during the episode
	Elapsed       time.Duration
}

// ProgressFunc is a callback by which the training method can lend progress details.
// It runs synchronously on the training goroutine between episodes, and should complete quickly.
type ProgressFunc func(context.Context, Progress)

// Stats summarizes a training run.
type Stats struct {
	Episodes       int
	EpisodeLengths []int
	AvgLength      float64
	Duration       time.Duration
	// Interrupted is set when the context ended training before all episodes ran.
	Interrupted bool
}

type TrainerOption func(*Trainer)

// WithLogger sets the logger; by default the trainer logs nowhere.
func WithLogger(log logrus.FieldLogger) TrainerOption {
	return func(t *Trainer) {
		t.log = log
	}
}

// WithProgress sets a callback invoked after every episode.
func WithProgress(fn ProgressFunc) TrainerOption {
	return func(t *Trainer) {
		t.progressFn = fn
	}
}

// WithRand sets the random source used for exploration, overriding the configured seed.
func WithRand(rng *rand.Rand) TrainerOption {
	return func(t *Trainer) {
		t.rng = rng
	}
}

// Trainer runs tabular Q-learning against an Environment.
type Trainer struct {
	env        Environment
	params     HyperParams
	table      *QTable
	actions    []Action
	rng        *rand.Rand
	log        logrus.FieldLogger
	progressFn ProgressFunc

	epsilon        float64
	episodeLengths []int
}

// NewTrainer validates the parameters, enumerates the environment's spaces and initializes
// every action-value to zero. An empty action or state space is a ConfigurationError.
func NewTrainer(env Environment, params HyperParams, opts ...TrainerOption) (*Trainer, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	ix, err := NewIndexer(env.StateSpace(), env.ActionSpace())
	if err != nil {
		return nil, err
	}

	t := &Trainer{
		env:     env,
		params:  params,
		table:   NewQTable(ix),
		actions: ix.Actions(),
		epsilon: params.Epsilon,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.rng == nil {
		seed := params.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		t.rng = rand.New(rand.NewSource(seed))
	}
	if t.log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		t.log = discard
	}
	return t, nil
}

// Table returns the action-value table. It must not be modified while Train runs.
func (t *Trainer) Table() *QTable {
	return t.table
}

// Epsilon returns the exploration rate of the next episode.
func (t *Trainer) Epsilon() float64 {
	return t.epsilon
}

// Train runs the configured number of episodes. Cancellation of @ctx, such as a training
// deadline, is checked between episodes and ends training early without error; the returned
// stats then cover the completed episodes. Environment errors abort training.
func (t *Trainer) Train(ctx context.Context) (Stats, error) {
	start := time.Now()
	interrupted := false

	t.log.WithFields(logrus.Fields{
		"episodes":           t.params.NumEpisode,
		"max_episode_length": t.params.MaxEpisodeLength,
		"learning_rate":      t.params.LearningRate,
		"discount_factor":    t.params.DiscountFactor,
		"epsilon":            t.params.Epsilon,
		"pairs":              t.table.Indexer().Len(),
	}).Info("Start to train q value function.")

	for episode := 0; episode < t.params.NumEpisode; episode++ {
		if err := ctx.Err(); err != nil {
			t.log.WithError(err).WithField("completed", episode).Warn("Training stopped early.")
			interrupted = true
			break
		}

		length, err := t.runEpisode(t.epsilon)
		if err != nil {
			return Stats{}, fmt.Errorf("episode %d: %w", episode+1, err)
		}
		t.episodeLengths = append(t.episodeLengths, length)

		if t.progressFn != nil {
			t.progressFn(ctx, Progress{
				Episode:       episode + 1,
				EpisodeLength: length,
				Epsilon:       t.epsilon,
				Elapsed:       time.Since(start),
			})
		}
		t.epsilon = math.Max(t.params.EpsilonMin, t.epsilon*t.params.EpsilonDecay)
	}

	stats := Stats{
		Episodes:       len(t.episodeLengths),
		EpisodeLengths: append([]int(nil), t.episodeLengths...),
		AvgLength:      AverageLength(t.episodeLengths),
		Duration:       time.Since(start),
		Interrupted:    interrupted,
	}
	t.log.WithFields(logrus.Fields{
		"avg_length": stats.AvgLength,
		"duration":   stats.Duration,
		"episodes":   stats.Episodes,
	}).Info("Finish training q value function.")
	return stats, nil
}

// runEpisode plays one episode from reset until a terminal state or the length cap,
// updating the table after every step. Returns the number of steps taken.
func (t *Trainer) runEpisode(epsilon float64) (length int, err error) {
	state, err := t.env.Reset()
	if err != nil {
		return 0, fmt.Errorf("reset: %w", err)
	}
	si, ok := t.table.ix.StateIndex(state)
	if !ok {
		return 0, fmt.Errorf("reset: %w: %v", ErrUnknownState, state)
	}

	for terminal := false; !terminal && length < t.params.MaxEpisodeLength; {
		ai := t.selectAction(si, epsilon)

		var next State
		var reward float64
		next, reward, terminal, err = t.env.Step(t.actions[ai])
		if err != nil {
			return length, fmt.Errorf("step %d: %w", length+1, err)
		}
		length++

		nextSi, ok := t.table.ix.StateIndex(next)
		if !ok {
			return length, fmt.Errorf("step %d: %w: %v", length, ErrUnknownState, next)
		}
		t.update(si, ai, reward, nextSi)
		si = nextSi
	}
	return length, nil
}

// selectAction returns the greedy action index of the state at @si, or with probability
// @epsilon a uniformly random one. epsilon=0 is purely greedy, epsilon=1 purely random.
func (t *Trainer) selectAction(si int, epsilon float64) int {
	ai, _ := t.table.greedyAt(si)
	if t.rng.Float64() < epsilon {
		ai = t.rng.Intn(len(t.actions))
	}
	return ai
}

// update applies the Q-learning rule to the pair (si, ai).
// NOTE: the bootstrap term is not zeroed when @nextSi is terminal; the target is
// reward + gamma * max Q(next) for every transition.
func (t *Trainer) update(si, ai int, reward float64, nextSi int) {
	_, nextQ := t.table.greedyAt(nextSi)
	target := reward + t.params.DiscountFactor*nextQ
	i := si*len(t.actions) + ai
	t.table.values[i] = UpdateValue(t.table.values[i], target, t.params.LearningRate)
}

// Snapshot copies the current greedy policy and its values, tagged with @progress.
// It must be called from the training goroutine, e.g. within a ProgressFunc.
func (t *Trainer) Snapshot(progress Progress) Snapshot {
	return Snapshot{Progress: progress, Policy: t.table.Policy()}
}

// Snapshot is a point-in-time copy of the greedy policy, safe to hand to other goroutines.
type Snapshot struct {
	Progress
	Policy []Decision
}

// UpdateValue blends a prior action-value with a TD target at the passed learning rate.
func UpdateValue(prior, target, learningRate float64) float64 {
	return (1-learningRate)*prior + learningRate*target
}

// AverageLength is the mean of the episode lengths, or zero when there are none.
func AverageLength(lengths []int) float64 {
	if len(lengths) == 0 {
		return 0
	}
	xs := make([]float64, len(lengths))
	for i, l := range lengths {
		xs[i] = float64(l)
	}
	return stat.Mean(xs, nil)
}

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}
