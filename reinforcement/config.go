package reinforcement

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ConfigKind is the expected `kind` of a training config file. An empty kind is accepted.
const ConfigKind = "q-learning"

// Hyperparameter keys, shared by config files, environment variables and command line flags.
const (
	NUM_EPISODE        = "num_episode"
	MAX_EPISODE_LENGTH = "max_episode_length"
	LEARNING_RATE      = "learning_rate"
	DISCOUNT_FACTOR    = "discount_factor"
	EPSILON            = "epsilon"
	EPSILON_DECAY      = "epsilon_decay"
	EPSILON_MIN        = "epsilon_min"
	SEED               = "seed"
)

type OuterConfig struct {
	Kind string      `mapstructure:"kind"`
	Def  interface{} `mapstructure:"def"`
}

// TrainingConfig encodes algorithmic and training parameters outside of code.
// Viper lower-cases every key it reads, hence the lower-case yaml tags; config files
// may still spell them `hyperParams` and `trainingDeadline`.
type TrainingConfig struct {
	// HyperParams is a key-val pair of param names and their value.
	HyperParams []HyperParameter `yaml:"hyperparams"`
	// TrainingDeadline is a fixed duration after which training stops early.
	TrainingDeadline map[string]string `yaml:"trainingdeadline"`
}

type HyperParameter struct {
	Key string  `yaml:"key"`
	Val float64 `yaml:"val"`
}

// HyperParams is the resolved, validated set of training parameters. The param tags name
// each field as it appears in config files and flags.
type HyperParams struct {
	NumEpisode       int     `param:"num_episode" validate:"gte=0"`
	MaxEpisodeLength int     `param:"max_episode_length" validate:"gte=1"`
	LearningRate     float64 `param:"learning_rate" validate:"gte=0,lte=1"`
	DiscountFactor   float64 `param:"discount_factor" validate:"gte=0,lte=1"`
	Epsilon          float64 `param:"epsilon" validate:"gte=0,lte=1"`
	EpsilonDecay     float64 `param:"epsilon_decay" validate:"gt=0,lte=1"`
	EpsilonMin       float64 `param:"epsilon_min" validate:"gte=0,ltefield=Epsilon"`
	// Seed seeds exploration; zero seeds from the clock.
	Seed int64 `param:"seed"`
}

// DefaultHyperParams returns the parameters used for any key not otherwise configured.
func DefaultHyperParams() HyperParams {
	return HyperParams{
		NumEpisode:       2000,
		MaxEpisodeLength: 10000,
		LearningRate:     0.1,
		DiscountFactor:   0.9,
		Epsilon:          0.8,
		EpsilonDecay:     1.0,
		EpsilonMin:       0.0,
		Seed:             0,
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		return field.Tag.Get("param")
	})
	return v
}

// Validate returns a ConfigurationError describing every out-of-range parameter.
func (hp HyperParams) Validate() error {
	err := validate.Struct(hp)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return newConfigurationError("%v", err)
	}
	cfgErr := &ConfigurationError{}
	for _, fe := range verrs {
		cfgErr.Problems = append(cfgErr.Problems,
			fmt.Sprintf("%s=%v violates %s%s", fe.Field(), fe.Value(), fe.Tag(), withParam(fe.Param())))
	}
	return cfgErr
}

func withParam(p string) string {
	if p == "" {
		return ""
	}
	return "=" + p
}

func (cfg *TrainingConfig) GetHyperParamOrDefault(param string, defaultVal float64) float64 {
	for _, kvp := range cfg.HyperParams {
		if kvp.Key == param {
			return kvp.Val
		}
	}
	return defaultVal
}

// Overrides is a source of explicitly set parameter values, such as a viper instance
// bound to command line flags and environment variables.
type Overrides interface {
	IsSet(key string) bool
	GetFloat64(key string) float64
}

// Resolve returns the validated hyperparameters: defaults, overlaid by the config's
// hyperparameters, overlaid by any key set in @overrides (which may be nil).
func (cfg *TrainingConfig) Resolve(overrides Overrides) (HyperParams, error) {
	defaults := DefaultHyperParams()
	vals := map[string]float64{
		NUM_EPISODE:        float64(defaults.NumEpisode),
		MAX_EPISODE_LENGTH: float64(defaults.MaxEpisodeLength),
		LEARNING_RATE:      defaults.LearningRate,
		DISCOUNT_FACTOR:    defaults.DiscountFactor,
		EPSILON:            defaults.Epsilon,
		EPSILON_DECAY:      defaults.EpsilonDecay,
		EPSILON_MIN:        defaults.EpsilonMin,
		SEED:               float64(defaults.Seed),
	}

	cfgErr := &ConfigurationError{}
	for _, kvp := range cfg.HyperParams {
		if _, known := vals[kvp.Key]; !known {
			cfgErr.Problems = append(cfgErr.Problems, fmt.Sprintf("unknown hyperparameter %q", kvp.Key))
		}
	}
	for key, val := range vals {
		vals[key] = cfg.GetHyperParamOrDefault(key, val)
		if overrides != nil && overrides.IsSet(key) {
			vals[key] = overrides.GetFloat64(key)
		}
	}
	for _, key := range []string{NUM_EPISODE, MAX_EPISODE_LENGTH, SEED} {
		if vals[key] != math.Trunc(vals[key]) {
			cfgErr.Problems = append(cfgErr.Problems, fmt.Sprintf("%s=%v is not an integer", key, vals[key]))
		}
	}
	if len(cfgErr.Problems) > 0 {
		return HyperParams{}, cfgErr
	}

	hp := HyperParams{
		NumEpisode:       int(vals[NUM_EPISODE]),
		MaxEpisodeLength: int(vals[MAX_EPISODE_LENGTH]),
		LearningRate:     vals[LEARNING_RATE],
		DiscountFactor:   vals[DISCOUNT_FACTOR],
		Epsilon:          vals[EPSILON],
		EpsilonDecay:     vals[EPSILON_DECAY],
		EpsilonMin:       vals[EPSILON_MIN],
		Seed:             int64(vals[SEED]),
	}
	if err := hp.Validate(); err != nil {
		return HyperParams{}, err
	}
	return hp, nil
}

// WithTrainingDeadline returns a context extended by the training deadline, if one is specified.
func (cfg *TrainingConfig) WithTrainingDeadline(
	ctx context.Context,
) (context.Context, context.CancelFunc, error) {
	if val, ok := cfg.TrainingDeadline["duration"]; ok {
		duration, err := time.ParseDuration(val)
		if err != nil {
			return nil, nil, newConfigurationError("training deadline: %v", err)
		}
		innerCtx, cancel := context.WithTimeout(ctx, duration)
		return innerCtx, cancel, nil
	}
	defaultCtx, cancel := context.WithCancel(ctx)
	return defaultCtx, cancel, nil
}

// FromYaml reads a training config file.
func FromYaml(fs afero.Fs, path string) (*TrainingConfig, error) {
	cfg := &TrainingConfig{}
	if err := DecodeYaml(fs, path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DecodeYaml reads the config file at @path with viper and decodes the `def` section of
// its kind/def envelope into @out, which should carry lower-case yaml tags.
func DecodeYaml(fs afero.Fs, path string, out interface{}) error {
	vp := viper.New()
	vp.SetFs(fs)
	vp.SetConfigFile(path)
	vp.SetConfigType("yaml")
	if err := vp.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	outerConfig := &OuterConfig{}
	if err := vp.Unmarshal(outerConfig); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	if outerConfig.Kind != "" && outerConfig.Kind != ConfigKind {
		return newConfigurationError("config %s has kind %q, expected %q", path, outerConfig.Kind, ConfigKind)
	}

	def, err := yaml.Marshal(outerConfig.Def)
	if err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	if err = yaml.Unmarshal(def, out); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}
