package reinforcement

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"

	. "github.com/smartystreets/goconvey/convey"
)

const testConfig = `kind: q-learning
def:
  hyperParams:
    - key: num_episode
      val: 50
    - key: learning_rate
      val: 0.25
    - key: epsilon
      val: 0.5
  trainingDeadline:
    duration: 90s
`

// overrides is a fixed set of explicitly set parameters.
type overrides map[string]float64

func (o overrides) IsSet(key string) bool {
	_, ok := o[key]
	return ok
}

func (o overrides) GetFloat64(key string) float64 {
	return o[key]
}

func writeConfig(contents string) (afero.Fs, string) {
	fs := afero.NewMemMapFs()
	path := "/etc/qmaze/config.yaml"
	if err := afero.WriteFile(fs, path, []byte(contents), 0644); err != nil {
		panic(err)
	}
	return fs, path
}

func TestFromYaml(t *testing.T) {
	Convey("Given a training config file", t, func() {
		fs, path := writeConfig(testConfig)

		cfg, err := FromYaml(fs, path)
		So(err, ShouldBeNil)

		Convey("Its hyperparameters are decoded", func() {
			So(len(cfg.HyperParams), ShouldEqual, 3)
			So(cfg.GetHyperParamOrDefault(NUM_EPISODE, 1), ShouldEqual, 50.0)
			So(cfg.GetHyperParamOrDefault(DISCOUNT_FACTOR, 0.7), ShouldEqual, 0.7)
			So(cfg.TrainingDeadline["duration"], ShouldEqual, "90s")
		})

		Convey("Resolve overlays the file on the defaults", func() {
			hp, err := cfg.Resolve(nil)
			So(err, ShouldBeNil)
			expected := DefaultHyperParams()
			expected.NumEpisode = 50
			expected.LearningRate = 0.25
			expected.Epsilon = 0.5
			So(hp, ShouldResemble, expected)
		})

		Convey("Explicit overrides take precedence over the file", func() {
			hp, err := cfg.Resolve(overrides{
				NUM_EPISODE:     7,
				DISCOUNT_FACTOR: 0.5,
			})
			So(err, ShouldBeNil)
			So(hp.NumEpisode, ShouldEqual, 7)
			So(hp.DiscountFactor, ShouldEqual, 0.5)
			So(hp.LearningRate, ShouldEqual, 0.25)
		})

		Convey("A viper instance serves as overrides", func() {
			vp := viper.New()
			vp.Set(MAX_EPISODE_LENGTH, 30)
			hp, err := cfg.Resolve(vp)
			So(err, ShouldBeNil)
			So(hp.MaxEpisodeLength, ShouldEqual, 30)
			So(hp.NumEpisode, ShouldEqual, 50)
		})

		Convey("The training deadline bounds the context", func() {
			ctx, cancel, err := cfg.WithTrainingDeadline(context.Background())
			So(err, ShouldBeNil)
			defer cancel()
			deadline, ok := ctx.Deadline()
			So(ok, ShouldBeTrue)
			So(time.Until(deadline), ShouldBeBetween, 80*time.Second, 91*time.Second)
		})
	})

	Convey("Given malformed config files", t, func() {
		Convey("A file of another kind is rejected", func() {
			fs, path := writeConfig("kind: alpha-mc\ndef:\n  hyperParams: []\n")
			_, err := FromYaml(fs, path)
			So(IsConfigurationError(err), ShouldBeTrue)
		})

		Convey("A missing file is an error", func() {
			_, err := FromYaml(afero.NewMemMapFs(), "/nope.yaml")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestResolve(t *testing.T) {
	Convey("When resolving hyperparameters", t, func() {
		Convey("No config at all yields the defaults", func() {
			hp, err := (&TrainingConfig{}).Resolve(nil)
			So(err, ShouldBeNil)
			So(hp, ShouldResemble, DefaultHyperParams())
		})

		Convey("Unknown keys are rejected", func() {
			cfg := &TrainingConfig{HyperParams: []HyperParameter{{Key: "alpha", Val: 1}}}
			_, err := cfg.Resolve(nil)
			So(IsConfigurationError(err), ShouldBeTrue)
		})

		Convey("A zero maximum episode length is rejected", func() {
			_, err := (&TrainingConfig{}).Resolve(overrides{MAX_EPISODE_LENGTH: 0})
			So(IsConfigurationError(err), ShouldBeTrue)
		})

		Convey("Fractional counts are rejected", func() {
			_, err := (&TrainingConfig{}).Resolve(overrides{NUM_EPISODE: 2.5})
			So(IsConfigurationError(err), ShouldBeTrue)
		})

		Convey("Out of range rates are rejected, each reported", func() {
			_, err := (&TrainingConfig{}).Resolve(overrides{
				LEARNING_RATE:   -0.1,
				DISCOUNT_FACTOR: 1.5,
				EPSILON:         2,
			})
			var cfgErr *ConfigurationError
			So(err, ShouldHaveSameTypeAs, cfgErr)
			cfgErr = err.(*ConfigurationError)
			So(len(cfgErr.Problems), ShouldEqual, 3)
			So(err.Error(), ShouldContainSubstring, LEARNING_RATE)
		})

		Convey("An epsilon floor above epsilon is rejected", func() {
			_, err := (&TrainingConfig{}).Resolve(overrides{EPSILON: 0.2, EPSILON_MIN: 0.3})
			So(IsConfigurationError(err), ShouldBeTrue)
		})

		Convey("Boundary values are accepted", func() {
			hp, err := (&TrainingConfig{}).Resolve(overrides{
				NUM_EPISODE:     0,
				LEARNING_RATE:   1,
				DISCOUNT_FACTOR: 0,
				EPSILON:         0,
			})
			So(err, ShouldBeNil)
			So(hp.NumEpisode, ShouldEqual, 0)
			So(hp.Epsilon, ShouldEqual, 0.0)
		})
	})

	Convey("When the training deadline is malformed", t, func() {
		cfg := &TrainingConfig{TrainingDeadline: map[string]string{"duration": "soon"}}
		_, _, err := cfg.WithTrainingDeadline(context.Background())
		So(IsConfigurationError(err), ShouldBeTrue)
	})

	Convey("When no training deadline is set", t, func() {
		ctx, cancel, err := (&TrainingConfig{}).WithTrainingDeadline(context.Background())
		So(err, ShouldBeNil)
		defer cancel()
		_, ok := ctx.Deadline()
		So(ok, ShouldBeFalse)
	})
}
