package server

import (
	"net/http"

	"qmaze/reinforcement"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "qmaze"

// Metrics exports training progress to Prometheus, on a registry of its own.
type Metrics struct {
	registry *prometheus.Registry

	episodes          prometheus.Counter
	episodeLength     prometheus.Histogram
	lastEpisodeLength prometheus.Gauge
	epsilon           prometheus.Gauge
	elapsed           prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		episodes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "training",
			Name:      "episodes_total",
			Help:      "Total completed training episodes",
		}),
		episodeLength: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "training",
			Name:      "episode_length_steps",
			Help:      "Distribution of episode lengths in steps",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 15),
		}),
		lastEpisodeLength: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "training",
			Name:      "last_episode_length_steps",
			Help:      "Length of the most recent episode",
		}),
		epsilon: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "training",
			Name:      "epsilon",
			Help:      "Exploration rate of the most recent episode",
		}),
		elapsed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "training",
			Name:      "duration_seconds",
			Help:      "Time spent training so far",
		}),
	}
}

// Observe records a completed episode.
func (m *Metrics) Observe(progress reinforcement.Progress) {
	m.episodes.Inc()
	m.episodeLength.Observe(float64(progress.EpisodeLength))
	m.lastEpisodeLength.Set(float64(progress.EpisodeLength))
	m.epsilon.Set(progress.Epsilon)
	m.elapsed.Set(progress.Elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
