package dashboard

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsMu          sync.Mutex
	metricsInitialized bool
	metricsError       error

	cacheHitCounter    *prometheus.CounterVec
	cacheMissCounter   *prometheus.CounterVec
	panelStateCounter  *prometheus.CounterVec
	panelBuildDuration *prometheus.HistogramVec
)

// SetupMetrics registers the dashboard cache and panel metrics. The registration is
// performed once and subsequent calls are ignored.
func SetupMetrics(reg prometheus.Registerer) error {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	if metricsInitialized {
		return metricsError
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	cacheHitCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rpay_insights_cache_hits_total",
		Help: "Number of backend responses served from cache.",
	}, []string{"endpoint"})
	cacheMissCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rpay_insights_cache_miss_total",
		Help: "Number of backend responses fetched on a cache miss.",
	}, []string{"endpoint"})
	panelStateCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rpay_insights_panel_total",
		Help: "Dashboard panels resolved, by final state.",
	}, []string{"panel", "state"})
	panelBuildDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rpay_insights_panel_duration_seconds",
		Help:    "Duration required to resolve a dashboard panel.",
		Buckets: prometheus.DefBuckets,
	}, []string{"panel"})

	for _, collector := range []prometheus.Collector{cacheHitCounter, cacheMissCounter, panelStateCounter, panelBuildDuration} {
		if err := reg.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				switch existing := already.ExistingCollector.(type) {
				case *prometheus.CounterVec:
					switch collector {
					case cacheHitCounter:
						cacheHitCounter = existing
					case cacheMissCounter:
						cacheMissCounter = existing
					default:
						panelStateCounter = existing
					}
				case *prometheus.HistogramVec:
					panelBuildDuration = existing
				default:
					metricsError = fmt.Errorf("dashboard metrics: unexpected collector type %T", existing)
				}
				continue
			}
			metricsError = err
			cacheHitCounter = nil
			cacheMissCounter = nil
			panelStateCounter = nil
			panelBuildDuration = nil
			metricsInitialized = true
			return metricsError
		}
	}

	metricsInitialized = true
	return metricsError
}

func recordCache(endpoint string, hit bool) {
	counter := cacheMissCounter
	if hit {
		counter = cacheHitCounter
	}
	if counter == nil {
		return
	}
	counter.WithLabelValues(endpoint).Inc()
}

func recordPanel(name string, state PanelState, elapsed time.Duration) {
	if panelStateCounter != nil {
		panelStateCounter.WithLabelValues(name, string(state)).Inc()
	}
	if panelBuildDuration != nil {
		panelBuildDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	}
}
