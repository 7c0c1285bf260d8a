package observability

import (
	"net/http"
	"time"

	"fleet-sched/internal/logging"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CycleDuration tracks the duration of one scheduler cycle.
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fleetsched_cycle_duration_seconds",
		Help:    "Duration of one scheduler cycle",
		Buckets: prometheus.DefBuckets,
	})

	// TargetsTracked tracks the number of targets seen in the last cycle.
	TargetsTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleetsched_targets_tracked",
		Help: "Number of targets seen in the last cycle",
	})

	// NodesAvailable tracks the number of nodes offering capacity.
	NodesAvailable = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleetsched_nodes_available",
		Help: "Number of nodes in the capacity pool",
	})

	// CapacityAvailable tracks free capacity across the pool at cycle start.
	CapacityAvailable = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleetsched_capacity_available",
		Help: "Free capacity across the pool at cycle start",
	})

	// UnitsAssigned counts units assigned per action kind.
	UnitsAssigned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetsched_units_assigned_total",
		Help: "Total units assigned to nodes",
	}, []string{"action"})

	// DispatchFailures counts dispatches rejected by nodes.
	DispatchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleetsched_dispatch_failures_total",
		Help: "Dispatches rejected by nodes",
	})

	// ActiveProfile tracks the active strategy profile (1 = active).
	ActiveProfile = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fleetsched_active_profile",
		Help: "Active strategy profile (1 = active)",
	}, []string{"profile"})

	// StrategyChanges counts profile transitions by reason.
	StrategyChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetsched_strategy_changes_total",
		Help: "Total strategy profile transitions",
	}, []string{"profile", "reason"})

	// Stagnant reports whether the earnings monitor currently flags
	// stagnation.
	Stagnant = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleetsched_stagnant",
		Help: "Whether throughput is currently flagged as stagnant",
	})

	// CurrentRate tracks the earnings monitor's current rate.
	CurrentRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleetsched_earnings_rate",
		Help: "Current throughput rate from the earnings monitor",
	})
)

// Serve exposes the prometheus registry on addr. Best effort: a listener
// failure is logged, not escalated.
func Serve(addr string) {
	logger := logging.GetLogger()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.WithField("addr", addr).Info("Serving metrics")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithField("addr", addr).WithError(err).Warn("Metrics server stopped")
		}
	}()
}
