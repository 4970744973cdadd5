// Package metrics exposes Prometheus counters and gauges for the
// transaction engine, in the spirit of the telemetry setup in the
// larger examples pack but trimmed to this engine's five lifecycle
// events.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the collectors registered against Registry. Callers
// wanting an HTTP scrape endpoint should serve promhttp.HandlerFor
// with this Registry.
type Metrics struct {
	Registry *prometheus.Registry

	begins   prometheus.Counter
	commits  prometheus.Counter
	aborts   prometheus.Counter
	victims  prometheus.Counter
	active   prometheus.Gauge
}

// New creates a fresh registry and registers all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		begins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lockkv_txn_begin_total",
			Help: "Total number of transactions begun.",
		}),
		commits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lockkv_txn_commit_total",
			Help: "Total number of transactions committed.",
		}),
		aborts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lockkv_txn_abort_total",
			Help: "Total number of transactions aborted, including deadlock victims.",
		}),
		victims: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lockkv_deadlock_victims_total",
			Help: "Total number of transactions chosen as a deadlock victim.",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lockkv_active_transactions",
			Help: "Number of transaction slots currently occupied.",
		}),
	}
	reg.MustRegister(m.begins, m.commits, m.aborts, m.victims, m.active)
	return m
}

func (m *Metrics) IncBegin()          { m.begins.Inc() }
func (m *Metrics) IncCommit()         { m.commits.Inc() }
func (m *Metrics) IncAbort()          { m.aborts.Inc() }
func (m *Metrics) IncDeadlockVictim() { m.victims.Inc() }

func (m *Metrics) SetActiveTransactions(n int) { m.active.Set(float64(n)) }
