package promexporter

import (
	"github.com/pior/emc"
	"github.com/pior/emc/loadgen"
	"github.com/prometheus/client_golang/prometheus"
)

// ClientMetrics holds all client-related Prometheus metrics
type ClientMetrics struct {
	// Commands
	commandsTotal *prometheus.CounterVec
	lookupsTotal  *prometheus.CounterVec
	noReplyTotal  prometheus.Counter
	roundTrips    prometheus.Counter
	errorsTotal   prometheus.Counter
	bytesTotal    *prometheus.CounterVec

	// Circuit Breaker
	circuitState *prometheus.GaugeVec

	// Pool
	poolClients  *prometheus.GaugeVec
	poolAcquires prometheus.Gauge
	poolCreated  prometheus.Gauge
	poolDestroy  prometheus.Gauge
}

// NewClientMetrics creates and registers all client metrics
func NewClientMetrics(registry *prometheus.Registry) *ClientMetrics {
	m := &ClientMetrics{
		commandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emc_commands_total",
				Help: "Total number of memcached commands sent",
			},
			[]string{"verb"}, // set, get, delete, arith, touch, admin
		),
		lookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emc_lookups_total",
				Help: "Keys requested by get and gets",
			},
			[]string{"result"}, // hit, miss
		),
		noReplyTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "emc_noreply_commands_total",
				Help: "Commands sent without reading a response",
			},
		),
		roundTrips: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "emc_round_trips_total",
				Help: "Blocking request/response exchanges",
			},
		),
		errorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "emc_command_errors_total",
				Help: "Commands that returned an error",
			},
		),
		bytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emc_bytes_total",
				Help: "Bytes exchanged with the server",
			},
			[]string{"direction"}, // written, read
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "emc_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"server"},
		),
		poolClients: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "emc_pool_clients",
				Help: "Client pool statistics",
			},
			[]string{"state"}, // total, acquired, idle
		),
		poolAcquires: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "emc_pool_acquires",
				Help: "Successful client acquisitions in the current run",
			},
		),
		poolCreated: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "emc_pool_clients_created",
				Help: "Clients created in the current run",
			},
		),
		poolDestroy: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "emc_pool_clients_destroyed",
				Help: "Clients destroyed after a connection failure or at shutdown",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.commandsTotal,
		m.lookupsTotal,
		m.noReplyTotal,
		m.roundTrips,
		m.errorsTotal,
		m.bytesTotal,
		m.circuitState,
		m.poolClients,
		m.poolAcquires,
		m.poolCreated,
		m.poolDestroy,
	)

	return m
}

// AddClientStats adds counters accumulated over an interval, such as a run.
func (m *ClientMetrics) AddClientStats(s emc.ClientStats) {
	m.commandsTotal.WithLabelValues("set").Add(float64(s.Sets))
	m.commandsTotal.WithLabelValues("get").Add(float64(s.Gets))
	m.commandsTotal.WithLabelValues("delete").Add(float64(s.Deletes))
	m.commandsTotal.WithLabelValues("arith").Add(float64(s.Arith))
	m.commandsTotal.WithLabelValues("touch").Add(float64(s.Touches))
	m.commandsTotal.WithLabelValues("admin").Add(float64(s.Admin))

	m.lookupsTotal.WithLabelValues("hit").Add(float64(s.GetHits))
	m.lookupsTotal.WithLabelValues("miss").Add(float64(s.GetMisses))

	m.noReplyTotal.Add(float64(s.NoReply))
	m.roundTrips.Add(float64(s.RoundTrips))
	m.errorsTotal.Add(float64(s.Errors))

	m.bytesTotal.WithLabelValues("written").Add(float64(s.BytesWritten))
	m.bytesTotal.WithLabelValues("read").Add(float64(s.BytesRead))
}

// SetCircuitBreakerState sets the current state from its name
func (m *ClientMetrics) SetCircuitBreakerState(server, state string) {
	value := 0.0
	switch state {
	case "half-open":
		value = 1
	case "open":
		value = 2
	}
	m.circuitState.WithLabelValues(server).Set(value)
}

// SetPoolStats sets the client pool gauges
func (m *ClientMetrics) SetPoolStats(s loadgen.PoolStats) {
	m.poolClients.WithLabelValues("total").Set(float64(s.TotalClients))
	m.poolClients.WithLabelValues("acquired").Set(float64(s.AcquiredClients))
	m.poolClients.WithLabelValues("idle").Set(float64(s.IdleClients))
	m.poolAcquires.Set(float64(s.AcquireCount))
	m.poolCreated.Set(float64(s.CreatedClients))
	m.poolDestroy.Set(float64(s.DestroyedClients))
}
