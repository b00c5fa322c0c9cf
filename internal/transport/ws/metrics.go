package ws

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for the socket layer.
type Metrics struct {
	Connections prometheus.Gauge
	Frames      *prometheus.CounterVec
	Faults      *prometheus.CounterVec
	Relayed     *prometheus.CounterVec
}

// MetricsOptions configures collector registration.
type MetricsOptions struct {
	Registerer prometheus.Registerer
	Namespace  string
}

// NewMetrics constructs and registers the socket collectors. Double
// registration reuses the existing collector instead of failing.
func NewMetrics(opts MetricsOptions) (*Metrics, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "messenger"
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	connections := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ws",
		Name:      "connections_active",
		Help:      "Current number of open WebSocket connections.",
	})
	if err := registerGauge(reg, &connections); err != nil {
		return nil, err
	}

	frames := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ws",
		Name:      "frames_total",
		Help:      "Total inbound frames partitioned by opcode.",
	}, []string{"opcode"})
	if err := registerCounterVec(reg, &frames); err != nil {
		return nil, err
	}

	faults := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ws",
		Name:      "faults_total",
		Help:      "Connection-fatal faults partitioned by class.",
	}, []string{"class"})
	if err := registerCounterVec(reg, &faults); err != nil {
		return nil, err
	}

	relayed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ws",
		Name:      "chat_relayed_total",
		Help:      "Chat messages relayed partitioned by delivery outcome.",
	}, []string{"delivered"})
	if err := registerCounterVec(reg, &relayed); err != nil {
		return nil, err
	}

	return &Metrics{Connections: connections, Frames: frames, Faults: faults, Relayed: relayed}, nil
}

func registerGauge(reg prometheus.Registerer, gauge *prometheus.Gauge) error {
	if err := reg.Register(*gauge); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return fmt.Errorf("register gauge: %w", err)
		}
		existing, ok := already.ExistingCollector.(prometheus.Gauge)
		if !ok {
			return fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		*gauge = existing
	}
	return nil
}

func registerCounterVec(reg prometheus.Registerer, vec **prometheus.CounterVec) error {
	if err := reg.Register(*vec); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return fmt.Errorf("register counter: %w", err)
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		*vec = existing
	}
	return nil
}

func (m *Metrics) connOpened() {
	if m != nil && m.Connections != nil {
		m.Connections.Inc()
	}
}

func (m *Metrics) connClosed() {
	if m != nil && m.Connections != nil {
		m.Connections.Dec()
	}
}

func (m *Metrics) frame(op OpCode) {
	if m != nil && m.Frames != nil {
		m.Frames.WithLabelValues(op.String()).Inc()
	}
}

func (m *Metrics) fault(class string) {
	if m != nil && m.Faults != nil {
		m.Faults.WithLabelValues(class).Inc()
	}
}

func (m *Metrics) chatRelayed(delivered bool) {
	if m != nil && m.Relayed != nil {
		m.Relayed.WithLabelValues(strconv.FormatBool(delivered)).Inc()
	}
}
