// Package prometheus provides the Prometheus implementation of the
// metrics interfaces.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jeffvan302/fileharbor/pkg/metrics"
)

// serverMetrics is the Prometheus implementation of metrics.ServerMetrics.
type serverMetrics struct {
	handshakes        *prometheus.CounterVec
	commands          *prometheus.CounterVec
	commandDuration   *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
	activeSessions    prometheus.Gauge
	activeConnections prometheus.Gauge
}

// NewServerMetrics registers the server collectors with reg and returns
// the ServerMetrics implementation.
func NewServerMetrics(reg prometheus.Registerer) metrics.ServerMetrics {
	return &serverMetrics{
		handshakes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fileharbor_handshakes_total",
				Help: "Total handshake attempts by library and wire status",
			},
			[]string{"library", "status"},
		),
		commands: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fileharbor_commands_total",
				Help: "Total commands processed by command, library and wire status",
			},
			[]string{"command", "library", "status"},
		),
		commandDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "fileharbor_command_duration_milliseconds",
				Help: "Command processing duration in milliseconds",
				Buckets: []float64{
					0.5,  // metadata commands
					1,    //
					5,    //
					10,   //
					50,   // chunk transfers
					100,  //
					500,  //
					1000, // rate-limited chunks
					5000, //
				},
			},
			[]string{"command", "library"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fileharbor_bytes_total",
				Help: "File bytes moved by library and direction",
			},
			[]string{"library", "direction"},
		),
		activeSessions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "fileharbor_active_sessions",
				Help: "Current number of live sessions",
			},
		),
		activeConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "fileharbor_active_connections",
				Help: "Current number of open connections",
			},
		),
	}
}

func (m *serverMetrics) RecordHandshake(library string, status string) {
	m.handshakes.WithLabelValues(library, status).Inc()
}

func (m *serverMetrics) RecordCommand(command string, library string, duration time.Duration, status string) {
	m.commands.WithLabelValues(command, library, status).Inc()
	m.commandDuration.WithLabelValues(command, library).
		Observe(float64(duration.Microseconds()) / 1000.0)
}

func (m *serverMetrics) RecordBytes(library string, direction string, bytes uint64) {
	m.bytesTransferred.WithLabelValues(library, direction).Add(float64(bytes))
}

func (m *serverMetrics) SetActiveSessions(count int) {
	m.activeSessions.Set(float64(count))
}

func (m *serverMetrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}
