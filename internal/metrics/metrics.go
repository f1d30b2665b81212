package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "campus"

// Delivery paths and push outcomes used as label values.
const (
	PathRealtime = "realtime"
	PathHTTP     = "http"

	PushDelivered = "delivered"
	PushDropped   = "dropped"
	PushOffline   = "offline"
)

// Metrics groups the collectors exported by the messaging core. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	connections          prometheus.Gauge
	onlineUsers          prometheus.Gauge
	messagesDelivered    *prometheus.CounterVec
	livePushes           *prometheus.CounterVec
	notificationFailures prometheus.Counter
	realtimeErrors       *prometheus.CounterVec
}

// New creates the collectors and registers them with registerer.
func New(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_connections",
			Help:      "Open realtime connections.",
		}),
		onlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_users",
			Help:      "Users with at least one authenticated connection.",
		}),
		messagesDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_delivered_total",
			Help:      "Direct messages persisted, by entry path.",
		}, []string{"path"}),
		livePushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_pushes_total",
			Help:      "Live message pushes, by outcome.",
		}, []string{"outcome"}),
		notificationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Message notifications that failed to persist after the message was stored.",
		}),
		realtimeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_errors_total",
			Help:      "Error events emitted to realtime clients, by inbound event.",
		}, []string{"event"}),
	}
	if registerer != nil {
		collectors := []prometheus.Collector{
			m.connections,
			m.onlineUsers,
			m.messagesDelivered,
			m.livePushes,
			m.notificationFailures,
			m.realtimeErrors,
		}
		for _, collector := range collectors {
			if err := registerer.Register(collector); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

// SetOnlineUsers records the current size of the presence directory.
func (m *Metrics) SetOnlineUsers(count int) {
	if m == nil {
		return
	}
	m.onlineUsers.Set(float64(count))
}

func (m *Metrics) MessageDelivered(path string) {
	if m == nil {
		return
	}
	m.messagesDelivered.WithLabelValues(path).Inc()
}

func (m *Metrics) LivePush(outcome string) {
	if m == nil {
		return
	}
	m.livePushes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) NotificationFailed() {
	if m == nil {
		return
	}
	m.notificationFailures.Inc()
}

func (m *Metrics) RealtimeError(event string) {
	if m == nil {
		return
	}
	m.realtimeErrors.WithLabelValues(event).Inc()
}
