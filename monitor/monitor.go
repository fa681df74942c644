// monitor/monitor.go
package monitor

import (
	"context"
	"errors"
	"expvar"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wfunc/duelarena/broadcast"
	"github.com/wfunc/duelarena/logger"
)

type Metrics struct {
	OnlineParticipants prometheus.Gauge
	PendingRequests    prometheus.Gauge
	ActiveDuels        prometheus.Gauge
	ActiveTournaments  prometheus.Gauge
	Events             *prometheus.CounterVec
	DuelsEnded         *prometheus.CounterVec
	MessagesReceived   prometheus.Counter
	MessageLatency     prometheus.Histogram
}

func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OnlineParticipants: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_participants",
			Help:      "Number of logged-in participants",
		}),
		PendingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_duel_requests",
			Help:      "Number of unresolved duel requests",
		}),
		ActiveDuels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_duels",
			Help:      "Number of duels in progress",
		}),
		ActiveTournaments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_tournaments",
			Help:      "Number of tournaments registering or running",
		}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Arena events emitted, by kind",
		}, []string{"kind"}),
		DuelsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duels_ended_total",
			Help:      "Ended duels by reason and outcome",
		}, []string{"reason", "outcome"}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of client messages received",
		}),
		MessageLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_latency_seconds",
			Help:      "Client message processing latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
	}

	reg.MustRegister(
		m.OnlineParticipants,
		m.PendingRequests,
		m.ActiveDuels,
		m.ActiveTournaments,
		m.Events,
		m.DuelsEnded,
		m.MessagesReceived,
		m.MessageLatency,
	)

	return m
}

type Monitor struct {
	metrics      *Metrics
	registry     *prometheus.Registry
	startTime    time.Time
	requestCount int64
	mutex        sync.Mutex
}

// NewMonitor registers metrics on reg, or on a fresh registry when reg is nil.
func NewMonitor(namespace string, reg *prometheus.Registry) *Monitor {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &Monitor{
		metrics:   NewMetrics(namespace, reg),
		registry:  reg,
		startTime: time.Now(),
	}
}

func (m *Monitor) Metrics() *Metrics { return m.metrics }

var publishOnce sync.Once

// Handler serves /metrics and /debug/vars.
func (m *Monitor) Handler() http.Handler {
	publishOnce.Do(func() {
		// 添加expvar指标
		expvar.Publish("uptime", expvar.Func(func() interface{} {
			return time.Since(m.startTime).Seconds()
		}))
		expvar.Publish("requests", expvar.Func(func() interface{} {
			m.mutex.Lock()
			defer m.mutex.Unlock()
			return m.requestCount
		}))
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.Handle("/debug/vars", expvar.Handler())
	return mux
}

// Serve runs the metrics endpoint until ctx is done.
func (m *Monitor) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: m.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Log.Infof("Metrics server listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Observe counts one arena event.
func (m *Monitor) Observe(e broadcast.Event) {
	m.metrics.Events.WithLabelValues(string(e.Kind)).Inc()
	if e.Kind == broadcast.DuelEnded {
		outcome := "win"
		if e.Winner == "" {
			outcome = "draw"
		}
		m.metrics.DuelsEnded.WithLabelValues(e.Reason, outcome).Inc()
	}
}

// Run observes events from sub until ctx is done or the subscription closes.
func (m *Monitor) Run(ctx context.Context, sub *broadcast.Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-sub.C:
			if !ok {
				return nil
			}
			m.Observe(e)
		}
	}
}

func (m *Monitor) SetOnlineParticipants(count int) {
	m.metrics.OnlineParticipants.Set(float64(count))
}

func (m *Monitor) SetPendingRequests(count int) {
	m.metrics.PendingRequests.Set(float64(count))
}

func (m *Monitor) SetActiveDuels(count int) {
	m.metrics.ActiveDuels.Set(float64(count))
}

func (m *Monitor) SetActiveTournaments(count int) {
	m.metrics.ActiveTournaments.Set(float64(count))
}

func (m *Monitor) IncMessagesReceived() {
	m.metrics.MessagesReceived.Inc()
	m.mutex.Lock()
	m.requestCount++
	m.mutex.Unlock()
}

func (m *Monitor) ObserveMessageLatency(duration time.Duration) {
	m.metrics.MessageLatency.Observe(duration.Seconds())
}
