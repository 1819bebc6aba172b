// Package metrics exposes playback and housekeeping counters for prometheus.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	zlog "github.com/rs/zerolog/log"
)

const namespace = "rudebot"

type Metrics struct {
	itemsAdded   prometheus.Counter
	playsStarted prometheus.Counter
	completions  prometheus.Counter
	itemsDropped *prometheus.CounterVec
	filesSwept   prometheus.Counter
	activeRooms  prometheus.Gauge
	resolveTime  prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		itemsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "queue_items_added_total",
			Help: "Songs appended to a room queue.",
		}),
		playsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "plays_started_total",
			Help: "Songs handed to the voice transport.",
		}),
		completions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "plays_completed_total",
			Help: "Playback completions, natural or interrupted.",
		}),
		itemsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "queue_items_dropped_total",
			Help: "Songs removed from a queue because they could not be played.",
		}, []string{"reason"}),
		filesSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sweeper_files_removed_total",
			Help: "Orphaned audio files deleted by the sweeper.",
		}),
		activeRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "active_rooms",
			Help: "Rooms with a live playback worker.",
		}),
		resolveTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "resolve_duration_seconds",
			Help:    "Time spent turning a source reference into a local file.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
	}
	reg.MustRegister(m.itemsAdded, m.playsStarted, m.completions, m.itemsDropped,
		m.filesSwept, m.activeRooms, m.resolveTime)
	return m
}

func (m *Metrics) ItemAdded() {
	if m != nil {
		m.itemsAdded.Inc()
	}
}

func (m *Metrics) PlayStarted() {
	if m != nil {
		m.playsStarted.Inc()
	}
}

func (m *Metrics) PlayCompleted() {
	if m != nil {
		m.completions.Inc()
	}
}

func (m *Metrics) ItemDropped(reason string) {
	if m != nil {
		m.itemsDropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) FilesSwept(n int) {
	if m != nil {
		m.filesSwept.Add(float64(n))
	}
}

func (m *Metrics) RoomOpened() {
	if m != nil {
		m.activeRooms.Inc()
	}
}

func (m *Metrics) RoomClosed() {
	if m != nil {
		m.activeRooms.Dec()
	}
}

func (m *Metrics) ObserveResolve(d time.Duration) {
	if m != nil {
		m.resolveTime.Observe(d.Seconds())
	}
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zlog.Info().Str("addr", addr).Msg("metrics listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "metrics server")
	}
	return nil
}
