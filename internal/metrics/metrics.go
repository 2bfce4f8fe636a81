// Package metrics records frame scheduler counters.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons.
const (
	DropStaleAcquire    = "stale_acquire"
	DropTransientExtent = "transient_extent"
)

// Wait kinds.
const (
	WaitImage   = "image"
	WaitCompute = "compute"
	WaitStaging = "staging"
	WaitDrain   = "drain"
)

// Rebuild outcomes.
const (
	RebuildOK        = "ok"
	RebuildTransient = "transient"
)

// Recorder receives scheduler events. Implementations must be cheap; they
// are called on the frame loop.
type Recorder interface {
	FrameRendered()
	FrameDropped(reason string)
	Rebuild(outcome string)
	FenceWait(kind string, d time.Duration)
	ComputeTick()
	FramesPerSecond(fps float64)
}

// Nop discards everything.
type Nop struct{}

func (Nop) FrameRendered()                  {}
func (Nop) FrameDropped(string)             {}
func (Nop) Rebuild(string)                  {}
func (Nop) FenceWait(string, time.Duration) {}
func (Nop) ComputeTick()                    {}
func (Nop) FramesPerSecond(float64)         {}

// Prometheus exports scheduler events as Prometheus metrics.
type Prometheus struct {
	frames   prometheus.Counter
	dropped  *prometheus.CounterVec
	rebuilds *prometheus.CounterVec
	waits    *prometheus.HistogramVec
	ticks    prometheus.Counter
	fps      prometheus.Gauge
}

// NewPrometheus registers the scheduler metrics with reg. A nil reg uses
// the default registerer.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Prometheus{
		frames: f.NewCounter(prometheus.CounterOpts{
			Name: "particles_frames_rendered_total",
			Help: "Frames submitted for presentation",
		}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "particles_frames_dropped_total",
			Help: "Rendering passes abandoned before submission, by reason",
		}, []string{"reason"}),
		rebuilds: f.NewCounterVec(prometheus.CounterOpts{
			Name: "particles_swapchain_rebuilds_total",
			Help: "Swapchain rebuild attempts by outcome",
		}, []string{"outcome"}),
		waits: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "particles_fence_wait_seconds",
			Help:    "Host time blocked on GPU completion, by wait kind",
			Buckets: prometheus.ExponentialBuckets(0.00005, 4, 10),
		}, []string{"kind"}),
		ticks: f.NewCounter(prometheus.CounterOpts{
			Name: "particles_compute_ticks_total",
			Help: "Compute dispatches submitted",
		}),
		fps: f.NewGauge(prometheus.GaugeOpts{
			Name: "particles_frames_per_second",
			Help: "Rolling average presentation rate",
		}),
	}
}

func (p *Prometheus) FrameRendered()              { p.frames.Inc() }
func (p *Prometheus) FrameDropped(reason string)  { p.dropped.WithLabelValues(reason).Inc() }
func (p *Prometheus) Rebuild(outcome string)      { p.rebuilds.WithLabelValues(outcome).Inc() }
func (p *Prometheus) ComputeTick()                { p.ticks.Inc() }
func (p *Prometheus) FramesPerSecond(fps float64) { p.fps.Set(fps) }

func (p *Prometheus) FenceWait(kind string, d time.Duration) {
	p.waits.WithLabelValues(kind).Observe(d.Seconds())
}

// NewServer returns an HTTP server exposing g on /metrics.
func NewServer(addr string, g prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
}
