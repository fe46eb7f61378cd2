package intake

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports pipeline counters. A nil *Metrics records nothing.
type Metrics struct {
	requests    *prometheus.CounterVec
	filesStored prometheus.Counter
	bytesStored prometheus.Counter
	warnings    *prometheus.CounterVec
	duration    prometheus.Histogram
}

// NewMetrics registers the intake collectors on reg (the default registerer
// when nil). Collectors already registered under the same names are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tenderdesk",
			Subsystem: "intake",
			Name:      "requests_total",
			Help:      "Intake requests by outcome (ok or error kind).",
		}, []string{"outcome"}),
		filesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tenderdesk",
			Subsystem: "intake",
			Name:      "files_stored_total",
			Help:      "Files written to the upload root.",
		}),
		bytesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tenderdesk",
			Subsystem: "intake",
			Name:      "bytes_stored_total",
			Help:      "Bytes written to the upload root.",
		}),
		warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tenderdesk",
			Subsystem: "intake",
			Name:      "warnings_total",
			Help:      "Soft intake conditions by kind.",
		}, []string{"kind"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tenderdesk",
			Subsystem: "intake",
			Name:      "duration_seconds",
			Help:      "Wall time of intake requests.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	var err error
	if m.requests, err = register(reg, m.requests); err != nil {
		return nil, err
	}
	if m.filesStored, err = register(reg, m.filesStored); err != nil {
		return nil, err
	}
	if m.bytesStored, err = register(reg, m.bytesStored); err != nil {
		return nil, err
	}
	if m.warnings, err = register(reg, m.warnings); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register intake collector: %w", err)
	}
	return c, nil
}

func (m *Metrics) recordFile(size int64) {
	if m == nil {
		return
	}
	m.filesStored.Inc()
	m.bytesStored.Add(float64(size))
}

func (m *Metrics) recordRequest(started time.Time, warnings []Warning, err error) {
	if m == nil {
		return
	}
	m.duration.Observe(time.Since(started).Seconds())
	outcome := "ok"
	if err != nil {
		outcome = string(KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	m.requests.WithLabelValues(outcome).Inc()
	for _, w := range warnings {
		m.warnings.WithLabelValues(string(w.Kind)).Inc()
	}
}
