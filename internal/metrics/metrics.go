package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	validationsTotal *prometheus.CounterVec
	rejectionsTotal  *prometheus.CounterVec

	assetsServed prometheus.Counter
	uploadsTotal *prometheus.CounterVec

	requestDuration *prometheus.HistogramVec

	syncsTotal   *prometheus.CounterVec
	sweepRemoved prometheus.Counter
)

// AuditCounter reports the size of the rejection trail. Implemented by
// *audit.Store; kept as an interface so registration works without redis.
type AuditCounter interface {
	Count(ctx context.Context) (int64, error)
}

func Register(a AuditCounter) {
	registerOnce.Do(func() {
		validationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "assetgate",
			Name:      "validations_total",
			Help:      "Number of validation calls by validator and verdict.",
		}, []string{"validator", "verdict"})
		rejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "assetgate",
			Name:      "rejections_total",
			Help:      "Number of rejected inputs by validator and reason.",
		}, []string{"validator", "reason"})

		assetsServed = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "assetgate",
			Name:      "assets_served_total",
			Help:      "Number of assets served successfully.",
		})
		uploadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "assetgate",
			Name:      "uploads_total",
			Help:      "Number of upload attempts by result.",
		}, []string{"result"})

		requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "assetgate",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"})

		syncsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "assetgate",
			Name:      "source_syncs_total",
			Help:      "Number of git source syncs by result.",
		}, []string{"result"})
		sweepRemoved = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "assetgate",
			Name:      "staging_sweep_removed_total",
			Help:      "Number of stale staged files removed by sweeps.",
		})

		collectors := []prometheus.Collector{
			validationsTotal,
			rejectionsTotal,
			assetsServed,
			uploadsTotal,
			requestDuration,
			syncsTotal,
			sweepRemoved,
		}
		if a != nil {
			collectors = append(collectors, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: "assetgate",
				Name:      "audit_entries",
				Help:      "Number of entries in the rejection audit trail.",
			}, func() float64 {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				val, err := a.Count(ctx)
				if err != nil {
					return 0
				}
				return float64(val)
			}))
		}
		prometheus.MustRegister(collectors...)
	})
}

func RecordValidation(validator string, safe bool) {
	if validationsTotal == nil {
		return
	}
	verdict := "safe"
	if !safe {
		verdict = "unsafe"
	}
	validationsTotal.WithLabelValues(validator, verdict).Inc()
}

func RecordRejection(validator, reason string) {
	if rejectionsTotal == nil {
		return
	}
	rejectionsTotal.WithLabelValues(validator, reason).Inc()
}

func RecordServe() {
	if assetsServed == nil {
		return
	}
	assetsServed.Inc()
}

func RecordUpload(result string) {
	if uploadsTotal == nil {
		return
	}
	uploadsTotal.WithLabelValues(result).Inc()
}

func ObserveRequest(route string, d time.Duration) {
	if requestDuration == nil {
		return
	}
	requestDuration.WithLabelValues(route).Observe(d.Seconds())
}

func RecordSync(err error) {
	if syncsTotal == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	syncsTotal.WithLabelValues(result).Inc()
}

func RecordSweep(removed int) {
	if sweepRemoved == nil {
		return
	}
	sweepRemoved.Add(float64(removed))
}
