// Package metrics exports recognizer activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Observer implements recognizer.Observer.
type Observer struct {
	opLatency  *prometheus.HistogramVec
	identifies *prometheus.CounterVec
	storeSize  prometheus.Gauge
	importRows *prometheus.CounterVec
}

// NewObserver creates an observer and registers its collectors with reg.
func NewObserver(reg prometheus.Registerer) *Observer {
	o := &Observer{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "faceid_operation_latency_seconds",
			Help:    "Latency of recognizer operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"op", "status"}),
		identifies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "faceid_identifications_total",
			Help: "Identification attempts by outcome",
		}, []string{"result"}),
		storeSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "faceid_store_records",
			Help: "Number of enrolled users",
		}),
		importRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "faceid_import_rows_total",
			Help: "Rows processed by bulk imports",
		}, []string{"result"}),
	}

	reg.MustRegister(o.opLatency, o.identifies, o.storeSize, o.importRows)
	return o
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (o *Observer) OnEnroll(d time.Duration, err error) {
	o.opLatency.WithLabelValues("enroll", status(err)).Observe(d.Seconds())
}

func (o *Observer) OnIdentify(d time.Duration, identified bool, err error) {
	o.opLatency.WithLabelValues("identify", status(err)).Observe(d.Seconds())
	switch {
	case err != nil:
		o.identifies.WithLabelValues("error").Inc()
	case identified:
		o.identifies.WithLabelValues("match").Inc()
	default:
		o.identifies.WithLabelValues("no_match").Inc()
	}
}

func (o *Observer) OnRemove(d time.Duration, err error) {
	o.opLatency.WithLabelValues("remove", status(err)).Observe(d.Seconds())
}

func (o *Observer) OnClear(d time.Duration, err error) {
	o.opLatency.WithLabelValues("clear", status(err)).Observe(d.Seconds())
}

func (o *Observer) OnStoreSize(n int) {
	o.storeSize.Set(float64(n))
}

// OnImport records the outcome of one finished import.
func (o *Observer) OnImport(added, failed, skipped int) {
	o.importRows.WithLabelValues("added").Add(float64(added))
	o.importRows.WithLabelValues("failed").Add(float64(failed))
	o.importRows.WithLabelValues("skipped").Add(float64(skipped))
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
