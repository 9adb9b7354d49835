// Package metrics wires rcrowley/go-metrics counters into an optional
// Prometheus exporter, following cmd/kcn/main.go's metrics-enabling
// pattern in the teacher repo: a process-wide registry that the
// NewRegistered* constructors register into, exported over HTTP only if
// the operator asks for it.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/kma-coin/kmacoin/log"
	gometrics "github.com/rcrowley/go-metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the process-wide go-metrics registry NewRegisteredCounter,
// NewRegisteredTimer and NewRegisteredGauge register into while Enabled,
// and the one Serve exports.
var Registry = gometrics.NewRegistry()

// Enabled gates whether NewRegisteredCounter/NewRegisteredTimer actually
// register into Registry, or return a throwaway unregistered metric. Off
// by default, flipped on by the --metrics CLI flag.
var Enabled = false

// NewRegisteredCounter returns a counter registered under name, or a
// standalone one if metrics are disabled.
func NewRegisteredCounter(name string) gometrics.Counter {
	if !Enabled {
		return gometrics.NewCounter()
	}
	return gometrics.GetOrRegisterCounter(name, Registry)
}

// NewRegisteredTimer returns a timer registered under name, or a
// standalone one if metrics are disabled.
func NewRegisteredTimer(name string) gometrics.Timer {
	if !Enabled {
		return gometrics.NewTimer()
	}
	return gometrics.GetOrRegisterTimer(name, Registry)
}

// NewRegisteredGauge returns a gauge registered under name, or a
// standalone one if metrics are disabled.
func NewRegisteredGauge(name string) gometrics.Gauge {
	if !Enabled {
		return gometrics.NewGauge()
	}
	return gometrics.GetOrRegisterGauge(name, Registry)
}

// promCollector adapts the go-metrics Registry to a Prometheus Collector,
// translating Counters/Gauges/Timers on every scrape rather than keeping a
// second set of Prometheus-native metrics in sync.
type promCollector struct{}

func (promCollector) Describe(ch chan<- *prometheus.Desc) {}

func (promCollector) Collect(ch chan<- prometheus.Metric) {
	Registry.Each(func(name string, i interface{}) {
		desc := prometheus.NewDesc(sanitize(name), name, nil, nil)
		switch m := i.(type) {
		case gometrics.Counter:
			ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(m.Count()))
		case gometrics.Gauge:
			ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(m.Value()))
		case gometrics.Timer:
			ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, m.Mean())
		}
	})
}

func sanitize(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
			out[i] = c
		default:
			out[i] = '_'
		}
	}
	return "kmacoin_" + string(out)
}

// Serve starts the Prometheus /metrics HTTP endpoint on addr and blocks
// until it exits, logging any error. Meant to run in its own goroutine,
// the way cmd/kcn starts its metrics server.
func Serve(addr string) {
	prometheus.MustRegister(promCollector{})
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Info("metrics server listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("metrics server stopped", "err", fmt.Sprint(err))
	}
}
