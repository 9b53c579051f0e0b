package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/smartdevicelink/sdl-core-go/internal/appmgr"
	"github.com/smartdevicelink/sdl-core-go/internal/appmodel"
	"github.com/smartdevicelink/sdl-core-go/internal/resumectl"
)

// Collector implements prometheus.Collector, reading live gauges off
// the Application Manager at scrape time rather than maintaining its
// own counters — the same scrape-time-read shape the teacher's
// database-pool collector used, applied here to in-memory state instead
// of a connection pool.
type Collector struct {
	mgr       *appmgr.Manager
	resumeCtl *resumectl.Controller

	registeredApps  *prometheus.Desc
	appsAtFull      *prometheus.Desc
	requestsTracked *prometheus.Desc
	requestsDone    *prometheus.Desc
	requestsFailed  *prometheus.Desc
	resumptionRisk  *prometheus.Desc
}

// NewCollector creates a collector over the given manager and
// resumption controller. resumeCtl may be nil (resumption gauges will
// report 0) for deployments that haven't wired a storage backend yet.
func NewCollector(mgr *appmgr.Manager, resumeCtl *resumectl.Controller) *Collector {
	return &Collector{
		mgr:       mgr,
		resumeCtl: resumeCtl,
		registeredApps: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "registered_applications"),
			"Current number of registered applications.",
			nil, nil,
		),
		appsAtFull: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "applications_at_full"),
			"Current number of applications holding HMI level FULL.",
			nil, nil,
		),
		requestsTracked: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "requests", "tracked"),
			"Currently in-flight requests tracked by the request controller.",
			nil, nil,
		),
		requestsDone: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "requests", "completed_total"),
			"Total requests completed by the request controller's worker pool.",
			nil, nil,
		),
		requestsFailed: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "requests", "failed_total"),
			"Total requests that failed to initialize in the worker pool.",
			nil, nil,
		),
		resumptionRisk: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "resumption", "apps_at_risk"),
			"Applications whose resumption record could not be confirmed readable.",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.registeredApps
	ch <- c.appsAtFull
	ch <- c.requestsTracked
	ch <- c.requestsDone
	ch <- c.requestsFailed
	ch <- c.resumptionRisk
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	accessor, release := c.mgr.Applications()
	apps := accessor.Apps()
	release()

	atFull := 0
	for _, app := range apps {
		if c.mgr.StateCtl.CurrentLevel(app) == appmodel.HMIFull {
			atFull++
		}
	}
	ch <- prometheus.MustNewConstMetric(c.registeredApps, prometheus.GaugeValue, float64(len(apps)))
	ch <- prometheus.MustNewConstMetric(c.appsAtFull, prometheus.GaugeValue, float64(atFull))

	stats := c.mgr.RequestCtl.Stats()
	ch <- prometheus.MustNewConstMetric(c.requestsTracked, prometheus.GaugeValue, float64(stats.Tracked))
	ch <- prometheus.MustNewConstMetric(c.requestsDone, prometheus.CounterValue, float64(stats.Completed))
	ch <- prometheus.MustNewConstMetric(c.requestsFailed, prometheus.CounterValue, float64(stats.Failed))

	atRisk := 0
	if c.resumeCtl != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if ids, err := c.resumeCtl.ApplicationsAtRisk(ctx); err == nil {
			atRisk = len(ids)
		}
	}
	ch <- prometheus.MustNewConstMetric(c.resumptionRisk, prometheus.GaugeValue, float64(atRisk))
}
