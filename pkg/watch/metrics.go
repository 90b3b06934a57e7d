package watch

import "github.com/prometheus/client_golang/prometheus"

var (
	writesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "shmwatch",
		Name:      "writes_total",
		Help:      "Values published through Watched handles.",
	})
	readsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "shmwatch",
		Name:      "reads_total",
		Help:      "Snapshot reads completed by Watcher handles.",
	})
	changesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "shmwatch",
		Name:      "changes_observed_total",
		Help:      "HasChanged polls that observed a new version.",
	})
	goneTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "shmwatch",
		Name:      "gone_total",
		Help:      "Polls that found the publisher closed.",
	})
)

// RegisterMetrics registers the package's collectors on r. Metrics are
// always updated; registration only makes them scrapable.
func RegisterMetrics(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{writesTotal, readsTotal, changesTotal, goneTotal} {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}
