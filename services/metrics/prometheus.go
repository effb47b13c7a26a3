package metricsvc

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "beerxchange"

// Collector records exchange and live-stream activity in prometheus.
type Collector struct {
	registry *prometheus.Registry

	purchases       *prometheus.CounterVec
	beersSold       *prometheus.CounterVec
	revenue         *prometheus.CounterVec
	recalculations  *prometheus.CounterVec
	recalcDuration  prometheus.Histogram
	priceUpdates    *prometheus.CounterVec
	liveSubscribers *prometheus.GaugeVec
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		purchases: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "exchange",
				Name:      "purchases_total",
				Help:      "Total number of purchases registered.",
			},
			[]string{"event"},
		),
		beersSold: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "exchange",
				Name:      "beers_sold_total",
				Help:      "Total quantity of beers sold.",
			},
			[]string{"event"},
		),
		revenue: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "exchange",
				Name:      "revenue_total",
				Help:      "Total amount charged, in the event currency.",
			},
			[]string{"event"},
		),
		recalculations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pricing",
				Name:      "recalculations_total",
				Help:      "Total number of price recalculations.",
			},
			[]string{"event"},
		),
		recalcDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pricing",
				Name:      "recalculation_duration_seconds",
				Help:      "Duration of price recalculations, storage included.",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
			},
		),
		priceUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pricing",
				Name:      "price_updates_total",
				Help:      "Total number of price updates written.",
			},
			[]string{"event"},
		),
		liveSubscribers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "live",
				Name:      "subscribers",
				Help:      "Current number of live stream subscribers.",
			},
			[]string{"kind"},
		),
	}

	c.registry.MustRegister(
		c.purchases,
		c.beersSold,
		c.revenue,
		c.recalculations,
		c.recalcDuration,
		c.priceUpdates,
		c.liveSubscribers,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return c
}

// Handler exposes the registered metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) PurchaseRecorded(eventID string, qty int, amount float64) {
	c.purchases.WithLabelValues(eventID).Inc()
	c.beersSold.WithLabelValues(eventID).Add(float64(qty))
	c.revenue.WithLabelValues(eventID).Add(amount)
}

func (c *Collector) PricesRecalculated(eventID string, took time.Duration, updates int) {
	c.recalculations.WithLabelValues(eventID).Inc()
	c.recalcDuration.Observe(took.Seconds())
	c.priceUpdates.WithLabelValues(eventID).Add(float64(updates))
}

func (c *Collector) SubscriberAdded(topic string) {
	c.liveSubscribers.WithLabelValues(topicKind(topic)).Inc()
}

func (c *Collector) SubscriberRemoved(topic string) {
	c.liveSubscribers.WithLabelValues(topicKind(topic)).Dec()
}

// topicKind keeps the label cardinality low: "event:<id>" counts as "event".
func topicKind(topic string) string {
	for i := 0; i < len(topic); i++ {
		if topic[i] == ':' {
			return topic[:i]
		}
	}
	return topic
}
