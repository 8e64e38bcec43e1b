package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// IngestStats gives the metrics collector access to the ingress
// pipeline's running counters.
type IngestStats interface {
	MsgCount() int64
}

// AlarmStats gives the metrics collector access to the alarm engine's
// live rule state.
type AlarmStats interface {
	ActiveCount() int
}

// BusStats gives the metrics collector access to the eventbus's
// subscriber count.
type BusStats interface {
	SubscriberCount() int
}

// Collector implements prometheus.Collector to read live gauges at scrape time.
type Collector struct {
	pool   *pgxpool.Pool
	ingest IngestStats
	alarms AlarmStats
	bus    BusStats

	mqttMessages    *prometheus.Desc
	activeAlarms    *prometheus.Desc
	busSubscribers  *prometheus.Desc
	dbTotalConns    *prometheus.Desc
	dbAcquiredConns *prometheus.Desc
	dbIdleConns     *prometheus.Desc
}

// NewCollector creates a collector that reads live state at scrape time.
// Any of pool/ingest/alarms/bus may be nil (the corresponding gauges read
// as 0), so a partially-wired process (e.g. historian disabled, no alarm
// engine loaded yet) still scrapes cleanly.
func NewCollector(pool *pgxpool.Pool, ingest IngestStats, alarms AlarmStats, bus BusStats) *Collector {
	return &Collector{
		pool:   pool,
		ingest: ingest,
		alarms: alarms,
		bus:    bus,
		mqttMessages: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "mqtt_messages_received"),
			"Total MQTT frames received by the ingress pipeline.",
			nil, nil,
		),
		activeAlarms: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "alarms_active"),
			"Current number of alarm rules in state=active.",
			nil, nil,
		),
		busSubscribers: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "eventbus_subscribers_active"),
			"Current number of eventbus subscribers.",
			nil, nil,
		),
		dbTotalConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db_pool", "total_conns"),
			"Total database pool connections.",
			nil, nil,
		),
		dbAcquiredConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db_pool", "acquired_conns"),
			"Database pool connections currently in use.",
			nil, nil,
		),
		dbIdleConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db_pool", "idle_conns"),
			"Database pool idle connections.",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.mqttMessages
	ch <- c.activeAlarms
	ch <- c.busSubscribers
	ch <- c.dbTotalConns
	ch <- c.dbAcquiredConns
	ch <- c.dbIdleConns
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	mqttMessages := float64(0)
	if c.ingest != nil {
		mqttMessages = float64(c.ingest.MsgCount())
	}
	ch <- prometheus.MustNewConstMetric(c.mqttMessages, prometheus.CounterValue, mqttMessages)

	activeAlarms := float64(0)
	if c.alarms != nil {
		activeAlarms = float64(c.alarms.ActiveCount())
	}
	ch <- prometheus.MustNewConstMetric(c.activeAlarms, prometheus.GaugeValue, activeAlarms)

	busSubscribers := float64(0)
	if c.bus != nil {
		busSubscribers = float64(c.bus.SubscriberCount())
	}
	ch <- prometheus.MustNewConstMetric(c.busSubscribers, prometheus.GaugeValue, busSubscribers)

	if c.pool != nil {
		stat := c.pool.Stat()
		ch <- prometheus.MustNewConstMetric(c.dbTotalConns, prometheus.GaugeValue, float64(stat.TotalConns()))
		ch <- prometheus.MustNewConstMetric(c.dbAcquiredConns, prometheus.GaugeValue, float64(stat.AcquiredConns()))
		ch <- prometheus.MustNewConstMetric(c.dbIdleConns, prometheus.GaugeValue, float64(stat.IdleConns()))
	} else {
		ch <- prometheus.MustNewConstMetric(c.dbTotalConns, prometheus.GaugeValue, 0)
		ch <- prometheus.MustNewConstMetric(c.dbAcquiredConns, prometheus.GaugeValue, 0)
		ch <- prometheus.MustNewConstMetric(c.dbIdleConns, prometheus.GaugeValue, 0)
	}
}
