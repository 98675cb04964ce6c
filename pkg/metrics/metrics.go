package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	racksync = "racksync"

	remoteWritesTotal = "remote_writes_total"
	conflictsTotal    = "conflicts_total"
	parseErrorsTotal  = "raid_parse_errors_total"

	// Labels
	entityLabel    = "entity"
	operationLabel = "operation"
)

var remoteWritesTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: racksync,
		Name:      remoteWritesTotal,
		Help:      "number of remote create/update operations per entity kind",
	},
	[]string{entityLabel, operationLabel},
)

var conflictsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: racksync,
		Name:      conflictsTotal,
		Help:      "number of uniqueness conflicts detected per entity kind",
	},
	[]string{entityLabel},
)

var parseErrorsTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: racksync,
		Name:      parseErrorsTotal,
		Help:      "number of skipped raid entries due to parse errors",
	},
)

// IncreaseRemoteWrite records one remote mutation for an entity kind.
// Operation is create or update; no-ops and skips are not writes.
func IncreaseRemoteWrite(entity, operation string) {
	remoteWritesTotalMetric.With(prometheus.Labels{
		entityLabel:    entity,
		operationLabel: operation,
	}).Inc()
}

func IncreaseConflict(entity string) {
	conflictsTotalMetric.With(prometheus.Labels{entityLabel: entity}).Inc()
}

func IncreaseParseError() {
	parseErrorsTotalMetric.Inc()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(remoteWritesTotalMetric)
	prometheus.MustRegister(conflictsTotalMetric)
	prometheus.MustRegister(parseErrorsTotalMetric)
}
