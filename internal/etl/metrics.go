package etl

import "github.com/prometheus/client_golang/prometheus"

const (
	MetricRuns               = "runs_total"
	MetricPages              = "pages_fetched_total"
	MetricRetries            = "retries_total"
	MetricStatementsExecuted = "statements_executed_total"
	MetricStatementsFailed   = "statements_failed_total"
)

var CounterRuns = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "collector",
		Name:      MetricRuns,
		Help:      "Finished runs by terminal status.",
	},
	[]string{
		"status",
	},
)

var CounterPages = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "collector",
		Name:      MetricPages,
		Help:      "Pages received and transformed.",
	},
)

var CounterRetries = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "collector",
		Name:      MetricRetries,
		Help:      "Fetch/transform attempts that were retried.",
	},
)

var CounterStatementsExecuted = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "collector",
		Name:      MetricStatementsExecuted,
		Help:      "Statements sent to a destination.",
	},
)

var CounterStatementsFailed = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "collector",
		Name:      MetricStatementsFailed,
		Help:      "Statements rejected by a destination.",
	},
)

func init() {
	prometheus.MustRegister(CounterRuns)
	prometheus.MustRegister(CounterPages)
	prometheus.MustRegister(CounterRetries)
	prometheus.MustRegister(CounterStatementsExecuted)
	prometheus.MustRegister(CounterStatementsFailed)
}
