package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// AuthRequests counts RADIUS Access-Requests by result
	// (accept, reject, error).
	AuthRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radius_auth_requests_total",
			Help: "RADIUS Access-Requests by result",
		},
		[]string{"result"},
	)

	// AcctRequests counts Accounting-Requests by status type.
	AcctRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radius_acct_requests_total",
			Help: "RADIUS Accounting-Requests by status type",
		},
		[]string{"type"},
	)

	// SyslogLines counts processed syslog lines by category
	// (account, config, event, dropped).
	SyslogLines = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syslog_lines_total",
			Help: "Syslog lines by handling category",
		},
		[]string{"category"},
	)

	// CorrelationMerged counts signals merged into an existing auth row.
	CorrelationMerged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "correlation_merged_total",
			Help: "Signals merged into an existing audit row, by kind",
		},
		[]string{"kind"},
	)

	// CorrelationInserted counts signals that created a new auth row.
	CorrelationInserted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "correlation_inserted_total",
			Help: "Signals that inserted a new audit row, by kind",
		},
		[]string{"kind"},
	)

	// CorrelationPolls counts cross-channel poll sleeps.
	CorrelationPolls = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "correlation_polls_total",
			Help: "Bounded retry-poll iterations while matching channels",
		},
	)

	// PolicyPushes counts permission-group pushes by result
	// (applied, unchanged, failed).
	PolicyPushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "policy_pushes_total",
			Help: "Permission group pushes by result",
		},
		[]string{"result"},
	)
)

// Register adds all collectors to the default registry. Call once per
// process before serving /metrics.
func Register() {
	prometheus.MustRegister(
		AuthRequests,
		AcctRequests,
		SyslogLines,
		CorrelationMerged,
		CorrelationInserted,
		CorrelationPolls,
		PolicyPushes,
	)
}
