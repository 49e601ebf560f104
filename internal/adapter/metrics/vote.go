package metrics

import "github.com/prometheus/client_golang/prometheus"

// VoteMetrics holds Prometheus metrics for poll voting and option repair.
type VoteMetrics struct {
	VotesProcessed     *prometheus.CounterVec
	ProcessingDuration prometheus.Histogram
	OptionsRepaired    *prometheus.CounterVec
}

// Vote results used as the "result" label.
const (
	VoteApplied       = "applied"
	VoteExpired       = "expired"
	VoteInvalidOption = "invalid_option"
	VoteDuplicate     = "duplicate"
	VoteNotFound      = "not_found"
	VoteError         = "error"
)

func NewVoteMetrics(reg prometheus.Registerer) *VoteMetrics {
	m := &VoteMetrics{
		VotesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_processed_total",
			Help:      "Total number of poll votes processed, by result.",
		}, []string{"result"}),
		ProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "votes_processing_duration_seconds",
			Help:      "Duration of vote processing in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}),
		OptionsRepaired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_options_repaired_total",
			Help:      "Total number of stored poll option documents rewritten into canonical form, by trigger.",
		}, []string{"trigger"}),
	}

	reg.MustRegister(m.VotesProcessed, m.ProcessingDuration, m.OptionsRepaired)
	return m
}
