package metrics

import "github.com/prometheus/client_golang/prometheus"

// Vote results used as the "result" label.
const (
	VoteAccepted              = "accepted"
	VoteRejectedNotFound      = "rejected_not_found"
	VoteRejectedInvalidOption = "rejected_invalid_option"
)

// Join results used as the "result" label.
const (
	JoinAccepted         = "joined"
	JoinRejectedNotFound = "rejected_not_found"
	JoinRejectedFull     = "rejected_full"
)

// VoteMetrics holds Prometheus metrics for poll creation and vote ingestion.
type VoteMetrics struct {
	VotesProcessed     *prometheus.CounterVec
	ProcessingDuration prometheus.Histogram
	PollsCreated       prometheus.Counter
	JoinsTotal         *prometheus.CounterVec
}

// NewVoteMetrics creates and registers vote pipeline metrics on the given registry.
func NewVoteMetrics(reg prometheus.Registerer) *VoteMetrics {
	m := &VoteMetrics{
		VotesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_processed_total",
			Help:      "Total number of votes processed, by result.",
		}, []string{"result"}),
		ProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "votes_processing_duration_seconds",
			Help:      "Duration of vote ingestion including fan-out enqueue, in seconds.",
			Buckets:   []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		PollsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_created_total",
			Help:      "Total number of polls created.",
		}),
		JoinsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_joins_total",
			Help:      "Total number of join attempts, by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(m.VotesProcessed, m.ProcessingDuration, m.PollsCreated, m.JoinsTotal)
	return m
}
