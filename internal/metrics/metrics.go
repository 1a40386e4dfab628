package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Rejection reasons used as the "reason" label of VotesRejected.
const (
	ReasonNotFound         = "not_found"
	ReasonClosed           = "closed"
	ReasonDuplicate        = "duplicate"
	ReasonInvalidSelection = "invalid_selection"
	ReasonError            = "error"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	PollsCreated  prometheus.Counter
	VotesAccepted prometheus.Counter
	VotesRejected *prometheus.CounterVec
	VoteRetries   prometheus.Counter
	CommentsAdded prometheus.Counter
	ResultsServed *prometheus.CounterVec
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PollsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "ballot_polls_created_total",
			Help: "Total number of polls created",
		}),
		VotesAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "ballot_votes_accepted_total",
			Help: "Total number of votes applied to a tally",
		}),
		VotesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ballot_votes_rejected_total",
			Help: "Total number of rejected votes by reason",
		}, []string{"reason"}),
		VoteRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "ballot_vote_retries_total",
			Help: "Vote applications retried after a storage conflict",
		}),
		CommentsAdded: factory.NewCounter(prometheus.CounterOpts{
			Name: "ballot_comments_added_total",
			Help: "Total number of comments posted",
		}),
		ResultsServed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ballot_results_served_total",
			Help: "Result views served by audience and source",
		}, []string{"audience", "source"}),
	}
}

func (m *Metrics) IncPollsCreated() {
	if m == nil {
		return
	}
	m.PollsCreated.Inc()
}

func (m *Metrics) IncVotesAccepted() {
	if m == nil {
		return
	}
	m.VotesAccepted.Inc()
}

func (m *Metrics) IncVotesRejected(reason string) {
	if m == nil {
		return
	}
	m.VotesRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncVoteRetries() {
	if m == nil {
		return
	}
	m.VoteRetries.Inc()
}

func (m *Metrics) IncCommentsAdded() {
	if m == nil {
		return
	}
	m.CommentsAdded.Inc()
}

func (m *Metrics) IncResultsServed(audience, source string) {
	if m == nil {
		return
	}
	m.ResultsServed.WithLabelValues(audience, source).Inc()
}
