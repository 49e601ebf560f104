package metrics

import "github.com/prometheus/client_golang/prometheus"

// FeedbackMetrics holds Prometheus metrics for feedback classification and
// trending detection.
type FeedbackMetrics struct {
	Classified     *prometheus.CounterVec
	TagsAssigned   *prometheus.CounterVec
	Score          prometheus.Histogram
	AlertsCreated  *prometheus.CounterVec
	TrendingErrors prometheus.Counter
}

func NewFeedbackMetrics(reg prometheus.Registerer) *FeedbackMetrics {
	m := &FeedbackMetrics{
		Classified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feedback",
			Name:      "classified_total",
			Help:      "Total number of stored feedback items, by sentiment label.",
		}, []string{"label"}),
		TagsAssigned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feedback",
			Name:      "tags_assigned_total",
			Help:      "Total number of category tags assigned to stored feedback, by tag.",
		}, []string{"tag"}),
		Score: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "feedback",
			Name:      "sentiment_score",
			Help:      "Distribution of sentiment scores of stored feedback.",
			Buckets:   prometheus.LinearBuckets(-1, 0.2, 11),
		}),
		AlertsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "created_total",
			Help:      "Total number of trending-topic alerts created, by topic.",
		}, []string{"topic"}),
		TrendingErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "trending_errors_total",
			Help:      "Total number of failed trending detection runs.",
		}),
	}

	reg.MustRegister(m.Classified, m.TagsAssigned, m.Score, m.AlertsCreated, m.TrendingErrors)
	return m
}
