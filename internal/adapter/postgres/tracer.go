package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/WamalwaSydney/civicpulse/internal/adapter/metrics"
)

// MetricsTracer records query latency and failures by statement kind.
type MetricsTracer struct {
	metrics *metrics.DBMetrics
}

var _ pgx.QueryTracer = (*MetricsTracer)(nil)

func NewMetricsTracer(m *metrics.DBMetrics) *MetricsTracer {
	return &MetricsTracer{metrics: m}
}

type queryStartKey struct{}

type queryStart struct {
	at        time.Time
	statement string
}

func (t *MetricsTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryStartKey{}, queryStart{at: time.Now(), statement: statementKind(data.SQL)})
}

func (t *MetricsTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(queryStartKey{}).(queryStart)
	if !ok {
		return
	}

	t.metrics.QueryDuration.WithLabelValues(start.statement).Observe(time.Since(start.at).Seconds())
	if data.Err != nil {
		t.metrics.ErrorsTotal.WithLabelValues(start.statement).Inc()
	}
}

// statementKind keeps label cardinality bounded: the leading SQL keyword,
// lowercased, or "other".
func statementKind(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "other"
	}
	switch kw := strings.ToLower(fields[0]); kw {
	case "select", "insert", "update", "delete", "with", "begin", "commit", "rollback":
		return kw
	default:
		return "other"
	}
}
