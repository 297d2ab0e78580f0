package decision

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// ConfidentRejection is the confidence above which a rejection is reported as confident.
const ConfidentRejection = 0.8

// Log is the append-only decision history of one traversal. Safe for concurrent use.
type Log struct {
	mu        sync.Mutex
	records   []Record
	recovered int
}

// NewLog creates an empty log.
func NewLog() *Log { return &Log{} }

// Append adds a record.
func (l *Log) Append(r Record) {
	l.mu.Lock()
	l.records = append(l.records, r)
	l.mu.Unlock()
}

// AddRecovered increments the recovered false-negative counter.
func (l *Log) AddRecovered(n int) {
	l.mu.Lock()
	l.recovered += n
	l.mu.Unlock()
}

// Records returns a copy of the records in append order.
func (l *Log) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// Len returns the number of records.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Recovered returns the recovered false-negative count.
func (l *Log) Recovered() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.recovered
}

// Rejections splits rejected records into confident and uncertain groups.
func (l *Log) Rejections() (confident, uncertain []Record) {
	for _, r := range l.Records() {
		if r.IsRelevant {
			continue
		}
		if r.Confidence > ConfidentRejection {
			confident = append(confident, r)
		} else {
			uncertain = append(uncertain, r)
		}
	}
	return confident, uncertain
}

// Report renders a plain-text filtering report with at most limit lines per group.
// limit <= 0 means no limit.
func (l *Log) Report(limit int) string {
	confident, uncertain := l.Rejections()

	var b strings.Builder
	b.WriteString("=== Filtering Decision Report ===\n")
	fmt.Fprintf(&b, "Total decisions: %d\n\n", l.Len())

	fmt.Fprintf(&b, "Confident rejections (confidence > %.1f): %d\n", ConfidentRejection, len(confident))
	writeRecords(&b, confident, limit)

	fmt.Fprintf(&b, "\nUncertain rejections (confidence <= %.1f): %d\n", ConfidentRejection, len(uncertain))
	writeRecords(&b, uncertain, limit)

	fmt.Fprintf(&b, "\nFalse negatives recovered: %d\n", l.Recovered())
	return b.String()
}

func writeRecords(b *strings.Builder, records []Record, limit int) {
	for i, r := range records {
		if limit > 0 && i >= limit {
			fmt.Fprintf(b, "  ... and %d more\n", len(records)-limit)
			return
		}
		fmt.Fprintf(b, "  - %s: %.2f combined (confidence %.2f)\n", r.Title, r.CombinedScore, r.Confidence)
	}
}

type logKey struct{}

// ContextWithLog attaches a decision log to the context.
func ContextWithLog(ctx context.Context, l *Log) context.Context {
	return context.WithValue(ctx, logKey{}, l)
}

// LogFromContext returns the attached decision log, or nil.
func LogFromContext(ctx context.Context) *Log {
	l, _ := ctx.Value(logKey{}).(*Log)
	return l
}
