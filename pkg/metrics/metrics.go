package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// AggregationMetrics records sale aggregation activity.
type AggregationMetrics struct {
	recordDuration      *prometheus.HistogramVec
	salesRecorded       prometheus.Counter
	duplicateEvents     prometheus.Counter
	contention          prometheus.Counter
	invariantViolations prometheus.Counter
	tierPromotions      *prometheus.CounterVec
}

// NewAggregationMetrics registers the aggregation metrics on the provided registerer.
func NewAggregationMetrics(reg prometheus.Registerer) *AggregationMetrics {
	if reg == nil {
		return &AggregationMetrics{}
	}
	recordDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aggregation_record_sale_duration_seconds",
		Help:    "Duration of RecordSale calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	salesRecorded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aggregation_sales_recorded_total",
		Help: "Sale events applied to the tree.",
	})
	duplicateEvents := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aggregation_duplicate_events_total",
		Help: "Sale events rejected as duplicates of an applied idempotency key.",
	})
	contention := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aggregation_contention_total",
		Help: "Operations that failed to acquire the ancestor chain in time.",
	})
	invariantViolations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aggregation_invariant_violations_total",
		Help: "Updates rejected because they would break a team aggregate invariant.",
	})
	tierPromotions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aggregation_tier_promotions_total",
		Help: "Tier promotions by resulting tier.",
	}, []string{"tier"})
	reg.MustRegister(recordDuration, salesRecorded, duplicateEvents, contention, invariantViolations, tierPromotions)
	return &AggregationMetrics{
		recordDuration:      recordDuration,
		salesRecorded:       salesRecorded,
		duplicateEvents:     duplicateEvents,
		contention:          contention,
		invariantViolations: invariantViolations,
		tierPromotions:      tierPromotions,
	}
}

// ObserveRecordSale records the duration and outcome of a RecordSale call.
func (m *AggregationMetrics) ObserveRecordSale(outcome string, duration time.Duration) {
	if m == nil || m.recordDuration == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.recordDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// IncSaleRecorded counts an applied sale event.
func (m *AggregationMetrics) IncSaleRecorded() {
	if m == nil || m.salesRecorded == nil {
		return
	}
	m.salesRecorded.Inc()
}

// IncDuplicateEvent counts a rejected duplicate sale event.
func (m *AggregationMetrics) IncDuplicateEvent() {
	if m == nil || m.duplicateEvents == nil {
		return
	}
	m.duplicateEvents.Inc()
}

// IncContention counts a bounded-wait lock failure.
func (m *AggregationMetrics) IncContention() {
	if m == nil || m.contention == nil {
		return
	}
	m.contention.Inc()
}

// IncInvariantViolation counts a rejected aggregate update.
func (m *AggregationMetrics) IncInvariantViolation() {
	if m == nil || m.invariantViolations == nil {
		return
	}
	m.invariantViolations.Inc()
}

// IncTierPromotion counts a promotion into the named tier.
func (m *AggregationMetrics) IncTierPromotion(tier string) {
	if m == nil || m.tierPromotions == nil {
		return
	}
	if tier == "" {
		tier = "unknown"
	}
	m.tierPromotions.WithLabelValues(tier).Inc()
}

// LedgerMetrics records points ledger activity.
type LedgerMetrics struct {
	postings            *prometheus.CounterVec
	transfers           prometheus.Counter
	insufficientBalance prometheus.Counter
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	postings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_postings_total",
		Help: "Ledger entries appended, by reason.",
	}, []string{"reason"})
	transfers := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_transfers_total",
		Help: "Completed point transfers.",
	})
	insufficientBalance := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_insufficient_balance_total",
		Help: "Postings rejected for insufficient balance.",
	})
	reg.MustRegister(postings, transfers, insufficientBalance)
	return &LedgerMetrics{
		postings:            postings,
		transfers:           transfers,
		insufficientBalance: insufficientBalance,
	}
}

// IncPosting counts an appended entry for the given reason.
func (m *LedgerMetrics) IncPosting(reason string) {
	if m == nil || m.postings == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.postings.WithLabelValues(reason).Inc()
}

// IncTransfer counts a completed transfer.
func (m *LedgerMetrics) IncTransfer() {
	if m == nil || m.transfers == nil {
		return
	}
	m.transfers.Inc()
}

// IncInsufficientBalance counts a rejected posting.
func (m *LedgerMetrics) IncInsufficientBalance() {
	if m == nil || m.insufficientBalance == nil {
		return
	}
	m.insufficientBalance.Inc()
}
