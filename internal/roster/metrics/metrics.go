package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the roster module.
// Tracks member lifecycle counts, ledger repair activity, and the durations
// of the heavier operations.
type Metrics struct {
	MembersCreated     prometheus.Counter
	MembersDeleted     prometheus.Counter
	Renewals           prometheus.Counter
	IdentifierChanges  prometheus.Counter
	CorrectiveOps      *prometheus.CounterVec
	AuditEntriesAdded  prometheus.Counter
	AuditUnfixable     prometheus.Counter
	RenewDuration      prometheus.Histogram
	AuditDuration      prometheus.Histogram
	BulkImportDuration prometheus.Histogram
}

// New creates a new Metrics instance with all roster module metrics registered.
func New() *Metrics {
	return &Metrics{
		MembersCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "memberbase_members_created_total",
			Help: "Total number of members created",
		}),
		MembersDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "memberbase_members_deleted_total",
			Help: "Total number of members deleted",
		}),
		Renewals: promauto.NewCounter(prometheus.CounterOpts{
			Name: "memberbase_renewals_total",
			Help: "Total number of subscription renewals",
		}),
		IdentifierChanges: promauto.NewCounter(prometheus.CounterOpts{
			Name: "memberbase_identifier_changes_total",
			Help: "Total number of identifier changes on the renewal path",
		}),
		CorrectiveOps: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "memberbase_corrective_operations_total",
			Help: "Total number of corrective ledger operations by kind",
		}, []string{"operation"}),
		AuditEntriesAdded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "memberbase_audit_entries_backfilled_total",
			Help: "Total number of history entries backfilled by the auditor",
		}),
		AuditUnfixable: promauto.NewCounter(prometheus.CounterOpts{
			Name: "memberbase_audit_unfixable_members_total",
			Help: "Total number of members the auditor could not repair",
		}),
		RenewDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "memberbase_renew_duration_seconds",
			Help:    "Duration of renewal transactions",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		AuditDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "memberbase_audit_duration_seconds",
			Help:    "Duration of full-roster consistency audits",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}),
		BulkImportDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "memberbase_bulk_import_duration_seconds",
			Help:    "Duration of bulk member imports",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}),
	}
}

// IncrementMemberCreated records a successful member creation.
func (m *Metrics) IncrementMemberCreated() {
	m.MembersCreated.Inc()
}

// IncrementMemberDeleted records a member deletion.
func (m *Metrics) IncrementMemberDeleted() {
	m.MembersDeleted.Inc()
}

// IncrementRenewal records a completed renewal; withChange marks renewals
// that also rotated the identifier.
func (m *Metrics) IncrementRenewal(withChange bool) {
	m.Renewals.Inc()
	if withChange {
		m.IdentifierChanges.Inc()
	}
}

// IncrementCorrectiveOp records one corrective ledger operation.
func (m *Metrics) IncrementCorrectiveOp(operation string) {
	m.CorrectiveOps.WithLabelValues(operation).Inc()
}

// RecordAudit records the outcome counts of one audit pass.
func (m *Metrics) RecordAudit(backfilled, unfixable int) {
	m.AuditEntriesAdded.Add(float64(backfilled))
	m.AuditUnfixable.Add(float64(unfixable))
}

// ObserveRenew records the duration of a renewal.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveRenew(start time.Time) {
	m.RenewDuration.Observe(time.Since(start).Seconds())
}

// ObserveAudit records the duration of a full audit pass.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveAudit(start time.Time) {
	m.AuditDuration.Observe(time.Since(start).Seconds())
}

// ObserveBulkImport records the duration of a bulk import.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveBulkImport(start time.Time) {
	m.BulkImportDuration.Observe(time.Since(start).Seconds())
}
