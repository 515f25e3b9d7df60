package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/cariledger/pkg/apperror"
	"gorm.io/gorm"
)

const (
	JobReasonDeadlineExceeded     = "deadline_exceeded"
	JobReasonDBLockTimeout        = "db_lock_timeout"
	JobReasonSerializationFailure = "serialization_failure"
	JobReasonUniqueViolation      = "unique_violation"
	JobReasonConflict             = "conflict"
	JobReasonStorage              = "storage"
	JobReasonUnknown              = "unknown"
)

// ReconcileMetrics captures health signals of the scheduled drift check.
// It is exported through the Prometheus registry served on /metrics.
type ReconcileMetrics struct {
	jobRuns         *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	jobErrors       *prometheus.CounterVec
	jobSkipped      *prometheus.CounterVec
	accountsChecked prometheus.Counter
	accountsDrifted prometheus.Counter
	checkFailed     prometheus.Counter
	accountsRepair  *prometheus.CounterVec
}

var (
	reconcileMetricsOnce sync.Once
	reconcileMetrics     *ReconcileMetrics
)

// Reconcile returns the process-wide reconcile metrics registered on the default registerer.
func Reconcile(cfg Config) *ReconcileMetrics {
	reconcileMetricsOnce.Do(func() {
		reconcileMetrics = NewReconcileMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return reconcileMetrics
}

func NewReconcileMetrics(registerer prometheus.Registerer, cfg Config) *ReconcileMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "cariledger"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &ReconcileMetrics{
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "cari_reconcile_job_runs_total",
			Help:        "Reconcile job runs by name.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "cari_reconcile_job_duration_seconds",
			Help:        "Reconcile job latency.",
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800},
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "cari_reconcile_job_errors_total",
			Help:        "Reconcile failures by low-cardinality reason.",
			ConstLabels: constLabels,
		}, []string{"job", "reason"}),
		jobSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "cari_reconcile_job_skipped_total",
			Help:        "Reconcile runs skipped because the previous run was still active.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		accountsChecked: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "cari_reconcile_accounts_checked_total",
			Help:        "Accounts whose cached balances were compared against the ledger.",
			ConstLabels: constLabels,
		}),
		accountsDrifted: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "cari_reconcile_accounts_drifted_total",
			Help:        "Accounts whose cached balances disagreed with the ledger.",
			ConstLabels: constLabels,
		}),
		checkFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "cari_reconcile_accounts_check_failed_total",
			Help:        "Accounts whose ledger could not be replayed during the drift check.",
			ConstLabels: constLabels,
		}),
		accountsRepair: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "cari_reconcile_accounts_repaired_total",
			Help:        "Accounts recalculated by auto repair, by result.",
			ConstLabels: constLabels,
		}, []string{"result"}),
	}

	registerer.MustRegister(
		m.jobRuns,
		m.jobDuration,
		m.jobErrors,
		m.jobSkipped,
		m.accountsChecked,
		m.accountsDrifted,
		m.checkFailed,
		m.accountsRepair,
	)
	return m
}

func (m *ReconcileMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *ReconcileMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

func (m *ReconcileMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifyJobReason(err)).Inc()
}

func (m *ReconcileMetrics) IncJobSkipped(job string) {
	if m == nil {
		return
	}
	m.jobSkipped.WithLabelValues(job).Inc()
}

func (m *ReconcileMetrics) AddAccountsChecked(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.accountsChecked.Add(float64(count))
}

func (m *ReconcileMetrics) AddAccountsDrifted(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.accountsDrifted.Add(float64(count))
}

func (m *ReconcileMetrics) AddAccountsCheckFailed(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.checkFailed.Add(float64(count))
}

func (m *ReconcileMetrics) AddAccountsRepaired(succeeded, failed int) {
	if m == nil {
		return
	}
	if succeeded > 0 {
		m.accountsRepair.WithLabelValues("ok").Add(float64(succeeded))
	}
	if failed > 0 {
		m.accountsRepair.WithLabelValues("failed").Add(float64(failed))
	}
}

// ClassifyJobReason maps job errors to low-cardinality reasons.
func ClassifyJobReason(err error) string {
	if err == nil {
		return JobReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return JobReasonDeadlineExceeded
	}
	if hasPGCode(err, "55P03") {
		return JobReasonDBLockTimeout
	}
	if hasPGCode(err, "40001") {
		return JobReasonSerializationFailure
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505") {
		return JobReasonUniqueViolation
	}
	switch apperror.KindOf(err) {
	case apperror.KindConflict:
		return JobReasonConflict
	case apperror.KindStorage:
		return JobReasonStorage
	}
	return JobReasonUnknown
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
