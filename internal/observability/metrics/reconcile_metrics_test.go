package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smallbiznis/cariledger/pkg/apperror"
	"gorm.io/gorm"
)

func TestClassifyJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: JobReasonDeadlineExceeded},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: JobReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: JobReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: JobReasonUniqueViolation},
		{name: "conflict", err: fmt.Errorf("post: %w", apperror.Conflict("version_conflict", "retry")), want: JobReasonConflict},
		{name: "storage", err: apperror.Storage(errors.New("disk")), want: JobReasonStorage},
		{name: "unknown", err: errors.New("boom"), want: JobReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestReconcileCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewReconcileMetrics(registry, Config{ServiceName: "cariledger", Environment: "test"})

	m.AddAccountsChecked(3)
	m.AddAccountsDrifted(1)
	m.AddAccountsRepaired(1, 0)
	m.AddAccountsCheckFailed(2)

	if got := testutil.ToFloat64(m.accountsChecked); got != 3 {
		t.Fatalf("expected checked 3, got %v", got)
	}
	if got := testutil.ToFloat64(m.checkFailed); got != 2 {
		t.Fatalf("expected check failed 2, got %v", got)
	}
	if got := testutil.ToFloat64(m.accountsRepair.WithLabelValues("ok")); got != 1 {
		t.Fatalf("expected repaired 1, got %v", got)
	}
}
