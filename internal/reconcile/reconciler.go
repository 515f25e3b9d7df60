// Package reconcile periodically compares cached balances with a replay of
// the ledger and optionally repairs drifted tenants.
package reconcile

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/cariledger/internal/clock"
	"github.com/smallbiznis/cariledger/internal/config"
	ledgerdomain "github.com/smallbiznis/cariledger/internal/ledger/domain"
	obscontext "github.com/smallbiznis/cariledger/internal/observability/context"
	obsmetrics "github.com/smallbiznis/cariledger/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/cariledger/internal/organization/domain"
	"github.com/smallbiznis/cariledger/internal/orgcontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	jobName    = "balance_drift"
	jobTimeout = 30 * time.Minute
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Orgs    orgdomain.Service
	Ledger  ledgerdomain.Service
	Config  *config.ReconcileConfigHolder
	Metrics *obsmetrics.ReconcileMetrics `optional:"true"`
	Clock   clock.Clock                  `optional:"true"`
}

// Summary describes one reconciliation run.
type Summary struct {
	Skipped         bool
	Organizations   int
	AccountsChecked int
	AccountsDrifted int
	CheckFailed     int
	Repaired        int
	RepairFailed    int
	Failures        int
}

type Reconciler struct {
	log     *zap.Logger
	orgs    orgdomain.Service
	ledger  ledgerdomain.Service
	holder  *config.ReconcileConfigHolder
	metrics *obsmetrics.ReconcileMetrics
	clock   clock.Clock

	running atomic.Bool

	mu      sync.Mutex
	cron    *cron.Cron
	entry   cron.EntryID
	baseCtx context.Context
}

func New(p Params) *Reconciler {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Reconciler{
		log:     p.Log.Named("reconcile").With(zap.String("component", "reconcile")),
		orgs:    p.Orgs,
		ledger:  p.Ledger,
		holder:  p.Config,
		metrics: p.Metrics,
		clock:   c,
		cron:    cron.New(),
		baseCtx: context.Background(),
	}
}

// Start schedules the job from the current config and follows reloads.
func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	r.baseCtx = ctx
	r.mu.Unlock()

	r.apply(r.holder.Get())
	r.holder.OnChange(r.apply)
	r.cron.Start()
}

// Stop waits for a running job to finish or ctx to expire.
func (r *Reconciler) Stop(ctx context.Context) {
	done := r.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func (r *Reconciler) apply(cfg config.ReconcileConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entry != 0 {
		r.cron.Remove(r.entry)
		r.entry = 0
	}
	if !cfg.Enabled {
		r.log.Info("drift check disabled")
		return
	}

	entry, err := r.cron.AddFunc(cfg.Schedule, func() {
		r.mu.Lock()
		base := r.baseCtx
		r.mu.Unlock()
		if _, err := r.RunOnce(base); err != nil {
			r.log.Error("drift check failed", zap.Error(err))
		}
	})
	if err != nil {
		r.log.Error("invalid drift check schedule", zap.String("schedule", cfg.Schedule), zap.Error(err))
		return
	}
	r.entry = entry
	r.log.Info("drift check scheduled",
		zap.String("schedule", cfg.Schedule),
		zap.Bool("auto_repair", cfg.AutoRepair),
	)
}

// scheduled reports whether a cron entry is active.
func (r *Reconciler) scheduled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entry != 0
}

// RunOnce checks every tenant. A tenant that fails is logged and counted;
// the run continues with the next one. Overlapping runs are skipped.
func (r *Reconciler) RunOnce(parent context.Context) (Summary, error) {
	if !r.running.CompareAndSwap(false, true) {
		r.metrics.IncJobSkipped(jobName)
		r.log.Warn("drift check still running, skipping")
		return Summary{Skipped: true}, nil
	}
	defer r.running.Store(false)

	start := r.clock.Now()
	ctx, cancel := context.WithTimeout(parent, jobTimeout)
	defer cancel()
	ctx = obscontext.WithActor(ctx, obscontext.ActorTypeSystem, "reconcile")

	r.metrics.IncJobRun(jobName)
	defer func() { r.metrics.ObserveJobDuration(jobName, r.clock.Now().Sub(start)) }()

	orgs, err := r.orgs.List(ctx)
	if err != nil {
		r.metrics.IncJobError(jobName, err)
		return Summary{}, err
	}

	cfg := r.holder.Get()
	summary := Summary{Organizations: len(orgs)}
	for _, org := range orgs {
		orgID, perr := snowflake.ParseString(org.ID)
		if perr != nil {
			continue
		}
		r.reconcileOrg(orgcontext.WithOrgID(ctx, orgID), org.ID, cfg.AutoRepair, &summary)
	}

	r.log.Info("drift check finished",
		zap.Int("organizations", summary.Organizations),
		zap.Int("accounts_checked", summary.AccountsChecked),
		zap.Int("accounts_drifted", summary.AccountsDrifted),
		zap.Int("check_failed", summary.CheckFailed),
		zap.Int("repaired", summary.Repaired),
		zap.Int("repair_failed", summary.RepairFailed),
		zap.Int("failures", summary.Failures),
	)
	return summary, nil
}

func (r *Reconciler) reconcileOrg(ctx context.Context, orgID string, autoRepair bool, summary *Summary) {
	log := r.log.With(zap.String("org_id", orgID))

	sweep, err := r.ledger.CheckAllDrift(ctx)
	if err != nil {
		summary.Failures++
		r.metrics.IncJobError(jobName, err)
		log.Error("drift check failed for organization", zap.Error(err))
		return
	}

	for _, failure := range sweep.Failed {
		log.Error("account could not be checked",
			zap.String("account_id", failure.AccountID),
			zap.String("reason", failure.Reason),
		)
	}
	drifted := sweep.Drifted()
	for _, report := range drifted {
		log.Warn("balance drift detected", zap.String("account_id", report.AccountID.String()))
	}
	summary.AccountsChecked += len(sweep.Reports)
	summary.AccountsDrifted += len(drifted)
	summary.CheckFailed += len(sweep.Failed)
	r.metrics.AddAccountsChecked(len(sweep.Reports))
	r.metrics.AddAccountsDrifted(len(drifted))
	r.metrics.AddAccountsCheckFailed(len(sweep.Failed))

	if len(drifted) == 0 || !autoRepair {
		return
	}

	result, err := r.ledger.RecalculateAllBalances(ctx)
	if err != nil {
		summary.Failures++
		r.metrics.IncJobError(jobName, err)
		log.Error("balance repair failed for organization", zap.Error(err))
		return
	}
	summary.Repaired += len(result.Succeeded)
	summary.RepairFailed += len(result.Failed)
	r.metrics.AddAccountsRepaired(len(result.Succeeded), len(result.Failed))
}
