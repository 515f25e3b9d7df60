// Package lock serializes balance mutations per cari account.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	obsmetrics "github.com/smallbiznis/cariledger/internal/observability/metrics"
	"github.com/smallbiznis/cariledger/pkg/apperror"
)

// ErrLockTimeout is returned when an account stays locked longer than the
// configured wait.
var ErrLockTimeout = apperror.Conflict("account_busy", "account is busy, retry the request")

// Locker hands out exclusive leases on string keys.
type Locker interface {
	Acquire(ctx context.Context, key string) (Lease, error)
}

// Lease is held until Release is called.
type Lease interface {
	Release(ctx context.Context) error
}

// AccountKey is the lock key shared by every process touching one account.
func AccountKey(orgID, accountID snowflake.ID) string {
	return fmt.Sprintf("cari:account:%d:%d", orgID, accountID)
}

// WithAccount runs fn while holding the account lease.
func WithAccount(ctx context.Context, locker Locker, orgID, accountID snowflake.ID, fn func(ctx context.Context) error) (err error) {
	lease, err := locker.Acquire(ctx, AccountKey(orgID, accountID))
	if err != nil {
		return err
	}
	defer func() {
		releaseErr := lease.Release(context.WithoutCancel(ctx))
		if err == nil && releaseErr != nil {
			err = fmt.Errorf("release account lock: %w", releaseErr)
		}
	}()
	return fn(ctx)
}

// Chain acquires every locker in order and releases in reverse.
type Chain []Locker

func (c Chain) Acquire(ctx context.Context, key string) (Lease, error) {
	leases := make(chainLease, 0, len(c))
	for _, locker := range c {
		lease, err := locker.Acquire(ctx, key)
		if err != nil {
			_ = leases.Release(context.WithoutCancel(ctx))
			return nil, err
		}
		leases = append(leases, lease)
	}
	return leases, nil
}

type chainLease []Lease

func (c chainLease) Release(ctx context.Context) error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i].Release(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Bounded limits how long Acquire waits on the inner locker.
type Bounded struct {
	Inner Locker
	Wait  time.Duration
}

func (b Bounded) Acquire(ctx context.Context, key string) (Lease, error) {
	if b.Wait <= 0 {
		return b.Inner.Acquire(ctx, key)
	}
	waitCtx, cancel := context.WithTimeout(ctx, b.Wait)
	defer cancel()

	lease, err := b.Inner.Acquire(waitCtx, key)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrLockTimeout) {
			return nil, ErrLockTimeout
		}
		return nil, err
	}
	return lease, nil
}

// Instrumented records how long callers wait for a lease.
type Instrumented struct {
	Inner   Locker
	Metrics *obsmetrics.Metrics
	Backend string
}

func (i Instrumented) Acquire(ctx context.Context, key string) (Lease, error) {
	start := time.Now()
	lease, err := i.Inner.Acquire(ctx, key)
	i.Metrics.ObserveLockWait(ctx, i.Backend, time.Since(start))
	return lease, err
}
