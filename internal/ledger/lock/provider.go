package lock

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/cariledger/internal/config"
	obsmetrics "github.com/smallbiznis/cariledger/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Log       *zap.Logger
	Metrics   *obsmetrics.Metrics `optional:"true"`
}

// NewLocker builds the account locker: always the in-process mutex, plus a
// Redis lease when REDIS_ADDRESS is configured.
func NewLocker(p Params) Locker {
	log := p.Log.Named("ledger.lock")
	ledgerCfg := p.Config.Ledger

	var locker Locker = Instrumented{Inner: NewLocalLocker(), Metrics: p.Metrics, Backend: "local"}

	if p.Config.RedisAddress != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     p.Config.RedisAddress,
			Password: p.Config.RedisPassword,
			DB:       p.Config.RedisDB,
		})
		p.Lifecycle.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := client.Ping(ctx).Err(); err != nil {
					log.Warn("redis unreachable, account locks will wait for it", zap.Error(err))
				}
				return nil
			},
			OnStop: func(context.Context) error {
				return client.Close()
			},
		})
		locker = Chain{
			locker,
			Instrumented{Inner: NewRedisLocker(client, ledgerCfg.LockTTL), Metrics: p.Metrics, Backend: "redis"},
		}
		log.Info("distributed account lock enabled", zap.String("redis", p.Config.RedisAddress))
	}

	return Bounded{Inner: locker, Wait: ledgerCfg.LockWaitTimeout}
}

var Module = fx.Module("ledger.lock",
	fx.Provide(NewLocker),
)
