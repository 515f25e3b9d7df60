package ledger

import (
	"github.com/smallbiznis/cariledger/internal/ledger/lock"
	"github.com/smallbiznis/cariledger/internal/ledger/repository"
	"github.com/smallbiznis/cariledger/internal/ledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	lock.Module,
	fx.Provide(repository.Provide),
	fx.Provide(repository.ProvideTransactionCounter),
	fx.Provide(service.NewService),
)
