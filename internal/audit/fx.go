package audit

import (
	"github.com/smallbiznis/cariledger/internal/audit/repository"
	"github.com/smallbiznis/cariledger/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
