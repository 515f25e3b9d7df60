package organization

import (
	"github.com/smallbiznis/cariledger/internal/organization/repository"
	"github.com/smallbiznis/cariledger/internal/organization/service"
	"go.uber.org/fx"
)

// Module provisions tenants. It depends on cari.Module for the munferit account.
var Module = fx.Module("organization.service",
	fx.Provide(
		repository.NewRepository,
		service.NewService,
	),
)
