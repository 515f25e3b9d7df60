package cari

import (
	"github.com/smallbiznis/cariledger/internal/cari/repository"
	"github.com/smallbiznis/cariledger/internal/cari/service"
	"go.uber.org/fx"
)

var Module = fx.Module("cari.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
