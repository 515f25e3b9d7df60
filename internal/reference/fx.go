package reference

import "go.uber.org/fx"

// Module provides the currency reference data used by the ledger.
var Module = fx.Module("reference.currencies",
	fx.Provide(NewRepository),
)
