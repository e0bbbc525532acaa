package millinput

import "go.uber.org/fx"

// Module provides the mill input repository to Fx.
var Module = fx.Provide(NewRepository)
