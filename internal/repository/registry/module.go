package registry

import "go.uber.org/fx"

// Module provides the reference registry repository to Fx.
var Module = fx.Provide(NewRepository)
