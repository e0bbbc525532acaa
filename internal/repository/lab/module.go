package lab

import "go.uber.org/fx"

// Module provides the lab repository to Fx.
var Module = fx.Provide(NewRepository)
