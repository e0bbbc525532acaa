package lab

import "go.uber.org/fx"

// Module provides the lab service to Fx.
var Module = fx.Provide(NewService)
