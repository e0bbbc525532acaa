package registry

import "go.uber.org/fx"

// Module provides the registry service to Fx.
var Module = fx.Provide(NewService)
