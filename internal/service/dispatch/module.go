package dispatch

import "go.uber.org/fx"

// Module provides the dispatch service to Fx.
var Module = fx.Provide(NewService)
