package dispatch

import "go.uber.org/fx"

// Module provides the dispatch repository to Fx.
var Module = fx.Provide(NewRepository)
