package milloutput

import "go.uber.org/fx"

// Module provides the mill output service to Fx.
var Module = fx.Provide(NewService)
