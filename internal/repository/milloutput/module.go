package milloutput

import "go.uber.org/fx"

// Module provides the mill output repository to Fx.
var Module = fx.Provide(NewRepository)
