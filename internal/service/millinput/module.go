package millinput

import "go.uber.org/fx"

// Module provides the mill input service to Fx.
var Module = fx.Provide(NewService)
