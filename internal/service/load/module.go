package load

import "go.uber.org/fx"

// Module provides the load service to Fx.
var Module = fx.Provide(NewService)
