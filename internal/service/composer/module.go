package composer

import "go.uber.org/fx"

// Module provides the composer service to Fx.
var Module = fx.Provide(NewService)
