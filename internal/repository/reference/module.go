package reference

import "go.uber.org/fx"

// Module provides the reference repository to Fx.
var Module = fx.Provide(NewRepository)
