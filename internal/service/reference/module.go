package reference

import "go.uber.org/fx"

// Module provides the reference service to Fx.
var Module = fx.Provide(NewService)
