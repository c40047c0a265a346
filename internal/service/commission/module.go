package commission

import "go.uber.org/fx"

// Module provides the commission service to Fx.
var Module = fx.Provide(NewService)
