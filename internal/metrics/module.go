package metrics

import "go.uber.org/fx"

// Module provides the service collectors.
var Module = fx.Provide(New)
