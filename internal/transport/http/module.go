package http

import (
	"go.uber.org/fx"

	commissiontransport "github.com/macina-app/macina/internal/transport/http/commission"
	compositiontransport "github.com/macina-app/macina/internal/transport/http/composition"
	loadtransport "github.com/macina-app/macina/internal/transport/http/load"
	ordertransport "github.com/macina-app/macina/internal/transport/http/order"
	referencetransport "github.com/macina-app/macina/internal/transport/http/reference"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	ordertransport.Module,
	loadtransport.Module,
	compositiontransport.Module,
	commissiontransport.Module,
	referencetransport.Module,
)
