package http

import (
	"go.uber.org/fx"

	audittransport "github.com/millflow/millflow/internal/transport/http/audit"
	dispatchtransport "github.com/millflow/millflow/internal/transport/http/dispatch"
	labtransport "github.com/millflow/millflow/internal/transport/http/lab"
	millinputtransport "github.com/millflow/millflow/internal/transport/http/millinput"
	milloutputtransport "github.com/millflow/millflow/internal/transport/http/milloutput"
	ordertransport "github.com/millflow/millflow/internal/transport/http/order"
	registrytransport "github.com/millflow/millflow/internal/transport/http/registry"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	ordertransport.Module,
	millinputtransport.Module,
	milloutputtransport.Module,
	dispatchtransport.Module,
	labtransport.Module,
	registrytransport.Module,
	audittransport.Module,
)
