package app

import (
	"go.uber.org/fx"

	"github.com/millflow/millflow/internal/audit"
	"github.com/millflow/millflow/internal/cache"
	"github.com/millflow/millflow/internal/config"
	"github.com/millflow/millflow/internal/database"
	"github.com/millflow/millflow/internal/logger"
	"github.com/millflow/millflow/internal/messaging"
	"github.com/millflow/millflow/internal/observability"
	repositorydispatch "github.com/millflow/millflow/internal/repository/dispatch"
	repositorylab "github.com/millflow/millflow/internal/repository/lab"
	repositorymillinput "github.com/millflow/millflow/internal/repository/millinput"
	repositorymilloutput "github.com/millflow/millflow/internal/repository/milloutput"
	repositoryorder "github.com/millflow/millflow/internal/repository/order"
	repositoryregistry "github.com/millflow/millflow/internal/repository/registry"
	httpserver "github.com/millflow/millflow/internal/server/http"
	servicedispatch "github.com/millflow/millflow/internal/service/dispatch"
	servicelab "github.com/millflow/millflow/internal/service/lab"
	servicemillinput "github.com/millflow/millflow/internal/service/millinput"
	servicemilloutput "github.com/millflow/millflow/internal/service/milloutput"
	serviceorder "github.com/millflow/millflow/internal/service/order"
	serviceregistry "github.com/millflow/millflow/internal/service/registry"
	transporthttp "github.com/millflow/millflow/internal/transport/http"
	"github.com/millflow/millflow/internal/worker"
	workerpipeline "github.com/millflow/millflow/internal/worker/pipeline"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	config.Module,
	cache.Module,
	database.Module,
	logger.Module,
	messaging.Module,
	observability.Module,
	audit.Module,
	repositoryorder.Module,
	repositorymillinput.Module,
	repositorymilloutput.Module,
	repositorydispatch.Module,
	repositorylab.Module,
	repositoryregistry.Module,
	serviceorder.Module,
	servicemillinput.Module,
	servicemilloutput.Module,
	servicedispatch.Module,
	servicelab.Module,
	serviceregistry.Module,
)

// HTTP wires the HTTP transport on top of the core modules.
var HTTP = fx.Options(
	Core,
	httpserver.Module,
	transporthttp.Module,
)

// Worker exposes background worker processing.
var Worker = fx.Options(
	Core,
	worker.Module,
	workerpipeline.Module,
)

// Module is the default application wiring (HTTP only).
var Module = HTTP
