package app

import (
	"go.uber.org/fx"

	"github.com/macina-app/macina/internal/cache"
	"github.com/macina-app/macina/internal/config"
	"github.com/macina-app/macina/internal/database"
	"github.com/macina-app/macina/internal/logger"
	"github.com/macina-app/macina/internal/mailer"
	"github.com/macina-app/macina/internal/messaging"
	"github.com/macina-app/macina/internal/observability"
	repositoryload "github.com/macina-app/macina/internal/repository/load"
	repositoryorder "github.com/macina-app/macina/internal/repository/order"
	repositoryreference "github.com/macina-app/macina/internal/repository/reference"
	httpserver "github.com/macina-app/macina/internal/server/http"
	servicecommission "github.com/macina-app/macina/internal/service/commission"
	servicecomposer "github.com/macina-app/macina/internal/service/composer"
	serviceload "github.com/macina-app/macina/internal/service/load"
	serviceorder "github.com/macina-app/macina/internal/service/order"
	servicereference "github.com/macina-app/macina/internal/service/reference"
	transporthttp "github.com/macina-app/macina/internal/transport/http"
	"github.com/macina-app/macina/internal/worker"
	workerload "github.com/macina-app/macina/internal/worker/load"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	config.Module,
	cache.Module,
	database.Module,
	logger.Module,
	mailer.Module,
	messaging.Module,
	observability.Module,
	repositoryorder.Module,
	repositoryload.Module,
	repositoryreference.Module,
	serviceorder.Module,
	serviceload.Module,
	servicecomposer.Module,
	servicecommission.Module,
	servicereference.Module,
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
	workerload.Module,
)

// Module is the default application wiring (HTTP only).
var Module = HTTP
