package entitlement

import (
	"github.com/parlohq/parlo/internal/entitlement/repository"
	"github.com/parlohq/parlo/internal/entitlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("entitlement.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
