// Package app is the composition root: it builds infrastructure, lets each
// module register its queue workers and handlers, and owns the lifecycle.
package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	"givedesk.io/backoffice/internal/api/handlers"
	"givedesk.io/backoffice/internal/app/modules"
	"givedesk.io/backoffice/internal/config"
)

// Application holds composed application dependencies.
type Application struct {
	Config  *config.Config
	Router  *gin.Engine
	Infra   *modules.Infrastructure
	Modules []modules.Module
}

// Bootstrap initializes all dependencies using module-oriented manual DI.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Application, error) {
	infra, err := modules.NewInfrastructure(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init infrastructure: %w", err)
	}

	allModules := []modules.Module{
		modules.NewNotificationModule(infra),
		modules.NewMailModule(infra),
		modules.NewReportsModule(infra),
		modules.NewAdminModule(infra),
	}

	for _, mod := range allModules {
		if err := mod.RegisterWorkers(infra.Queue); err != nil {
			infra.Close()
			return nil, fmt.Errorf("register %s workers: %w", mod.Name(), err)
		}
	}
	if err := infra.Queue.Initialize(ctx); err != nil {
		infra.Close()
		return nil, fmt.Errorf("init queue broker: %w", err)
	}

	deps := modules.NewServerDeps(allModules)
	deps.CheckOrigin = websocketOriginCheck(cfg)
	server := handlers.NewServer(deps)

	return &Application{
		Config:  cfg,
		Router:  newRouter(cfg, server, modules.NewJWTConfig(cfg)),
		Infra:   infra,
		Modules: allModules,
	}, nil
}
