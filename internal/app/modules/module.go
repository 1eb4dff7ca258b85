// Package modules contains the dependency modules of the composition root.
//
// Each module owns one slice of the engine: it registers its queue workers
// and contributes handler dependencies. Infrastructure is shared by all.
package modules

import (
	"context"

	"givedesk.io/backoffice/internal/api/handlers"
	"givedesk.io/backoffice/internal/queue"
)

// Module represents a domain-specific dependency unit in the composition root.
type Module interface {
	// Name returns a stable module identifier for logging/debugging.
	Name() string

	// ContributeServerDeps injects module-owned dependencies into the HTTP server deps.
	ContributeServerDeps(*handlers.ServerDeps)

	// RegisterWorkers binds the module's handlers to their queues. Called
	// before the registry is initialized.
	RegisterWorkers(*queue.Registry) error

	// Shutdown performs module-local graceful cleanup.
	Shutdown(context.Context) error
}
