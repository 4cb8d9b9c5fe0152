package driven

import (
	"context"

	"github.com/ericfisherdev/fiscalkeeper/internal/domain/model"
)

// Gateway defines the driven port for the external tax-authority gateway.
// Only the connection check is consumed here; timeouts are the adapter's concern.
type Gateway interface {
	CheckConnection(ctx context.Context, registrationID string) (*model.GatewayConnection, error)
}

// MunicipalityDirectory looks up a municipality's authentication requirements.
// Lookups are best-effort; callers must not block on failures.
type MunicipalityDirectory interface {
	GetRequirements(ctx context.Context, municipalityCode string) (*model.MunicipalityRequirements, error)
}
