package driven

import (
	"context"

	"github.com/ericfisherdev/fiscalkeeper/internal/domain/model"
)

// CompanyStore defines the driven port for the company records this
// subsystem reads. Company rows are owned by the wider application; only the
// connection state is written from here.
type CompanyStore interface {
	// Get returns the company or (nil, nil) if it does not exist.
	Get(ctx context.Context, id string) (*model.Company, error)

	// Upsert inserts or replaces the externally owned company fields. The
	// connection state is left untouched on update.
	Upsert(ctx context.Context, company model.Company) error

	// UpdateConnectionState persists the status triad. Returns
	// model.ErrCompanyNotFound if the company does not exist.
	UpdateConnectionState(ctx context.Context, id string, state model.ConnectionState) error

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}
