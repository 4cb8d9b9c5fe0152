package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/fiscalkeeper/internal/domain/model"
)

// NotificationStore defines the driven port for notification records. It is
// consulted only to suppress duplicate alerts.
type NotificationStore interface {
	Record(ctx context.Context, n model.Notification) error

	// ExistsSince reports whether userID received a notification about
	// companyID whose title contains titleSubstring at or after since.
	ExistsSince(ctx context.Context, userID, companyID, titleSubstring string, since time.Time) (bool, error)
}

// Notifier hands a notification to the external delivery system. Delivery is
// fire-and-forget from the caller's point of view.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}
