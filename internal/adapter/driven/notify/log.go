package notify

import (
	"context"
	"log/slog"

	"github.com/ericfisherdev/fiscalkeeper/internal/domain/model"
	"github.com/ericfisherdev/fiscalkeeper/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Notifier = (*LogEmitter)(nil)

// LogEmitter writes notifications to the structured log. It is the emitter
// used when no broker is configured.
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter creates a LogEmitter. A nil logger uses slog.Default.
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger}
}

// Notify logs n at info level.
func (e *LogEmitter) Notify(ctx context.Context, n model.Notification) error {
	e.logger.InfoContext(ctx, "notification",
		"id", n.ID,
		"user_id", n.UserID,
		"company_id", n.CompanyID,
		"category", n.Category,
		"title", n.Title,
	)
	return nil
}
