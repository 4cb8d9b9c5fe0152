package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ericfisherdev/fiscalkeeper/internal/domain/model"
	"github.com/ericfisherdev/fiscalkeeper/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.NotificationStore = (*NotificationRepo)(nil)

// NotificationRepo is the SQLite implementation of the NotificationStore port interface.
type NotificationRepo struct {
	db *DB
}

// NewNotificationRepo creates a new NotificationRepo backed by the given DB.
func NewNotificationRepo(db *DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

// Record inserts a notification.
func (r *NotificationRepo) Record(ctx context.Context, n model.Notification) error {
	const query = `
		INSERT INTO notifications (id, user_id, company_id, category, title, body, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	data := []byte("{}")
	if len(n.Data) > 0 {
		var err error
		if data, err = json.Marshal(n.Data); err != nil {
			return fmt.Errorf("marshal notification data: %w", err)
		}
	}

	createdAt := n.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := r.db.Writer.ExecContext(ctx, query,
		n.ID, n.UserID, nullableString(n.CompanyID), string(n.Category), n.Title, n.Body,
		string(data), formatTime(createdAt),
	)
	if err != nil {
		return fmt.Errorf("record notification %s: %w", n.ID, err)
	}
	return nil
}

// ExistsSince reports whether the user has a notification about companyID whose
// title contains titleSubstring created at or after since. An empty companyID
// matches notifications not tied to a company.
func (r *NotificationRepo) ExistsSince(ctx context.Context, userID, companyID, titleSubstring string, since time.Time) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM notifications
			WHERE user_id = ? AND ifnull(company_id, '') = ?
			  AND instr(title, ?) > 0 AND created_at >= ?
		)
	`

	var exists int
	if err := r.db.Reader.QueryRowContext(ctx, query, userID, companyID, titleSubstring, formatTime(since)).Scan(&exists); err != nil {
		return false, fmt.Errorf("query notifications for user %s: %w", userID, err)
	}
	return exists == 1, nil
}
