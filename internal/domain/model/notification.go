package model

import "time"

// Notification is an alert raised for the owner of a company. Delivery is
// handled outside this subsystem; Body is markdown.
type Notification struct {
	ID        string
	UserID    string
	CompanyID string
	Category  NotificationCategory
	Title     string
	Body      string
	Data      map[string]any
	CreatedAt time.Time
}
