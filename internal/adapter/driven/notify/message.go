// Package notify implements the Notifier port. Notifications are delivered as
// JSON messages carrying both the markdown body and its rendered HTML.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ericfisherdev/fiscalkeeper/internal/domain/model"
)

// Message is the wire form of a notification.
type Message struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	CompanyID string         `json:"company_id,omitempty"`
	Category  string         `json:"category"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	BodyHTML  string         `json:"body_html,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewMessage builds the wire form of n, rendering its markdown body.
func NewMessage(n model.Notification) Message {
	return Message{
		ID:        n.ID,
		UserID:    n.UserID,
		CompanyID: n.CompanyID,
		Category:  string(n.Category),
		Title:     n.Title,
		Body:      n.Body,
		BodyHTML:  RenderMarkdown(n.Body),
		Data:      n.Data,
		CreatedAt: n.CreatedAt.UTC(),
	}
}

func encode(n model.Notification) ([]byte, error) {
	b, err := json.Marshal(NewMessage(n))
	if err != nil {
		return nil, fmt.Errorf("encoding notification %s: %w", n.ID, err)
	}
	return b, nil
}
