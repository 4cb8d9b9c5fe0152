package application

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ericfisherdev/fiscalkeeper/internal/domain/model"
	"github.com/ericfisherdev/fiscalkeeper/internal/domain/port/driven"
	"github.com/ericfisherdev/fiscalkeeper/internal/metrics"
)

// dedupWindow suppresses a repeat notification with the same title for this long.
const dedupWindow = 24 * time.Hour

var categoryTitles = map[model.NotificationCategory]string{
	model.NotificationCertificateExpired:  "Digital certificate expired",
	model.NotificationCertificateExpiring: "Digital certificate expiring soon",
	model.NotificationCredentialIssue:     "Fiscal credential issue",
}

// Alert is the content of a notification before dedup and delivery.
type Alert struct {
	Category model.NotificationCategory
	Body     string
	Data     map[string]any
}

// AlertService records and emits notifications for a company's owner,
// suppressing duplicates of the same title for the same company within
// dedupWindow.
type AlertService struct {
	store    driven.NotificationStore
	notifier driven.Notifier
	metrics  *metrics.Metrics
	now      func() time.Time

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

// NewAlertService creates a new AlertService. m may be nil.
func NewAlertService(store driven.NotificationStore, notifier driven.Notifier, m *metrics.Metrics) *AlertService {
	return &AlertService{
		store:    store,
		notifier: notifier,
		metrics:  m,
		now:      time.Now,
		entropy:  ulid.Monotonic(rand.Reader, 0),
	}
}

// AlertTitle returns the notification title for a category and company.
// Dedup matches on this title.
func AlertTitle(category model.NotificationCategory, companyName string) string {
	base, ok := categoryTitles[category]
	if !ok {
		base = string(category)
	}
	return base + " - " + companyName
}

// Raise emits the alert unless one with the same title reached the company's
// owner within the dedup window. It reports whether a notification was sent.
// Delivery failures are logged; the notification stays recorded.
func (s *AlertService) Raise(ctx context.Context, company model.Company, alert Alert) (bool, error) {
	now := s.now()
	title := AlertTitle(alert.Category, company.Name)

	exists, err := s.store.ExistsSince(ctx, company.UserID, company.ID, title, now.Add(-dedupWindow))
	if err != nil {
		return false, fmt.Errorf("check recent notifications for company %s: %w", company.ID, err)
	}
	if exists {
		slog.Debug("notification suppressed", "company_id", company.ID, "category", alert.Category)
		s.metrics.IncrementNotification(alert.Category, false)
		return false, nil
	}

	n := model.Notification{
		ID:        s.newID(now),
		UserID:    company.UserID,
		CompanyID: company.ID,
		Category:  alert.Category,
		Title:     title,
		Body:      alert.Body,
		Data:      alert.Data,
		CreatedAt: now,
	}

	if err := s.store.Record(ctx, n); err != nil {
		return false, fmt.Errorf("record notification for company %s: %w", company.ID, err)
	}

	if err := s.notifier.Notify(ctx, n); err != nil {
		slog.Warn("notification delivery failed",
			"company_id", company.ID,
			"notification_id", n.ID,
			"category", n.Category,
			"error", err,
		)
	}

	s.metrics.IncrementNotification(alert.Category, true)
	return true, nil
}

func (s *AlertService) newID(now time.Time) string {
	s.entropyMu.Lock()
	defer s.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), s.entropy).String()
}
