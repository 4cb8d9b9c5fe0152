package application

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/ericfisherdev/fiscalkeeper/internal/domain/model"
	"github.com/ericfisherdev/fiscalkeeper/internal/domain/port/driven"
	"github.com/ericfisherdev/fiscalkeeper/internal/metrics"
)

// expirationThresholds are the days-before-expiry on which an expiring
// certificate triggers a notification.
var expirationThresholds = []int{30, 15, 7, 3, 1}

// CertificateMonitor watches certificate expiry dates, flips expired
// companies and notifies owners ahead of expiry.
type CertificateMonitor struct {
	credentials *CredentialService
	store       driven.CredentialStore
	companies   driven.CompanyStore
	connections *ConnectionService
	alerts      *AlertService
	metrics     *metrics.Metrics
	runHour     int
	now         func() time.Time
}

// NewCertificateMonitor creates a new CertificateMonitor. Recurring sweeps run
// daily at runHour local time. m may be nil.
func NewCertificateMonitor(
	credentials *CredentialService,
	store driven.CredentialStore,
	companies driven.CompanyStore,
	connections *ConnectionService,
	alerts *AlertService,
	m *metrics.Metrics,
	runHour int,
) *CertificateMonitor {
	return &CertificateMonitor{
		credentials: credentials,
		store:       store,
		companies:   companies,
		connections: connections,
		alerts:      alerts,
		metrics:     m,
		runHour:     runHour,
		now:         time.Now,
	}
}

// Name identifies the monitor to the orchestrator.
func (m *CertificateMonitor) Name() string {
	return "certificate-monitor"
}

// CheckExpiration reports the company's certificate expiry. An expired
// certificate immediately flips the company to expired.
func (m *CertificateMonitor) CheckExpiration(ctx context.Context, companyID string) (*model.ExpirationCheck, error) {
	status, err := m.credentials.Status(ctx, companyID)
	if err != nil {
		return nil, err
	}

	check := &model.ExpirationCheck{
		HasCertificate: status.Exists && status.Type == model.CredentialTypeCertificate,
	}
	if !check.HasCertificate || status.ExpiresAt == nil {
		return check, nil
	}

	check.ExpiresAt = status.ExpiresAt
	check.DaysUntilExpiration = status.DaysUntilExpiration
	check.IsExpired = status.Expired
	check.NeedsNotification = status.DaysUntilExpiration != nil &&
		slices.Contains(expirationThresholds, *status.DaysUntilExpiration)

	if check.IsExpired {
		if err := m.connections.MarkCertificateExpired(ctx, companyID); err != nil {
			return nil, err
		}
	}

	return check, nil
}

// NotifyIfNeeded notifies the owner when the certificate has expired or sits
// on an expiry threshold. It reports whether a notification was sent.
func (m *CertificateMonitor) NotifyIfNeeded(ctx context.Context, companyID string) (bool, error) {
	check, err := m.CheckExpiration(ctx, companyID)
	if err != nil {
		return false, err
	}
	return m.notify(ctx, companyID, check)
}

func (m *CertificateMonitor) notify(ctx context.Context, companyID string, check *model.ExpirationCheck) (bool, error) {
	if !check.IsExpired && !check.NeedsNotification {
		return false, nil
	}

	company, err := m.companies.Get(ctx, companyID)
	if err != nil {
		return false, fmt.Errorf("load company %s: %w", companyID, err)
	}
	if company == nil {
		return false, fmt.Errorf("load company %s: %w", companyID, model.ErrCompanyNotFound)
	}

	alert := Alert{Data: map[string]any{"company_id": companyID}}
	if check.ExpiresAt != nil {
		alert.Data["expires_at"] = check.ExpiresAt.UTC().Format(time.RFC3339)
	}

	if check.IsExpired {
		alert.Category = model.NotificationCertificateExpired
		alert.Body = fmt.Sprintf("The digital certificate of **%s** has expired. "+
			"Tax documents cannot be issued until a new certificate is uploaded.", company.Name)
	} else {
		days := *check.DaysUntilExpiration
		alert.Category = model.NotificationCertificateExpiring
		alert.Data["days_until_expiration"] = days
		alert.Body = fmt.Sprintf("The digital certificate of **%s** expires in %d %s. "+
			"Renew it to keep issuing tax documents.", company.Name, days, pluralDays(days))
	}

	return m.alerts.Raise(ctx, *company, alert)
}

// SweepAll checks every certificate with a known expiry. A failure for one
// company is counted and logged; the sweep continues with the next.
func (m *CertificateMonitor) SweepAll(ctx context.Context) (model.SweepReport, error) {
	start := time.Now()
	var report model.SweepReport

	creds, err := m.store.ListCertificatesWithExpiry(ctx)
	if err != nil {
		return report, fmt.Errorf("list certificates: %w", err)
	}

	for _, cred := range creds {
		if ctx.Err() != nil {
			break
		}
		report.Total++

		check, err := m.CheckExpiration(ctx, cred.CompanyID)
		if err != nil {
			report.Errors++
			slog.Error("certificate expiration check failed", "company_id", cred.CompanyID, "error", err)
			continue
		}

		switch {
		case check.IsExpired:
			report.Expired++
		case check.DaysUntilExpiration != nil && *check.DaysUntilExpiration <= expirationThresholds[0]:
			report.ExpiringSoon++
		}

		sent, err := m.notify(ctx, cred.CompanyID, check)
		if err != nil {
			report.Errors++
			slog.Error("certificate expiration notification failed", "company_id", cred.CompanyID, "error", err)
			continue
		}
		if sent {
			report.NotificationsSent++
		}
	}

	m.metrics.ObserveSweep(report, time.Since(start))
	slog.Info("certificate sweep complete",
		"total", report.Total,
		"expired", report.Expired,
		"expiring_soon", report.ExpiringSoon,
		"notifications_sent", report.NotificationsSent,
		"errors", report.Errors,
		"duration", time.Since(start),
	)

	return report, ctx.Err()
}

// GuardIssuance blocks issuance while the company's certificate is expired.
func (m *CertificateMonitor) GuardIssuance(ctx context.Context, companyID string) error {
	status, err := m.credentials.Status(ctx, companyID)
	if err != nil {
		return err
	}
	if status.Type == model.CredentialTypeCertificate && status.Expired {
		return &model.CertificateExpiredError{CompanyID: companyID, ExpiresAt: status.ExpiresAt}
	}
	return nil
}

// RunOnce performs a single sweep.
func (m *CertificateMonitor) RunOnce(ctx context.Context) error {
	_, err := m.SweepAll(ctx)
	return err
}

// StartRecurring sweeps immediately, then daily at the configured hour. It
// fails fast with ErrStoreUnavailable when the database cannot be reached,
// otherwise it blocks until ctx is canceled.
func (m *CertificateMonitor) StartRecurring(ctx context.Context) error {
	if err := m.companies.Ping(ctx); err != nil {
		return fmt.Errorf("start %s: %w: %v", m.Name(), model.ErrStoreUnavailable, err)
	}

	if err := m.RunOnce(ctx); err != nil && ctx.Err() == nil {
		slog.Error("initial certificate sweep failed", "error", err)
	}

	for {
		timer := time.NewTimer(untilNextRun(m.now(), m.runHour))

		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("certificate monitor stopped")
			return nil
		case <-timer.C:
			if err := m.RunOnce(ctx); err != nil && ctx.Err() == nil {
				slog.Error("certificate sweep failed", "error", err)
			}
		}
	}
}

// untilNextRun returns the delay from now until the next occurrence of hour:00
// in now's location.
func untilNextRun(now time.Time, hour int) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

func pluralDays(n int) string {
	if n == 1 {
		return "day"
	}
	return "days"
}
