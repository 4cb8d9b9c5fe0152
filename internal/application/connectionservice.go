package application

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/ericfisherdev/fiscalkeeper/internal/domain/model"
	"github.com/ericfisherdev/fiscalkeeper/internal/domain/port/driven"
	"github.com/ericfisherdev/fiscalkeeper/internal/metrics"
)

const (
	// certificateExpiredMessage is persisted whenever a company flips to expired.
	certificateExpiredMessage = "digital certificate expired"

	// maxGatewayText caps gateway-derived text kept in the connection state.
	maxGatewayText = 300
)

// evaluation is the outcome of the ordered connection checks before it is
// persisted. notify requests a credential-issue alert after persistence.
type evaluation struct {
	result model.ConnectionResult
	notify bool
}

func failure(status model.ConnectionStatus, step model.Step, message string) evaluation {
	return evaluation{result: model.ConnectionResult{Status: status, Step: step, Message: message}}
}

// ConnectionService runs the connection test state machine and guards
// issuance on its persisted outcome.
type ConnectionService struct {
	companies      driven.CompanyStore
	credentials    driven.CredentialStore
	gateway        driven.Gateway
	municipalities driven.MunicipalityDirectory
	alerts         *AlertService
	metrics        *metrics.Metrics
	sanitizer      *bluemonday.Policy
	now            func() time.Time
}

// NewConnectionService creates a new ConnectionService with all required
// dependencies. m may be nil.
func NewConnectionService(
	companies driven.CompanyStore,
	credentials driven.CredentialStore,
	gateway driven.Gateway,
	municipalities driven.MunicipalityDirectory,
	alerts *AlertService,
	m *metrics.Metrics,
) *ConnectionService {
	return &ConnectionService{
		companies:      companies,
		credentials:    credentials,
		gateway:        gateway,
		municipalities: municipalities,
		alerts:         alerts,
		metrics:        m,
		sanitizer:      bluemonday.StrictPolicy(),
		now:            time.Now,
	}
}

// TestConnection re-derives the company's connection status from scratch and
// persists it exactly once. Every failed check returns a result with the
// remediation step; an error is returned only when the stores fail.
func (s *ConnectionService) TestConnection(ctx context.Context, companyID string) (*model.ConnectionResult, error) {
	company, err := s.loadCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}

	eval, err := s.evaluate(ctx, company)
	if err != nil {
		return nil, err
	}

	result := eval.result
	result.CheckedAt = s.now()
	result.Success = result.Status == model.ConnectionStatusConnected

	state := model.ConnectionState{Status: result.Status, CheckedAt: result.CheckedAt}
	if !result.Success {
		state.Error = result.Message
	}
	if err := s.companies.UpdateConnectionState(ctx, company.ID, state); err != nil {
		return nil, fmt.Errorf("persist connection state of company %s: %w", company.ID, err)
	}

	s.metrics.IncrementConnectionTest(result.Status, result.Step)
	slog.Info("connection tested",
		"company_id", company.ID,
		"status", result.Status,
		"step", result.Step,
		"warnings", len(result.Warnings),
	)

	if eval.notify {
		s.raiseCredentialIssue(ctx, *company, result.Message)
	}

	return &result, nil
}

func (s *ConnectionService) evaluate(ctx context.Context, company *model.Company) (evaluation, error) {
	if !company.IsRegisteredWithGateway() {
		return failure(model.ConnectionStatusNotConnected, model.StepRegisterCompany,
			"company is not registered with the fiscal gateway"), nil
	}

	cred, err := s.credentials.Get(ctx, company.ID)
	if err != nil {
		return evaluation{}, fmt.Errorf("load credential of company %s: %w", company.ID, err)
	}
	if cred == nil {
		return failure(model.ConnectionStatusNotConnected, model.StepConfigureAuth,
			"no fiscal credential configured"), nil
	}
	if !cred.Type.Valid() {
		return failure(model.ConnectionStatusNotConnected, model.StepConfigureAuth,
			fmt.Sprintf("stored credential type %q is not supported", cred.Type)), nil
	}

	switch cred.Type {
	case model.CredentialTypeCertificate:
		if cred.IsExpiredAt(s.now()) {
			return failure(model.ConnectionStatusExpired, model.StepRenewCertificate, certificateExpiredMessage), nil
		}
		if !company.CertificateUploadedToGateway {
			return failure(model.ConnectionStatusNotConnected, model.StepUploadCertificate,
				"digital certificate has not been uploaded to the gateway"), nil
		}
	case model.CredentialTypeMunicipal:
		if !company.MunicipalCredentialsConfiguredAtGateway {
			return failure(model.ConnectionStatusNotConnected, model.StepConfigureMunicipalCredentials,
				"municipal credentials have not been configured at the gateway"), nil
		}
	}

	blocked, warnings := s.checkMunicipality(ctx, company)
	if blocked != nil {
		blocked.result.Warnings = warnings
		return *blocked, nil
	}

	eval := s.checkGateway(ctx, company, cred.Type)
	eval.result.Warnings = append(warnings, eval.result.Warnings...)
	return eval, nil
}

// checkMunicipality validates the company's configured auth methods against
// its municipality. Unknown requirements never block; they add a warning.
func (s *ConnectionService) checkMunicipality(ctx context.Context, company *model.Company) (*evaluation, []string) {
	if company.MunicipalityCode == nil || *company.MunicipalityCode == "" {
		return nil, []string{"municipality code not set; authentication requirements unknown"}
	}
	code := *company.MunicipalityCode

	req, err := s.municipalities.GetRequirements(ctx, code)
	if err != nil {
		slog.Warn("municipality requirements lookup failed", "company_id", company.ID, "municipality", code, "error", err)
		return nil, []string{fmt.Sprintf("requirements for municipality %s could not be loaded", code)}
	}
	if req == nil {
		return nil, []string{fmt.Sprintf("requirements for municipality %s are unknown", code)}
	}

	if !req.Supported {
		eval := failure(model.ConnectionStatusNotConnected, model.StepNone,
			fmt.Sprintf("municipality %s is not supported by the fiscal gateway", municipalityLabel(code, req)))
		eval.result.UnsupportedMunicipality = true
		return &eval, nil
	}

	auth := req.AuthRequirements
	if auth == nil {
		return nil, []string{fmt.Sprintf("municipality %s did not declare authentication requirements", code)}
	}

	needsCertificate := auth.RequiresCertificate ||
		auth.AuthMode == model.AuthModeCertificateOnly || auth.AuthMode == model.AuthModeBoth
	needsLogin := auth.RequiresLoginSenha ||
		auth.AuthMode == model.AuthModeMunicipalOnly || auth.AuthMode == model.AuthModeBoth

	if needsCertificate && !company.CertificateUploadedToGateway {
		eval := failure(model.ConnectionStatusNotConnected, model.StepUploadCertificate,
			fmt.Sprintf("municipality %s requires a digital certificate", municipalityLabel(code, req)))
		return &eval, nil
	}
	if needsLogin && !company.MunicipalCredentialsConfiguredAtGateway {
		eval := failure(model.ConnectionStatusNotConnected, model.StepConfigureMunicipalCredentials,
			fmt.Sprintf("municipality %s requires municipal portal credentials", municipalityLabel(code, req)))
		return &eval, nil
	}

	return nil, nil
}

func (s *ConnectionService) checkGateway(ctx context.Context, company *model.Company, credType model.CredentialType) evaluation {
	conn, err := s.gateway.CheckConnection(ctx, company.GatewayRegistrationID)
	if err != nil {
		slog.Warn("gateway connection check failed", "company_id", company.ID, "error", err)
		eval := failure(model.ConnectionStatusFailed, model.StepCheckConnection,
			"gateway connection check failed: "+s.sanitize(err.Error()))
		eval.notify = true
		return eval
	}

	if !conn.Connected() {
		message := s.sanitize(conn.Message)
		if message == "" {
			message = "gateway reports the company as not connected"
		}
		eval := failure(model.ConnectionStatusNotConnected, model.StepUploadCertificate, message)
		eval.notify = true
		return eval
	}

	if !company.HasGatewayAuth() {
		return failure(model.ConnectionStatusNotConnected, model.StepConfigureAuth,
			"gateway reports connected but no local authentication is configured")
	}

	method := model.AuthMethodPortalCredentials
	if credType == model.CredentialTypeCertificate {
		method = model.AuthMethodCertificate
	}

	return evaluation{result: model.ConnectionResult{
		Status:     model.ConnectionStatusConnected,
		AuthMethod: method,
		Message:    s.sanitize(conn.Message),
	}}
}

// ValidateConnectionOrThrow is the issuance guard. It blocks on a persisted
// not_connected, expired or failed status, and re-tests inline when the
// company has never been checked.
func (s *ConnectionService) ValidateConnectionOrThrow(ctx context.Context, companyID string) error {
	company, err := s.loadCompany(ctx, companyID)
	if err != nil {
		return err
	}

	switch company.Connection.Status {
	case model.ConnectionStatusConnected:
		return nil

	case model.ConnectionStatusNotConnected:
		return &model.FiscalNotConnectedError{CompanyID: company.ID, Detail: company.Connection.Error}

	case model.ConnectionStatusExpired:
		cred, err := s.credentials.Get(ctx, company.ID)
		if err != nil {
			return fmt.Errorf("load credential of company %s: %w", company.ID, err)
		}
		expired := &model.CertificateExpiredError{CompanyID: company.ID}
		if cred != nil {
			expired.ExpiresAt = cred.ExpiresAt
		}
		return expired

	case model.ConnectionStatusFailed:
		s.raiseCredentialIssue(ctx, *company, company.Connection.Error)
		return &model.FiscalConnectionFailedError{CompanyID: company.ID, Detail: company.Connection.Error}
	}

	result, err := s.TestConnection(ctx, company.ID)
	if err != nil {
		return err
	}
	if result.Status != model.ConnectionStatusConnected {
		return &model.FiscalConnectionInvalidError{CompanyID: company.ID, Result: result}
	}
	return nil
}

// MarkCertificateExpired flips the company to expired.
func (s *ConnectionService) MarkCertificateExpired(ctx context.Context, companyID string) error {
	state := model.ConnectionState{
		Status:    model.ConnectionStatusExpired,
		Error:     certificateExpiredMessage,
		CheckedAt: s.now(),
	}
	if err := s.companies.UpdateConnectionState(ctx, companyID, state); err != nil {
		return fmt.Errorf("mark certificate of company %s expired: %w", companyID, err)
	}
	return nil
}

func (s *ConnectionService) loadCompany(ctx context.Context, companyID string) (*model.Company, error) {
	company, err := s.companies.Get(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("load company %s: %w", companyID, err)
	}
	if company == nil {
		return nil, fmt.Errorf("load company %s: %w", companyID, model.ErrCompanyNotFound)
	}
	return company, nil
}

func (s *ConnectionService) raiseCredentialIssue(ctx context.Context, company model.Company, detail string) {
	body := fmt.Sprintf("The fiscal connection of **%s** needs attention.", company.Name)
	if detail != "" {
		body += "\n\n> " + detail
	}

	_, err := s.alerts.Raise(ctx, company, Alert{
		Category: model.NotificationCredentialIssue,
		Body:     body,
		Data:     map[string]any{"company_id": company.ID, "detail": detail},
	})
	if err != nil {
		slog.Error("credential issue notification failed", "company_id", company.ID, "error", err)
	}
}

// sanitize turns gateway-supplied text into a single plain line fit for
// persistence. Tags are stripped, entities decoded back to characters and the
// result truncated to maxGatewayText runes.
func (s *ConnectionService) sanitize(text string) string {
	plain := html.UnescapeString(s.sanitizer.Sanitize(text))
	plain = strings.Join(strings.Fields(plain), " ")

	runes := []rune(plain)
	if len(runes) <= maxGatewayText {
		return plain
	}
	return strings.TrimSpace(string(runes[:maxGatewayText])) + "..."
}

func municipalityLabel(code string, req *model.MunicipalityRequirements) string {
	if req.Name == "" {
		return code
	}
	return fmt.Sprintf("%s (%s)", req.Name, code)
}
