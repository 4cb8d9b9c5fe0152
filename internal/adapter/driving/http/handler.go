package httphandler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ericfisherdev/fiscalkeeper/internal/application"
	"github.com/ericfisherdev/fiscalkeeper/internal/domain/model"
	"github.com/ericfisherdev/fiscalkeeper/internal/domain/port/driven"
)

// CredentialManager is the subset of application.CredentialService the API uses.
type CredentialManager interface {
	Store(ctx context.Context, companyID string, credType model.CredentialType, payload model.CredentialInput, opts model.StoreOptions) (*model.PublicCredential, error)
	Status(ctx context.Context, companyID string) (*model.CredentialStatus, error)
	Revoke(ctx context.Context, companyID string) error
	VerifyCertificatePassword(ctx context.Context, companyID, password string) (bool, error)
}

// ConnectionGuard is the subset of application.ConnectionService the API uses.
type ConnectionGuard interface {
	TestConnection(ctx context.Context, companyID string) (*model.ConnectionResult, error)
	ValidateConnectionOrThrow(ctx context.Context, companyID string) error
}

// ExpirationMonitor is the subset of application.CertificateMonitor the API uses.
type ExpirationMonitor interface {
	CheckExpiration(ctx context.Context, companyID string) (*model.ExpirationCheck, error)
	GuardIssuance(ctx context.Context, companyID string) error
}

// TaskRunner triggers every background task once.
type TaskRunner interface {
	RunScheduledTasksOnce(ctx context.Context) application.RunReport
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	companies   driven.CompanyStore
	credentials CredentialManager
	connections ConnectionGuard
	monitor     ExpirationMonitor
	tasks       TaskRunner
	logger      *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	companies driven.CompanyStore,
	credentials CredentialManager,
	connections ConnectionGuard,
	monitor ExpirationMonitor,
	tasks TaskRunner,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		companies:   companies,
		credentials: credentials,
		connections: connections,
		monitor:     monitor,
		tasks:       tasks,
		logger:      logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with request-id, logging and recovery middleware. /metrics is served from
// gatherer when it is non-nil.
func NewServeMux(h *Handler, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)

	mux.HandleFunc("GET /api/v1/companies/{id}", h.GetCompany)
	mux.HandleFunc("PUT /api/v1/companies/{id}", h.PutCompany)

	mux.HandleFunc("PUT /api/v1/companies/{id}/credential", h.StoreCredential)
	mux.HandleFunc("GET /api/v1/companies/{id}/credential", h.CredentialStatus)
	mux.HandleFunc("DELETE /api/v1/companies/{id}/credential", h.RevokeCredential)
	mux.HandleFunc("POST /api/v1/companies/{id}/credential/verify-password", h.VerifyPassword)

	mux.HandleFunc("POST /api/v1/companies/{id}/connection/test", h.TestConnection)
	mux.HandleFunc("POST /api/v1/companies/{id}/connection/validate", h.ValidateForIssuance)
	mux.HandleFunc("GET /api/v1/companies/{id}/certificate/expiration", h.CertificateExpiration)

	mux.HandleFunc("POST /api/v1/tasks/run", h.RunTasks)

	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)
	wrapped = requestIDMiddleware(wrapped)

	return wrapped
}

// Health reports whether the database is reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	}

	if err := h.companies.Ping(r.Context()); err != nil {
		h.logger.Error("health check failed", "error", err)
		resp.Status = "unavailable"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetCompany returns a company with its persisted connection state.
func (h *Handler) GetCompany(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	company, err := h.companies.Get(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get company", "company_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if company == nil {
		writeError(w, http.StatusNotFound, "company not found")
		return
	}

	writeJSON(w, http.StatusOK, toCompanyResponse(*company))
}

// PutCompany creates or updates the externally owned fields of a company. The
// connection state is never written through this endpoint.
func (h *Handler) PutCompany(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req PutCompanyRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	company := model.Company{
		ID:                                      id,
		UserID:                                  req.UserID,
		Name:                                    req.Name,
		GatewayRegistrationID:                   req.GatewayRegistrationID,
		CertificateUploadedToGateway:            req.CertificateUploadedToGateway,
		MunicipalCredentialsConfiguredAtGateway: req.MunicipalCredentialsConfiguredAtGateway,
		MunicipalityCode:                        req.MunicipalityCode,
	}

	if err := h.companies.Upsert(r.Context(), company); err != nil {
		h.logger.Error("failed to upsert company", "company_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	saved, err := h.companies.Get(r.Context(), id)
	if err != nil || saved == nil {
		h.logger.Error("failed to reload company", "company_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toCompanyResponse(*saved))
}
