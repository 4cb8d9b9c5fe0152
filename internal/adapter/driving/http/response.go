package httphandler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ericfisherdev/fiscalkeeper/internal/application"
	"github.com/ericfisherdev/fiscalkeeper/internal/domain/model"
)

// Issuance block codes returned with 409 responses.
const (
	codeNotConnected       = "fiscal_not_connected"
	codeCertificateExpired = "certificate_expired"
	codeConnectionFailed   = "fiscal_connection_failed"
	codeConnectionInvalid  = "fiscal_connection_invalid"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeServiceError maps a service error onto a status code. Unknown errors
// are logged and hidden behind a generic 500.
func (h *Handler) writeServiceError(w http.ResponseWriter, op, companyID string, err error) {
	var (
		notConnected *model.FiscalNotConnectedError
		expired      *model.CertificateExpiredError
		failed       *model.FiscalConnectionFailedError
		invalid      *model.FiscalConnectionInvalidError
	)

	switch {
	case errors.As(err, &notConnected):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: codeNotConnected})
	case errors.As(err, &expired):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: codeCertificateExpired})
	case errors.As(err, &failed):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: codeConnectionFailed})
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: codeConnectionInvalid, Result: invalid.Result})

	case errors.Is(err, model.ErrCompanyNotFound):
		writeError(w, http.StatusNotFound, "company not found")
	case errors.Is(err, model.ErrCredentialNotFound):
		writeError(w, http.StatusNotFound, "credential not found")
	case errors.Is(err, model.ErrInvalidType), errors.Is(err, model.ErrIncompletePayload):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrCredentialExpired):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: codeCertificateExpired})

	default:
		h.logger.Error("request failed", "op", op, "company_id", companyID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error  string                  `json:"error"`
	Code   string                  `json:"code,omitempty"`
	Result *model.ConnectionResult `json:"result,omitempty"`
}

// HealthResponse is the JSON response for the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// ConnectionResponse is the persisted connection state of a company.
type ConnectionResponse struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	CheckedAt string `json:"checked_at,omitempty"`
}

// CompanyResponse is the JSON representation of a company.
type CompanyResponse struct {
	ID                                      string             `json:"id"`
	UserID                                  string             `json:"user_id"`
	Name                                    string             `json:"name"`
	GatewayRegistrationID                   string             `json:"gateway_registration_id,omitempty"`
	CertificateUploadedToGateway            bool               `json:"certificate_uploaded_to_gateway"`
	MunicipalCredentialsConfiguredAtGateway bool               `json:"municipal_credentials_configured_at_gateway"`
	MunicipalityCode                        *string            `json:"municipality_code,omitempty"`
	Connection                              ConnectionResponse `json:"connection"`
}

// VerifyPasswordResponse is the result of a certificate password check.
type VerifyPasswordResponse struct {
	Valid bool `json:"valid"`
}

// IssuanceResponse confirms that a company may issue tax documents.
type IssuanceResponse struct {
	CompanyID string `json:"company_id"`
	Ready     bool   `json:"ready"`
}

// TaskResultResponse is the outcome of one task in a manual run.
type TaskResultResponse struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// RunReportResponse is the JSON response for POST /api/v1/tasks/run.
type RunReportResponse struct {
	Results []TaskResultResponse `json:"results"`
	Failed  int                  `json:"failed"`
}

func toCompanyResponse(c model.Company) CompanyResponse {
	resp := CompanyResponse{
		ID:                                      c.ID,
		UserID:                                  c.UserID,
		Name:                                    c.Name,
		GatewayRegistrationID:                   c.GatewayRegistrationID,
		CertificateUploadedToGateway:            c.CertificateUploadedToGateway,
		MunicipalCredentialsConfiguredAtGateway: c.MunicipalCredentialsConfiguredAtGateway,
		MunicipalityCode:                        c.MunicipalityCode,
		Connection: ConnectionResponse{
			Status: string(c.Connection.Status),
			Error:  c.Connection.Error,
		},
	}
	if !c.Connection.CheckedAt.IsZero() {
		resp.Connection.CheckedAt = c.Connection.CheckedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func toRunReportResponse(report application.RunReport) RunReportResponse {
	resp := RunReportResponse{
		Results: make([]TaskResultResponse, 0, len(report.Results)),
		Failed:  report.Failed(),
	}
	for _, res := range report.Results {
		item := TaskResultResponse{Name: res.Name, OK: res.Err == nil}
		if res.Err != nil {
			item.Error = res.Err.Error()
		}
		resp.Results = append(resp.Results, item)
	}
	return resp
}
