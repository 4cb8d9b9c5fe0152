package httphandler

import (
	"net/http"
)

// TestConnection re-runs the connection checks for a company.
func (h *Handler) TestConnection(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	result, err := h.connections.TestConnection(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "test connection", id, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ValidateForIssuance answers whether the company may issue tax documents now.
// A blocked company gets 409 with a machine-readable code.
func (h *Handler) ValidateForIssuance(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := h.connections.ValidateConnectionOrThrow(r.Context(), id); err != nil {
		h.writeServiceError(w, "validate connection", id, err)
		return
	}
	if err := h.monitor.GuardIssuance(r.Context(), id); err != nil {
		h.writeServiceError(w, "guard issuance", id, err)
		return
	}

	writeJSON(w, http.StatusOK, IssuanceResponse{CompanyID: id, Ready: true})
}

// CertificateExpiration reports the certificate expiry of a company. An
// expired certificate flips the company to expired as a side effect.
func (h *Handler) CertificateExpiration(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	check, err := h.monitor.CheckExpiration(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "check certificate expiration", id, err)
		return
	}

	writeJSON(w, http.StatusOK, check)
}

// RunTasks runs every background task once, sequentially, and reports the
// per-task outcome. Task failures do not change the response status.
func (h *Handler) RunTasks(w http.ResponseWriter, r *http.Request) {
	report := h.tasks.RunScheduledTasksOnce(r.Context())
	writeJSON(w, http.StatusOK, toRunReportResponse(report))
}
