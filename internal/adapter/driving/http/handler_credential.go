package httphandler

import (
	"net/http"

	"github.com/ericfisherdev/fiscalkeeper/internal/domain/model"
)

// StoreCredential encrypts and stores the company's fiscal credential,
// replacing any existing one.
func (h *Handler) StoreCredential(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req StoreCredentialRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	payload := model.CredentialInput{
		Certificate: []byte(req.Certificate),
		Username:    req.Username,
		Password:    req.Password,
	}
	opts := model.StoreOptions{
		Filename:  req.Filename,
		Password:  req.CertificatePassword,
		ExpiresAt: req.ExpiresAt,
	}

	cred, err := h.credentials.Store(r.Context(), id, model.CredentialType(req.Type), payload, opts)
	if err != nil {
		h.writeServiceError(w, "store credential", id, err)
		return
	}

	writeJSON(w, http.StatusOK, cred)
}

// CredentialStatus reports whether a credential exists and when it expires.
// Secrets are never returned.
func (h *Handler) CredentialStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	status, err := h.credentials.Status(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "credential status", id, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// RevokeCredential deletes the company's credential and marks it not connected.
func (h *Handler) RevokeCredential(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := h.credentials.Revoke(r.Context(), id); err != nil {
		h.writeServiceError(w, "revoke credential", id, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// VerifyPassword checks a certificate password against the stored hash.
func (h *Handler) VerifyPassword(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req VerifyPasswordRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	valid, err := h.credentials.VerifyCertificatePassword(r.Context(), id, req.Password)
	if err != nil {
		h.writeServiceError(w, "verify certificate password", id, err)
		return
	}

	writeJSON(w, http.StatusOK, VerifyPasswordResponse{Valid: valid})
}
