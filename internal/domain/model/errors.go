package model

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the credential and connection domain. Adapters and
// services wrap them with context; callers match with errors.Is.
var (
	ErrEncryption         = errors.New("encryption failed")
	ErrDecryption         = errors.New("decryption failed")
	ErrInvalidType        = errors.New("invalid credential type")
	ErrIncompletePayload  = errors.New("credential payload incomplete")
	ErrCredentialNotFound = errors.New("credential not found")
	ErrTypeMismatch       = errors.New("credential type mismatch")
	ErrCredentialExpired  = errors.New("credential expired")
	ErrCompanyNotFound    = errors.New("company not found")
	ErrStoreUnavailable   = errors.New("store unavailable")
)

// CredentialError attaches the company and credential type to a credential
// store failure.
type CredentialError struct {
	Op        string
	CompanyID string
	Type      CredentialType
	Err       error
}

func (e *CredentialError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s credential for company %s (%s): %v", e.Op, e.CompanyID, e.Type, e.Err)
	}
	return fmt.Sprintf("%s credential for company %s: %v", e.Op, e.CompanyID, e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// FiscalNotConnectedError blocks issuance for a company whose last connection
// check ended in not_connected.
type FiscalNotConnectedError struct {
	CompanyID string
	Detail    string
}

func (e *FiscalNotConnectedError) Error() string {
	return withDetail(fmt.Sprintf("company %s is not connected to the fiscal gateway", e.CompanyID), e.Detail)
}

// CertificateExpiredError blocks issuance for a company whose digital
// certificate has expired.
type CertificateExpiredError struct {
	CompanyID string
	ExpiresAt *time.Time
}

func (e *CertificateExpiredError) Error() string {
	if e.ExpiresAt != nil {
		return fmt.Sprintf("digital certificate of company %s expired at %s", e.CompanyID, e.ExpiresAt.UTC().Format(time.RFC3339))
	}
	return fmt.Sprintf("digital certificate of company %s has expired", e.CompanyID)
}

// FiscalConnectionFailedError blocks issuance after the gateway check itself failed.
type FiscalConnectionFailedError struct {
	CompanyID string
	Detail    string
}

func (e *FiscalConnectionFailedError) Error() string {
	return withDetail(fmt.Sprintf("fiscal connection of company %s failed", e.CompanyID), e.Detail)
}

// FiscalConnectionInvalidError is returned when an inline re-test did not
// produce a connected status.
type FiscalConnectionInvalidError struct {
	CompanyID string
	Result    *ConnectionResult
}

func (e *FiscalConnectionInvalidError) Error() string {
	if e.Result == nil {
		return fmt.Sprintf("fiscal connection of company %s is invalid", e.CompanyID)
	}
	return withDetail(
		fmt.Sprintf("fiscal connection of company %s is invalid (status %s, step %s)", e.CompanyID, e.Result.Status, e.Result.Step),
		e.Result.Message,
	)
}

func withDetail(msg, detail string) string {
	if detail == "" {
		return msg
	}
	return msg + ": " + detail
}
