package model

import (
	"math"
	"time"
)

// CredentialMetadata holds non-secret hints about a stored credential.
// PasswordHash is a one-way hash of the certificate password and must never be
// exposed outside the credential service.
type CredentialMetadata struct {
	Filename       string `json:"filename,omitempty"`
	MaskedUsername string `json:"masked_username,omitempty"`
	HasPassword    bool   `json:"has_password"`
	PasswordHash   string `json:"password_hash,omitempty"`
}

// FiscalCredential is the encrypted authentication material of a company.
// There is at most one per company.
type FiscalCredential struct {
	ID               int64
	CompanyID        string
	Type             CredentialType
	EncryptedPayload string
	Metadata         CredentialMetadata
	ExpiresAt        *time.Time
	LastUsedAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsExpiredAt reports whether the credential has an expiry at or before now.
func (c FiscalCredential) IsExpiredAt(now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}

// DaysUntil returns the number of whole days (rounded up) between now and t.
// A value of zero or less means t has passed.
func DaysUntil(t, now time.Time) int {
	return int(math.Ceil(t.Sub(now).Hours() / 24))
}

// CredentialInput is the secret material submitted for storage. For certificates
// Certificate holds the keystore as raw bytes or base64 text; for municipal
// credentials Username and Password are required.
type CredentialInput struct {
	Certificate []byte
	Username    string
	Password    string
}

// StoreOptions carries non-secret attributes supplied with a credential.
type StoreOptions struct {
	Filename  string
	Password  string     // Certificate password; only its hash is kept.
	ExpiresAt *time.Time // Certificates only; ignored for municipal logins.
}

// PublicCredential is the caller-safe view of a stored credential.
type PublicCredential struct {
	CompanyID      string         `json:"company_id"`
	Type           CredentialType `json:"type"`
	Filename       string         `json:"filename,omitempty"`
	MaskedUsername string         `json:"masked_username,omitempty"`
	HasPassword    bool           `json:"has_password"`
	ExpiresAt      *time.Time     `json:"expires_at,omitempty"`
	LastUsedAt     *time.Time     `json:"last_used_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// ToPublic strips every secret field from the credential.
func (c FiscalCredential) ToPublic() PublicCredential {
	return PublicCredential{
		CompanyID:      c.CompanyID,
		Type:           c.Type,
		Filename:       c.Metadata.Filename,
		MaskedUsername: c.Metadata.MaskedUsername,
		HasPassword:    c.Metadata.HasPassword,
		ExpiresAt:      c.ExpiresAt,
		LastUsedAt:     c.LastUsedAt,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

// CertificateSecret is a decrypted certificate credential.
type CertificateSecret struct {
	Certificate string // base64 keystore bytes
	Filename    string
}

// MunicipalSecret is a decrypted municipal portal login.
type MunicipalSecret struct {
	Username string
	Password string
}

// CredentialSecret is the result of an explicit credential retrieval. Exactly
// one of Certificate or Municipal is set, matching Type.
type CredentialSecret struct {
	Type        CredentialType
	Certificate *CertificateSecret
	Municipal   *MunicipalSecret
}

// CredentialStatus is a side-effect free summary of a company's credential.
type CredentialStatus struct {
	Exists              bool           `json:"exists"`
	Type                CredentialType `json:"type,omitempty"`
	Expired             bool           `json:"expired"`
	ExpiresAt           *time.Time     `json:"expires_at,omitempty"`
	DaysUntilExpiration *int           `json:"days_until_expiration,omitempty"`
}
