package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/fiscalkeeper/internal/domain/model"
)

// CredentialStore defines the driven port for encrypted credential persistence.
// Payloads cross this boundary already encrypted; the application layer owns
// encryption through the Cipher port.
type CredentialStore interface {
	// Get returns the credential for the company, or (nil, nil) if none exists.
	Get(ctx context.Context, companyID string) (*model.FiscalCredential, error)

	// Save upserts identity.Credential by company id and writes
	// identity.Company.Connection in the same transaction.
	Save(ctx context.Context, identity model.FiscalIdentity) error

	// Delete removes the company's credential and writes state in the same
	// transaction. Returns model.ErrCredentialNotFound if nothing was deleted.
	Delete(ctx context.Context, companyID string, state model.ConnectionState) error

	// TouchLastUsed stamps last_used_at on the company's credential.
	TouchLastUsed(ctx context.Context, companyID string, at time.Time) error

	// ListCertificatesWithExpiry returns every certificate credential with a
	// non-null expiry.
	ListCertificatesWithExpiry(ctx context.Context) ([]model.FiscalCredential, error)
}

// Cipher defines the driven port for symmetric encryption and one-way
// password hashing.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(token string) (string, error)
	HashPassword(password string) (string, error)
	VerifyPassword(password, stored string) bool
}
