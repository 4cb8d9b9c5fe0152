package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/fiscalkeeper/internal/domain/model"
	"github.com/ericfisherdev/fiscalkeeper/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port
// interface. Payloads arrive already encrypted; this adapter stores them as
// opaque text.
type CredentialRepo struct {
	db *DB
}

// NewCredentialRepo creates a new CredentialRepo backed by the given DB.
func NewCredentialRepo(db *DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

const credentialColumns = `id, company_id, type, encrypted_payload, metadata, expires_at, last_used_at, created_at, updated_at`

// Get retrieves the credential of a company. Returns nil, nil if none exists.
func (r *CredentialRepo) Get(ctx context.Context, companyID string) (*model.FiscalCredential, error) {
	query := `SELECT ` + credentialColumns + ` FROM fiscal_credentials WHERE company_id = ?`

	cred, err := scanCredential(r.db.Reader.QueryRowContext(ctx, query, companyID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential for company %s: %w", companyID, err)
	}
	return cred, nil
}

// Save upserts the identity's credential and writes the company's connection
// state in one transaction. A missing company rolls back the credential write.
func (r *CredentialRepo) Save(ctx context.Context, identity model.FiscalIdentity) error {
	cred := identity.Credential
	if cred == nil {
		return fmt.Errorf("save identity %s: credential is nil", identity.Company.ID)
	}

	metadata, err := json.Marshal(cred.Metadata)
	if err != nil {
		return fmt.Errorf("marshal credential metadata: %w", err)
	}

	const query = `
		INSERT INTO fiscal_credentials (company_id, type, encrypted_payload, metadata, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(company_id) DO UPDATE SET
			type = excluded.type,
			encrypted_payload = excluded.encrypted_payload,
			metadata = excluded.metadata,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`

	now := formatTime(time.Now())

	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, query,
			identity.Company.ID, string(cred.Type), cred.EncryptedPayload, string(metadata),
			nullableTime(cred.ExpiresAt), now, now,
		); err != nil {
			return fmt.Errorf("upsert credential for company %s: %w", identity.Company.ID, err)
		}

		return updateConnectionState(ctx, tx, identity.Company.ID, identity.Company.Connection)
	})
}

// Delete removes the company's credential and writes state in one transaction.
func (r *CredentialRepo) Delete(ctx context.Context, companyID string, state model.ConnectionState) error {
	const query = `DELETE FROM fiscal_credentials WHERE company_id = ?`

	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, query, companyID)
		if err != nil {
			return fmt.Errorf("delete credential for company %s: %w", companyID, err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("check rows affected: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("delete credential for company %s: %w", companyID, model.ErrCredentialNotFound)
		}

		return updateConnectionState(ctx, tx, companyID, state)
	})
}

// TouchLastUsed stamps last_used_at on the company's credential.
func (r *CredentialRepo) TouchLastUsed(ctx context.Context, companyID string, at time.Time) error {
	const query = `UPDATE fiscal_credentials SET last_used_at = ? WHERE company_id = ?`

	if _, err := r.db.Writer.ExecContext(ctx, query, formatTime(at), companyID); err != nil {
		return fmt.Errorf("touch credential for company %s: %w", companyID, err)
	}
	return nil
}

// ListCertificatesWithExpiry returns every certificate credential with a
// non-null expiry, soonest first.
func (r *CredentialRepo) ListCertificatesWithExpiry(ctx context.Context) ([]model.FiscalCredential, error) {
	query := `SELECT ` + credentialColumns + `
		FROM fiscal_credentials
		WHERE type = ? AND expires_at IS NOT NULL
		ORDER BY expires_at, company_id`

	rows, err := r.db.Reader.QueryContext(ctx, query, string(model.CredentialTypeCertificate))
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	defer rows.Close()

	var creds []model.FiscalCredential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, *cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}

	return creds, nil
}

func scanCredential(s scanner) (*model.FiscalCredential, error) {
	var (
		cred                  model.FiscalCredential
		credType, metadata    string
		expiresAt, lastUsedAt sql.NullString
		createdAt, updatedAt  string
	)

	err := s.Scan(&cred.ID, &cred.CompanyID, &credType, &cred.EncryptedPayload, &metadata,
		&expiresAt, &lastUsedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	cred.Type = model.CredentialType(credType)
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &cred.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}

	if cred.ExpiresAt, err = parseNullTime(expiresAt); err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}
	if cred.LastUsedAt, err = parseNullTime(lastUsedAt); err != nil {
		return nil, fmt.Errorf("parse last_used_at: %w", err)
	}
	if cred.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if cred.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &cred, nil
}
